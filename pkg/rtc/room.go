// Package rtc connects a call session to a realtime media room over a
// websocket. Control messages are JSON text frames, caller audio arrives as
// binary frames.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

type Config struct {
	URL         string        `split_words:"true" required:"true"`
	Token       string        `split_words:"true"`
	DialTimeout time.Duration `split_words:"true" default:"10s"`
	FrameBuffer int           `split_words:"true" default:"64"`
}

type joinMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Token  string `json:"token,omitempty"`
}

type controlMessage struct {
	Type           string `json:"type"`
	CallerIdentity string `json:"caller_identity,omitempty"`
	SampleRate     int    `json:"sample_rate,omitempty"`
}

// Room is one websocket connection into one media room. Join must succeed
// before any other method is used.
type Room struct {
	baseURL     string
	token       string
	dialTimeout time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex

	identity   string
	sampleRate int

	audio        chan contractx.AudioFrame
	disconnected chan struct{}
	closeOnce    sync.Once
}

var _ contractx.Transport = (*Room)(nil)

func NewRoom(cfg Config) (*Room, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("rtc url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	frameBuffer := cfg.FrameBuffer
	if frameBuffer <= 0 {
		frameBuffer = 64
	}

	return &Room{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        strings.TrimSpace(cfg.Token),
		dialTimeout:  dialTimeout,
		audio:        make(chan contractx.AudioFrame, frameBuffer),
		disconnected: make(chan struct{}),
	}, nil
}

// Join dials the room, announces itself, and waits for the joined ack that
// carries the caller identity. The read loop starts only after the ack.
func (r *Room) Join(ctx context.Context, roomID string) error {
	dialCtx, cancel := context.WithTimeout(ctx, r.dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, r.baseURL, nil)
	if err != nil {
		return fmt.Errorf("dial room: %w", err)
	}

	join := joinMessage{Type: "join", RoomID: roomID, Token: r.token}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return fmt.Errorf("announce join: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(r.dialTimeout))
	}

	var ack controlMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return fmt.Errorf("read join ack: %w", err)
	}
	if ack.Type != "joined" {
		conn.Close()
		return fmt.Errorf("unexpected join reply type %q", ack.Type)
	}
	if ack.CallerIdentity == "" {
		conn.Close()
		return errors.New("join ack carried no caller identity")
	}

	conn.SetReadDeadline(time.Time{})

	r.conn = conn
	r.identity = ack.CallerIdentity
	r.sampleRate = ack.SampleRate

	go r.readLoop()
	return nil
}

func (r *Room) CallerIdentity() string { return r.identity }

func (r *Room) CallerAudio() <-chan contractx.AudioFrame { return r.audio }

func (r *Room) Disconnected() <-chan struct{} { return r.disconnected }

// PublishAudio ships one synthesized utterance into the room. Writes are
// serialized because the playback loop and teardown can overlap.
func (r *Room) PublishAudio(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		r.conn.SetWriteDeadline(deadline)
	} else {
		r.conn.SetWriteDeadline(time.Now().Add(r.dialTimeout))
	}
	if err := r.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("%w: publish audio: %v", contractx.ErrTransportClosed, err)
	}
	return nil
}

// Leave sends a close frame and tears the connection down. Safe to call after
// the peer already hung up.
func (r *Room) Leave(ctx context.Context) error {
	r.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	r.conn.SetWriteDeadline(deadline)
	r.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.writeMu.Unlock()

	err := r.conn.Close()
	r.markDisconnected()
	return err
}

func (r *Room) markDisconnected() {
	r.closeOnce.Do(func() { close(r.disconnected) })
}

func (r *Room) readLoop() {
	defer r.markDisconnected()

	for {
		messageType, data, err := r.conn.ReadMessage()
		if err != nil {
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			frame := contractx.AudioFrame{Data: data, SampleRate: r.sampleRate}
			select {
			case r.audio <- frame:
			default:
				// Recognizer fell behind, drop the oldest frame.
				select {
				case <-r.audio:
				default:
				}
				select {
				case r.audio <- frame:
				default:
				}
			}
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "bye" {
				return
			}
		}
	}
}
