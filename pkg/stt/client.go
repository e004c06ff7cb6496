// Package stt streams caller audio to a speech recognition service over a
// websocket and turns its hypotheses into transcript events.
package stt

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
	Language    string        `split_words:"true" default:"en"`
	DialTimeout time.Duration `split_words:"true" default:"10s"`
	EventBuffer int           `split_words:"true" default:"32"`
}

type startMessage struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

type hypothesisMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// Client is one streaming recognition session. Start may be called once.
type Client struct {
	baseURL     string
	token       string
	language    string
	dialTimeout time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex

	events    chan contractx.TranscriptEvent
	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

var _ contractx.Recognizer = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("stt url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = 32
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = "en"
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       strings.TrimSpace(cfg.Token),
		language:    language,
		dialTimeout: dialTimeout,
		events:      make(chan contractx.TranscriptEvent, eventBuffer),
		done:        make(chan struct{}),
	}, nil
}

// Start opens the stream and begins forwarding audio. The event channel
// closes when the service hangs up or Close is called.
func (c *Client) Start(ctx context.Context, audio <-chan contractx.AudioFrame) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("dial recognizer: %w", err)
	}

	start := startMessage{Type: "start", Token: c.token, Language: c.language}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return fmt.Errorf("start recognition: %w", err)
	}

	c.conn = conn
	go c.writeLoop(ctx, audio)
	go c.readLoop()
	return nil
}

func (c *Client) Events() <-chan contractx.TranscriptEvent { return c.events }

// Close tears the stream down. The read loop notices the closed connection
// and closes the event channel.
func (c *Client) Close() error {
	c.doneOnce.Do(func() { close(c.done) })

	if c.conn == nil {
		c.closeOnce.Do(func() { close(c.events) })
		return nil
	}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *Client) writeLoop(ctx context.Context, audio <-chan contractx.AudioFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-audio:
			if !ok {
				return
			}
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.dialTimeout))
			err := c.conn.WriteMessage(websocket.BinaryMessage, frame.Data)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.closeOnce.Do(func() { close(c.events) })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg hypothesisMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "hypothesis" || msg.Text == "" {
			continue
		}

		event := contractx.TranscriptEvent{Text: msg.Text, IsFinal: msg.IsFinal, At: time.Now()}
		select {
		case c.events <- event:
		default:
			// A stalled consumer only ever costs interim hypotheses. Finals
			// wait for room, but never past Close.
			if !msg.IsFinal {
				continue
			}
			select {
			case c.events <- event:
			case <-c.done:
				return
			}
		}
	}
}
