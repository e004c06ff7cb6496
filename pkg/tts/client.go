// Package tts turns reply text into audio through a speech synthesis HTTP
// service.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/waritk/frontdesk/agent/contract"
)

type Config struct {
	URL     string        `split_words:"true" required:"true"`
	Token   string        `split_words:"true"`
	Voice   string        `split_words:"true" default:"alloy"`
	Format  string        `split_words:"true" default:"pcm16"`
	Timeout time.Duration `split_words:"true" default:"10s"`
}

type synthesisRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

type Client struct {
	baseURL    string
	token      string
	voice      string
	format     string
	httpClient *http.Client
}

var _ contractx.Synthesizer = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("tts url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = "alloy"
	}
	format := strings.TrimSpace(cfg.Format)
	if format == "" {
		format = "pcm16"
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(cfg.Token),
		voice:      voice,
		format:     format,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Synthesize renders one utterance and returns the raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty utterance")
	}

	body, err := json.Marshal(synthesisRequest{Text: text, Voice: c.voice, Format: c.format})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesize: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesize: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("synthesize: empty audio")
	}
	return audio, nil
}
