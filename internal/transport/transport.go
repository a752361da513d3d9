// Package transport delivers outbound chat text. The dialog core only ever
// calls Send; connection and session handling belong to the gateway behind
// it.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Sender interface {
	Send(ctx context.Context, conversationID string, text string) error
}

type outboundMessage struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// WebhookSender posts each message as JSON to the chat gateway.
type WebhookSender struct {
	url     string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

type WebhookOption func(*WebhookSender)

func WithHTTPClient(client *http.Client) WebhookOption {
	return func(s *WebhookSender) {
		if client != nil {
			s.client = client
		}
	}
}

// WithRateLimit caps outbound messages per second across conversations.
func WithRateLimit(perSecond float64, burst int) WebhookOption {
	return func(s *WebhookSender) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func NewWebhookSender(url string, token string, opts ...WebhookOption) *WebhookSender {
	s := &WebhookSender{
		url:     strings.TrimSpace(url),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WebhookSender) Send(ctx context.Context, conversationID string, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	body, err := json.Marshal(outboundMessage{ConversationID: conversationID, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway responded %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used when
// no gateway is configured.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, conversationID string, text string) error {
	s.log.Info().Str("conversation_id", conversationID).Str("text", text).Msg("outbound message")
	return nil
}

type Message struct {
	ConversationID string
	Text           string
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(_ context.Context, conversationID string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{ConversationID: conversationID, Text: text})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the newest message text, or "" when nothing was sent.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1].Text
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
