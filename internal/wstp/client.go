// Package wstp streams subscription documents over the graphql-transport-ws
// protocol.
package wstp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/events"
	"github.com/hanpama/graphstore/internal/plugins"
)

// Subprotocol is the websocket subprotocol negotiated with the server.
const Subprotocol = "graphql-transport-ws"

const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// ErrNoAck is returned when the server answers connection_init with anything
// but connection_ack.
var ErrNoAck = errors.New("wstp: connection not acknowledged")

type message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query         string         `json:"query,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type nextPayload struct {
	Data   map[string]any `json:"data"`
	Errors gqlerror.List  `json:"errors"`
}

// Options configures the client.
type Options struct {
	URL string
	// InitPayload is sent with connection_init.
	InitPayload map[string]any
	Header      http.Header
	AckTimeout  time.Duration
	Logger      *slog.Logger
	Bus         *eventbus.Bus
}

// Client opens one websocket connection per subscription.
type Client struct {
	opts   Options
	dialer *websocket.Dialer
}

func New(opts Options) *Client {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := *websocket.DefaultDialer
	d.Subprotocols = []string{Subprotocol}
	return &Client{opts: opts, dialer: &d}
}

var _ plugins.SubscriptionClient = (*Client)(nil)

// Subscribe dials the server, completes the handshake and starts forwarding
// payloads to sink. The stream ends when the server completes it, the
// connection fails, or stop is called.
func (c *Client) Subscribe(ctx context.Context, params plugins.FetchParams, sink func(plugins.Payload)) (func(), error) {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("wstp: dial: %w", err)
	}
	s := &subscription{conn: conn, id: "1", done: make(chan struct{})}

	if err := c.handshake(s); err != nil {
		_ = conn.Close()
		return nil, err
	}
	sub := subscribePayload{
		Query:         params.Text,
		OperationName: params.Name,
		Variables:     params.Variables,
	}
	if params.Hash != "" {
		sub.Extensions = map[string]any{
			"persistedQuery": map[string]any{"version": 1, "sha256Hash": params.Hash},
		}
	}
	if err := s.send(msgSubscribe, sub); err != nil {
		_ = conn.Close()
		return nil, err
	}

	eventbus.Publish(c.opts.Bus, ctx, events.NetworkStart{Transport: "ws", Target: c.opts.URL, Document: params.Name})
	start := time.Now()
	go func() {
		err := s.read(sink)
		if err != nil {
			c.opts.Logger.Debug("subscription ended", "document", params.Name, "error", err)
		}
		eventbus.Publish(c.opts.Bus, ctx, events.NetworkFinish{
			Transport: "ws",
			Target:    c.opts.URL,
			Document:  params.Name,
			Status:    s.status(),
			Err:       err,
			Duration:  time.Since(start),
		})
	}()
	return s.stop, nil
}

func (c *Client) handshake(s *subscription) error {
	var init any
	if len(c.opts.InitPayload) > 0 {
		init = c.opts.InitPayload
	}
	if err := s.send(msgConnectionInit, init); err != nil {
		return err
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(c.opts.AckTimeout))
	var m message
	if err := s.conn.ReadJSON(&m); err != nil {
		return fmt.Errorf("wstp: handshake: %w", err)
	}
	if m.Type != msgConnectionAck {
		return fmt.Errorf("%w: got %q", ErrNoAck, m.Type)
	}
	return s.conn.SetReadDeadline(time.Time{})
}

type subscription struct {
	conn *websocket.Conn
	id   string

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}

	mu        sync.Mutex
	completed bool
	stopped   bool
}

func (s *subscription) send(typ string, payload any) error {
	m := message{Type: typ}
	if typ != msgConnectionInit && typ != msgPong {
		m.ID = s.id
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("wstp: encode %s: %w", typ, err)
		}
		m.Payload = raw
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(m)
}

func (s *subscription) read(sink func(plugins.Payload)) error {
	defer close(s.done)
	defer s.conn.Close()
	for {
		var m message
		if err := s.conn.ReadJSON(&m); err != nil {
			if s.isStopped() {
				return nil
			}
			return err
		}
		switch m.Type {
		case msgPing:
			if err := s.send(msgPong, nil); err != nil {
				return err
			}
		case msgNext:
			var p nextPayload
			if err := json.Unmarshal(m.Payload, &p); err != nil {
				return fmt.Errorf("wstp: decode next: %w", err)
			}
			sink(plugins.Payload{Data: p.Data, Errors: p.Errors})
		case msgError:
			var errs gqlerror.List
			if err := json.Unmarshal(m.Payload, &errs); err != nil {
				return fmt.Errorf("wstp: decode error: %w", err)
			}
			sink(plugins.Payload{Errors: errs})
			s.markCompleted()
			return nil
		case msgComplete:
			s.markCompleted()
			return nil
		}
	}
}

// stop completes the subscription and waits for the reader to exit.
func (s *subscription) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		completed := s.completed
		s.mu.Unlock()
		if !completed {
			_ = s.send(msgComplete, nil)
		}
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
		<-s.done
	})
}

func (s *subscription) markCompleted() {
	s.mu.Lock()
	s.completed = true
	s.mu.Unlock()
}

func (s *subscription) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *subscription) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.completed:
		return "complete"
	case s.stopped:
		return "stopped"
	}
	return "closed"
}
