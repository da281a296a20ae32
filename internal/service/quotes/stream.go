// Package quotes streams live bid/ask quotes over a websocket.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"FXEngine/internal/domain/models"
	drepo "FXEngine/internal/domain/repository"
	"FXEngine/pkg/logger"
)

// Stream implements QuoteStream against a JSON websocket feed.
type Stream struct {
	apiKey         string
	url            string
	pairs          []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	lgr            *logger.Logger

	mu        sync.Mutex // guards conn, connected and writes
	conn      *websocket.Conn
	connected bool
}

func New(apiKey, wsURL string, pairs []string, reconnectDelay, pingInterval time.Duration, lgr *logger.Logger) *Stream {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		apiKey:         apiKey,
		url:            wsURL,
		pairs:          pairs,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		dialer:         websocket.DefaultDialer,
		lgr:            lgr.With(logger.String("component", "quote_stream")),
	}
}

func (s *Stream) Connect(ctx context.Context) error {
	u := s.url
	if s.apiKey != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "token=" + url.QueryEscape(s.apiKey)
	}
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("quote stream connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.lgr.Info("quote stream connected")
	return nil
}

// Subscribe asks the feed for every configured pair.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return fmt.Errorf("quote stream not connected")
	}
	for _, p := range s.pairs {
		msg := map[string]string{"type": "subscribe", "symbol": strings.ToUpper(p)}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", p, err)
		}
	}
	s.lgr.Info("quote stream subscribed", logger.Strings("pairs", s.pairs))
	return nil
}

type wireQuote struct {
	S string  `json:"s"`
	B float64 `json:"b"`
	A float64 `json:"a"`
	T int64   `json:"t"` // ms
}

type wireMessage struct {
	Type string      `json:"type"`
	Data []wireQuote `json:"data"`
}

// decode returns the quotes carried by one frame; other frame types yield none.
func decode(b []byte) ([]*models.Quote, error) {
	var m wireMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m.Type != "quote" {
		return nil, nil
	}
	out := make([]*models.Quote, 0, len(m.Data))
	for _, d := range m.Data {
		out = append(out, &models.Quote{
			Pair: strings.ToUpper(d.S),
			Bid:  d.B,
			Ask:  d.A,
			At:   time.UnixMilli(d.T).UTC(),
		})
	}
	return out, nil
}

// Read streams quotes until the connection fails or ctx is done. Both
// channels close when the read loop exits.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, 1024)
	errs := make(chan error, 1)
	done := make(chan struct{})

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.conn == conn && conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
				s.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(quotes)
		defer close(errs)
		defer close(done)
		if conn == nil {
			errs <- fmt.Errorf("quote stream conn nil")
			return
		}
		for ctx.Err() == nil {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("quote stream read: %w", err)
				}
				return
			}
			qs, err := decode(b)
			if err != nil {
				continue
			}
			for _, q := range qs {
				select {
				case quotes <- q:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return quotes, errs
}

// Reconnect closes, waits the reconnect delay, then connects and subscribes again.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	t := time.NewTimer(s.reconnectDelay)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

var _ drepo.QuoteStream = (*Stream)(nil)
