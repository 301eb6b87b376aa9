package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"FinSight/internal/domain/models"
	drepo "FinSight/internal/domain/repository"
	applogger "FinSight/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements QuoteStream over the provider's trade websocket. It keeps
// the newest trade per symbol and reconnects until its context ends.
type Stream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu     sync.RWMutex
	latest map[string]models.LivePrice
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStream creates a stream for symbols. Nothing connects until Start.
func NewStream(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration) *Stream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		latest:         make(map[string]models.LivePrice),
	}
}

// SetLogger injects a structured logger.
func (s *Stream) SetLogger(l *applogger.Logger) { s.l = l }

// Seed records a quote fetched elsewhere so streamed trades can report change
// against its previous close.
func (s *Stream) Seed(lp models.LivePrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latest[lp.Symbol]; ok && cur.Timestamp.After(lp.Timestamp) {
		cur.PrevClose = lp.PrevClose
		s.latest[lp.Symbol] = withChange(cur)
		return
	}
	s.latest[lp.Symbol] = lp
}

// Latest returns the newest quote seen for symbol.
func (s *Stream) Latest(symbol string) (models.LivePrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lp, ok := s.latest[symbol]
	return lp, ok
}

// Start dials once synchronously so configuration errors surface, then keeps
// reading in the background.
func (s *Stream) Start(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	u := s.websocketURL
	if s.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("quote stream connect: %w", err)
	}
	for _, sym := range s.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if s.l != nil {
		s.l.Info("quote stream connected", applogger.Strings("symbols", s.symbols))
	}
	return nil
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		if s.l != nil {
			s.l.Warn("quote stream dropped", applogger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
		if err := s.connect(ctx); err != nil && s.l != nil {
			s.l.Error("quote stream reconnect failed", applogger.Error(err))
		}
	}
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

func (s *Stream) readLoop(ctx context.Context) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("quote stream not connected")
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("quote stream read: %w", err)
		}
		var m wsMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			// ignore non-trade frames
			continue
		}
		for _, d := range m.Data {
			s.apply(d)
		}
	}
}

func (s *Stream) apply(d wsTrade) {
	if d.S == "" || d.P <= 0 {
		return
	}
	ts := time.UnixMilli(d.T).UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.latest[d.S]
	if ts.Before(cur.Timestamp) {
		return
	}
	cur.Symbol = d.S
	cur.Price = d.P
	cur.Volume += int64(d.V)
	if cur.Open == 0 {
		cur.Open = d.P
	}
	if d.P > cur.High {
		cur.High = d.P
	}
	if cur.Low == 0 || d.P < cur.Low {
		cur.Low = d.P
	}
	cur.Timestamp = ts
	s.latest[d.S] = withChange(cur)
}

func withChange(lp models.LivePrice) models.LivePrice {
	if lp.PrevClose > 0 {
		lp.Change = round2(lp.Price - lp.PrevClose)
		lp.ChangePercent = round2((lp.Price - lp.PrevClose) / lp.PrevClose * 100)
	}
	return lp
}

// Close stops the read loop and closes the connection.
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if s.done != nil {
		<-s.done
	}
	return err
}

var _ drepo.QuoteStream = (*Stream)(nil)
