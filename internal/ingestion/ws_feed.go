package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/pricing"
	"orderflow-lab/internal/replay"
)

// WSFeedConfig configures WebSocket feed behavior.
type WSFeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the capacity of the delivered tick channel.
	Buffer int
}

// DefaultWSFeedConfig returns default WebSocket feed configuration.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            1024,
	}
}

// wsTickMessage is one tick on the wire.
type wsTickMessage struct {
	Symbol      string          `json:"symbol"`
	TimestampMs int64           `json:"ts"`
	Seq         *int64          `json:"seq,omitempty"`
	Price       json.RawMessage `json:"price"`
	Volume      int64           `json:"volume"`
	Side        string          `json:"side"`
}

// wsSubscribeRequest is sent after every (re)connect.
type wsSubscribeRequest struct {
	Op     string `json:"op"`
	Symbol string `json:"symbol"`
}

// WSFeed streams ticks for one symbol from a WebSocket endpoint. Malformed
// messages and exact repeats of the last (timestamp, seq) are dropped with a
// warning. A tick older than the last delivered one ends the stream: the
// channel closes and Err reports replay.ErrInvalidOrdering.
type WSFeed struct {
	endpoint string
	symbol   string
	config   WSFeedConfig
	logger   *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	subscribed atomic.Bool
	out        chan *domain.Tick
	last       *domain.Tick
	nextSeq    int64

	dropped atomic.Int64

	errMu sync.Mutex
	err   error

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSFeed creates a feed; nothing is dialed until Subscribe.
func NewWSFeed(endpoint, symbol string, config *WSFeedConfig, logger *zap.Logger) *WSFeed {
	cfg := DefaultWSFeedConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSFeed{
		endpoint: endpoint,
		symbol:   symbol,
		config:   cfg,
		logger:   logger.With(zap.String("feed", endpoint), zap.String("symbol", symbol)),
		done:     make(chan struct{}),
	}
}

// Subscribe dials the endpoint and returns the tick channel. The channel is
// closed when ctx is cancelled or Close is called.
func (f *WSFeed) Subscribe(ctx context.Context) (<-chan *domain.Tick, error) {
	if f.closed.Load() {
		return nil, fmt.Errorf("feed closed")
	}
	if f.subscribed.Swap(true) {
		return nil, fmt.Errorf("feed already subscribed")
	}
	if err := f.connect(ctx); err != nil {
		f.subscribed.Store(false)
		return nil, err
	}

	f.out = make(chan *domain.Tick, f.config.Buffer)

	// Start reader goroutine
	f.wg.Add(1)
	go f.readLoop(ctx)

	// Start ping goroutine
	f.wg.Add(1)
	go f.pingLoop()

	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-f.done:
		}
	}()

	return f.out, nil
}

// Dropped returns the number of messages rejected at the boundary.
func (f *WSFeed) Dropped() int64 {
	return f.dropped.Load()
}

// Err returns the error that ended the stream, if any.
func (f *WSFeed) Err() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.err
}

// connect establishes WebSocket connection and sends the subscription.
func (f *WSFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := conn.WriteJSON(wsSubscribeRequest{Op: "subscribe", Symbol: f.symbol}); err != nil {
		conn.Close()
		return fmt.Errorf("websocket subscribe: %w", err)
	}

	f.conn = conn
	return nil
}

// Close closes the WebSocket connection and waits for the loops to exit.
func (f *WSFeed) Close() error {
	if f.closed.Swap(true) {
		return nil // Already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

// readLoop reads messages and delivers valid ticks. It owns f.out.
func (f *WSFeed) readLoop(ctx context.Context) {
	defer f.wg.Done()
	defer close(f.out)

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			if !f.reconnect(ctx, reconnectDelay) {
				return
			}
			// Increase delay for next reconnect (exponential backoff)
			reconnectDelay = min(reconnectDelay*2, f.config.MaxReconnectDelay)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			f.logger.Warn("websocket read failed", zap.Error(err))
			f.connMu.Lock()
			if f.conn == conn {
				f.conn.Close()
				f.conn = nil
			}
			f.connMu.Unlock()
			continue
		}

		// Reset delay on successful read
		reconnectDelay = f.config.ReconnectDelay

		tick, err := f.decode(message)
		if errors.Is(err, replay.ErrInvalidOrdering) {
			f.errMu.Lock()
			f.err = err
			f.errMu.Unlock()
			f.logger.Error("feed out of order, ending stream", zap.Error(err))
			return
		}
		if err != nil {
			f.dropped.Add(1)
			f.logger.Warn("dropping tick message", zap.Error(err))
			continue
		}

		select {
		case f.out <- tick:
		case <-f.done:
			return
		}
	}
}

// reconnect waits delay and dials again. Returns false on shutdown.
func (f *WSFeed) reconnect(ctx context.Context, delay time.Duration) bool {
	select {
	case <-f.done:
		return false
	case <-time.After(delay):
	}

	if err := f.connect(ctx); err != nil {
		f.logger.Warn("websocket reconnect failed", zap.Duration("delay", delay), zap.Error(err))
		return !f.closed.Load()
	}
	f.logger.Info("websocket reconnected")
	return true
}

// decode converts a message into a tick that advances the stream. A repeat
// of the last key is malformed; an older key is an ordering violation.
func (f *WSFeed) decode(message []byte) (*domain.Tick, error) {
	var msg wsTickMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTick, err)
	}
	if msg.Symbol != "" && msg.Symbol != f.symbol {
		return nil, fmt.Errorf("%w: unexpected symbol %q", ErrMalformedTick, msg.Symbol)
	}
	price, err := parseJSONPrice(msg.Price)
	if err != nil {
		return nil, err
	}
	side, err := domain.ParseSide(msg.Side)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTick, err)
	}

	tick := &domain.Tick{
		Symbol:      f.symbol,
		TimestampMs: msg.TimestampMs,
		Price:       price,
		Volume:      msg.Volume,
		Side:        side,
	}
	if msg.Seq != nil {
		tick.Seq = *msg.Seq
	} else {
		tick.Seq = f.nextSeq
	}
	if err := ValidateTick(tick); err != nil {
		return nil, err
	}
	if f.last != nil && !f.last.Before(tick) {
		if tick.TimestampMs == f.last.TimestampMs && tick.Seq == f.last.Seq {
			return nil, fmt.Errorf("%w: repeated tick (%d, %d)", ErrMalformedTick, tick.TimestampMs, tick.Seq)
		}
		return nil, fmt.Errorf("%w: tick (%d, %d) after (%d, %d)",
			replay.ErrInvalidOrdering, tick.TimestampMs, tick.Seq, f.last.TimestampMs, f.last.Seq)
	}

	f.nextSeq = tick.Seq + 1
	f.last = tick
	return tick, nil
}

// parseJSONPrice accepts numbers and decimal strings ("5000,25").
func parseJSONPrice(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing price", ErrMalformedTick)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	price, err := pricing.ParsePrice(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedTick, err)
	}
	return price, nil
}

// pingLoop sends periodic ping frames to keep connection alive.
func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				// A dead connection surfaces as a read error.
				_ = f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}

var _ TickStream = (*WSFeed)(nil)
