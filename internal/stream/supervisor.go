// Package stream owns the upstream WebSocket lifecycle: connect,
// authenticate-by-subscribe, receive loop, failure detection, and reconnect
// with exponential backoff. One live connection at a time, never more.
package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pumpportal-archiver/internal/observability"
	"pumpportal-archiver/internal/registry"
	"pumpportal-archiver/internal/stats"
)

// State names the supervisor's position in its connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateShuttingDown
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// FrameHandler consumes inbound frames. HandleFrame returns the mints that
// need an immediate per-mint trade subscription (newly created tokens), so
// trades on brand-new tokens are captured without waiting for a reconnect.
type FrameHandler interface {
	HandleFrame(raw []byte) (newMints []string)
}

// Dialer establishes one WebSocket connection. Injectable for tests.
type Dialer func(ctx context.Context, endpoint string) (*websocket.Conn, error)

// Config configures supervisor behavior.
type Config struct {
	// InitialBackoff is the delay before the first reconnect attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration
	// ReadTimeout is the ceiling on waiting for the next frame; exceeding
	// it is treated as a transport failure.
	ReadTimeout time.Duration
	// WriteTimeout bounds outbound control message writes.
	WriteTimeout time.Duration
	// PingInterval is the interval for keepalive ping frames.
	PingInterval time.Duration
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// SubscribeChunkSize caps keys per bulk trade-subscription request.
	SubscribeChunkSize int
}

// DefaultConfig returns default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         60 * time.Second,
		ReadTimeout:        60 * time.Second,
		WriteTimeout:       10 * time.Second,
		PingInterval:       30 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		SubscribeChunkSize: 50,
	}
}

// Supervisor maintains the single live stream connection and re-establishes
// subscription interest after every reconnect. Gap loss while disconnected is
// accepted: the upstream feed has no replay capability.
type Supervisor struct {
	endpoint string
	config   Config
	registry *registry.Registry
	handler  FrameHandler
	counters *stats.Counters
	logger   *log.Logger
	dial     Dialer

	state atomic.Int32

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Options contains configuration for creating a Supervisor.
type Options struct {
	Endpoint string
	Config   *Config // nil for defaults
	Registry *registry.Registry
	Handler  FrameHandler
	Counters *stats.Counters
	Logger   *log.Logger
	Dialer   Dialer // nil for the gorilla default
}

// New creates a new Supervisor.
func New(opts Options) *Supervisor {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if cfg.SubscribeChunkSize <= 0 {
		cfg.SubscribeChunkSize = 50
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Supervisor{
		endpoint: opts.Endpoint,
		config:   cfg,
		registry: opts.Registry,
		handler:  opts.Handler,
		counters: opts.Counters,
		logger:   logger,
		dial:     opts.Dialer,
	}
	if s.dial == nil {
		s.dial = func(ctx context.Context, endpoint string) (*websocket.Conn, error) {
			dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
			conn, _, err := dialer.DialContext(ctx, endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("websocket dial: %w", err)
			}
			return conn, nil
		}
	}
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	observability.UpdateConnectionState(int(st))
}

// Run maintains the connection until the context is cancelled. Transport
// errors are recovered locally through the backoff cycle and never surface
// as failures; Run returns nil on shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	delay := s.config.InitialBackoff
	sessions := 0

	for {
		if ctx.Err() != nil {
			s.setState(StateShuttingDown)
			return nil
		}

		s.setState(StateConnecting)
		conn, err := s.dial(ctx, s.endpoint)
		if err == nil {
			if err = s.subscribeAll(conn); err == nil {
				s.setState(StateConnected)
				delay = s.config.InitialBackoff
				sessions++
				if sessions > 1 && s.counters != nil {
					s.counters.Reconnects.Add(1)
					observability.RecordReconnect()
				}
				s.logger.Printf("connected to %s (%d mints resubscribed)", s.endpoint, s.registry.Size())

				err = s.receive(ctx, conn)
			}
			if ctx.Err() != nil {
				s.closeGracefully(conn)
			}
			conn.Close()
			s.clearConn()
		}

		if ctx.Err() != nil {
			s.setState(StateShuttingDown)
			return nil
		}

		s.logger.Printf("connection lost: %v, reconnecting in %s", err, delay)
		s.setState(StateBackoff)

		select {
		case <-ctx.Done():
			s.setState(StateShuttingDown)
			return nil
		case <-time.After(delay):
		}
		delay = NextBackoff(delay, s.config.MaxBackoff)
	}
}

// subscribeAll sends the global creation-feed subscription followed by one
// chunked trade subscription per known mint. Ordering matters: the creation
// feed is always wanted, registry interest follows.
func (s *Supervisor) subscribeAll(conn *websocket.Conn) error {
	s.setConn(conn)

	if err := s.writeControl(subscribeRequest{Method: methodSubscribeNewToken}); err != nil {
		return fmt.Errorf("subscribe new tokens: %w", err)
	}
	observability.RecordSubscribeSent(methodSubscribeNewToken)

	mints := s.registry.Mints()
	for start := 0; start < len(mints); start += s.config.SubscribeChunkSize {
		end := start + s.config.SubscribeChunkSize
		if end > len(mints) {
			end = len(mints)
		}
		if err := s.writeControl(subscribeRequest{
			Method: methodSubscribeTokenTrade,
			Keys:   mints[start:end],
		}); err != nil {
			return fmt.Errorf("resubscribe trades: %w", err)
		}
		observability.RecordSubscribeSent(methodSubscribeTokenTrade)
	}
	return nil
}

// SubscribeTokenTrade requests trade events for a single mint on the live
// connection. A write failure is left to the receive loop's failure
// detection; the mint stays in the registry and is resubscribed on
// reconnect.
func (s *Supervisor) SubscribeTokenTrade(mint string) {
	if err := s.writeControl(subscribeRequest{
		Method: methodSubscribeTokenTrade,
		Keys:   []string{mint},
	}); err != nil {
		s.logger.Printf("subscribe %s failed: %v", mint, err)
		return
	}
	observability.RecordSubscribeSent(methodSubscribeTokenTrade)
}

// receive reads frames one at a time until a transport error, read timeout,
// or shutdown. New mints reported by the handler get an immediate trade
// subscription. A watcher goroutine tears the connection down on
// cancellation so a pending read never holds shutdown until the read
// deadline.
func (s *Supervisor) receive(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	go func() {
		select {
		case <-ctx.Done():
			s.closeGracefully(conn)
		case <-done:
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		observability.RecordFrameReceived()

		for _, mint := range s.handler.HandleFrame(message) {
			s.SubscribeTokenTrade(mint)
		}
	}
}

// closeGracefully sends a close frame and closes the connection, which also
// unblocks a read in flight. Safe to call more than once; the second write
// fails silently on the closed connection.
func (s *Supervisor) closeGracefully(conn *websocket.Conn) {
	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	conn.Close()
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *Supervisor) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			// A failed ping surfaces as a read error in the receive loop.
			conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
		}
	}
}

func (s *Supervisor) setConn(conn *websocket.Conn) {
	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()
}

func (s *Supervisor) clearConn() {
	s.writeMu.Lock()
	s.conn = nil
	s.writeMu.Unlock()
}

func (s *Supervisor) writeControl(req subscribeRequest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}
