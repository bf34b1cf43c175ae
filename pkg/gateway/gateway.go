package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/beeper/persona-bridge/pkg/metrics"
	"github.com/beeper/persona-bridge/pkg/revolt"
)

const writeTimeout = 10 * time.Second

// Handler processes message and reaction events. Calls are serial.
type Handler interface {
	HandleEvent(ctx context.Context, evt revolt.Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt revolt.Event)

func (f HandlerFunc) HandleEvent(ctx context.Context, evt revolt.Event) {
	f(ctx, evt)
}

// Config controls the stream lifecycle. Zero durations take the defaults.
type Config struct {
	URL   string
	Token string

	PingInterval        time.Duration
	ReconnectDelay      time.Duration
	HandshakeRetryDelay time.Duration
	// MaxMissedPongs forces a reconnect after that many unanswered pings. 0 disables it.
	MaxMissedPongs int
	QueueSize      int

	// Prepare runs before every connection attempt, e.g. to fetch the bot's own identity.
	Prepare func(ctx context.Context) error
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = revolt.DefaultStreamURL
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.HandshakeRetryDelay <= 0 {
		c.HandshakeRetryDelay = 10 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// Gateway keeps one realtime stream connected and feeds its events to a Handler.
type Gateway struct {
	cfg     Config
	handler Handler
	dial    Dialer
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	connected atomic.Bool
}

type Option func(*Gateway)

func WithDialer(dial Dialer) Option {
	return func(g *Gateway) { g.dial = dial }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(cfg Config, handler Handler, log zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:     cfg.withDefaults(),
		handler: handler,
		dial:    DialWebsocket,
		log:     log.With().Str("component", "gateway").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.metrics = metrics.OrNop(g.metrics)
	return g
}

// Connected reports whether a stream is currently open.
func (g *Gateway) Connected() bool {
	return g.connected.Load()
}

// Run keeps the stream connected until ctx is cancelled. Connection and
// authentication failures are retried forever with a fixed delay.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		delay, err := g.session(ctx)
		if ctx.Err() != nil {
			g.log.Info().Msg("Realtime stream stopped")
			return nil
		}
		if err != nil {
			g.log.Err(err).Dur("retry_in", delay).Msg("Realtime stream failed")
		} else {
			g.log.Warn().Dur("retry_in", delay).Msg("Realtime stream closed")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// connection is the state of one open stream.
type connection struct {
	g      *Gateway
	conn   Conn
	events chan revolt.Event
	wg     sync.WaitGroup

	heartbeatOnce sync.Once
	stopHeartbeat chan struct{}
	missedPongs   atomic.Int32

	closeOnce   sync.Once
	closeReason string
}

func (g *Gateway) session(ctx context.Context) (time.Duration, error) {
	if g.cfg.Prepare != nil {
		if err := g.cfg.Prepare(ctx); err != nil {
			return g.cfg.HandshakeRetryDelay, fmt.Errorf("failed to prepare connection: %w", err)
		}
	}
	conn, err := g.dial(ctx, g.cfg.URL)
	if err != nil {
		return g.cfg.HandshakeRetryDelay, fmt.Errorf("failed to connect: %w", err)
	}

	c := &connection{
		g:             g,
		conn:          conn,
		events:        make(chan revolt.Event, g.cfg.QueueSize),
		stopHeartbeat: make(chan struct{}),
	}
	if err = c.send(revolt.NewAuthenticateFrame(g.cfg.Token)); err != nil {
		_ = conn.CloseNow()
		return g.cfg.HandshakeRetryDelay, fmt.Errorf("failed to authenticate: %w", err)
	}
	g.connected.Store(true)
	g.metrics.StreamConnects.Inc()
	g.log.Info().Str("url", g.cfg.URL).Msg("Realtime stream connected")

	stopShutdownWatch := context.AfterFunc(ctx, func() {
		c.close("shutdown", func() error { return conn.Close("shutting down") })
	})

	c.wg.Add(1)
	go c.work(ctx)
	readErr := c.readLoop(ctx)

	stopShutdownWatch()
	close(c.stopHeartbeat)
	close(c.events)
	c.wg.Wait()
	g.connected.Store(false)

	if ctx.Err() != nil {
		c.close("shutdown", func() error { return conn.Close("shutting down") })
	} else {
		c.close("read_error", conn.CloseNow)
	}
	g.metrics.StreamDisconnects.WithLabelValues(c.closeReason).Inc()
	if ctx.Err() != nil {
		return 0, nil
	}
	if c.closeReason == "read_error" {
		return g.cfg.ReconnectDelay, readErr
	}
	return g.cfg.ReconnectDelay, nil
}

// close records why the connection ended and closes it once.
func (c *connection) close(reason string, closeFn func() error) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		if err := closeFn(); err != nil {
			c.g.log.Debug().Err(err).Str("reason", reason).Msg("Error closing stream")
		}
	})
}

func (c *connection) send(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, data)
}

func (c *connection) readLoop(ctx context.Context) error {
	for {
		data, err := c.conn.Read(context.Background())
		if err != nil {
			return err
		}
		evt, err := revolt.DecodeEvent(data)
		if err != nil {
			c.g.metrics.DecodeFailures.Inc()
			c.g.log.Warn().Err(err).Int("length", len(data)).Msg("Dropping malformed frame")
			continue
		}
		c.g.metrics.FramesReceived.WithLabelValues(string(evt.Type())).Inc()
		if !c.route(ctx, evt) {
			return nil
		}
	}
}

// route handles protocol frames inline and queues the rest for the handler.
// It returns false when the connection should be dropped.
func (c *connection) route(ctx context.Context, evt revolt.Event) bool {
	switch e := evt.(type) {
	case *revolt.PingEvent:
		if err := c.send(revolt.NewPongFrame(e.Data)); err != nil {
			c.g.log.Warn().Err(err).Msg("Failed to answer ping")
		}
	case *revolt.PongEvent:
		c.missedPongs.Store(0)
		c.g.log.Trace().Str("data", string(e.Data)).Msg("Received pong")
	case *revolt.AuthenticatedEvent:
		c.g.log.Debug().Msg("Realtime stream authenticated")
	case *revolt.ReadyEvent:
		c.g.log.Info().Msg("Realtime stream ready")
		c.heartbeatOnce.Do(func() {
			c.wg.Add(1)
			go c.heartbeat()
		})
	case *revolt.ErrorEvent:
		c.g.log.Error().Str("error", e.Error).Msg("Realtime stream reported an error")
		c.close("error_frame", func() error { return c.conn.Close(e.Error) })
		return false
	case *revolt.MessageEvent, *revolt.ReactEvent:
		select {
		case c.events <- evt:
		case <-ctx.Done():
			return false
		}
	case *revolt.UnknownEvent:
		c.g.log.Trace().Str("type", string(e.RawType)).Msg("Ignoring frame")
	}
	return true
}

func (c *connection) work(ctx context.Context) {
	defer c.wg.Done()
	for evt := range c.events {
		c.g.handler.HandleEvent(ctx, evt)
	}
}

func (c *connection) heartbeat() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.g.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopHeartbeat:
			return
		case <-ticker.C:
		}
		if limit := c.g.cfg.MaxMissedPongs; limit > 0 && int(c.missedPongs.Load()) >= limit {
			c.g.log.Warn().Int("missed_pongs", limit).Msg("Stream stopped answering pings, reconnecting")
			c.close("missed_pong", c.conn.CloseNow)
			return
		}
		if err := c.send(revolt.NewPingFrame(c.g.now())); err != nil {
			c.g.log.Warn().Err(err).Msg("Failed to send ping")
			continue
		}
		c.missedPongs.Add(1)
	}
}
