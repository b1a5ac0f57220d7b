package ws

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/esshka/binance-stream-go/internal/config"
	"github.com/esshka/binance-stream-go/internal/metrics"
)

// Conn is one established websocket stream. ReadFrame must be called from a
// single goroutine; Close may be called from any.
type Conn struct {
	conn        *websocket.Conn
	metrics     *metrics.Collector
	logger      zerolog.Logger
	limiter     *rate.Limiter
	readTimeout time.Duration

	pingMu   sync.Mutex
	lastPing time.Time

	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func newConn(conn *websocket.Conn, cfg config.StreamConfig, collector *metrics.Collector, logger zerolog.Logger) *Conn {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MaxMessagesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxMessagesPerSec), cfg.MaxMessagesPerSec)
	}
	pingInterval := cfg.PingInterval.OrDefault(0)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:        conn,
		metrics:     collector,
		logger:      logger,
		limiter:     limiter,
		readTimeout: pingInterval * 2,
		cancel:      cancel,
	}

	conn.SetPongHandler(func(string) error {
		c.pingMu.Lock()
		sent := c.lastPing
		c.pingMu.Unlock()
		if !sent.IsZero() && c.metrics != nil {
			c.metrics.ObservePingPong(time.Since(sent))
		}
		c.extendDeadline()
		return nil
	})
	// The exchange pings periodically and drops connections that stay silent.
	conn.SetPingHandler(func(appData string) error {
		c.extendDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	if c.metrics != nil {
		c.metrics.AddWSConnection(1)
	}
	if pingInterval > 0 {
		go c.pingLoop(ctx, pingInterval)
	}
	return c
}

// ReadFrame returns the next text or binary message. A close frame with a
// normal or going-away code ends the stream with io.EOF.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		c.extendDeadline()
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return payload, nil
	}
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.closeErr = c.conn.Close()
		if c.metrics != nil {
			c.metrics.AddWSConnection(-1)
		}
	})
	return c.closeErr
}

func (c *Conn) extendDeadline() {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

func (c *Conn) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.waitSend(ctx); err != nil {
				return
			}
			c.pingMu.Lock()
			c.lastPing = time.Now()
			c.pingMu.Unlock()
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Conn) waitSend(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if c.metrics != nil {
			c.metrics.IncRateLimitBackoff()
		}
		return err
	}
	return nil
}
