// Package ws carries stream frames over gorilla/websocket connections.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/esshka/binance-stream-go/internal/config"
	"github.com/esshka/binance-stream-go/internal/metrics"
	"github.com/esshka/binance-stream-go/internal/stream"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	writeWait               = 5 * time.Second
)

// Dialer opens websocket connections for the stream dispatcher.
type Dialer struct {
	cfg     config.StreamConfig
	metrics *metrics.Collector
	logger  zerolog.Logger
}

var _ stream.FrameDialer = (*Dialer)(nil)

// NewDialer builds a websocket dialer. collector may be nil.
func NewDialer(cfg config.StreamConfig, collector *metrics.Collector, logger zerolog.Logger) *Dialer {
	return &Dialer{
		cfg:     cfg,
		metrics: collector,
		logger:  logger,
	}
}

// Dial performs the websocket handshake with rawURL.
func (d *Dialer) Dial(ctx context.Context, rawURL string) (stream.FrameConn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.cfg.HandshakeTimeout.OrDefault(defaultHandshakeTimeout),
		ReadBufferSize:   d.cfg.ReadBufferBytes,
		WriteBufferSize:  d.cfg.WriteBufferBytes,
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s", err, resp.Status)
		}
		return nil, err
	}

	conn.EnableWriteCompression(false)
	return newConn(conn, d.cfg, d.metrics, d.logger), nil
}
