// Package app runs dispatcher sessions for the configured streams and owns
// the reconnection policy.
package app

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/esshka/binance-stream-go/internal/config"
	"github.com/esshka/binance-stream-go/internal/metrics"
	"github.com/esshka/binance-stream-go/internal/stream"
)

// ErrNoStreams is returned by Run when no stream name is configured.
var ErrNoStreams = errors.New("app: no streams configured")

// Supervisor runs one dispatcher per session and, when enabled, starts a new
// session after the previous one ended or failed to connect.
type Supervisor struct {
	streamCfg    config.StreamConfig
	reconnectCfg config.ReconnectConfig
	endpoints    stream.Endpoints
	dialer       stream.FrameDialer
	register     func(*stream.Dispatcher)
	metrics      *metrics.Collector
	logger       zerolog.Logger
}

// NewSupervisor builds a supervisor. register installs handlers on every new
// dispatcher before it connects.
func NewSupervisor(cfg *config.Config, dialer stream.FrameDialer, register func(*stream.Dispatcher), collector *metrics.Collector, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		streamCfg:    cfg.Stream,
		reconnectCfg: cfg.Reconnect,
		endpoints:    stream.EndpointsFromConfig(cfg.Stream),
		dialer:       dialer,
		register:     register,
		metrics:      collector,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled or a session ends without being
// restarted. Cancellation returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.streamCfg.Streams) == 0 {
		return ErrNoStreams
	}
	if !s.reconnectCfg.Enable {
		_, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.reconnectCfg.Backoff.Initial.OrDefault(time.Second)
	bo.Multiplier = s.reconnectCfg.Backoff.Multiplier
	bo.MaxInterval = s.reconnectCfg.Backoff.Max.OrDefault(30 * time.Second)
	bo.RandomizationFactor = s.reconnectCfg.Backoff.Jitter
	bo.MaxElapsedTime = 0 // retry indefinitely
	bo.Reset()

	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !restartable(err) {
			return err
		}
		if connected {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			wait = bo.MaxInterval
		}
		s.logger.Warn().Err(err).Dur("backoff", wait).Msg("session ended; reconnecting")
		if s.metrics != nil {
			s.metrics.IncReconnect()
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

// session connects a fresh dispatcher and runs it to completion. connected
// reports whether the handshake succeeded.
func (s *Supervisor) session(ctx context.Context) (bool, error) {
	d := stream.NewDispatcher(s.endpoints, s.dialer, s.metrics, s.logger)
	if s.register != nil {
		s.register(d)
	}
	defer d.Close()

	var err error
	if s.streamCfg.UseMultiplex() {
		err = d.ConnectMultiple(ctx, s.streamCfg.Streams)
	} else {
		err = d.Connect(ctx, s.streamCfg.Streams[0])
	}
	if err != nil {
		return false, err
	}
	return true, d.Run(ctx)
}

// restartable reports whether a session outcome warrants another session.
// A clean end of stream is restarted too.
func restartable(err error) bool {
	if err == nil {
		return true
	}
	var handshake *stream.HandshakeError
	var transport *stream.TransportError
	return errors.As(err, &handshake) || errors.As(err, &transport)
}
