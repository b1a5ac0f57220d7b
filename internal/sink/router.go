package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/esshka/binance-stream-go/internal/config"
	"github.com/esshka/binance-stream-go/internal/metrics"
)

// ErrStopped is returned by Run when an interactive sink was closed by the
// user.
var ErrStopped = errors.New("sink: stopped by user")

// Sink delivers events to a downstream system.
type Sink interface {
	Name() string
	Send(ctx context.Context, evt Event) error
}

// Starter is implemented by sinks that require their own goroutine (e.g. a
// terminal UI). The router invokes Start with the same context it uses for
// workers, and stops the sink when that context is cancelled.
type Starter interface {
	Start(ctx context.Context) error
}

// Router keeps fan-out logic for events.
type Router struct {
	logger  zerolog.Logger
	metrics *metrics.Collector
	sinks   []Sink
	events  chan Event
	workers int
	timeout time.Duration
}

const (
	defaultBufferSize = 1024
	defaultWorkers    = 2
)

// NewRouter configures sinks based on the provided sink configuration.
func NewRouter(cfg config.SinkConfig, logger zerolog.Logger, collector *metrics.Collector) (*Router, error) {
	var sinks []Sink
	if cfg.Console {
		sinks = append(sinks, &consoleSink{logger: logger})
	}
	if cfg.Table {
		sinks = append(sinks, newTableSink())
	}
	for i, raw := range cfg.Webhooks {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return nil, fmt.Errorf("sink: webhook %d: %w", i, err)
		}
		sinks = append(sinks, newWebhookSink(raw, cfg, logger.With().Str("sink", "webhook").Int("index", i).Logger()))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, &consoleSink{logger: logger})
	}

	return newRouter(sinks, cfg.BufferSize, cfg.Workers, cfg.Timeout.OrDefault(5*time.Second), logger, collector), nil
}

func newRouter(sinks []Sink, bufferSize, workers int, timeout time.Duration, logger zerolog.Logger, collector *metrics.Collector) *Router {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Router{
		logger:  logger,
		metrics: collector,
		sinks:   sinks,
		events:  make(chan Event, bufferSize),
		workers: workers,
		timeout: timeout,
	}
}

// Sinks returns the names of the configured sinks.
func (r *Router) Sinks() []string {
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	return names
}

// Publish forwards an event to the router. Drops events when the buffer is
// exhausted to avoid blocking the dispatcher.
func (r *Router) Publish(evt Event) {
	select {
	case r.events <- evt:
	default:
		r.logger.Warn().Str("kind", evt.Kind).Str("symbol", evt.Symbol).Msg("dropping event due to backpressure")
		if r.metrics != nil {
			r.metrics.IncSinkDrop()
		}
	}
}

// Run processes events until the context is cancelled or an interactive
// sink stops. It returns nil on cancellation.
func (r *Router) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range r.sinks {
		starter, ok := s.(Starter)
		if !ok {
			continue
		}
		name := s.Name()
		g.Go(func() error {
			err := starter.Start(gctx)
			if gctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = ErrStopped
			}
			if !errors.Is(err, ErrStopped) {
				r.logger.Error().Err(err).Str("sink", name).Msg("sink terminated")
			}
			return err
		})
	}

	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			r.worker(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (r *Router) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-r.events:
			r.deliver(ctx, evt)
		}
	}
}

func (r *Router) deliver(ctx context.Context, evt Event) {
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := s.Send(sctx, evt)
		cancel()
		if err != nil {
			r.logger.Error().Err(err).Str("sink", s.Name()).Str("kind", evt.Kind).Str("symbol", evt.Symbol).Msg("event delivery failed")
			if r.metrics != nil {
				r.metrics.IncSinkFailure(s.Name())
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.IncSinkDelivery(s.Name())
		}
	}
}

// consoleSink logs events locally.
type consoleSink struct {
	logger zerolog.Logger
}

func (c *consoleSink) Name() string { return "console" }

func (c *consoleSink) Send(_ context.Context, evt Event) error {
	e := c.logger.Info().
		Str("sink", c.Name()).
		Str("kind", evt.Kind).
		Str("summary", evt.Summary)
	if evt.Symbol != "" {
		e = e.Str("symbol", evt.Symbol)
	}
	if !evt.EventTime.IsZero() {
		e = e.Time("eventTime", evt.EventTime)
	}
	e.Msg("stream event")
	return nil
}

// webhookSink posts events to an HTTP endpoint.
type webhookSink struct {
	client *retryablehttp.Client
	url    string
	name   string
	logger zerolog.Logger
}

func newWebhookSink(endpoint string, cfg config.SinkConfig, logger zerolog.Logger) *webhookSink {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 5
	client.RetryWaitMin = cfg.Retry.Initial.OrDefault(time.Second)
	client.RetryWaitMax = cfg.Retry.Max.OrDefault(15 * time.Second)
	client.Backoff = retryablehttp.DefaultBackoff

	return &webhookSink{
		client: client,
		url:    endpoint,
		name:   "webhook",
		logger: logger,
	}
}

func (w *webhookSink) Name() string { return w.name }

func (w *webhookSink) Send(ctx context.Context, evt Event) error {
	payload := struct {
		Event
		EmittedAt time.Time `json:"emittedAt"`
	}{Event: evt, EmittedAt: time.Now().UTC()}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode}
	}
	return nil
}

type httpError struct {
	StatusCode int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("sink: webhook responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
