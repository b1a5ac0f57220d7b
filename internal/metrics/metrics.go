package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "binstream"

// Collector wraps Prometheus metrics used by the stream client.
type Collector struct {
	registry *prometheus.Registry

	wsConnections     prometheus.Gauge
	handshakeFailures prometheus.Counter
	reconnects        prometheus.Counter
	pingPongLatency   prometheus.Histogram
	framesIn          prometheus.Counter
	envelopes         prometheus.Counter
	dispatched        *prometheus.CounterVec
	unhandled         *prometheus.CounterVec
	decodeErrors      *prometheus.CounterVec
	unknownFrames     prometheus.Counter
	dispatchLatency   prometheus.Histogram
	sinkDeliveries    *prometheus.CounterVec
	sinkFailures      *prometheus.CounterVec
	sinkDrops         prometheus.Counter
	rateLimitBackoffs prometheus.Counter
}

// NewCollector initialises and registers all metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_open",
			Help:      "Number of open websocket connections.",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_handshake_failures_total",
			Help:      "Websocket handshakes that failed.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_reconnects_total",
			Help:      "Dispatcher sessions restarted by the supervisor.",
		}),
		pingPongLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_pong_latency_seconds",
			Help:      "Latency between ping and pong frames.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		framesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Text frames read from the transport.",
		}),
		envelopes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_unwrapped_total",
			Help:      "Combined-stream envelopes stripped before classification.",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dispatched_total",
			Help:      "Frames delivered to a handler per event kind.",
		}, []string{"kind"}),
		unhandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_unhandled_total",
			Help:      "Recognised frames dropped because no handler was registered.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frames dropped because they failed to decode.",
		}, []string{"kind"}),
		unknownFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_frames_total",
			Help:      "Frames matching no discriminator token.",
		}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent classifying, decoding and delivering one frame.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		sinkDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_deliveries_total",
			Help:      "Events delivered per sink.",
		}, []string{"sink"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed deliveries per sink.",
		}, []string{"sink"}),
		sinkDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_drops_total",
			Help:      "Events dropped because the sink buffer was full.",
		}),
		rateLimitBackoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_backoffs_total",
			Help:      "Outbound control frames abandoned while waiting on the rate limiter.",
		}),
	}

	reg.MustRegister(
		c.wsConnections,
		c.handshakeFailures,
		c.reconnects,
		c.pingPongLatency,
		c.framesIn,
		c.envelopes,
		c.dispatched,
		c.unhandled,
		c.decodeErrors,
		c.unknownFrames,
		c.dispatchLatency,
		c.sinkDeliveries,
		c.sinkFailures,
		c.sinkDrops,
		c.rateLimitBackoffs,
	)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StartServer exposes Prometheus metrics on the configured address.
func (c *Collector) StartServer(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown failed")
		}
		close(done)
	}()

	logger.Info().Str("addr", addr).Msg("starting metrics endpoint")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	<-done
	return nil
}

// Update helper methods ----------------------------------------------------

// AddWSConnection increments/decrements the number of open websocket connections.
func (c *Collector) AddWSConnection(delta float64) {
	c.wsConnections.Add(delta)
}

// IncHandshakeFailure records a failed websocket handshake.
func (c *Collector) IncHandshakeFailure() {
	c.handshakeFailures.Inc()
}

// IncReconnect records a supervisor restart.
func (c *Collector) IncReconnect() {
	c.reconnects.Inc()
}

// ObservePingPong records ping/pong latency.
func (c *Collector) ObservePingPong(latency time.Duration) {
	c.pingPongLatency.Observe(latency.Seconds())
}

// IncFrames increments received frames.
func (c *Collector) IncFrames(count int) {
	c.framesIn.Add(float64(count))
}

// IncEnvelope counts an unwrapped combined-stream envelope.
func (c *Collector) IncEnvelope() {
	c.envelopes.Inc()
}

// IncDispatched counts a frame delivered to its handler.
func (c *Collector) IncDispatched(kind string) {
	c.dispatched.WithLabelValues(kind).Inc()
}

// IncUnhandled counts a recognised frame with no registered handler.
func (c *Collector) IncUnhandled(kind string) {
	c.unhandled.WithLabelValues(kind).Inc()
}

// IncDecodeError counts a frame that failed to decode.
func (c *Collector) IncDecodeError(kind string) {
	c.decodeErrors.WithLabelValues(kind).Inc()
}

// IncUnknownFrame counts an unclassified frame.
func (c *Collector) IncUnknownFrame() {
	c.unknownFrames.Inc()
}

// ObserveDispatch records the per-frame pipeline latency.
func (c *Collector) ObserveDispatch(d time.Duration) {
	c.dispatchLatency.Observe(d.Seconds())
}

// IncSinkDelivery counts a successful sink delivery.
func (c *Collector) IncSinkDelivery(sink string) {
	c.sinkDeliveries.WithLabelValues(sink).Inc()
}

// IncSinkFailure counts a failed sink delivery.
func (c *Collector) IncSinkFailure(sink string) {
	c.sinkFailures.WithLabelValues(sink).Inc()
}

// IncSinkDrop increments the sink drop counter.
func (c *Collector) IncSinkDrop() {
	c.sinkDrops.Inc()
}

// IncRateLimitBackoff increments an outbound rate-limit backoff observation.
func (c *Collector) IncRateLimitBackoff() {
	c.rateLimitBackoffs.Inc()
}
