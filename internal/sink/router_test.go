package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/esshka/binance-stream-go/internal/config"
	"github.com/esshka/binance-stream-go/internal/metrics"
)

type collectingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *collectingSink) Name() string { return "collect" }

func (c *collectingSink) Send(_ context.Context, evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return c.err
}

func (c *collectingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type quittingSink struct {
	collectingSink
}

func (q *quittingSink) Start(context.Context) error { return nil }

func TestRouterDeliversToAllSinks(t *testing.T) {
	first := &collectingSink{}
	failing := &collectingSink{err: errors.New("down")}
	collector := metrics.NewCollector()
	router := newRouter([]Sink{first, failing}, 8, 2, time.Second, zerolog.New(io.Discard), collector)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- router.Run(ctx) }()

	router.Publish(Event{Kind: "kline", Symbol: "BNBUSDT"})
	router.Publish(Event{Kind: "aggTrade", Symbol: "BNBUSDT"})

	require.Eventually(t, func() bool { return first.count() == 2 && failing.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	reg := collector.Registry()
	require.Equal(t, 2.0, sinkCounter(t, reg, "binstream_sink_deliveries_total"))
	require.Equal(t, 2.0, sinkCounter(t, reg, "binstream_sink_failures_total"))
}

func TestRouterDropsUnderBackpressure(t *testing.T) {
	collector := metrics.NewCollector()
	router := newRouter([]Sink{&collectingSink{}}, 1, 1, time.Second, zerolog.New(io.Discard), collector)

	router.Publish(Event{Kind: "kline"})
	router.Publish(Event{Kind: "kline"})
	router.Publish(Event{Kind: "kline"})

	require.Equal(t, 2.0, sinkCounter(t, collector.Registry(), "binstream_sink_drops_total"))
}

func TestRouterStopsWhenInteractiveSinkQuits(t *testing.T) {
	router := newRouter([]Sink{&quittingSink{}}, 1, 1, time.Second, zerolog.New(io.Discard), nil)

	err := router.Run(context.Background())
	require.ErrorIs(t, err, ErrStopped)
}

func TestNewRouterDefaultsToConsole(t *testing.T) {
	router, err := NewRouter(config.SinkConfig{}, zerolog.New(io.Discard), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"console"}, router.Sinks())

	router, err = NewRouter(config.SinkConfig{Console: true, Webhooks: []string{"http://127.0.0.1:1/hook"}}, zerolog.New(io.Discard), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"console", "webhook"}, router.Sinks())

	_, err = NewRouter(config.SinkConfig{Webhooks: []string{"not a url"}}, zerolog.New(io.Discard), nil)
	require.Error(t, err)
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	bodies := make(chan map[string]any, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.SinkConfig{Retry: config.BackoffConfig{
		Initial: config.Duration{Duration: time.Millisecond},
		Max:     config.Duration{Duration: 5 * time.Millisecond},
	}}
	sink := newWebhookSink(srv.URL, cfg, zerolog.New(io.Discard))

	err := sink.Send(context.Background(), Event{Kind: "aggTrade", Symbol: "BNBUSDT", Summary: "0.001 x 100 buy"})
	require.NoError(t, err)
	require.Equal(t, int32(2), attempts.Load())

	body := <-bodies
	require.Equal(t, "aggTrade", body["kind"])
	require.Equal(t, "BNBUSDT", body["symbol"])
	require.Contains(t, body, "emittedAt")
}

func TestWebhookSinkClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := newWebhookSink(srv.URL, config.SinkConfig{}, zerolog.New(io.Discard))
	err := sink.Send(context.Background(), Event{Kind: "kline"})

	var httpErr *httpError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func sinkCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
