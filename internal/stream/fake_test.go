package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/esshka/binance-stream-go/internal/metrics"
	"github.com/esshka/binance-stream-go/internal/model"
)

const (
	klineFrame         = `{"e":"kline","E":123,"s":"BNBUSDT","k":{"t":123400000,"T":123460000,"s":"BNBUSDT","i":"1m","f":100,"L":200,"o":"0.0010","c":"0.0020","h":"0.0025","l":"0.0015","v":"1000","n":100,"x":false,"q":"1.0000","V":"500","Q":"0.500","B":"123456"}}`
	aggTradeFrame      = `{"e":"aggTrade","E":1,"s":"BNBUSDT","a":42,"p":"0.001","q":"100","f":100,"l":105,"T":123456785,"m":true,"M":true}`
	accountFrame       = `{"e":"outboundAccountInfo","E":1499405658849,"m":0,"t":0,"b":0,"s":0,"T":true,"W":true,"D":true,"u":1499405658848,"B":[{"a":"LTC","f":"17366.18538083","l":"0.00000000"}]}`
	executionFrame     = `{"e":"executionReport","E":1499405658658,"s":"ETHBTC","c":"mUvoqJxFIILMdfAW5iGSOW","S":"BUY","o":"LIMIT","f":"GTC","q":"1.00000000","p":"0.10264410","P":"0.00000000","F":"0.00000000","g":-1,"C":"","x":"NEW","X":"NEW","r":"NONE","i":4293153,"l":"0.00000000","z":"0.00000000","L":"0.00000000","n":"0","N":null,"T":1499405658657,"t":-1,"I":8641984,"w":true,"m":false,"M":false,"O":1499405658657,"Z":"0.00000000","Y":"0.00000000","Q":"0.00000000"}`
	depthFrame         = `{"e":"depthUpdate","E":123456789,"s":"BNBBTC","U":157,"u":160,"b":[["0.0024","10"]],"a":[["0.0026","100"]]}`
	partialFrame       = `{"lastUpdateId":160,"bids":[["0.0024","10"]],"asks":[["0.0026","100"]]}`
	tickerFrame        = `{"e":"24hrTicker","E":123456789,"s":"BNBBTC","p":"0.0015","P":"250.00","w":"0.0018","x":"0.0009","c":"0.0025","Q":"10","b":"0.0024","B":"10","a":"0.0026","A":"100","o":"0.0010","h":"0.0025","l":"0.0010","v":"10000","q":"18","O":0,"C":86400000,"F":0,"L":18150,"n":18151}`
	tickerArrayFrame   = `[` + tickerFrame + `,{"e":"24hrTicker","E":123456790,"s":"ETHBTC","c":"0.0510"}]`
	depthWithSnapFrame = `{"e":"depthUpdate","E":1,"s":"BNBBTC","U":157,"u":160,"lastUpdateId":156,"bids":[["0.0024","10"]],"asks":[],"b":[],"a":[]}`
)

func envelop(stream, payload string) string {
	return `{"stream":"` + stream + `","data":` + payload + `}`
}

// scriptedConn replays frames, then either ends the stream with err (io.EOF
// when nil) or blocks until closed.
type scriptedConn struct {
	mu     sync.Mutex
	frames []string
	err    error
	block  bool

	once   sync.Once
	closed chan struct{}
}

func newScriptedConn(frames ...string) *scriptedConn {
	return &scriptedConn{frames: frames, closed: make(chan struct{})}
}

func (c *scriptedConn) ReadFrame() ([]byte, error) {
	c.mu.Lock()
	if len(c.frames) > 0 {
		frame := c.frames[0]
		c.frames = c.frames[1:]
		c.mu.Unlock()
		return []byte(frame), nil
	}
	c.mu.Unlock()

	if c.block {
		<-c.closed
		return nil, errors.New("read on closed connection")
	}
	if c.err != nil {
		return nil, c.err
	}
	return nil, io.EOF
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptedConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	conn FrameConn
	err  error
	urls []string
}

func (d *fakeDialer) Dial(_ context.Context, rawURL string) (FrameConn, error) {
	d.urls = append(d.urls, rawURL)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// recorder implements every handler family and keeps calls in arrival order.
type recorder struct {
	calls    []string
	accounts []model.AccountUpdate
	orders   []model.OrderTrade
	trades   []model.AggregatedTrade
	depths   []model.DepthDelta
	books    []model.PartialOrderBook
	tickers  [][]model.DayTicker
	klines   []model.KlineEvent
}

func (r *recorder) OnAccountUpdate(evt model.AccountUpdate) {
	r.calls = append(r.calls, "account")
	r.accounts = append(r.accounts, evt)
}

func (r *recorder) OnOrderTrade(evt model.OrderTrade) {
	r.calls = append(r.calls, "order")
	r.orders = append(r.orders, evt)
}

func (r *recorder) OnAggregatedTrade(evt model.AggregatedTrade) {
	r.calls = append(r.calls, "aggTrade")
	r.trades = append(r.trades, evt)
}

func (r *recorder) OnDepthUpdate(evt model.DepthDelta) {
	r.calls = append(r.calls, "depth")
	r.depths = append(r.depths, evt)
}

func (r *recorder) OnPartialOrderBook(evt model.PartialOrderBook) {
	r.calls = append(r.calls, "book")
	r.books = append(r.books, evt)
}

func (r *recorder) OnDayTickerBatch(batch []model.DayTicker) {
	r.calls = append(r.calls, "ticker")
	r.tickers = append(r.tickers, batch)
}

func (r *recorder) OnKline(evt model.KlineEvent) {
	r.calls = append(r.calls, "kline")
	r.klines = append(r.klines, evt)
}

func (r *recorder) registerAll(d *Dispatcher) {
	d.SetUserStreamHandler(r)
	d.SetMarketHandler(r)
	d.SetDayTickerHandler(r)
	d.SetKlineHandler(r)
}

func newTestDispatcher(conn FrameConn) (*Dispatcher, *fakeDialer, *metrics.Collector) {
	dialer := &fakeDialer{conn: conn}
	collector := metrics.NewCollector()
	endpoints := Endpoints{Single: "wss://example.test/ws/", Multi: "wss://example.test/stream?streams="}
	return NewDispatcher(endpoints, dialer, collector, zerolog.Nop()), dialer, collector
}

// runFrames feeds frames through a fully registered single-stream dispatcher
// and returns the recorder plus every observed non-fatal error.
func runFrames(t *testing.T, frames ...string) (*recorder, []error) {
	t.Helper()
	rec := &recorder{}
	var observed []error

	d, _, _ := newTestDispatcher(newScriptedConn(frames...))
	rec.registerAll(d)
	d.SetObserver(func(err error) { observed = append(observed, err) })

	require.NoError(t, d.Connect(context.Background(), "bnbusdt@kline_1m"))
	require.NoError(t, d.Run(context.Background()))
	return rec, observed
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label != "" {
				match := false
				for _, lp := range m.GetLabel() {
					if lp.GetValue() == label {
						match = true
					}
				}
				if !match {
					continue
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
