package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/esshka/binance-stream-go/internal/metrics"
)

// State is the lifecycle position of a Dispatcher.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dispatcher owns one stream connection and routes every frame read from it
// to the handler registered for the frame's family.
//
// Handlers are invoked synchronously on the goroutine calling Run, in frame
// arrival order. Handler registration must happen before Run; the dispatcher
// is not safe for concurrent reconfiguration while running.
type Dispatcher struct {
	endpoints Endpoints
	dialer    FrameDialer
	metrics   *metrics.Collector
	logger    zerolog.Logger

	handlers registry
	observer func(error)

	mu    sync.Mutex
	state State
	conn  FrameConn
	url   string
}

// NewDispatcher creates a disconnected dispatcher. collector may be nil.
func NewDispatcher(endpoints Endpoints, dialer FrameDialer, collector *metrics.Collector, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		endpoints: endpoints,
		dialer:    dialer,
		metrics:   collector,
		logger:    logger,
	}
}

// SetUserStreamHandler replaces the handler for account and order events.
// A nil handler, including a typed nil, unsets the family.
func (d *Dispatcher) SetUserStreamHandler(h UserStreamHandler) { d.handlers.userStream = orUnset(h) }

// SetMarketHandler replaces the handler for trades and order book events.
// A nil handler, including a typed nil, unsets the family.
func (d *Dispatcher) SetMarketHandler(h MarketHandler) { d.handlers.market = orUnset(h) }

// SetDayTickerHandler replaces the handler for 24h ticker batches.
// A nil handler, including a typed nil, unsets the family.
func (d *Dispatcher) SetDayTickerHandler(h DayTickerHandler) { d.handlers.dayTicker = orUnset(h) }

// SetKlineHandler replaces the handler for candlesticks.
// A nil handler, including a typed nil, unsets the family.
func (d *Dispatcher) SetKlineHandler(h KlineHandler) { d.handlers.kline = orUnset(h) }

// SetObserver installs fn to receive the non-fatal conditions Run survives:
// *DecodeError and *UnknownFrameError. fn runs on the Run goroutine.
func (d *Dispatcher) SetObserver(fn func(error)) { d.observer = fn }

// State reports the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Connect opens a single-stream connection. endpoint is appended verbatim to
// the single-stream base, e.g. "bnbusdt@aggTrade" or a listen key.
func (d *Dispatcher) Connect(ctx context.Context, endpoint string) error {
	rawURL, err := d.endpoints.SingleURL(endpoint)
	if err != nil {
		return err
	}
	return d.connect(ctx, rawURL)
}

// ConnectMultiple opens a combined-stream connection to all streams. Frames
// arriving on it are wrapped in a {"stream":...,"data":...} envelope.
func (d *Dispatcher) ConnectMultiple(ctx context.Context, streams []string) error {
	rawURL, err := d.endpoints.MultiURL(streams)
	if err != nil {
		return err
	}
	return d.connect(ctx, rawURL)
}

func (d *Dispatcher) connect(ctx context.Context, rawURL string) error {
	if s := d.State(); s != StateDisconnected {
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, s)
	}

	conn, err := d.dialer.Dial(ctx, rawURL)
	if err != nil {
		if d.metrics != nil {
			d.metrics.IncHandshakeFailure()
		}
		d.logger.Warn().Err(err).Str("url", rawURL).Msg("handshake failed")
		return &HandshakeError{URL: rawURL, Err: err}
	}

	d.mu.Lock()
	if d.state != StateDisconnected {
		s := d.state
		d.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("%w: closed during connect (%s)", ErrInvalidState, s)
	}
	d.conn = conn
	d.url = rawURL
	d.state = StateConnected
	d.mu.Unlock()

	d.logger.Info().Str("url", rawURL).Msg("stream connected")
	return nil
}

// Run reads and dispatches frames until the stream ends, the transport
// fails, or ctx is cancelled. A clean end of stream returns nil; a read
// failure returns a *TransportError; cancellation returns ctx.Err(). Decode
// failures and unknown frames never stop Run. The dispatcher is Terminated
// and its connection closed when Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	switch d.state {
	case StateConnected:
	case StateDisconnected:
		d.mu.Unlock()
		return ErrNotConnected
	default:
		s := d.state
		d.mu.Unlock()
		return fmt.Errorf("%w: run while %s", ErrInvalidState, s)
	}
	d.state = StateRunning
	conn := d.conn
	d.mu.Unlock()

	defer d.terminate()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	d.logger.Info().Str("url", d.url).Msg("dispatcher running")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := conn.ReadFrame()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				d.logger.Info().Str("url", d.url).Msg("stream ended")
				return nil
			}
			d.logger.Error().Err(err).Str("url", d.url).Msg("stream read failed")
			return &TransportError{Err: err}
		}
		if d.metrics != nil {
			d.metrics.IncFrames(1)
		}
		d.dispatch(frame)
	}
}

// Close terminates the dispatcher and closes its connection. A Run in
// progress returns once its pending read fails.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateTerminated
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func (d *Dispatcher) terminate() {
	if err := d.Close(); err != nil {
		d.logger.Debug().Err(err).Msg("close after run")
	}
}

// dispatch handles one frame. Combined-stream envelopes are unwrapped first
// so that an enveloped payload is treated exactly like the bare payload.
func (d *Dispatcher) dispatch(frame []byte) {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.ObserveDispatch(time.Since(start))
		}
	}()

	kind := Classify(frame)
	payload := frame
	inner, name, err := unwrapEnvelope(frame)
	switch {
	case err == nil:
		if d.metrics != nil {
			d.metrics.IncEnvelope()
		}
		d.logger.Debug().Str("stream", name).Msg("unwrapped envelope")
		payload = inner
		// Only one level of envelope is recognised.
		if kind = Classify(inner); kind == KindEnvelope {
			kind = KindUnknown
		}
	case errors.Is(err, errMalformedEnvelope), kind == KindEnvelope:
		d.decodeFailed(KindEnvelope, frame, err)
		return
	}

	if kind == KindUnknown {
		if d.metrics != nil {
			d.metrics.IncUnknownFrame()
		}
		d.logger.Debug().Int("bytes", len(payload)).Msg("unknown frame")
		d.observe(&UnknownFrameError{Frame: payload})
		return
	}

	if !d.handlers.has(kind.Family()) {
		if d.metrics != nil {
			d.metrics.IncUnhandled(kind.String())
		}
		return
	}

	if err := d.handlers.deliver(kind, payload); err != nil {
		d.decodeFailed(kind, payload, err)
		return
	}
	if d.metrics != nil {
		d.metrics.IncDispatched(kind.String())
	}
}

func (d *Dispatcher) decodeFailed(kind Kind, payload []byte, err error) {
	if d.metrics != nil {
		d.metrics.IncDecodeError(kind.String())
	}
	d.logger.Warn().Err(err).Str("kind", kind.String()).Int("bytes", len(payload)).Msg("dropping malformed frame")
	d.observe(&DecodeError{Kind: kind, Err: err})
}

func (d *Dispatcher) observe(err error) {
	if d.observer != nil {
		d.observer(err)
	}
}
