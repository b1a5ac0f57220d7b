// Package sink fans decoded stream events out to console, webhook and
// terminal table outputs on a worker pool, off the dispatcher goroutine.
package sink

import (
	"fmt"
	"strings"
	"time"

	"github.com/esshka/binance-stream-go/internal/model"
	"github.com/esshka/binance-stream-go/internal/stream"
)

// Event is the sink-facing view of one decoded stream event.
type Event struct {
	Kind       string    `json:"kind"`
	Symbol     string    `json:"symbol,omitempty"`
	EventTime  time.Time `json:"eventTime"`
	Summary    string    `json:"summary"`
	Payload    any       `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(Event)
}

// Forwarder adapts every stream handler family onto a Publisher.
type Forwarder struct {
	publisher Publisher
	now       func() time.Time
}

var (
	_ stream.UserStreamHandler = (*Forwarder)(nil)
	_ stream.MarketHandler     = (*Forwarder)(nil)
	_ stream.DayTickerHandler  = (*Forwarder)(nil)
	_ stream.KlineHandler      = (*Forwarder)(nil)
)

// NewForwarder returns a Forwarder publishing to p.
func NewForwarder(p Publisher) *Forwarder {
	return &Forwarder{
		publisher: p,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register installs f as the handler of every family on d.
func (f *Forwarder) Register(d *stream.Dispatcher) {
	d.SetUserStreamHandler(f)
	d.SetMarketHandler(f)
	d.SetDayTickerHandler(f)
	d.SetKlineHandler(f)
}

// OnAccountUpdate publishes the non-zero balances of an account snapshot.
func (f *Forwarder) OnAccountUpdate(evt model.AccountUpdate) {
	nonZero := make([]string, 0, len(evt.Balances))
	for _, b := range evt.Balances {
		if b.Free.IsZero() && b.Locked.IsZero() {
			continue
		}
		nonZero = append(nonZero, fmt.Sprintf("%s=%s/%s", b.Asset, b.Free, b.Locked))
	}
	f.publish(stream.KindAccountUpdate, "", evt.Time(), strings.Join(nonZero, " "), evt)
}

// OnOrderTrade publishes an execution report.
func (f *Forwarder) OnOrderTrade(evt model.OrderTrade) {
	summary := fmt.Sprintf("%s %s %s @ %s %s/%s", evt.Side, evt.OrderType, evt.Quantity, evt.Price, evt.ExecutionType, evt.OrderStatus)
	f.publish(stream.KindOrderTrade, evt.Symbol, evt.Time(), summary, evt)
}

// OnAggregatedTrade publishes a trade with its taker side.
func (f *Forwarder) OnAggregatedTrade(evt model.AggregatedTrade) {
	side := "buy"
	if evt.IsBuyerMaker {
		side = "sell"
	}
	summary := fmt.Sprintf("%s x %s %s", evt.Price, evt.Quantity, side)
	f.publish(stream.KindAggregatedTrade, evt.Symbol, evt.Time(), summary, evt)
}

// OnDepthUpdate publishes the update id range and level counts of a delta.
func (f *Forwarder) OnDepthUpdate(evt model.DepthDelta) {
	summary := fmt.Sprintf("%d..%d bids=%d asks=%d", evt.FirstUpdateID, evt.FinalUpdateID, len(evt.Bids), len(evt.Asks))
	f.publish(stream.KindDepthUpdate, evt.Symbol, evt.Time(), summary, evt)
}

// OnPartialOrderBook publishes the top of a book snapshot.
func (f *Forwarder) OnPartialOrderBook(evt model.PartialOrderBook) {
	summary := fmt.Sprintf("id=%d %s / %s", evt.LastUpdateID, topOfBook(evt.Bids), topOfBook(evt.Asks))
	f.publish(stream.KindPartialOrderBook, "", time.Time{}, summary, evt)
}

// OnDayTickerBatch publishes one event per ticker in the batch.
func (f *Forwarder) OnDayTickerBatch(batch []model.DayTicker) {
	for _, t := range batch {
		summary := fmt.Sprintf("last=%s chg=%s%% vol=%s", t.LastPrice, t.PriceChangePercent, t.BaseVolume)
		f.publish(stream.KindDayTicker, t.Symbol, t.Time(), summary, t)
	}
}

// OnKline publishes a candlestick.
func (f *Forwarder) OnKline(evt model.KlineEvent) {
	k := evt.Kline
	summary := fmt.Sprintf("%s o=%s h=%s l=%s c=%s v=%s", k.Interval, k.Open, k.High, k.Low, k.Close, k.Volume)
	if k.IsClosed {
		summary += " closed"
	}
	f.publish(stream.KindKline, evt.Symbol, evt.Time(), summary, evt)
}

func (f *Forwarder) publish(kind stream.Kind, symbol string, at time.Time, summary string, payload any) {
	f.publisher.Publish(Event{
		Kind:       kind.String(),
		Symbol:     symbol,
		EventTime:  at,
		Summary:    summary,
		Payload:    payload,
		ReceivedAt: f.now(),
	})
}

func topOfBook(levels []model.PriceLevel) string {
	if len(levels) == 0 {
		return "-"
	}
	return fmt.Sprintf("%s x %s", levels[0].Price, levels[0].Quantity)
}
