package stream

import (
	"reflect"

	"github.com/esshka/binance-stream-go/internal/model"
)

// UserStreamHandler receives the user-data events of one listen key.
type UserStreamHandler interface {
	OnAccountUpdate(model.AccountUpdate)
	OnOrderTrade(model.OrderTrade)
}

// MarketHandler receives trade and order book events.
type MarketHandler interface {
	OnAggregatedTrade(model.AggregatedTrade)
	OnDepthUpdate(model.DepthDelta)
	OnPartialOrderBook(model.PartialOrderBook)
}

// DayTickerHandler receives 24h rolling statistics, one batch per frame in
// the order the exchange listed them.
type DayTickerHandler interface {
	OnDayTickerBatch([]model.DayTicker)
}

// KlineHandler receives candlestick events.
type KlineHandler interface {
	OnKline(model.KlineEvent)
}

// DayTickerHandlerFunc adapts a function to DayTickerHandler.
type DayTickerHandlerFunc func([]model.DayTicker)

// OnDayTickerBatch calls f.
func (f DayTickerHandlerFunc) OnDayTickerBatch(batch []model.DayTicker) { f(batch) }

// KlineHandlerFunc adapts a function to KlineHandler.
type KlineHandlerFunc func(model.KlineEvent)

// OnKline calls f.
func (f KlineHandlerFunc) OnKline(evt model.KlineEvent) { f(evt) }

// registry holds at most one handler per family.
type registry struct {
	userStream UserStreamHandler
	market     MarketHandler
	dayTicker  DayTickerHandler
	kline      KlineHandler
}

func (r *registry) has(f Family) bool {
	switch f {
	case FamilyUserStream:
		return r.userStream != nil
	case FamilyMarket:
		return r.market != nil
	case FamilyDayTicker:
		return r.dayTicker != nil
	case FamilyKline:
		return r.kline != nil
	default:
		return false
	}
}

// orUnset turns a handler holding a nil pointer or func into an unset one.
func orUnset[H any](h H) H {
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Invalid:
		var unset H
		return unset
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan:
		if v.IsNil() {
			var unset H
			return unset
		}
	}
	return h
}
