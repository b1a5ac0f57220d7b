package stream

import (
	"encoding/json"

	"github.com/esshka/binance-stream-go/internal/model"
)

func decode[T any](payload []byte) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}

// deliver decodes payload as kind and hands it to the registered handler.
// The handler is only invoked once the required members are present and the
// whole event decoded.
func (r *registry) deliver(kind Kind, payload []byte) error {
	if err := checkMembers(kind, payload); err != nil {
		return err
	}
	switch kind {
	case KindAccountUpdate:
		evt, err := decode[model.AccountUpdate](payload)
		if err != nil {
			return err
		}
		r.userStream.OnAccountUpdate(evt)
	case KindOrderTrade:
		evt, err := decode[model.OrderTrade](payload)
		if err != nil {
			return err
		}
		r.userStream.OnOrderTrade(evt)
	case KindAggregatedTrade:
		evt, err := decode[model.AggregatedTrade](payload)
		if err != nil {
			return err
		}
		r.market.OnAggregatedTrade(evt)
	case KindDepthUpdate:
		evt, err := decode[model.DepthDelta](payload)
		if err != nil {
			return err
		}
		r.market.OnDepthUpdate(evt)
	case KindPartialOrderBook:
		evt, err := decode[model.PartialOrderBook](payload)
		if err != nil {
			return err
		}
		r.market.OnPartialOrderBook(evt)
	case KindDayTicker:
		batch, err := decode[model.DayTickerBatch](payload)
		if err != nil {
			return err
		}
		r.dayTicker.OnDayTickerBatch([]model.DayTicker(batch))
	case KindKline:
		evt, err := decode[model.KlineEvent](payload)
		if err != nil {
			return err
		}
		r.kline.OnKline(evt)
	}
	return nil
}
