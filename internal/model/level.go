package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceLevel is one book level, sent by Binance as ["price", "quantity"].
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// UnmarshalJSON decodes the two-element array form. Trailing elements, which
// older API versions used for padding, are ignored.
func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("model: price level: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("model: price level needs price and quantity, got %d elements", len(raw))
	}
	if err := l.Price.UnmarshalJSON(raw[0]); err != nil {
		return fmt.Errorf("model: price level price: %w", err)
	}
	if err := l.Quantity.UnmarshalJSON(raw[1]); err != nil {
		return fmt.Errorf("model: price level quantity: %w", err)
	}
	return nil
}

// MarshalJSON renders the level in the exchange's array form.
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.Price.String(), l.Quantity.String()})
}

// DayTickerBatch is the payload of the 24h ticker streams. The all-market
// stream sends an array; a single-symbol stream sends one object, which is
// decoded as a batch of one.
type DayTickerBatch []DayTicker

// UnmarshalJSON accepts either an array of tickers or a single ticker object.
func (b *DayTickerBatch) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single DayTicker
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*b = DayTickerBatch{single}
		return nil
	}
	var many []DayTicker
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*b = many
	return nil
}
