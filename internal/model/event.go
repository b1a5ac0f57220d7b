// Package model holds the typed Binance stream payloads. Field tags follow
// the exchange's single-letter keys exactly; every documented key is declared
// so encoding/json never falls back to a case-insensitive match between keys
// such as "e" and "E".
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountUpdate is the user-data "outboundAccountInfo" event.
type AccountUpdate struct {
	EventType        string    `json:"e"`
	EventTime        int64     `json:"E"`
	MakerCommission  int64     `json:"m"`
	TakerCommission  int64     `json:"t"`
	BuyerCommission  int64     `json:"b"`
	SellerCommission int64     `json:"s"`
	CanTrade         bool      `json:"T"`
	CanWithdraw      bool      `json:"W"`
	CanDeposit       bool      `json:"D"`
	LastUpdateTime   int64     `json:"u"`
	Balances         []Balance `json:"B"`
	Permissions      []string  `json:"P"`
}

// Balance is one asset line of an AccountUpdate.
type Balance struct {
	Asset  string          `json:"a"`
	Free   decimal.Decimal `json:"f"`
	Locked decimal.Decimal `json:"l"`
}

// Time returns the event time.
func (e AccountUpdate) Time() time.Time { return Millis(e.EventTime) }

// OrderTrade is the user-data "executionReport" event.
type OrderTrade struct {
	EventType                string          `json:"e"`
	EventTime                int64           `json:"E"`
	Symbol                   string          `json:"s"`
	ClientOrderID            string          `json:"c"`
	Side                     string          `json:"S"`
	OrderType                string          `json:"o"`
	TimeInForce              string          `json:"f"`
	Quantity                 decimal.Decimal `json:"q"`
	Price                    decimal.Decimal `json:"p"`
	StopPrice                decimal.Decimal `json:"P"`
	IcebergQuantity          decimal.Decimal `json:"F"`
	OrderListID              int64           `json:"g"`
	OrigClientOrderID        string          `json:"C"`
	ExecutionType            string          `json:"x"`
	OrderStatus              string          `json:"X"`
	RejectReason             string          `json:"r"`
	OrderID                  int64           `json:"i"`
	LastExecutedQuantity     decimal.Decimal `json:"l"`
	CumulativeFilledQuantity decimal.Decimal `json:"z"`
	LastExecutedPrice        decimal.Decimal `json:"L"`
	Commission               decimal.Decimal `json:"n"`
	CommissionAsset          string          `json:"N"`
	TransactionTime          int64           `json:"T"`
	TradeID                  int64           `json:"t"`
	Ignore                   int64           `json:"I"`
	IsWorking                bool            `json:"w"`
	IsMaker                  bool            `json:"m"`
	IgnoreFlag               bool            `json:"M"`
	CreationTime             int64           `json:"O"`
	CumulativeQuoteQuantity  decimal.Decimal `json:"Z"`
	LastQuoteQuantity        decimal.Decimal `json:"Y"`
	QuoteOrderQuantity       decimal.Decimal `json:"Q"`
	WorkingTime              int64           `json:"W"`
	SelfTradePrevention      string          `json:"V"`
	PreventedMatchID         int64           `json:"v"`
	TrailingDelta            int64           `json:"d"`
	TrailingTime             int64           `json:"D"`
	StrategyID               int64           `json:"j"`
	StrategyType             int64           `json:"J"`
	PreventedQuantity        decimal.Decimal `json:"A"`
	LastPreventedQuantity    decimal.Decimal `json:"B"`
	TradeGroupID             int64           `json:"u"`
	CounterOrderID           int64           `json:"U"`
	MatchType                string          `json:"b"`
	AllocationID             int64           `json:"a"`
	WorkingFloor             string          `json:"k"`
	UsedSOR                  bool            `json:"uS"`
}

// Time returns the event time.
func (e OrderTrade) Time() time.Time { return Millis(e.EventTime) }

// AggregatedTrade is the "aggTrade" market event.
type AggregatedTrade struct {
	EventType    string          `json:"e"`
	EventTime    int64           `json:"E"`
	Symbol       string          `json:"s"`
	AggregateID  int64           `json:"a"`
	Price        decimal.Decimal `json:"p"`
	Quantity     decimal.Decimal `json:"q"`
	FirstTradeID int64           `json:"f"`
	LastTradeID  int64           `json:"l"`
	TradeTime    int64           `json:"T"`
	IsBuyerMaker bool            `json:"m"`
	IgnoreFlag   bool            `json:"M"`
}

// Time returns the event time.
func (e AggregatedTrade) Time() time.Time { return Millis(e.EventTime) }

// DepthDelta is the "depthUpdate" diff event.
type DepthDelta struct {
	EventType     string       `json:"e"`
	EventTime     int64        `json:"E"`
	Symbol        string       `json:"s"`
	FirstUpdateID int64        `json:"U"`
	FinalUpdateID int64        `json:"u"`
	Bids          []PriceLevel `json:"b"`
	Asks          []PriceLevel `json:"a"`
}

// Time returns the event time.
func (e DepthDelta) Time() time.Time { return Millis(e.EventTime) }

// PartialOrderBook is the top-of-book snapshot pushed by the
// "<symbol>@depth<levels>" streams.
type PartialOrderBook struct {
	LastUpdateID int64        `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// DayTicker is one "24hrTicker" rolling-window statistics entry.
type DayTicker struct {
	EventType          string          `json:"e"`
	EventTime          int64           `json:"E"`
	Symbol             string          `json:"s"`
	PriceChange        decimal.Decimal `json:"p"`
	PriceChangePercent decimal.Decimal `json:"P"`
	WeightedAvgPrice   decimal.Decimal `json:"w"`
	PrevClosePrice     decimal.Decimal `json:"x"`
	LastPrice          decimal.Decimal `json:"c"`
	LastQuantity       decimal.Decimal `json:"Q"`
	BestBidPrice       decimal.Decimal `json:"b"`
	BestBidQuantity    decimal.Decimal `json:"B"`
	BestAskPrice       decimal.Decimal `json:"a"`
	BestAskQuantity    decimal.Decimal `json:"A"`
	OpenPrice          decimal.Decimal `json:"o"`
	HighPrice          decimal.Decimal `json:"h"`
	LowPrice           decimal.Decimal `json:"l"`
	BaseVolume         decimal.Decimal `json:"v"`
	QuoteVolume        decimal.Decimal `json:"q"`
	OpenTime           int64           `json:"O"`
	CloseTime          int64           `json:"C"`
	FirstTradeID       int64           `json:"F"`
	LastTradeID        int64           `json:"L"`
	TradeCount         int64           `json:"n"`
}

// Time returns the event time.
func (e DayTicker) Time() time.Time { return Millis(e.EventTime) }

// KlineEvent is the "kline" candlestick event.
type KlineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     Kline  `json:"k"`
}

// Time returns the event time.
func (e KlineEvent) Time() time.Time { return Millis(e.EventTime) }

// Kline is the candlestick carried by a KlineEvent.
type Kline struct {
	StartTime           int64           `json:"t"`
	CloseTime           int64           `json:"T"`
	Symbol              string          `json:"s"`
	Interval            string          `json:"i"`
	FirstTradeID        int64           `json:"f"`
	LastTradeID         int64           `json:"L"`
	Open                decimal.Decimal `json:"o"`
	Close               decimal.Decimal `json:"c"`
	High                decimal.Decimal `json:"h"`
	Low                 decimal.Decimal `json:"l"`
	Volume              decimal.Decimal `json:"v"`
	TradeCount          int64           `json:"n"`
	IsClosed            bool            `json:"x"`
	QuoteVolume         decimal.Decimal `json:"q"`
	TakerBuyBaseVolume  decimal.Decimal `json:"V"`
	TakerBuyQuoteVolume decimal.Decimal `json:"Q"`
	Ignore              string          `json:"B"`
}

// ParseDecimal converts Binance decimal strings into a decimal.Decimal.
func ParseDecimal(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("model: invalid decimal %q: %w", value, err)
	}
	return d, nil
}

// Millis converts a Binance millisecond timestamp into UTC time. Zero stays
// the zero time.
func Millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
