package stream

import "bytes"

// Kind is the event variant a frame was classified as.
type Kind int

const (
	KindUnknown Kind = iota
	KindAccountUpdate
	KindOrderTrade
	KindAggregatedTrade
	KindDayTicker
	KindKline
	KindPartialOrderBook
	KindDepthUpdate
	KindEnvelope
)

// Family groups kinds sharing one handler.
type Family int

const (
	FamilyNone Family = iota
	FamilyUserStream
	FamilyMarket
	FamilyDayTicker
	FamilyKline
)

// discriminators is evaluated in order; the first token contained in the
// frame decides its kind. A kline envelope therefore resolves to kline, and
// a depth delta quoting a snapshot id resolves to the partial book.
var discriminators = []struct {
	token []byte
	kind  Kind
}{
	{[]byte("outboundAccountInfo"), KindAccountUpdate},
	{[]byte("executionReport"), KindOrderTrade},
	{[]byte("aggTrade"), KindAggregatedTrade},
	{[]byte("24hrTicker"), KindDayTicker},
	{[]byte("kline"), KindKline},
	{[]byte("lastUpdateId"), KindPartialOrderBook},
	{[]byte("depthUpdate"), KindDepthUpdate},
	{[]byte("stream"), KindEnvelope},
}

// Classify assigns a frame to exactly one kind by substring containment.
func Classify(frame []byte) Kind {
	for _, d := range discriminators {
		if bytes.Contains(frame, d.token) {
			return d.kind
		}
	}
	return KindUnknown
}

// Family returns the handler family serving the kind. Envelope and unknown
// frames have none.
func (k Kind) Family() Family {
	switch k {
	case KindAccountUpdate, KindOrderTrade:
		return FamilyUserStream
	case KindAggregatedTrade, KindDepthUpdate, KindPartialOrderBook:
		return FamilyMarket
	case KindDayTicker:
		return FamilyDayTicker
	case KindKline:
		return FamilyKline
	default:
		return FamilyNone
	}
}

// String returns the discriminator token of the kind, which doubles as its
// metric label.
func (k Kind) String() string {
	switch k {
	case KindAccountUpdate:
		return "outboundAccountInfo"
	case KindOrderTrade:
		return "executionReport"
	case KindAggregatedTrade:
		return "aggTrade"
	case KindDayTicker:
		return "24hrTicker"
	case KindKline:
		return "kline"
	case KindPartialOrderBook:
		return "lastUpdateId"
	case KindDepthUpdate:
		return "depthUpdate"
	case KindEnvelope:
		return "stream"
	default:
		return "unknown"
	}
}

func (f Family) String() string {
	switch f {
	case FamilyUserStream:
		return "userStream"
	case FamilyMarket:
		return "market"
	case FamilyDayTicker:
		return "dayTicker"
	case FamilyKline:
		return "kline"
	default:
		return "none"
	}
}
