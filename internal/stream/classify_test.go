package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  Kind
	}{
		{"account", accountFrame, KindAccountUpdate},
		{"execution report", executionFrame, KindOrderTrade},
		{"agg trade", aggTradeFrame, KindAggregatedTrade},
		{"ticker", tickerFrame, KindDayTicker},
		{"ticker array", tickerArrayFrame, KindDayTicker},
		{"kline", klineFrame, KindKline},
		{"partial book", partialFrame, KindPartialOrderBook},
		{"depth delta", depthFrame, KindDepthUpdate},
		{"delta quoting snapshot id", depthWithSnapFrame, KindPartialOrderBook},
		{"kline envelope", envelop("bnbusdt@kline_1m", klineFrame), KindKline},
		{"book ticker envelope", envelop("bnbusdt@bookTicker", `{"u":1}`), KindEnvelope},
		{"subscription reply", `{"result":null,"id":1}`, KindUnknown},
		{"empty", ``, KindUnknown},
		{"token inside a value", `{"note":"executionReport kline"}`, KindOrderTrade},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify([]byte(tc.frame)))
		})
	}
}

func TestClassifyPicksFirstToken(t *testing.T) {
	for i, d := range discriminators {
		frame := []byte("{")
		// every later token is present too
		for _, later := range discriminators[i:] {
			frame = append(frame, later.token...)
			frame = append(frame, ' ')
		}
		frame = append(frame, '}')
		require.Equal(t, d.kind, Classify(frame), "token %s", d.token)
		require.True(t, bytes.Contains(frame, d.token))
	}
}

func TestKindFamily(t *testing.T) {
	require.Equal(t, FamilyUserStream, KindAccountUpdate.Family())
	require.Equal(t, FamilyUserStream, KindOrderTrade.Family())
	require.Equal(t, FamilyMarket, KindAggregatedTrade.Family())
	require.Equal(t, FamilyMarket, KindDepthUpdate.Family())
	require.Equal(t, FamilyMarket, KindPartialOrderBook.Family())
	require.Equal(t, FamilyDayTicker, KindDayTicker.Family())
	require.Equal(t, FamilyKline, KindKline.Family())
	require.Equal(t, FamilyNone, KindEnvelope.Family())
	require.Equal(t, FamilyNone, KindUnknown.Family())
}

func TestKindString(t *testing.T) {
	for _, d := range discriminators {
		require.Equal(t, string(d.token), d.kind.String())
	}
	require.Equal(t, "unknown", KindUnknown.String())
	require.Equal(t, "market", FamilyMarket.String())
}
