package cqrs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"buy": Buy, "SELL": Sell, " Buy ": Buy} {
		got, err := ParseSide(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseSide("hold")
	assert.Error(t, err)
	assert.Equal(t, Sell, Buy.Opposite())
}

func TestSideJSON(t *testing.T) {
	b, err := json.Marshal(struct{ S Side }{Sell})
	require.NoError(t, err)
	assert.JSONEq(t, `{"S":"SELL"}`, string(b))

	_, err = json.Marshal(struct{ S Side }{0})
	assert.Error(t, err)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := OrderMatched{
		RestingID:       1,
		InstrumentID:    "BTC-USD",
		Timestamp:       ts,
		IncomingID:      2,
		IncomingSide:    Buy,
		IncomingPrice:   decimal.RequireFromString("101.5"),
		RestingPrice:    decimal.NewFromInt(100),
		IncomingQty:     decimal.NewFromInt(4),
		PrevRestingQty:  decimal.NewFromInt(10),
		RestingQtyAfter: decimal.NewFromInt(6),
	}

	b, err := Marshal(in)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, TypeOrderMatched, env.Type)
	assert.Equal(t, "BTC-USD", env.Instrument)

	ev, err := Unmarshal(b)
	require.NoError(t, err)
	out, ok := ev.(OrderMatched)
	require.True(t, ok)
	assert.Equal(t, in.RestingID, out.RestingID)
	assert.Equal(t, in.IncomingSide, out.IncomingSide)
	assert.True(t, in.IncomingPrice.Equal(out.IncomingPrice))
	assert.True(t, ts.Equal(out.Timestamp))
	assert.True(t, out.Filled().Equal(decimal.NewFromInt(4)))
}

func TestEnvelopeSourcingEvent(t *testing.T) {
	id := uuid.New()
	b, err := Marshal(CancellationRequested{InstrumentID: "X", ID: id, OrderID: 9, CancelAll: true})
	require.NoError(t, err)

	ev, err := Unmarshal(b)
	require.NoError(t, err)
	req, ok := ev.(CancellationRequested)
	require.True(t, ok)
	assert.Equal(t, id, req.EventID())
	assert.True(t, req.CancelAll)
}

func TestUnmarshalUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"order_teleported","instrument":"X","data":{}}`))
	assert.ErrorContains(t, err, "unknown event type")

	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}
