package sink

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaKeysByInstrument(t *testing.T) {
	fw := &fakeWriter{}
	k := &Kafka{writer: fw, log: zap.NewNop().Sugar()}

	k.Handle(cqrs.OrderPlaced{OrderID: 1, InstrumentID: "BTC-USD", Side: cqrs.Buy,
		Price: decimal.NewFromInt(10), Quantity: decimal.NewFromInt(1)})
	k.Handle(cqrs.OrderCanceled{OrderID: 2, InstrumentID: "ETH-USD", Side: cqrs.Sell,
		CanceledQty: decimal.NewFromInt(1), RemainingQty: decimal.Zero})
	require.NoError(t, k.Close())

	require.Len(t, fw.msgs, 2)
	assert.Equal(t, "BTC-USD", string(fw.msgs[0].Key))
	assert.Equal(t, "ETH-USD", string(fw.msgs[1].Key))
	assert.Equal(t, "order_canceled", string(fw.msgs[1].Headers[0].Value))

	ev, err := cqrs.Unmarshal(fw.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev.(cqrs.OrderPlaced).OrderID)
	assert.True(t, fw.closed)
}
