package loadgen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/matchcore/pkg/aggregate"
	"github.com/uhyunpark/matchcore/pkg/bus"
	"github.com/uhyunpark/matchcore/pkg/cqrs"
	"github.com/uhyunpark/matchcore/pkg/sequence"
)

func TestGeneratorOrdersArePositive(t *testing.T) {
	g := NewGenerator([]string{"BTC-USD", "ETH-USD"}, 1)
	for i := 0; i < 500; i++ {
		o := g.Order()
		assert.Contains(t, []string{"BTC-USD", "ETH-USD"}, o.InstrumentID)
		assert.True(t, o.Quantity.IsPositive())
		assert.True(t, o.Price.IsPositive())
		assert.True(t, o.Side == cqrs.Buy || o.Side == cqrs.Sell)
	}
	assert.Equal(t, 500, g.Stats().Orders)
}

func TestGeneratorCancelsNeedAcceptedOrders(t *testing.T) {
	g := NewGenerator([]string{"BTC-USD"}, 2)
	_, ok := g.Cancel()
	assert.False(t, ok)

	for _, cmd := range g.Batch(50) {
		_, isOrder := cmd.(cqrs.MakeOrder)
		assert.True(t, isOrder)
	}

	g.Accepted(cqrs.OrderAccepted{InstrumentID: "BTC-USD", OrderID: 7})
	c, ok := g.Cancel()
	require.True(t, ok)
	assert.Equal(t, uint64(7), c.OrderID)
	assert.Equal(t, "BTC-USD", c.InstrumentID)
	if !c.CancelAll {
		assert.True(t, c.NewQuantity.IsPositive())
	}
}

func TestGeneratorKeepsRecentWindow(t *testing.T) {
	g := NewGenerator([]string{"X"}, 3)
	for i := 1; i <= recentWindow+20; i++ {
		g.Accepted(cqrs.OrderAccepted{InstrumentID: "X", OrderID: uint64(i)})
	}
	require.Len(t, g.recent, recentWindow)
	assert.Equal(t, uint64(21), g.recent[0].orderID)
}

func TestConfigForMode(t *testing.T) {
	inst := []string{"A"}
	assert.Equal(t, BurstConfig(inst), ConfigForMode("burst", inst))
	assert.Equal(t, DefaultFeederConfig(inst), ConfigForMode("steady", inst))
	assert.Equal(t, DefaultFeederConfig(inst), ConfigForMode("", inst))
}

func TestFeederDrivesRouter(t *testing.T) {
	reg := aggregate.NewRegistry(aggregate.Config{IDs: sequence.New(0)})
	router := bus.NewRouter(reg, bus.Config{Concurrency: 2})
	defer reg.Close()

	cfg := FeederConfig{BatchSize: 20, Interval: 5 * time.Millisecond, Instruments: []string{"BTC-USD", "ETH-USD"}}
	f := NewFeeder(router, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("feeder did not stop")
	}

	require.NoError(t, router.Close(context.Background()))
	assert.Positive(t, f.gen.Stats().Orders)
	assert.ElementsMatch(t, []string{"BTC-USD", "ETH-USD"}, reg.Instruments())
	assert.Equal(t, 0, f.failed)
}

func TestFeederStopsWhenRouterCloses(t *testing.T) {
	reg := aggregate.NewRegistry(aggregate.Config{IDs: sequence.New(0)})
	defer reg.Close()
	router := bus.NewRouter(reg, bus.Config{})
	require.NoError(t, router.Close(context.Background()))

	f := NewFeeder(router, FeederConfig{BatchSize: 1, Interval: time.Millisecond}, nil)
	done := make(chan struct{})
	go func() {
		f.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("feeder kept running after router close")
	}
}
