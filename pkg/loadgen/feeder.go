// Package loadgen drives random order flow through the router for soak
// testing.
package loadgen

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/pkg/bus"
	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

// FeederConfig controls command generation rate
type FeederConfig struct {
	BatchSize   int           // commands per tick
	Interval    time.Duration // how often to generate batches
	Instruments []string
}

// DefaultFeederConfig is a modest steady load (~100 commands/sec).
func DefaultFeederConfig(instruments []string) FeederConfig {
	return FeederConfig{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		Instruments: instruments,
	}
}

// BurstConfig is for stress testing (~15k commands/sec).
func BurstConfig(instruments []string) FeederConfig {
	return FeederConfig{
		BatchSize:   150,
		Interval:    10 * time.Millisecond,
		Instruments: instruments,
	}
}

// ConfigForMode maps "burst" to BurstConfig and anything else to the
// default.
func ConfigForMode(mode string, instruments []string) FeederConfig {
	if mode == "burst" {
		return BurstConfig(instruments)
	}
	return DefaultFeederConfig(instruments)
}

// Feeder submits generated commands without waiting for them. Results are
// harvested on later ticks so that cancels can target accepted orders.
type Feeder struct {
	router *bus.Router
	gen    *Generator
	cfg    FeederConfig
	log    *zap.SugaredLogger

	inflight []*bus.Future
	failed   int
}

func NewFeeder(router *bus.Router, cfg FeederConfig, log *zap.SugaredLogger) *Feeder {
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = []string{"BTC-USD"}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Feeder{
		router: router,
		gen:    NewGenerator(cfg.Instruments, time.Now().UnixNano()),
		cfg:    cfg,
		log:    log,
	}
}

// Run feeds until ctx ends or the router closes.
func (f *Feeder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	start := time.Now()
	lastReport := start
	f.log.Infow("loadgen_started", "batch", f.cfg.BatchSize, "interval", f.cfg.Interval, "instruments", f.cfg.Instruments)

	for {
		select {
		case <-ctx.Done():
			f.report(start)
			return
		case <-ticker.C:
			f.harvest()
			if err := f.tick(ctx); err != nil {
				f.log.Infow("loadgen_stopping", "err", err)
				f.report(start)
				return
			}
			if time.Since(lastReport) >= 10*time.Second {
				f.report(start)
				lastReport = time.Now()
			}
		}
	}
}

func (f *Feeder) tick(ctx context.Context) error {
	for _, cmd := range f.gen.Batch(f.cfg.BatchSize) {
		fut, err := f.router.Submit(ctx, cmd)
		if err != nil {
			return err
		}
		f.inflight = append(f.inflight, fut)
	}
	return nil
}

// harvest collects finished results without blocking.
func (f *Feeder) harvest() {
	pending := f.inflight[:0]
	for _, fut := range f.inflight {
		select {
		case <-fut.Done():
			ev, err := fut.Await(context.Background())
			if err != nil {
				f.failed++
				continue
			}
			if acc, ok := ev.(cqrs.OrderAccepted); ok {
				f.gen.Accepted(acc)
			}
		default:
			pending = append(pending, fut)
		}
	}
	for i := len(pending); i < len(f.inflight); i++ {
		f.inflight[i] = nil
	}
	f.inflight = pending
}

func (f *Feeder) report(start time.Time) {
	elapsed := time.Since(start)
	st := f.gen.Stats()
	total := st.Orders + st.Cancels
	f.log.Infow("loadgen_stats",
		"orders", st.Orders,
		"cancels", st.Cancels,
		"failed", f.failed,
		"inflight", len(f.inflight),
		"rate", float64(total)/elapsed.Seconds(),
	)
}
