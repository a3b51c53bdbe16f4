// Package refresh runs the watchlist auto-refresh as a scheduled task owned
// by the caller. Stopping is done by cancelling the context passed to Run.
package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Batcher fetches prices for many tickers, returning only those that resolved.
type Batcher interface {
	FetchStockPricesBatch(ctx context.Context, tickers []string) map[string]float64
}

// Snapshot is the outcome of one refresh tick.
type Snapshot struct {
	At      time.Time          `json:"at"`
	Prices  map[string]float64 `json:"prices"`
	Missing []string           `json:"missing"`
}

// Sink receives each snapshot. It runs on the scheduler goroutine.
type Sink func(Snapshot)

// Task refreshes a fixed watchlist on a cron schedule.
type Task struct {
	spec    string
	tickers []string
	batcher Batcher
	sink    Sink
	logger  *logrus.Logger
	timeout time.Duration

	mu  sync.Mutex
	ctx context.Context
}

// New validates spec (six fields with seconds, or a descriptor such as
// "@every 5m") and creates a task.
func New(spec string, tickers []string, batcher Batcher, sink Sink, logger *logrus.Logger) (*Task, error) {
	if _, err := cron.NewParser(parserOptions).Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("refresh task needs at least one ticker")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Task{
		spec:    spec,
		tickers: append([]string(nil), tickers...),
		batcher: batcher,
		sink:    sink,
		logger:  logger,
		timeout: time.Minute,
	}, nil
}

const parserOptions = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// Run schedules the task and blocks until ctx is cancelled, then waits for a
// running tick to finish.
func (t *Task) Run(ctx context.Context) error {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(t.logger))),
	)
	if _, err := c.AddFunc(t.spec, t.tick); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	c.Start()
	t.logger.WithFields(logrus.Fields{"schedule": t.spec, "tickers": len(t.tickers)}).Info("Refresh task started")

	<-ctx.Done()
	<-c.Stop().Done()
	t.logger.Info("Refresh task stopped")
	return nil
}

func (t *Task) tick() {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	t.RunOnce(ctx)
}

// RunOnce refreshes the watchlist immediately and hands the snapshot to the sink.
func (t *Task) RunOnce(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	prices := t.batcher.FetchStockPricesBatch(ctx, t.tickers)
	snap := Snapshot{At: time.Now().UTC(), Prices: prices, Missing: []string{}}
	for _, ticker := range t.tickers {
		if _, ok := prices[ticker]; !ok {
			snap.Missing = append(snap.Missing, ticker)
		}
	}
	sort.Strings(snap.Missing)

	entry := t.logger.WithFields(logrus.Fields{"resolved": len(prices), "missing": len(snap.Missing)})
	if len(snap.Missing) > 0 {
		entry.WithField("tickers", snap.Missing).Warn("Refresh incomplete")
	} else {
		entry.Debug("Refresh complete")
	}
	if t.sink != nil {
		t.sink(snap)
	}
	return snap
}
