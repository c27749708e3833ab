package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is the work a Daily runner performs on each tick.
type Task func(context.Context) error

// Daily invokes a task once per day at a fixed UTC hour. It is the
// external trigger for the invitation sweep; the task itself owns all
// idempotency guarantees, so a missed or duplicated tick is harmless.
type Daily struct {
	name    string
	task    Task
	hourUTC int
	logger  *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	// now is injectable for tests.
	now func() time.Time
}

// NewDaily builds a runner firing at the given UTC hour.
func NewDaily(name string, hourUTC int, task Task, logger *zap.Logger) *Daily {
	if hourUTC < 0 || hourUTC > 23 {
		hourUTC = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Daily{
		name:    name,
		task:    task,
		hourUTC: hourUTC,
		logger:  logger,
		now:     time.Now,
	}
}

// Start launches the tick loop. Safe to call once.
func (d *Daily) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run()
	d.started = true
	d.logger.Sugar().Infow("daily runner started", "runner", d.name, "hour_utc", d.hourUTC)
}

// Stop cancels the loop and waits for it to exit.
func (d *Daily) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Sugar().Infow("daily runner stopped", "runner", d.name)
}

func (d *Daily) run() {
	defer d.wg.Done()
	for {
		wait := d.untilNextTick()
		timer := time.NewTimer(wait)
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		start := d.now()
		if err := d.task(d.ctx); err != nil {
			d.logger.Sugar().Errorw("daily task failed", "runner", d.name, "error", err)
		} else {
			d.logger.Sugar().Infow("daily task completed", "runner", d.name, "duration", d.now().Sub(start))
		}
	}
}

// untilNextTick returns the duration to the next occurrence of the
// configured hour, always in the future so a completed run never
// retriggers within the same day.
func (d *Daily) untilNextTick() time.Duration {
	now := d.now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), d.hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
