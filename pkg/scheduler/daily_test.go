package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2024, time.March, 15, hour, minute, 0, 0, time.UTC)
	}
}

func TestUntilNextTickLaterToday(t *testing.T) {
	d := NewDaily("test", 6, func(context.Context) error { return nil }, nil)
	d.now = fixedNow(4, 0)

	assert.Equal(t, 2*time.Hour, d.untilNextTick())
}

func TestUntilNextTickRollsToTomorrow(t *testing.T) {
	d := NewDaily("test", 6, func(context.Context) error { return nil }, nil)
	d.now = fixedNow(7, 30)

	assert.Equal(t, 22*time.Hour+30*time.Minute, d.untilNextTick())
}

func TestUntilNextTickExactHourWaitsFullDay(t *testing.T) {
	d := NewDaily("test", 6, func(context.Context) error { return nil }, nil)
	d.now = fixedNow(6, 0)

	assert.Equal(t, 24*time.Hour, d.untilNextTick())
}

func TestNewDailyClampsInvalidHour(t *testing.T) {
	d := NewDaily("test", 99, func(context.Context) error { return nil }, nil)
	assert.Equal(t, 0, d.hourUTC)
}

func TestStartStop(t *testing.T) {
	d := NewDaily("test", 6, func(context.Context) error { return nil }, nil)
	d.Start(context.Background())
	// Second start is a no-op.
	d.Start(context.Background())

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	require.True(t, d.started)
}
