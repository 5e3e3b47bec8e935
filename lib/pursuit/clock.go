package pursuit

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the only source of time for the pursuit loop, so that elapsed time can be simulated
type Clock interface {
	Now() time.Time
	// Sleep returns ctx.Err() if context is done before d elapses
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct {
	c clock.Clock
}

func NewClock() Clock {
	return &wallClock{c: clock.New()}
}

func (wc *wallClock) Now() time.Time {
	return wc.c.Now()
}

func (wc *wallClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wc.c.After(d):
		return nil
	}
}

// ManualClock never blocks: Sleep moves the time forward by d immediately
type ManualClock struct {
	mock *clock.Mock
}

func NewManualClock(start time.Time) *ManualClock {
	m := clock.NewMock()
	m.Set(start)
	return &ManualClock{mock: m}
}

func (mc *ManualClock) Now() time.Time {
	return mc.mock.Now()
}

func (mc *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mc.mock.Add(d)
	return nil
}

func (mc *ManualClock) Add(d time.Duration) {
	mc.mock.Add(d)
}
