package scale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itohio/gohx711/pkg/errcode"
	"github.com/itohio/gohx711/pkg/hx711"
	"github.com/itohio/gohx711/pkg/timing"
	"github.com/itohio/gohx711/pkg/watcher"
)

// Source supplies raw readings to an Engine.
type Source interface {
	// GetValues returns exactly n readings or an error.
	GetValues(ctx context.Context, n int) ([]hx711.Value, error)
	// GetValuesFor returns the readings taken within d, possibly none.
	GetValuesFor(ctx context.Context, d time.Duration) ([]hx711.Value, error)
}

var (
	_ Source = (*watcher.Watcher)(nil)
	_ Source = (*Direct)(nil)
)

// Reader is the read surface of hx711.Driver.
type Reader interface {
	ReadValue() (hx711.Value, error)
	TryReadValue() (hx711.Value, error)
}

// Direct reads the chip on the caller's goroutine.
type Direct struct {
	r     Reader
	clock timing.Clock
	poll  time.Duration
}

// NewDirect wraps a reader as a Source. Timed reads measure their budget on
// clk; a nil clk uses the system clock.
func NewDirect(r Reader, clk timing.Clock) *Direct {
	if clk == nil {
		clk = timing.System{}
	}
	return &Direct{r: r, clock: clk, poll: hx711.DefaultReadyPoll}
}

func (d *Direct) GetValues(ctx context.Context, n int) ([]hx711.Value, error) {
	const op = "scale.direct.get_values"
	if n <= 0 {
		return nil, errcode.New(errcode.InvalidArgument, op, fmt.Sprintf("sample count must be positive, got %d", n))
	}

	out := make([]hx711.Value, 0, n)
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return nil, errcode.Wrap(errcode.Error, op, err)
		}
		v, err := d.r.ReadValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GetValuesFor collects ready conversions until dur has elapsed. It never
// blocks on the chip, so the budget is overshot by at most one poll.
// Integrity failures skip a reading; any other error ends collection.
func (d *Direct) GetValuesFor(ctx context.Context, dur time.Duration) ([]hx711.Value, error) {
	out := []hx711.Value{}
	if dur <= 0 {
		return out, nil
	}

	deadline := d.clock.Now().Add(dur)
	for d.clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		v, err := d.r.TryReadValue()
		switch {
		case err == nil:
			out = append(out, v)
			continue
		case errors.Is(err, errcode.NotReady), errors.Is(err, errcode.Integrity):
		default:
			return out, err
		}
		d.clock.Sleep(d.poll)
	}
	return out, nil
}
