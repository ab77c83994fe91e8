package loadcell

import (
	"context"
	"errors"
	"time"

	"github.com/itohio/gohx711/pkg/errcode"
	"github.com/itohio/gohx711/pkg/sample"
)

// DefaultBufferSize is the capacity of stream channels.
const DefaultBufferSize = 100

// Stream weighs every interval with the default options and emits the
// results until ctx is done or the cell is closed. Failed reads are logged
// and skipped.
func (c *Cell) Stream(ctx context.Context, interval time.Duration) <-chan sample.Sample {
	out := make(chan sample.Sample, DefaultBufferSize)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			m, err := c.Weight(ctx, c.Defaults())
			switch {
			case err == nil:
			case errors.Is(err, errcode.Closed), ctx.Err() != nil:
				return
			default:
				c.log.Debugf("stream: %v", err)
				continue
			}

			s := sample.Sample{Timestamp: time.Now(), Value: m.Value(), Mass: m}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Smoothed is Stream passed through a moving window reduction.
func (c *Cell) Smoothed(ctx context.Context, interval time.Duration, window int, r sample.Reducer) <-chan sample.Sample {
	conv := sample.NewSmoothingConverter(window, r, DefaultBufferSize, c.log)
	return conv(c.Stream(ctx, interval))
}
