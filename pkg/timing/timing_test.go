package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_DelayHoldsAtLeast(t *testing.T) {
	var c System

	for _, d := range []time.Duration{time.Microsecond, 20 * time.Microsecond, 200 * time.Microsecond} {
		start := time.Now()
		c.Delay(d)
		assert.GreaterOrEqual(t, time.Since(start), d)
	}
}

func TestFake_DelayAndStall(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)

	f.Delay(time.Microsecond)
	assert.Equal(t, start.Add(time.Microsecond), f.Now())

	f.StallNext(70 * time.Microsecond)
	f.Delay(time.Microsecond)
	assert.Equal(t, start.Add(72*time.Microsecond), f.Now())

	// stall applies once
	f.Delay(time.Microsecond)
	assert.Equal(t, start.Add(73*time.Microsecond), f.Now())
}

func TestFake_SleepAccumulates(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	f.Sleep(50 * time.Millisecond)
	f.Sleep(400 * time.Millisecond)
	f.Advance(time.Second)

	assert.Equal(t, 450*time.Millisecond, f.Slept())
	assert.Equal(t, time.Unix(0, 0).Add(1450*time.Millisecond), f.Now())
}
