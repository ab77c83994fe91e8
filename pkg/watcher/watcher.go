//go:generate stringer -type=State

// Package watcher drains an HX711 in a background goroutine and hands fresh
// readings to foreground callers.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/itohio/gohx711/pkg/errcode"
	"github.com/itohio/gohx711/pkg/hx711"
	"github.com/itohio/gohx711/pkg/logging"
)

// State denotes the sampling state
type State int

const (

	// Idle does no hardware access
	Idle State = iota

	// Active reads the chip continuously
	Active

	// Stopped is terminal
	Stopped
)

const (
	DefaultIdleInterval     = 100 * time.Millisecond
	DefaultPollInterval     = 10 * time.Millisecond
	DefaultNotReadyInterval = 100 * time.Microsecond
	DefaultRecoveryMaxWait  = 50 * time.Millisecond
	DefaultSampleTimeout    = time.Second

	activeNice = -20
	idleNice   = 0
)

// Sensor is the part of hx711.Driver the watcher needs.
type Sensor interface {
	TryReadValue() (hx711.Value, error)
}

var _ Sensor = (*hx711.Driver)(nil)

// Watcher owns one sampling goroutine for a sensor. The sensor itself is
// borrowed; Stop must return before the sensor is disconnected.
type Watcher struct {
	sensor Sensor
	log    logging.Logger

	idleInterval     time.Duration
	pollInterval     time.Duration
	notReadyInterval time.Duration
	recoveryMaxWait  time.Duration
	sampleTimeout    time.Duration
	priority         bool

	mu      sync.Mutex
	state   State
	started bool
	stack   *Stack

	reqMu   sync.Mutex
	wake    chan struct{}
	notify  chan struct{}
	stopped chan struct{}
	done    chan struct{}
}

// New returns an idle watcher. Call Start to launch its goroutine.
func New(sensor Sensor, opts ...func(*Watcher)) *Watcher {
	w := &Watcher{
		sensor:           sensor,
		log:              logging.Null{},
		idleInterval:     DefaultIdleInterval,
		pollInterval:     DefaultPollInterval,
		notReadyInterval: DefaultNotReadyInterval,
		recoveryMaxWait:  DefaultRecoveryMaxWait,
		sampleTimeout:    DefaultSampleTimeout,
		stack:            NewStack(DefaultStackSize, DefaultStackMaxAge),
		state:            Idle,
		wake:             make(chan struct{}, 1),
		notify:           make(chan struct{}, 1),
		stopped:          make(chan struct{}),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the sampling goroutine. It is a no-op after the first call
// or once stopped.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.state == Stopped {
		return
	}
	w.started = true
	go w.run()
}

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Watch switches to Active.
func (w *Watcher) Watch() error {
	return w.transition(Active)
}

// Pause switches to Idle.
func (w *Watcher) Pause() error {
	return w.transition(Idle)
}

func (w *Watcher) transition(to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Stopped {
		return errcode.New(errcode.Closed, "watcher.transition", "stopped")
	}
	if to == Active && w.state != Active {
		w.stack.Clear()
	}
	w.state = to
	w.signal(w.wake)
	return nil
}

// Stop terminates the goroutine and waits for it to exit. Stop is idempotent
// and the watcher cannot be restarted.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state == Stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.state = Stopped
	started := w.started
	w.signal(w.wake)
	close(w.stopped)
	w.mu.Unlock()

	if !started {
		close(w.done)
	}
	<-w.done
	w.log.Debugf("watcher stopped")
}

func (w *Watcher) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// sleep waits for d or until the state changes.
func (w *Watcher) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.wake:
	}
}

func (w *Watcher) run() {
	defer close(w.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	tid := threadID()

	current := Idle
	failures := 0
	for {
		st := w.State()
		if st != current && st != Stopped {
			w.setPriority(tid, st)
			current = st
		}

		switch st {
		case Stopped:
			if current == Active {
				w.setPriority(tid, Idle)
			}
			return
		case Idle:
			failures = 0
			w.sleep(w.idleInterval)
		case Active:
			w.sleep(w.step(&failures))
		}
	}
}

// step performs one read attempt and returns how long to sleep afterwards.
func (w *Watcher) step(failures *int) time.Duration {
	v, err := w.sensor.TryReadValue()
	switch {
	case err == nil:
		*failures = 0
		w.publish(v)
		return w.pollInterval

	case errors.Is(err, errcode.NotReady):
		return w.notReadyInterval

	case errors.Is(err, errcode.Integrity):
		v, err = w.recoverIntegrity()
		if err != nil {
			w.log.Debugf("watcher: integrity recovery gave up: %v", err)
			return w.notReadyInterval
		}
		*failures = 0
		w.publish(v)
		return w.pollInterval

	default:
		*failures++
		if *failures == 1 {
			return 0
		}
		if *failures == 2 || *failures%100 == 0 {
			w.log.Warnf("watcher: read failed %d times: %v", *failures, err)
		}
		return w.pollInterval
	}
}

// recoverIntegrity retries after a timing integrity failure until a reading succeeds,
// recoveryMaxWait elapses or the state leaves Active.
func (w *Watcher) recoverIntegrity() (hx711.Value, error) {
	deadline := time.Now().Add(w.recoveryMaxWait)
	for {
		if w.State() != Active {
			return hx711.Value{}, errcode.New(errcode.Error, "watcher.recover", "no longer active")
		}
		v, err := w.sensor.TryReadValue()
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, errcode.Integrity) && !errors.Is(err, errcode.NotReady) {
			return hx711.Value{}, err
		}
		if !time.Now().Before(deadline) {
			return hx711.Value{}, err
		}
		time.Sleep(w.notReadyInterval)
	}
}

// publish stores a valid reading taken while Active and wakes a waiting
// consumer. Readings that arrive after the state changed are dropped.
func (w *Watcher) publish(v hx711.Value) {
	if !v.IsValid() {
		return
	}
	w.mu.Lock()
	if w.state != Active {
		w.mu.Unlock()
		return
	}
	w.stack.Push(v)
	w.mu.Unlock()
	w.signal(w.notify)
}

func (w *Watcher) setPriority(tid int, st State) {
	if !w.priority {
		return
	}
	nice := idleNice
	if st == Active {
		nice = activeNice
	}
	if err := setThreadPriority(tid, nice); err != nil {
		w.log.Debugf("watcher: set thread %d nice %d: %v", tid, nice, err)
	}
}

// activate starts a request. The buffer is cleared so the caller only sees
// readings taken after it asked.
func (w *Watcher) activate(op string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Stopped {
		return errcode.New(errcode.Closed, op, "stopped")
	}
	w.stack.Clear()
	select {
	case <-w.notify:
	default:
	}
	w.state = Active
	w.signal(w.wake)
	return nil
}

func (w *Watcher) deactivate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Active {
		w.state = Idle
		w.signal(w.wake)
	}
}

// drain pops up to limit readings (all if limit < 0) onto out, oldest first.
func (w *Watcher) drain(out []hx711.Value, limit int) []hx711.Value {
	w.mu.Lock()
	defer w.mu.Unlock()
	for limit < 0 || len(out) < limit {
		e, ok := w.stack.Pop()
		if !ok {
			break
		}
		out = append(out, e.Value)
	}
	return out
}

// GetValues collects n readings in the order they were taken, waiting at most
// the configured sample timeout for each.
func (w *Watcher) GetValues(ctx context.Context, n int) ([]hx711.Value, error) {
	return w.GetValuesWithTimeout(ctx, n, w.sampleTimeout)
}

// GetValuesWithTimeout is GetValues with an explicit per-reading timeout. The
// watcher is Active for the duration of the call and Idle afterwards, on
// every return path.
func (w *Watcher) GetValuesWithTimeout(ctx context.Context, n int, timeout time.Duration) ([]hx711.Value, error) {
	const op = "watcher.get_values"
	if n <= 0 {
		return nil, errcode.New(errcode.InvalidArgument, op, fmt.Sprintf("sample count must be positive, got %d", n))
	}
	if timeout <= 0 {
		timeout = w.sampleTimeout
	}

	w.reqMu.Lock()
	defer w.reqMu.Unlock()

	if err := w.activate(op); err != nil {
		return nil, err
	}
	defer w.deactivate()

	out := make([]hx711.Value, 0, n)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		out = w.drain(out, n)
		if len(out) == n {
			return out, nil
		}

		timer.Reset(timeout)
		select {
		case <-w.notify:
		case <-timer.C:
			return nil, errcode.New(errcode.Timeout, op, fmt.Sprintf("no reading within %v (%d of %d)", timeout, len(out), n))
		case <-ctx.Done():
			return nil, ctxErr(op, ctx.Err())
		case <-w.stopped:
			return nil, errcode.New(errcode.Closed, op, "stopped")
		}
	}
}

// GetValuesFor collects whatever readings arrive within d. It never fails for
// lack of data; a zero d returns an empty slice.
func (w *Watcher) GetValuesFor(ctx context.Context, d time.Duration) ([]hx711.Value, error) {
	const op = "watcher.get_values_for"
	out := []hx711.Value{}
	if d <= 0 {
		return out, nil
	}

	w.reqMu.Lock()
	defer w.reqMu.Unlock()

	if err := w.activate(op); err != nil {
		return out, err
	}
	defer w.deactivate()

	deadline := time.NewTimer(d)
	defer deadline.Stop()

	for {
		out = w.drain(out, -1)
		select {
		case <-w.notify:
		case <-deadline.C:
			return w.drain(out, -1), nil
		case <-ctx.Done():
			return out, ctxErr(op, ctx.Err())
		case <-w.stopped:
			return out, nil
		}
	}
}

func ctxErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errcode.Wrap(errcode.Timeout, op, err)
	}
	return errcode.Wrap(errcode.Error, op, err)
}
