package watcher

import (
	"time"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/logging"
)

// WithLogger sets a logger
func WithLogger(logger logging.Logger) func(*Watcher) {
	return func(w *Watcher) {
		if logger != nil {
			w.log = logger
		}
	}
}

// WithIntervals sets the sleep while idle, between readings and while the
// chip is not ready
func WithIntervals(idle, poll, notReady time.Duration) func(*Watcher) {
	return func(w *Watcher) {
		w.idleInterval = idle
		w.pollInterval = poll
		w.notReadyInterval = notReady
	}
}

// WithRecoveryMaxWait bounds the retry loop after a timing integrity failure
func WithRecoveryMaxWait(d time.Duration) func(*Watcher) {
	return func(w *Watcher) {
		w.recoveryMaxWait = d
	}
}

// WithSampleTimeout sets the per-reading wait of GetValues
func WithSampleTimeout(d time.Duration) func(*Watcher) {
	return func(w *Watcher) {
		if d > 0 {
			w.sampleTimeout = d
		}
	}
}

// WithStack sets the reading buffer bounds
func WithStack(size int, maxAge time.Duration) func(*Watcher) {
	return func(w *Watcher) {
		w.stack = NewStack(size, maxAge)
	}
}

// WithPriority enables raising the sampling thread priority while active
func WithPriority(enabled bool) func(*Watcher) {
	return func(w *Watcher) {
		w.priority = enabled
	}
}

// WithConfig applies a watcher configuration section
func WithConfig(cfg config.WatcherConfig) func(*Watcher) {
	return func(w *Watcher) {
		WithIntervals(cfg.IdleInterval, cfg.PollInterval, cfg.NotReadyInterval)(w)
		WithRecoveryMaxWait(cfg.RecoveryMaxWait)(w)
		WithSampleTimeout(cfg.SampleTimeout)(w)
		WithStack(cfg.StackSize, cfg.StackMaxAge)(w)
		WithPriority(cfg.Priority)(w)
	}
}
