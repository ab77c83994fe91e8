package watcher

import (
	"time"

	"github.com/itohio/gohx711/pkg/hx711"
)

const (
	DefaultStackSize   = 80
	DefaultStackMaxAge = time.Second
)

// Entry is a reading and the time it was taken.
type Entry struct {
	Value hx711.Value
	Time  time.Time
}

// Stack is a bounded, age-limited buffer of readings. Entries older than
// MaxAge are dropped on every access, and pushing onto a full stack drops the
// oldest entry first. Stack is not safe for concurrent use.
type Stack struct {
	MaxSize int
	MaxAge  time.Duration // 0 disables age eviction

	now     func() time.Time
	entries []Entry
}

// NewStack returns an empty stack. A non-positive size uses DefaultStackSize.
func NewStack(maxSize int, maxAge time.Duration) *Stack {
	if maxSize <= 0 {
		maxSize = DefaultStackSize
	}
	return &Stack{
		MaxSize: maxSize,
		MaxAge:  maxAge,
		now:     time.Now,
		entries: make([]Entry, 0, maxSize),
	}
}

// Push stores v with the current time.
func (s *Stack) Push(v hx711.Value) {
	s.evict()
	for len(s.entries) >= s.MaxSize {
		s.drop(1)
	}
	s.entries = append(s.entries, Entry{Value: v, Time: s.now()})
}

// Pop removes and returns the oldest entry.
func (s *Stack) Pop() (Entry, bool) {
	s.evict()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	e := s.entries[0]
	s.drop(1)
	return e, true
}

// PopNewest removes and returns the most recent entry.
func (s *Stack) PopNewest() (Entry, bool) {
	s.evict()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	last := len(s.entries) - 1
	e := s.entries[last]
	s.entries = s.entries[:last]
	return e, true
}

// Len returns the number of entries younger than MaxAge.
func (s *Stack) Len() int {
	s.evict()
	return len(s.entries)
}

// Clear drops every entry.
func (s *Stack) Clear() {
	s.entries = s.entries[:0]
}

func (s *Stack) evict() {
	if s.MaxAge <= 0 || len(s.entries) == 0 {
		return
	}
	cutoff := s.now().Add(-s.MaxAge)
	n := 0
	for n < len(s.entries) && s.entries[n].Time.Before(cutoff) {
		n++
	}
	s.drop(n)
}

func (s *Stack) drop(n int) {
	if n <= 0 {
		return
	}
	s.entries = append(s.entries[:0], s.entries[n:]...)
}
