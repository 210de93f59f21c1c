package playback

import (
	"sync"
	"sync/atomic"
	"time"
)

// Range is a clip region in playing time. A range with End <= Begin means
// "no selection", i.e. the whole recording.
type Range struct {
	Begin time.Duration
	End   time.Duration
}

// Empty reports whether the range selects nothing.
func (r Range) Empty() bool {
	return r.End <= r.Begin
}

// Span returns End - Begin, or zero for an empty range.
func (r Range) Span() time.Duration {
	if r.Empty() {
		return 0
	}
	return r.End - r.Begin
}

// Selection holds the user's clip region. Observers are notified
// synchronously after each change; while a notification is being
// dispatched every further set, of either field, is ignored so an observer
// can never re-trigger the notification it is handling.
type Selection struct {
	mu        sync.RWMutex
	r         Range
	observers []func(Range)

	dispatching atomic.Bool
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{}
}

// Range returns the current selection.
func (s *Selection) Range() Range {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.r
}

// OnChange registers fn to be called with the new range after each change.
func (s *Selection) OnChange(fn func(Range)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// SetBegin moves the start of the selection. It reports false when the set
// was ignored because a change notification is in progress.
func (s *Selection) SetBegin(t time.Duration) bool {
	return s.update(func(r *Range) { r.Begin = t })
}

// SetEnd moves the end of the selection, guarded like SetBegin.
func (s *Selection) SetEnd(t time.Duration) bool {
	return s.update(func(r *Range) { r.End = t })
}

// Set replaces both fields with one notification.
func (s *Selection) Set(r Range) bool {
	return s.update(func(cur *Range) { *cur = r })
}

// Clear resets the selection to (0, 0).
func (s *Selection) Clear() bool {
	return s.Set(Range{})
}

func (s *Selection) update(apply func(*Range)) bool {
	if !s.dispatching.CompareAndSwap(false, true) {
		return false
	}
	defer s.dispatching.Store(false)

	s.mu.Lock()
	old := s.r
	apply(&s.r)
	r := s.r
	observers := s.observers
	s.mu.Unlock()

	if r == old {
		return true
	}
	for _, fn := range observers {
		fn(r)
	}
	return true
}
