package logging

import (
	"log/slog"
	"sync"
)

// ErrorSampler throttles repeated failures of the same key, typically a
// provider id: the first occurrence is logged, then every Nth.
type ErrorSampler struct {
	mu       sync.Mutex
	counts   map[string]int
	interval int
}

// NewErrorSampler logs the 1st, then every interval-th occurrence of a key.
func NewErrorSampler(interval int) *ErrorSampler {
	if interval < 1 {
		interval = 10
	}
	return &ErrorSampler{
		counts:   make(map[string]int),
		interval: interval,
	}
}

// ShouldLog counts one occurrence of key and reports whether to log it.
func (s *ErrorSampler) ShouldLog(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[key]++
	count := s.counts[key]
	return count == 1 || count%s.interval == 0
}

// Warn logs msg at warn level when key is due, adding the occurrence count.
func (s *ErrorSampler) Warn(key, msg string, args ...any) {
	if !s.ShouldLog(key) {
		return
	}
	slog.Warn(msg, append(args, "occurrences", s.Count(key))...)
}

// Count returns how often key failed since its last reset.
func (s *ErrorSampler) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// Reset forgets key, e.g. once the provider answers again.
func (s *ErrorSampler) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
}
