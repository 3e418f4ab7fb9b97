package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Set holds one breaker per provider, created on first use.
type Set struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewSet creates an empty breaker set sharing config.
func NewSet(config Config, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{
		config:   config.withDefaults(),
		logger:   logger.With(zap.String("component", "circuit_breaker")),
		now:      time.Now,
		breakers: make(map[string]*Breaker),
	}
}

// SetClock replaces the time source of the set and every breaker in it.
func (s *Set) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	for _, b := range s.breakers {
		b.mu.Lock()
		b.now = now
		b.mu.Unlock()
	}
}

// Get returns the breaker for provider, creating it if needed.
func (s *Set) Get(provider string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[provider]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(provider, s.config, s.logger)
	b.now = s.now
	s.breakers[provider] = b
	return b
}

// IsOpen reports whether provider is currently skipped.
func (s *Set) IsOpen(provider string) bool {
	return s.Get(provider).IsOpen()
}

// RecordSuccess closes provider's breaker.
func (s *Set) RecordSuccess(provider string) {
	s.Get(provider).RecordSuccess()
}

// RecordFailure counts a failure for provider and reports whether the breaker opened.
func (s *Set) RecordFailure(provider string) bool {
	return s.Get(provider).RecordFailure()
}

// ResetAll clears every breaker. State-change callbacks run without the set lock.
func (s *Set) ResetAll() {
	s.mu.RLock()
	all := make([]*Breaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		all = append(all, b)
	}
	s.mu.RUnlock()

	for _, b := range all {
		b.Reset()
	}
}

// Snapshot returns the state of every known breaker.
func (s *Set) Snapshot() map[string]Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Snapshot, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.Snapshot()
	}
	return out
}
