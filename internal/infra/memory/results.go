package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// ResultsSink keeps finished-session results in memory, for tests and the
// no-database demo mode.
type ResultsSink struct {
	mu      sync.Mutex
	results []domain.SessionResult
}

func NewResultsSink() *ResultsSink {
	return &ResultsSink{}
}

func (s *ResultsSink) Persist(_ context.Context, result domain.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Results returns a copy of everything persisted so far.
func (s *ResultsSink) Results() []domain.SessionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionResult, len(s.results))
	copy(out, s.results)
	return out
}
