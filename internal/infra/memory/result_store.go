package memory

import (
	"context"
	"sync"

	"livequiz/internal/domain"
)

// ResultStore is an append-only in-memory result log.
type ResultStore struct {
	mu      sync.RWMutex
	records []domain.ResultRecord
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) AppendResult(_ context.Context, rec domain.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Results returns a copy of the records written for a course, in append order.
func (s *ResultStore) Results(courseID string) []domain.ResultRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ResultRecord
	for _, rec := range s.records {
		if rec.CourseID == courseID {
			out = append(out, rec)
		}
	}
	return out
}
