package memory

import (
	"context"
	"sync"

	"livequiz/internal/domain"
)

// ParticipantStore keeps participants per course room in memory.
type ParticipantStore struct {
	mu      sync.RWMutex
	courses map[string]map[string]*domain.Participant
}

func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{courses: make(map[string]map[string]*domain.Participant)}
}

func (s *ParticipantStore) Upsert(_ context.Context, p domain.Participant) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.courses[p.CourseID]
	if !ok {
		room = make(map[string]*domain.Participant)
		s.courses[p.CourseID] = room
	}
	if existing, ok := room[p.EmployeeID]; ok {
		if p.Nickname != "" {
			existing.Nickname = p.Nickname
		}
		return *existing, nil
	}
	p.TotalScore = 0
	room[p.EmployeeID] = &p
	return p, nil
}

func (s *ParticipantStore) Get(_ context.Context, courseID, employeeID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.courses[courseID][employeeID]; ok {
		return *p, nil
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

func (s *ParticipantStore) IncrementScore(_ context.Context, courseID, employeeID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.courses[courseID][employeeID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	p.TotalScore += delta
	return p.TotalScore, nil
}

func (s *ParticipantStore) ListParticipants(_ context.Context, courseID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room := s.courses[courseID]
	out := make([]domain.Participant, 0, len(room))
	for _, p := range room {
		out = append(out, *p)
	}
	return out, nil
}
