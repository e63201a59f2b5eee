package postgres

import (
	"context"
	"errors"
	"fmt"

	"livequiz/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ParticipantStore keeps course membership and cumulative scores in Postgres.
type ParticipantStore struct {
	pool *pgxpool.Pool
}

func NewParticipantStore(pool *pgxpool.Pool) *ParticipantStore {
	return &ParticipantStore{pool: pool}
}

const participantColumns = `course_id, employee_id, nickname, total_score, joined_at`

func (s *ParticipantStore) Upsert(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	var out domain.Participant
	err := s.pool.QueryRow(ctx, `
		INSERT INTO participants (course_id, employee_id, nickname, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_id, employee_id) DO UPDATE SET
			nickname = CASE WHEN EXCLUDED.nickname <> '' THEN EXCLUDED.nickname ELSE participants.nickname END
		RETURNING `+participantColumns,
		p.CourseID, p.EmployeeID, p.Nickname, p.JoinedAt).
		Scan(&out.CourseID, &out.EmployeeID, &out.Nickname, &out.TotalScore, &out.JoinedAt)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("upsert participant: %w", err)
	}
	return out, nil
}

func (s *ParticipantStore) Get(ctx context.Context, courseID, employeeID string) (domain.Participant, error) {
	var out domain.Participant
	err := s.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE course_id=$1 AND employee_id=$2`,
		courseID, employeeID).
		Scan(&out.CourseID, &out.EmployeeID, &out.Nickname, &out.TotalScore, &out.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return out, nil
}

// IncrementScore is a single atomic UPDATE so concurrent credits never lose points.
func (s *ParticipantStore) IncrementScore(ctx context.Context, courseID, employeeID string, delta int) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		UPDATE participants SET total_score = total_score + $3
		WHERE course_id=$1 AND employee_id=$2
		RETURNING total_score`, courseID, employeeID, delta).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrParticipantNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment score: %w", err)
	}
	return total, nil
}

func (s *ParticipantStore) ListParticipants(ctx context.Context, courseID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE course_id=$1 ORDER BY total_score DESC, joined_at, employee_id`,
		courseID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.CourseID, &p.EmployeeID, &p.Nickname, &p.TotalScore, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
