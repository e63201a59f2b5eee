package postgres

import (
	"context"
	"fmt"

	"livequiz/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore appends result records. Rows are never updated.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) AppendResult(ctx context.Context, rec domain.ResultRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO results (id, course_id, employee_id, question_id, is_correct, score_earned, time_taken_ms, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.CourseID, rec.EmployeeID, rec.QuestionID, rec.IsCorrect, rec.ScoreEarned,
		rec.TimeTakenMillis, string(rec.Kind), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

// ListResults returns a participant's history for a course, oldest first.
func (s *ResultStore) ListResults(ctx context.Context, courseID, employeeID string) ([]domain.ResultRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, course_id, employee_id, question_id, is_correct, score_earned, time_taken_ms, kind, created_at
		FROM results WHERE course_id=$1 AND employee_id=$2 ORDER BY created_at, id`, courseID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.ResultRecord
	for rows.Next() {
		var (
			rec  domain.ResultRecord
			kind string
		)
		if err := rows.Scan(&rec.ID, &rec.CourseID, &rec.EmployeeID, &rec.QuestionID, &rec.IsCorrect,
			&rec.ScoreEarned, &rec.TimeTakenMillis, &kind, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec.Kind = domain.ResultKind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}
