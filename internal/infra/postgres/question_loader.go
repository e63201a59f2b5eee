package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"livequiz/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads questions from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	var (
		q       domain.Question
		options []byte
	)
	err := l.pool.QueryRow(ctx, `
		SELECT id, course_id, text, options, correct_index, time_limit_seconds, image_url
		FROM questions WHERE id=$1`, questionID).
		Scan(&q.ID, &q.CourseID, &q.Text, &options, &q.CorrectIndex, &q.TimeLimitSeconds, &q.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return q, nil
}

// SaveQuestion upserts a question. Used by seeding and tests; question authoring lives elsewhere.
func (l *QuestionLoader) SaveQuestion(ctx context.Context, q domain.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO questions (id, course_id, text, options, correct_index, time_limit_seconds, image_url)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			course_id=EXCLUDED.course_id, text=EXCLUDED.text, options=EXCLUDED.options,
			correct_index=EXCLUDED.correct_index, time_limit_seconds=EXCLUDED.time_limit_seconds,
			image_url=EXCLUDED.image_url`,
		q.ID, q.CourseID, q.Text, string(options), q.CorrectIndex, q.TimeLimit(), q.ImageURL)
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}
