package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// ResultsSink persists one JSONB row per finished session. Analytics and
// export pipelines read from here; the engine never does.
type ResultsSink struct {
	pool *pgxpool.Pool
}

func NewResultsSink(pool *pgxpool.Pool) *ResultsSink {
	return &ResultsSink{pool: pool}
}

func (s *ResultsSink) Persist(ctx context.Context, result domain.SessionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}
	// ON CONFLICT keeps the first write; persist is called once per session
	// but a crash-retry must not overwrite a recorded outcome.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_results (id, quiz_id, finished_at, data)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		result.SessionID, result.QuizID, result.FinishedAt, raw)
	if err != nil {
		return fmt.Errorf("persist session result: %w", err)
	}
	return nil
}
