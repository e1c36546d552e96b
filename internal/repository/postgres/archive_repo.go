package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// ArchiveRepo — долгое хранилище терминальных задач. In-memory журнал
// монитора чистится ретеншеном, архив в Postgres остается для разборов
// и отчетности.
//
// Ожидаемая таблица:
//
//	CREATE TABLE task_archive (
//	    task_id          TEXT PRIMARY KEY,
//	    agent_id         TEXT NOT NULL,
//	    task_type        TEXT,
//	    status           TEXT NOT NULL,
//	    started_at       TIMESTAMPTZ NOT NULL,
//	    completed_at     TIMESTAMPTZ,
//	    duration_seconds DOUBLE PRECISION,
//	    tokens_used      BIGINT,
//	    cost_usd         DOUBLE PRECISION,
//	    model            TEXT,
//	    error_message    TEXT
//	);
type ArchiveRepo struct {
	db *sql.DB
}

func NewArchiveRepo(connString string, maxConns int) (*ArchiveRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open archive: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &ArchiveRepo{db: db}, nil
}

// WriteBatch сохраняет пачку задач за один запрос.
// Повторная архивация того же task_id — no-op: батчер может прислать
// запись дважды после рестарта.
func (r *ArchiveRepo) WriteBatch(ctx context.Context, tasks []domain.TaskMetrics) error {
	if len(tasks) == 0 {
		return nil
	}

	// Количество колонок в таблице task_archive
	numFields := 11
	placeholderStr := ""
	vals := make([]interface{}, 0, len(tasks)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, t := range tasks {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11)

		var completedAt interface{}
		if t.CompletedAt != nil {
			completedAt = *t.CompletedAt
		}

		vals = append(vals,
			t.TaskID, t.AgentID, t.TaskType, string(t.Status),
			t.StartedAt, completedAt, t.DurationSeconds,
			t.TokensUsed, t.CostUSD, t.Model, t.ErrorMessage,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO task_archive (task_id, agent_id, task_type, status, started_at, completed_at, duration_seconds, tokens_used, cost_usd, model, error_message) VALUES %s ON CONFLICT (task_id) DO NOTHING",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

func (r *ArchiveRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *ArchiveRepo) Close() error {
	return r.db.Close()
}
