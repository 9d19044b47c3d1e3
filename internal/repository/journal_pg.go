package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lstlabs/vaultgate/internal/model"
)

type PostgresJournalRepo struct {
	db *sqlx.DB
}

func NewPostgresJournalRepo(db *sqlx.DB) *PostgresJournalRepo {
	repo := &PostgresJournalRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresJournalRepo) Insert(ctx context.Context, e *model.Event) error {
	if e == nil {
		return nil
	}
	fieldsJSON, _ := json.Marshal(e.Fields)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vault_events (id, event_type, actor, fields, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, string(e.Type), e.Actor, fieldsJSON, e.CreatedAt)
	return err
}

func (r *PostgresJournalRepo) List(ctx context.Context, eventType string, limit int, from, to *time.Time) ([]*model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, event_type, actor, fields, created_at FROM vault_events`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if eventType != "" {
		clauses = append(clauses, fmt.Sprintf("event_type = $%d", idx))
		args = append(args, eventType)
		idx++
	}
	if from != nil {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *from)
		idx++
	}
	if to != nil {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, *to)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.Event, 0, limit)
	for rows.Next() {
		var e model.Event
		var eventType string
		var fieldsJSON []byte
		if err := rows.Scan(&e.ID, &eventType, &e.Actor, &fieldsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = model.EventType(eventType)
		if len(fieldsJSON) > 0 {
			_ = json.Unmarshal(fieldsJSON, &e.Fields)
		}
		records = append(records, &e)
	}
	return records, nil
}

func (r *PostgresJournalRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM vault_events WHERE created_at < $1`, cutoff)
	return err
}

func (r *PostgresJournalRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vault_events (
			id TEXT PRIMARY KEY,
			event_type TEXT,
			actor TEXT,
			fields JSONB,
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_vault_events_type ON vault_events(event_type, created_at DESC)`)
	return nil
}
