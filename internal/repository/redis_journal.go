package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lstlabs/vaultgate/internal/model"
)

// RedisJournal keeps a capped list of the most recent events for cheap
// dashboard reads without hitting Postgres.
type RedisJournal struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisJournal(client *RedisClient, listKey string, listMax int) *RedisJournal {
	if listKey == "" {
		listKey = "vault_journal"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisJournal{client: client, listKey: listKey, listMax: listMax}
}

// Push implements service.RecentSink.
func (r *RedisJournal) Push(ctx context.Context, e *model.Event) error {
	if e == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := r.client.Client.Pipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to limit newest events, optionally filtered by type.
func (r *RedisJournal) Recent(ctx context.Context, eventType string, limit int, from, to *time.Time) ([]*model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	fetch := limit * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > r.listMax {
		fetch = r.listMax
	}
	items, err := r.client.Client.LRange(ctx, r.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.Event, 0, limit)
	for _, raw := range items {
		var e model.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && e.CreatedAt.After(*to) {
			continue
		}
		results = append(results, &e)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
