package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/config"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// RedisJournal keeps a capped stream of relay traffic for the debug
// inspection endpoint. It replaces the old append-only log file.
type RedisJournal struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisJournal(rdb *redis.Client, cfg config.JournalConfig) *RedisJournal {
	return &RedisJournal{
		rdb:    rdb,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
	}
}

func (j *RedisJournal) Append(ctx context.Context, entry domain.JournalEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": raw},
	}).Err()
}

func (j *RedisJournal) Recent(ctx context.Context, n int64) ([]domain.JournalEntry, error) {
	msgs, err := j.rdb.XRevRangeN(ctx, j.stream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]domain.JournalEntry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var entry domain.JournalEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
