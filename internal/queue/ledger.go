package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ledgerKeyPrefix = "physiopost:delivery:"
	ledgerRetention = 7 * 24 * time.Hour
)

// Ledger remembers delivery ids that were handled successfully so a replayed
// delivery is answered without touching the post again.
type Ledger struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

func NewLedger(rdb redis.UniversalClient) *Ledger {
	return &Ledger{rdb: rdb, retention: ledgerRetention}
}

func (l *Ledger) Seen(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, nil
	}
	_, err := l.rdb.Get(ctx, ledgerKeyPrefix+deliveryID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read delivery ledger: %w", err)
	}
	return true, nil
}

func (l *Ledger) Record(ctx context.Context, deliveryID, outcome string) error {
	if deliveryID == "" {
		return nil
	}
	if err := l.rdb.SetNX(ctx, ledgerKeyPrefix+deliveryID, outcome, l.retention).Err(); err != nil {
		return fmt.Errorf("write delivery ledger: %w", err)
	}
	return nil
}
