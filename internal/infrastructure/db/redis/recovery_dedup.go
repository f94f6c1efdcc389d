package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 15 * time.Minute

// RecoveryDedup suppresses repeated recovery notifications for the same
// email inside a TTL window.
// Key format: recovery:dedup:<lowercased email>
type RecoveryDedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecoveryDedup creates a RecoveryDedup. A non-positive ttl falls back to
// defaultDedupTTL.
func NewRecoveryDedup(client *redis.Client, ttl time.Duration) *RecoveryDedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RecoveryDedup{client: client, ttl: ttl}
}

// Claim reports whether the caller is the first to request recovery for
// email in the current window. The claim expires after the TTL.
func (d *RecoveryDedup) Claim(ctx context.Context, email string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(email), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("recovery dedup: %w", err)
	}
	return ok, nil
}

func (d *RecoveryDedup) key(email string) string {
	return "recovery:dedup:" + strings.ToLower(strings.TrimSpace(email))
}
