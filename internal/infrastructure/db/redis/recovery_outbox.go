package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/milsabores/identity-service/internal/core/domain"
)

const (
	defaultRecoveryStream = "auth:recovery"
	streamMaxLen          = 10000
)

// RecoveryOutbox appends recovery requests to a Redis stream consumed by
// the external mailer.
type RecoveryOutbox struct {
	client *redis.Client
	stream string
}

func NewRecoveryOutbox(client *redis.Client, stream string) *RecoveryOutbox {
	if stream == "" {
		stream = defaultRecoveryStream
	}
	return &RecoveryOutbox{client: client, stream: stream}
}

// Notify implements ports.RecoveryNotifier.
func (o *RecoveryOutbox) Notify(ctx context.Context, req domain.RecoveryRequest) error {
	err := o.client.XAdd(ctx, &redis.XAddArgs{
		Stream: o.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"user_id":      req.UserID,
			"email":        req.Email,
			"requested_at": req.RequestedAt.UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("recovery outbox: %w", err)
	}
	return nil
}
