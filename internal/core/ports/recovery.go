package ports

import (
	"context"

	"github.com/milsabores/identity-service/internal/core/domain"
)

// RecoveryQueue accepts recovery requests for asynchronous delivery.
type RecoveryQueue interface {
	Enqueue(req domain.RecoveryRequest)
}

// RecoveryNotifier hands a recovery request to the external mailer.
type RecoveryNotifier interface {
	Notify(ctx context.Context, req domain.RecoveryRequest) error
}
