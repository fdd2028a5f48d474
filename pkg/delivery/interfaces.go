package delivery

import (
	"context"

	"cadence/pkg/models"
)

// Generator produces a companion reply for a prompt. Implementations must
// honor context cancellation; the orchestrator bounds every call with its
// configured timeout.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MessageStore is the remote, eventually-consistent message collection.
// It is reachable only while online; callers handle unavailability.
type MessageStore interface {
	Insert(ctx context.Context, m models.Message) error
	Query(ctx context.Context, conversationID string) ([]models.Message, error)
	Delete(ctx context.Context, id string) error
}
