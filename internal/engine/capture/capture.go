package capture

import (
	"context"
	"errors"
	"fmt"

	"hookrelay/internal/engine/relay"
	"hookrelay/internal/platform/models"
)

var (
	ErrRequestNotFound   = errors.New("request not found")
	ErrDefinitionMissing = errors.New("no webhook found for this request")
	ErrWebhookInactive   = errors.New("webhook is not active")
	ErrNoTargetURL       = errors.New("no target URL configured for this webhook")
)

// StorageError wraps any persistence failure raised while capturing.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DefinitionStore is the subset of the webhook repository the pipeline needs.
type DefinitionStore interface {
	FindByPath(ctx context.Context, path string) (*models.Webhook, error)
	EnsureByPath(ctx context.Context, path string) (*models.Webhook, bool, error)
	GetByID(ctx context.Context, id string) (*models.Webhook, error)
}

type RequestStore interface {
	Insert(ctx context.Context, req *models.WebhookRequest) error
	GetByID(ctx context.Context, id string) (*models.WebhookRequest, error)
	UpdateRelay(ctx context.Context, id string, status, response *string) error
}

type Relayer interface {
	Relay(ctx context.Context, req relay.Request, target string) relay.Result
}

// Outcome is the relay information stored alongside a capture.
type Outcome struct {
	Status   string
	Response string
}

func OutcomeOf(res relay.Result) *Outcome {
	return &Outcome{Status: res.RelayStatus(), Response: res.RelayResponse()}
}

// storageFailure is stored when the capture itself hit a database error.
var storageFailure = Outcome{
	Status:   models.RelayStatusError,
	Response: `{"error":"Database error during processing"}`,
}
