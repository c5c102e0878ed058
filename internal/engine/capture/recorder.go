package capture

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/platform/models"
)

// Recorder persists inbound requests, registering their path on first sight.
type Recorder struct {
	definitions DefinitionStore
	requests    RequestStore
}

func NewRecorder(definitions DefinitionStore, requests RequestStore) *Recorder {
	return &Recorder{definitions: definitions, requests: requests}
}

// Recorded is what one Record call wrote.
type Recorded struct {
	Webhook *models.Webhook
	Request *models.WebhookRequest
	Created bool
}

// Record stores in under the webhook registered at path, with the given relay
// outcome (nil when no relay was attempted). Failures are *StorageError.
func (r *Recorder) Record(ctx context.Context, in *Inbound, path string, outcome *Outcome) (*Recorded, error) {
	webhook, created, err := r.definitions.EnsureByPath(ctx, path)
	if err != nil {
		return nil, &StorageError{Op: "ensure webhook", Err: err}
	}
	if created {
		log.Info().Str("path", path).Str("webhook_id", webhook.ID).Msg("created webhook for new path")
	}

	req := &models.WebhookRequest{
		WebhookID:   webhook.ID,
		Method:      in.Method,
		URL:         in.URL,
		Headers:     in.Headers.Encode(),
		QueryParams: in.Query.Encode(),
		Timestamp:   time.Now().UTC(),
		IPAddress:   optional(in.IPAddress),
		UserAgent:   optional(in.UserAgent),
	}
	if len(in.Body) > 0 {
		body := string(in.Body)
		req.Body = &body
	}
	if outcome != nil {
		req.RelayStatus = optional(outcome.Status)
		req.RelayResponse = optional(outcome.Response)
	}

	if err := r.requests.Insert(ctx, req); err != nil {
		return nil, &StorageError{Op: "insert request", Err: err}
	}
	return &Recorded{Webhook: webhook, Request: req, Created: created}, nil
}
