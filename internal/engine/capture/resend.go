package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/engine/relay"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

// ResendResult reports a replayed relay. Status is the target's status, or 500
// when it never answered.
type ResendResult struct {
	Success bool    `json:"success"`
	Status  int     `json:"status"`
	Error   *string `json:"error"`
}

type Resender struct {
	definitions DefinitionStore
	requests    RequestStore
	relayer     Relayer
}

func NewResender(definitions DefinitionStore, requests RequestStore, relayer Relayer) *Resender {
	return &Resender{definitions: definitions, requests: requests, relayer: relayer}
}

// Resend relays a stored capture again and overwrites its relay outcome.
// Precondition failures return ErrRequestNotFound, ErrDefinitionMissing,
// ErrWebhookInactive or ErrNoTargetURL without contacting the target.
func (s *Resender) Resend(ctx context.Context, id string) (*ResendResult, error) {
	stored, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, &StorageError{Op: "load request", Err: err}
	}

	webhook, err := s.definitions.GetByID(ctx, stored.WebhookID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDefinitionMissing
		}
		return nil, &StorageError{Op: "load webhook", Err: err}
	}
	if !webhook.Active {
		return nil, ErrWebhookInactive
	}
	if webhook.TargetURL == "" {
		return nil, ErrNoTargetURL
	}

	res := s.relayer.Relay(ctx, Rehydrate(stored), webhook.TargetURL)

	outcome := OutcomeOf(res)
	if err := s.requests.UpdateRelay(ctx, stored.ID, &outcome.Status, &outcome.Response); err != nil {
		return nil, &StorageError{Op: "update relay", Err: err}
	}

	log.Info().
		Str("request_id", stored.ID).
		Str("target", webhook.TargetURL).
		Str("relay_status", outcome.Status).
		Msg("request resent")

	result := &ResendResult{Success: res.OK(), Status: res.StatusCode}
	if !res.OK() {
		result.Status = res.ReportedStatus()
		msg := res.Error
		result.Error = &msg
	}
	return result, nil
}

// Rehydrate rebuilds the relay input from a stored capture. Malformed header or
// query columns become empty maps. A body that is a JSON object is sent in
// compact form; anything else is sent verbatim.
func Rehydrate(stored *models.WebhookRequest) relay.Request {
	req := relay.Request{
		Method:  stored.Method,
		URL:     stored.URL,
		Headers: models.ParseValues(stored.Headers),
		Query:   models.ParseValues(stored.QueryParams),
	}
	if stored.Body == nil || *stored.Body == "" {
		return req
	}

	body := []byte(*stored.Body)
	if strings.HasPrefix(*stored.Body, "{") && relay.IsJSONObject(body) {
		if compact, err := compactJSON(body); err == nil {
			body = compact
		}
	}
	req.Body = body
	return req
}

func compactJSON(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
