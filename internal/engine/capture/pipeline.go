package capture

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/pkg/metrics"
	"hookrelay/internal/platform/repositories"
)

const (
	MsgForwarded     = "Webhook received and forwarded"
	MsgForwardFailed = "Webhook received but forwarding failed"
	MsgReceived      = "Webhook received"
	MsgStorageFailed = "Webhook received but database error occurred"

	NoteNewWebhook = "New webhook created - configure target URL to enable forwarding"
	NoteInactive   = "Webhook is inactive - forwarding disabled"
	NoteNoTarget   = "No target URL configured for this webhook"
)

// TimestampLayout formats Ack timestamps: UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Ack is the body returned to the webhook sender. It is always sent with 200.
type Ack struct {
	Message       string  `json:"message"`
	Timestamp     string  `json:"timestamp"`
	Forwarded     *bool   `json:"forwarded,omitempty"`
	ForwardStatus *int    `json:"forward_status,omitempty"`
	ForwardError  *string `json:"forward_error,omitempty"`
	Note          string  `json:"note,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Pipeline runs one inbound request through resolve, relay, persist and
// acknowledge.
type Pipeline struct {
	definitions DefinitionStore
	recorder    *Recorder
	relayer     Relayer
	now         func() time.Time
}

func NewPipeline(definitions DefinitionStore, requests RequestStore, relayer Relayer) *Pipeline {
	return &Pipeline{
		definitions: definitions,
		recorder:    NewRecorder(definitions, requests),
		relayer:     relayer,
		now:         time.Now,
	}
}

// HandleInbound never fails: every storage or relay problem is folded into the
// returned Ack. Cancellation of ctx is ignored so that a sender hanging up does
// not abort the relay or the write.
func (p *Pipeline) HandleInbound(ctx context.Context, in *Inbound, path string) *Ack {
	ctx = context.WithoutCancel(ctx)
	logger := log.With().Str("path", path).Str("method", in.Method).Logger()
	logger.Info().Msg("webhook received")

	webhook, err := p.definitions.FindByPath(ctx, path)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return p.fallback(ctx, in, path, &StorageError{Op: "find webhook", Err: err})
	}

	target, eligible := webhook.RelayTarget()
	if !eligible {
		if _, err := p.recorder.Record(ctx, in, path, nil); err != nil {
			return p.fallback(ctx, in, path, err)
		}
		metrics.CapturesTotal.WithLabelValues("stored").Inc()

		note := NoteNoTarget
		switch {
		case webhook == nil:
			note = NoteNewWebhook
		case !webhook.Active:
			note = NoteInactive
		}
		return &Ack{Message: MsgReceived, Timestamp: p.timestamp(), Note: note}
	}

	res := p.relayer.Relay(ctx, in.Outbound(), target)
	if res.OK() {
		logger.Info().Str("target", target).Int("status", res.StatusCode).Msg("webhook forwarded")
	} else {
		logger.Warn().Str("target", target).Str("error", res.Error).Msg("webhook forwarding failed")
	}

	if _, err := p.recorder.Record(ctx, in, path, OutcomeOf(res)); err != nil {
		return p.fallback(ctx, in, path, err)
	}

	ack := &Ack{Message: MsgForwarded, Timestamp: p.timestamp()}
	forwarded := res.OK()
	ack.Forwarded = &forwarded
	if forwarded {
		metrics.CapturesTotal.WithLabelValues("forwarded").Inc()
		status := res.StatusCode
		ack.ForwardStatus = &status
	} else {
		metrics.CapturesTotal.WithLabelValues("forward_failed").Inc()
		ack.Message = MsgForwardFailed
		msg := res.Error
		ack.ForwardError = &msg
	}
	return ack
}

// fallback makes one attempt to keep the request, tagged as an error, after a
// storage failure. Its own failure is only logged.
func (p *Pipeline) fallback(ctx context.Context, in *Inbound, path string, cause error) *Ack {
	var se *StorageError
	if errors.As(cause, &se) {
		metrics.StorageErrorsTotal.WithLabelValues(se.Op).Inc()
	}
	metrics.CapturesTotal.WithLabelValues("storage_error").Inc()
	log.Error().Err(cause).Str("path", path).Msg("database error while capturing webhook")

	outcome := storageFailure
	if _, err := p.recorder.Record(ctx, in, path, &outcome); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to store request after database error")
	}

	return &Ack{Message: MsgStorageFailed, Timestamp: p.timestamp(), Error: "Database error"}
}

func (p *Pipeline) timestamp() string {
	return p.now().UTC().Format(TimestampLayout)
}
