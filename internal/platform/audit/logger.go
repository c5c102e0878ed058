package audit

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apiContext "hookrelay/internal/api/context"
	"hookrelay/internal/platform/auth"
)

const (
	ActionWebhookCreated   = "webhook.created"
	ActionWebhookUpdated   = "webhook.updated"
	ActionWebhookDeleted   = "webhook.deleted"
	ActionRequestDeleted   = "request.deleted"
	ActionRequestsCleared  = "requests.cleared"
	ActionRequestResent    = "request.resent"
	ActionLoginSucceeded   = "auth.login"
	ActionLoginFailed      = "auth.login_failed"
	ActionRetentionCleanup = "retention.cleanup"
)

// Logger writes one structured line per dashboard mutation.
type Logger struct {
	logger zerolog.Logger
}

func NewLogger() *Logger {
	return &Logger{logger: log.With().Str("component", "audit").Logger()}
}

func NewLoggerWith(l zerolog.Logger) *Logger {
	return &Logger{logger: l}
}

// Log records action on a resource. r may be nil for background jobs.
func (l *Logger) Log(r *http.Request, action, resourceType, resourceID string, metadata map[string]interface{}) {
	actor := "anonymous"
	event := l.logger.Info().
		Str("action", action).
		Str("resource_type", resourceType).
		Str("resource_id", resourceID)

	if r != nil {
		if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok && claims.Subject != "" {
			actor = claims.Subject
		}
		event = event.Str("ip_address", r.RemoteAddr).Str("user_agent", r.UserAgent())
	} else {
		actor = "system"
	}

	if len(metadata) > 0 {
		event = event.Fields(map[string]interface{}{"metadata": metadata})
	}
	event.Str("actor", actor).Msg("audit")
}
