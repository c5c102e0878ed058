package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/engine/capture"
	"hookrelay/internal/engine/preview"
	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

type RequestHandler struct {
	requests *repositories.RequestRepository
	webhooks *repositories.WebhookRepository
	resender *capture.Resender
	audit    *audit.Logger
}

func NewRequestHandler(requests *repositories.RequestRepository, webhooks *repositories.WebhookRepository, resender *capture.Resender, auditLogger *audit.Logger) *RequestHandler {
	return &RequestHandler{requests: requests, webhooks: webhooks, resender: resender, audit: auditLogger}
}

type webhookSummary struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	TargetURL string `json:"targetUrl"`
	Active    bool   `json:"active"`
}

type requestView struct {
	ID            string          `json:"id"`
	Method        string          `json:"method"`
	URL           string          `json:"url"`
	Headers       models.Values   `json:"headers"`
	Body          *string         `json:"body"`
	QueryParams   models.Values   `json:"queryParams"`
	Timestamp     time.Time       `json:"timestamp"`
	IPAddress     *string         `json:"ipAddress"`
	UserAgent     *string         `json:"userAgent"`
	RelayStatus   *string         `json:"relayStatus"`
	RelayResponse *string         `json:"relayResponse"`
	WebhookID     string          `json:"webhookId"`
	Webhook       *webhookSummary `json:"webhook"`
	Preview       *string         `json:"preview,omitempty"`

	LegacyQueryParams models.Values `json:"query_params"`
	LegacyIPAddress   *string       `json:"ip_address"`
	LegacyUserAgent   *string       `json:"user_agent"`
}

func newRequestView(req *models.WebhookRequest, webhook *models.Webhook) requestView {
	query := models.ParseValues(req.QueryParams)
	v := requestView{
		ID:                req.ID,
		Method:            req.Method,
		URL:               req.URL,
		Headers:           models.ParseValues(req.Headers),
		Body:              req.Body,
		QueryParams:       query,
		Timestamp:         req.Timestamp,
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		RelayStatus:       req.RelayStatus,
		RelayResponse:     req.RelayResponse,
		WebhookID:         req.WebhookID,
		LegacyQueryParams: query,
		LegacyIPAddress:   req.IPAddress,
		LegacyUserAgent:   req.UserAgent,
	}

	if webhook != nil {
		v.Webhook = &webhookSummary{ID: webhook.ID, Path: webhook.Path, TargetURL: webhook.TargetURL, Active: webhook.Active}
		if webhook.PreviewField != nil {
			if value, ok := preview.Extract(preview.FromRequest(req), *webhook.PreviewField); ok {
				v.Preview = &value
			}
		}
	}
	return v
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := repositories.ListOpts{
		Limit:     queryInt(r, "limit", repositories.DefaultListLimit),
		Offset:    queryInt(r, "offset", 0),
		WebhookID: r.URL.Query().Get("webhookId"),
	}

	requests, err := h.requests.List(r.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("failed to list requests")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list requests", nil)
		return
	}

	webhooks := map[string]*models.Webhook{}
	views := make([]requestView, 0, len(requests))
	for _, req := range requests {
		webhook, ok := webhooks[req.WebhookID]
		if !ok {
			webhook = h.lookupWebhook(r.Context(), req.WebhookID)
			webhooks[req.WebhookID] = webhook
		}
		views = append(views, newRequestView(req, webhook))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.GetByID(r.Context(), param(r, "id"))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequestView(req, h.lookupWebhook(r.Context(), req.WebhookID)))
}

func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	if err := h.requests.Delete(r.Context(), id); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.audit.Log(r, audit.ActionRequestDeleted, "request", id, nil)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Request deleted successfully"})
}

func (h *RequestHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.requests.DeleteAll(r.Context())
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.audit.Log(r, audit.ActionRequestsCleared, "request", "", map[string]interface{}{"count": n})
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Deleted %d requests", n)})
}

type resendResponse struct {
	Message string `json:"message"`
	*capture.ResendResult
}

func (h *RequestHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")

	result, err := h.resender.Resend(r.Context(), id)
	if err != nil {
		switch {
		case stderrors.Is(err, capture.ErrRequestNotFound):
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Request not found", nil)
		case stderrors.Is(err, capture.ErrDefinitionMissing):
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodePreconditionFailed, "No webhook found for this request", nil)
		case stderrors.Is(err, capture.ErrWebhookInactive):
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodePreconditionFailed, "Webhook is not active", nil)
		case stderrors.Is(err, capture.ErrNoTargetURL):
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodePreconditionFailed, "No target URL configured for this webhook", nil)
		default:
			log.Error().Err(err).Str("request_id", id).Msg("resend failed")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to resend request", nil)
		}
		return
	}

	h.audit.Log(r, audit.ActionRequestResent, "request", id, map[string]interface{}{
		"success": result.Success,
		"status":  result.Status,
	})
	writeJSON(w, http.StatusOK, resendResponse{Message: "Request resent", ResendResult: result})
}

// lookupWebhook returns nil when the owning webhook is gone or unreadable.
func (h *RequestHandler) lookupWebhook(ctx context.Context, id string) *models.Webhook {
	webhook, err := h.webhooks.GetByID(ctx, id)
	if err != nil {
		if !stderrors.Is(err, repositories.ErrNotFound) {
			log.Warn().Err(err).Str("webhook_id", id).Msg("failed to load webhook for request")
		}
		return nil
	}
	return webhook
}

func (h *RequestHandler) writeRepoError(w http.ResponseWriter, err error) {
	if stderrors.Is(err, repositories.ErrNotFound) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Request not found", nil)
		return
	}
	log.Error().Err(err).Msg("request repository error")
	errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
}
