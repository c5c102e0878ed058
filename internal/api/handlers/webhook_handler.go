package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/pkg/validator"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

type WebhookHandler struct {
	repo  *repositories.WebhookRepository
	audit *audit.Logger
}

func NewWebhookHandler(repo *repositories.WebhookRepository, auditLogger *audit.Logger) *WebhookHandler {
	return &WebhookHandler{repo: repo, audit: auditLogger}
}

type CreateWebhookRequest struct {
	Path         string  `json:"path" validate:"required"`
	TargetURL    string  `json:"targetUrl" validate:"required,url"`
	PreviewField *string `json:"previewField"`
	Active       *bool   `json:"active"`
}

type UpdateWebhookRequest struct {
	Path         *string `json:"path" validate:"omitempty,min=1"`
	TargetURL    *string `json:"targetUrl" validate:"omitempty,url"`
	PreviewField *string `json:"previewField"`
	Active       *bool   `json:"active"`
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.repo.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list webhooks")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list webhooks", nil)
		return
	}
	writeJSON(w, http.StatusOK, webhooks)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	webhook, err := h.repo.GetByID(r.Context(), param(r, "id"))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateWebhookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Path = normalizePath(req.Path)

	if err := validator.Struct(req); err != nil {
		msg := validator.Message(err)
		for _, f := range validator.Fields(err) {
			if f.Rule == "required" {
				msg = "path and targetUrl are required"
				break
			}
		}
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, msg, validator.Fields(err))
		return
	}

	webhook := &models.Webhook{
		Path:         req.Path,
		TargetURL:    req.TargetURL,
		PreviewField: blankToNil(req.PreviewField),
		Active:       true,
	}
	if req.Active != nil {
		webhook.Active = *req.Active
	}

	if err := h.repo.Create(r.Context(), webhook); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.audit.Log(r, audit.ActionWebhookCreated, "webhook", webhook.ID, map[string]interface{}{"path": webhook.Path})
	writeJSON(w, http.StatusCreated, webhook)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateWebhookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path != nil {
		p := normalizePath(*req.Path)
		req.Path = &p
	}
	if err := validator.Struct(req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, validator.Message(err), validator.Fields(err))
		return
	}

	webhook, err := h.repo.GetByID(r.Context(), param(r, "id"))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	if req.Path != nil {
		webhook.Path = *req.Path
	}
	if req.TargetURL != nil {
		webhook.TargetURL = *req.TargetURL
	}
	if req.PreviewField != nil {
		webhook.PreviewField = blankToNil(req.PreviewField)
	}
	if req.Active != nil {
		webhook.Active = *req.Active
	}

	if err := h.repo.Update(r.Context(), webhook); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.audit.Log(r, audit.ActionWebhookUpdated, "webhook", webhook.ID, map[string]interface{}{
		"path":   webhook.Path,
		"active": webhook.Active,
	})
	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.audit.Log(r, audit.ActionWebhookDeleted, "webhook", id, nil)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Webhook deleted successfully"})
}

func (h *WebhookHandler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, repositories.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Webhook not found", nil)
	case stderrors.Is(err, repositories.ErrDuplicatePath):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Webhook path already exists", nil)
	default:
		log.Error().Err(err).Msg("webhook repository error")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
	}
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
