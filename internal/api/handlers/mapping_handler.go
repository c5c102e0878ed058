package handlers

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/pkg/validator"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

// MappingHandler keeps the older /api/mappings clients working. Mappings are
// the same rows as webhooks, exposed with snake_case names.
type MappingHandler struct {
	repo  *repositories.WebhookRepository
	audit *audit.Logger
}

func NewMappingHandler(repo *repositories.WebhookRepository, auditLogger *audit.Logger) *MappingHandler {
	return &MappingHandler{repo: repo, audit: auditLogger}
}

type mappingView struct {
	ID          string    `json:"id"`
	WebhookPath string    `json:"webhook_path"`
	TargetURL   string    `json:"target_url"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newMappingView(w *models.Webhook) mappingView {
	return mappingView{
		ID:          w.ID,
		WebhookPath: w.Path,
		TargetURL:   w.TargetURL,
		Active:      w.Active,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

type CreateMappingRequest struct {
	WebhookPath string `json:"webhook_path" validate:"required"`
	TargetURL   string `json:"target_url" validate:"required"`
}

type UpdateMappingRequest struct {
	WebhookPath *string `json:"webhook_path" validate:"omitempty,min=1"`
	TargetURL   *string `json:"target_url"`
	Active      *bool   `json:"active"`
}

func (h *MappingHandler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.repo.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list mappings")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list mappings", nil)
		return
	}

	views := make([]mappingView, 0, len(webhooks))
	for _, wh := range webhooks {
		views = append(views, newMappingView(wh))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *MappingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMappingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.WebhookPath = normalizePath(req.WebhookPath)
	if err := validator.Struct(req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "webhook_path and target_url are required", validator.Fields(err))
		return
	}

	webhook := &models.Webhook{Path: req.WebhookPath, TargetURL: req.TargetURL, Active: true}
	if err := h.repo.Create(r.Context(), webhook); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.audit.Log(r, audit.ActionWebhookCreated, "mapping", webhook.ID, map[string]interface{}{"path": webhook.Path})
	writeJSON(w, http.StatusCreated, newMappingView(webhook))
}

func (h *MappingHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateMappingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.WebhookPath != nil {
		p := normalizePath(*req.WebhookPath)
		req.WebhookPath = &p
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
	if req.WebhookPath != nil {
		webhook.Path = *req.WebhookPath
	}
	if req.TargetURL != nil {
		webhook.TargetURL = *req.TargetURL
	}
	if req.Active != nil {
		webhook.Active = *req.Active
	}

	if err := h.repo.Update(r.Context(), webhook); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.audit.Log(r, audit.ActionWebhookUpdated, "mapping", webhook.ID, nil)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Mapping updated successfully"})
}

func (h *MappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.audit.Log(r, audit.ActionWebhookDeleted, "mapping", id, nil)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Mapping deleted successfully"})
}

func (h *MappingHandler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, repositories.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Mapping not found", nil)
	case stderrors.Is(err, repositories.ErrDuplicatePath):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Webhook path already exists", nil)
	default:
		log.Error().Err(err).Msg("mapping repository error")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
	}
}
