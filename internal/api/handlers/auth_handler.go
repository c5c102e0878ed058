package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/pkg/validator"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
)

const adminSubject = "admin"

type AuthHandler struct {
	config   config.AuthConfig
	tokenSvc *auth.TokenService
	audit    *audit.Logger
}

func NewAuthHandler(cfg config.AuthConfig, tokenSvc *auth.TokenService, auditLogger *audit.Logger) *AuthHandler {
	return &AuthHandler{config: cfg, tokenSvc: tokenSvc, audit: auditLogger}
}

type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.config.Enabled {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Authentication is disabled", nil)
		return
	}

	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Struct(req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "password is required", validator.Fields(err))
		return
	}

	if !auth.CheckPassword(h.config.AdminPasswordHash, req.Password) {
		h.audit.Log(r, audit.ActionLoginFailed, "session", "", nil)
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.tokenSvc.GenerateAccessToken(adminSubject)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue access token")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to issue token", nil)
		return
	}

	h.audit.Log(r, audit.ActionLoginSucceeded, "session", adminSubject, nil)
	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokenSvc.TTL().Seconds()),
	})
}
