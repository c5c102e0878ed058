package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/engine/capture"
)

// CaptureHandler serves /webhook/*path. It answers 200 whatever happens.
type CaptureHandler struct {
	pipeline *capture.Pipeline
	maxBody  int64
}

func NewCaptureHandler(pipeline *capture.Pipeline, maxBody int64) *CaptureHandler {
	return &CaptureHandler{pipeline: pipeline, maxBody: maxBody}
}

func (h *CaptureHandler) Handle(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("panic while capturing webhook")
			writeJSON(w, http.StatusOK, &capture.Ack{
				Message:   capture.MsgStorageFailed,
				Timestamp: time.Now().UTC().Format(capture.TimestampLayout),
				Error:     "Database error",
			})
		}
	}()

	path := normalizePath(param(r, "path"))

	in, err := capture.NewInbound(r, h.maxBody)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to read webhook body, storing what was received")
	}
	if in.Truncated {
		log.Warn().Str("path", path).Int64("limit", h.maxBody).Msg("webhook body exceeds capture limit, truncated")
	}

	ack := h.pipeline.HandleInbound(r.Context(), in, path)
	writeJSON(w, http.StatusOK, ack)
}
