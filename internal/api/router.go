package api

import (
	"context"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	apiContext "hookrelay/internal/api/context"
	"hookrelay/internal/api/handlers"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/platform/config"
)

const capturePrefix = "/webhook/"

type Dependencies struct {
	CaptureHandler *handlers.CaptureHandler
	WebhookHandler *handlers.WebhookHandler
	MappingHandler *handlers.MappingHandler
	RequestHandler *handlers.RequestHandler
	AuthHandler    *handlers.AuthHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler
	StaticHandler  *handlers.StaticHandler
	AuthMiddleware *middleware.AuthMiddleware
	CORS           config.CORSConfig
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	router.POST("/api/auth/login", wrap(deps.AuthHandler.Login))

	authMid := deps.AuthMiddleware

	// Webhook definitions
	router.GET("/api/webhooks", chain(deps.WebhookHandler.List, authMid.Handle))
	router.POST("/api/webhooks", chain(deps.WebhookHandler.Create, authMid.Handle))
	router.GET("/api/webhooks/:id", chain(deps.WebhookHandler.Get, authMid.Handle))
	router.PUT("/api/webhooks/:id", chain(deps.WebhookHandler.Update, authMid.Handle))
	router.DELETE("/api/webhooks/:id", chain(deps.WebhookHandler.Delete, authMid.Handle))

	// Captured requests
	router.GET("/api/requests", chain(deps.RequestHandler.List, authMid.Handle))
	router.DELETE("/api/requests", chain(deps.RequestHandler.DeleteAll, authMid.Handle))
	router.GET("/api/requests/:id", chain(deps.RequestHandler.Get, authMid.Handle))
	router.DELETE("/api/requests/:id", chain(deps.RequestHandler.Delete, authMid.Handle))
	router.POST("/api/requests/:id/resend", chain(deps.RequestHandler.Resend, authMid.Handle))

	// Legacy mappings
	router.GET("/api/mappings", chain(deps.MappingHandler.List, authMid.Handle))
	router.POST("/api/mappings", chain(deps.MappingHandler.Create, authMid.Handle))
	router.PUT("/api/mappings/:id", chain(deps.MappingHandler.Update, authMid.Handle))
	router.DELETE("/api/mappings/:id", chain(deps.MappingHandler.Delete, authMid.Handle))

	router.NotFound = deps.StaticHandler

	return router
}

// NewHandler wraps the router with the global middleware. Everything under
// /webhook/ goes straight to the capture handler, whatever the method, and
// without CORS so that OPTIONS is captured like any other request.
func NewHandler(deps *Dependencies) http.Handler {
	router := NewRouter(deps)
	captureAll := captureHandler(deps.CaptureHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: deps.CORS.AllowedOrigins,
		AllowedMethods: deps.CORS.AllowedMethods,
		AllowedHeaders: deps.CORS.AllowedHeaders,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         deps.CORS.MaxAge,
	}).Handler(router)

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, capturePrefix) {
			captureAll.ServeHTTP(w, r)
			return
		}
		corsHandler.ServeHTTP(w, r)
	})

	h = middleware.Recoverer()(h)
	h = middleware.Logger()(h)
	h = chimiddleware.RealIP(h)
	h = chimiddleware.RequestID(h)
	return h
}

// captureHandler serves /webhook/*path for any method, including ones the
// router has no table for (TRACE, PURGE, custom verbs).
func captureHandler(h *handlers.CaptureHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := httprouter.Params{{Key: "path", Value: "/" + strings.TrimPrefix(r.URL.Path, capturePrefix)}}
		ctx := context.WithValue(r.Context(), apiContext.Params, params)
		h.Handle(w, r.WithContext(ctx))
	})
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
