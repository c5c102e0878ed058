package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay/internal/api/handlers"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/engine/capture"
	"hookrelay/internal/engine/relay"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

type testServer struct {
	handler  http.Handler
	webhooks *repositories.WebhookRepository
	requests *repositories.RequestRepository
}

func newTestServer(t *testing.T, authCfg config.AuthConfig) *testServer {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{URL: ":memory:", MaxConnections: 1})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, "up"))
	t.Cleanup(func() { db.Close() })

	webhookRepo := repositories.NewWebhookRepository(db)
	requestRepo := repositories.NewRequestRepository(db)
	dispatcher := relay.NewDispatcher(relay.WithTimeout(2 * time.Second))
	auditLogger := audit.NewLogger()
	tokenSvc := auth.NewTokenService(authCfg.JWT)

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>dashboard</html>"), 0644))

	deps := &Dependencies{
		CaptureHandler: handlers.NewCaptureHandler(capture.NewPipeline(webhookRepo, requestRepo, dispatcher), 1<<20),
		WebhookHandler: handlers.NewWebhookHandler(webhookRepo, auditLogger),
		MappingHandler: handlers.NewMappingHandler(webhookRepo, auditLogger),
		RequestHandler: handlers.NewRequestHandler(requestRepo, webhookRepo, capture.NewResender(webhookRepo, requestRepo, dispatcher), auditLogger),
		AuthHandler:    handlers.NewAuthHandler(authCfg, tokenSvc, auditLogger),
		HealthHandler:  handlers.NewHealthHandler(db),
		MetricsHandler: handlers.NewMetricsHandler(),
		StaticHandler:  handlers.NewStaticHandler(staticDir),
		AuthMiddleware: middleware.NewAuthMiddleware(tokenSvc, authCfg.Enabled),
		CORS:           config.CORSConfig{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"}},
	}

	return &testServer{handler: NewHandler(deps), webhooks: webhookRepo, requests: requestRepo}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) countRelayStatus(t *testing.T, status string) int {
	t.Helper()
	list, err := s.requests.List(context.Background(), repositories.ListOpts{})
	require.NoError(t, err)
	n := 0
	for _, req := range list {
		if req.RelayStatus != nil && *req.RelayStatus == status {
			n++
		}
	}
	return n
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestCapture_NewPath(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	rr := s.do(t, http.MethodPost, "/webhook/abc", `{"x":1}`, "Content-Type", "application/json")
	require.Equal(t, http.StatusOK, rr.Code)

	var ack map[string]interface{}
	decode(t, rr, &ack)
	assert.Equal(t, "Webhook received", ack["message"])
	assert.Contains(t, ack["note"], "New webhook created")
	assert.NotContains(t, ack, "forwarded")

	w, err := s.webhooks.FindByPath(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "", w.TargetURL)
	assert.True(t, w.Active)

	list, _ := s.requests.List(context.Background(), repositories.ListOpts{})
	require.Len(t, list, 1)
	assert.Nil(t, list[0].RelayStatus)
}

func TestCapture_MultiSegmentPathAndAnyMethod(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	methods := []string{
		http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		http.MethodTrace, http.MethodConnect, "PURGE", "PROPFIND",
	}
	for _, method := range methods {
		rr := s.do(t, method, "/webhook/github/org/repo?ref=main", nil, "Origin", "https://example.com", "Access-Control-Request-Method", "POST")
		assert.Equal(t, http.StatusOK, rr.Code, method)
	}

	w, err := s.webhooks.FindByPath(context.Background(), "github/org/repo")
	require.NoError(t, err)
	list, _ := s.requests.List(context.Background(), repositories.ListOpts{WebhookID: w.ID})
	require.Len(t, list, len(methods))

	seen := map[string]bool{}
	for _, req := range list {
		seen[req.Method] = true
	}
	for _, method := range methods {
		assert.True(t, seen[method], "no capture stored for %s", method)
	}
}

func TestCapture_PathMatchesExactly(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})
	ctx := context.Background()

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/webhook/abc", `{}`).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/webhook/abc%20", `{}`).Code)

	plain, err := s.webhooks.FindByPath(ctx, "abc")
	require.NoError(t, err)
	spaced, err := s.webhooks.FindByPath(ctx, "abc ")
	require.NoError(t, err)
	assert.NotEqual(t, plain.ID, spaced.ID)

	for _, w := range []string{plain.ID, spaced.ID} {
		list, _ := s.requests.List(ctx, repositories.ListOpts{WebhookID: w})
		assert.Len(t, list, 1)
	}
}

func TestCapture_ForwardedAndFailed(t *testing.T) {
	var hits int32
	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer echo.Close()

	s := newTestServer(t, config.AuthConfig{})
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/webhook/abc", `{}`).Code)
	w, _ := s.webhooks.FindByPath(context.Background(), "abc")

	rr := s.do(t, http.MethodPut, "/api/webhooks/"+w.ID, map[string]interface{}{"targetUrl": echo.URL + "/ok", "active": true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/webhook/abc", `{"x":1}`, "Content-Type", "application/json")
	require.Equal(t, http.StatusOK, rr.Code)
	var ack map[string]interface{}
	decode(t, rr, &ack)
	assert.Equal(t, true, ack["forwarded"])
	assert.EqualValues(t, 200, ack["forward_status"])
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	assert.Equal(t, 1, s.countRelayStatus(t, "200"))

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/webhooks/"+w.ID, map[string]interface{}{"targetUrl": deadURL}).Code)

	rr = s.do(t, http.MethodPost, "/webhook/abc", `{"x":2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	ack = nil
	decode(t, rr, &ack)
	assert.Equal(t, false, ack["forwarded"])
	assert.NotEmpty(t, ack["forward_error"])

	assert.Equal(t, 1, s.countRelayStatus(t, "error"))
	assert.Equal(t, 1, s.countRelayStatus(t, "200"))
}

func TestWebhookCRUD(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	rr := s.do(t, http.MethodPost, "/api/webhooks", map[string]interface{}{"path": "orders"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var errBody map[string]interface{}
	decode(t, rr, &errBody)
	assert.Equal(t, "path and targetUrl are required", errBody["error"])

	rr = s.do(t, http.MethodPost, "/api/webhooks", map[string]interface{}{"path": "orders", "targetUrl": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/webhooks", map[string]interface{}{"path": "/orders", "targetUrl": "https://example.com/in", "previewField": "body.type"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created models.Webhook
	decode(t, rr, &created)
	assert.Equal(t, "orders", created.Path)
	assert.True(t, created.Active)

	rr = s.do(t, http.MethodPost, "/api/webhooks", map[string]interface{}{"path": "orders", "targetUrl": "https://example.com/other"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/webhooks", map[string]interface{}{"path": "refunds", "targetUrl": "https://example.com/r"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var second models.Webhook
	decode(t, rr, &second)

	rr = s.do(t, http.MethodPut, "/api/webhooks/"+second.ID, map[string]interface{}{"path": "orders"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/webhooks/wh_missing", map[string]interface{}{"active": false})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/webhooks", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []models.Webhook
	decode(t, rr, &list)
	require.Len(t, list, 2)
	for _, wh := range list {
		require.NotNil(t, wh.RequestCount)
		assert.Zero(t, *wh.RequestCount)
	}

	rr = s.do(t, http.MethodDelete, "/api/webhooks/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodDelete, "/api/webhooks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMappings(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	rr := s.do(t, http.MethodPost, "/api/mappings", map[string]interface{}{"webhook_path": "legacy"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/mappings", map[string]interface{}{"webhook_path": "legacy", "target_url": "http://localhost:9/x"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created map[string]interface{}
	decode(t, rr, &created)
	assert.Equal(t, "legacy", created["webhook_path"])
	id := created["id"].(string)

	rr = s.do(t, http.MethodPut, "/api/mappings/"+id, map[string]interface{}{"active": false})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/mappings", nil)
	var list []map[string]interface{}
	decode(t, rr, &list)
	require.Len(t, list, 1)
	assert.Equal(t, false, list[0]["active"])
	assert.Equal(t, "http://localhost:9/x", list[0]["target_url"])

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/mappings/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/mappings/"+id, nil).Code)
}

func TestRequests_ListGetDelete(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	rr := s.do(t, http.MethodPost, "/api/webhooks", map[string]interface{}{"path": "shop", "targetUrl": "https://example.com", "previewField": "headers.x-event-type, body.order.id", "active": false})
	require.Equal(t, http.StatusCreated, rr.Code)
	var shop models.Webhook
	decode(t, rr, &shop)

	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/webhook/shop?source=test", `{"order":{"id":42}}`, "X-Event-Type", "order.created", "Content-Type", "application/json")
	}
	s.do(t, http.MethodPost, "/webhook/other", `hello`)

	rr = s.do(t, http.MethodGet, "/api/requests?webhookId="+shop.ID+"&limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page []map[string]interface{}
	decode(t, rr, &page)
	require.Len(t, page, 2)

	item := page[0]
	assert.Equal(t, "order.created\n42", item["preview"])
	assert.Equal(t, "test", item["queryParams"].(map[string]interface{})["source"])
	assert.Equal(t, item["queryParams"], item["query_params"])
	assert.Equal(t, "order.created", item["headers"].(map[string]interface{})["x-event-type"])
	webhook := item["webhook"].(map[string]interface{})
	assert.Equal(t, "shop", webhook["path"])
	assert.Equal(t, false, webhook["active"])

	rr = s.do(t, http.MethodGet, "/api/requests", nil)
	var all []map[string]interface{}
	decode(t, rr, &all)
	assert.Len(t, all, 4)

	id := item["id"].(string)
	rr = s.do(t, http.MethodGet, "/api/requests/"+id, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/requests/req_missing", nil).Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/requests/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/requests/"+id, nil).Code)

	rr = s.do(t, http.MethodDelete, "/api/requests", nil)
	var msg map[string]string
	decode(t, rr, &msg)
	assert.Equal(t, "Deleted 3 requests", msg["message"])
}

func TestResend(t *testing.T) {
	var hits int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer target.Close()

	s := newTestServer(t, config.AuthConfig{})
	rr := s.do(t, http.MethodPost, "/api/webhooks", map[string]interface{}{"path": "abc", "targetUrl": target.URL, "active": false})
	require.Equal(t, http.StatusCreated, rr.Code)
	var w models.Webhook
	decode(t, rr, &w)

	s.do(t, http.MethodPost, "/webhook/abc", `{"x":1}`)
	stored, _ := s.requests.List(context.Background(), repositories.ListOpts{})
	require.Len(t, stored, 1)
	id := stored[0].ID

	rr = s.do(t, http.MethodPost, "/api/requests/"+id+"/resend", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var errBody map[string]interface{}
	decode(t, rr, &errBody)
	assert.Equal(t, "Webhook is not active", errBody["error"])
	assert.Zero(t, atomic.LoadInt32(&hits))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/webhooks/"+w.ID, map[string]interface{}{"active": true}).Code)

	for i := 0; i < 2; i++ {
		rr = s.do(t, http.MethodPost, "/api/requests/"+id+"/resend", nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var body map[string]interface{}
		decode(t, rr, &body)
		assert.Equal(t, "Request resent", body["message"])
		assert.Equal(t, true, body["success"])
		assert.EqualValues(t, 202, body["status"])
		assert.Nil(t, body["error"])
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))

	stored, _ = s.requests.List(context.Background(), repositories.ListOpts{})
	require.Len(t, stored, 1)
	assert.Equal(t, "202", *stored[0].RelayStatus)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/requests/req_missing/resend", nil).Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/webhooks/"+w.ID, map[string]interface{}{"targetUrl": ""}).Code)
	rr = s.do(t, http.MethodPost, "/api/requests/"+id+"/resend", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	errBody = nil
	decode(t, rr, &errBody)
	assert.Equal(t, "No target URL configured for this webhook", errBody["error"])
}

func TestAuthEnabled(t *testing.T) {
	hash, err := auth.HashPassword("letmein")
	require.NoError(t, err)
	s := newTestServer(t, config.AuthConfig{
		Enabled:           true,
		AdminPasswordHash: hash,
		JWT:               config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour},
	})

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/webhooks", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/webhook/open", `{}`).Code, "capture is never authenticated")
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"password": "nope"}).Code)

	rr := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"password": "letmein"})
	require.Equal(t, http.StatusOK, rr.Code)
	var login map[string]interface{}
	decode(t, rr, &login)
	token := login["access_token"].(string)
	assert.EqualValues(t, 3600, login["expires_in"])

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/webhooks", nil, "Authorization", "Bearer "+token).Code)
}

func TestHealthMetricsAndStatic(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	rr := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	var health map[string]interface{}
	decode(t, rr, &health)
	assert.Equal(t, "healthy", health["status"])

	s.do(t, http.MethodPost, "/webhook/metrics-check", `{}`)
	rr = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "hookrelay_captures_total")

	rr = s.do(t, http.MethodGet, "/webhooks/some-id", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dashboard")

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/unknown", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/nowhere", nil).Code)
}
