package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harsh4r0ra/chat-cli/internal/auth"
	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/backend/memory"
	"github.com/Harsh4r0ra/chat-cli/internal/config"
	"github.com/Harsh4r0ra/chat-cli/internal/realtime"
	"github.com/Harsh4r0ra/chat-cli/internal/service"
	"github.com/Harsh4r0ra/chat-cli/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine *gin.Engine
	client backend.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	raw := memory.New()
	raw.SeedDefaults()
	broker := realtime.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })
	store := realtime.Notify(raw, broker)
	cfg := config.Config{Port: "0", JWTSecret: "secret", Env: "dev", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7, MessageRetentionHours: 24, SweepIntervalMinutes: 60}
	provider := auth.NewProvider(store, cfg)
	client := backend.Client{Auth: provider, Store: store, Realtime: broker}
	hub := ws.NewHub()
	t.Cleanup(hub.Close)
	return &testServer{engine: SetupRouter(cfg, provider, client, hub), client: client}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func (s *testServer) register(t *testing.T, email string) tokens {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", `{"email":"`+email+`","password":"password123"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tk tokens
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tk))
	return tk
}

func (s *testServer) admin(t *testing.T, email string) tokens {
	t.Helper()
	tk := s.register(t, email)
	_, err := service.NewAdminConsole(s.client.Store).PromoteEmail(context.Background(), email)
	require.NoError(t, err)
	return tk
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	tk := s.register(t, "uma@example.com")
	assert.Equal(t, "uma", tk.User.Username)
	assert.NotEmpty(t, tk.AccessToken)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"duplicate email", "/api/v1/auth/register", `{"email":"uma@example.com","password":"password123"}`, http.StatusConflict},
		{"bad email", "/api/v1/auth/register", `{"email":"nope","password":"password123"}`, http.StatusBadRequest},
		{"short password", "/api/v1/auth/register", `{"email":"v@example.com","password":"123"}`, http.StatusBadRequest},
		{"missing fields", "/api/v1/auth/login", `{}`, http.StatusBadRequest},
		{"wrong password", "/api/v1/auth/login", `{"email":"uma@example.com","password":"wrong-one"}`, http.StatusUnauthorized},
		{"login", "/api/v1/auth/login", `{"email":"uma@example.com","password":"password123"}`, http.StatusOK},
		{"bad refresh", "/api/v1/auth/refresh", `{"refresh_token":"nope"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+tk.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var next tokens
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	assert.NotEqual(t, tk.RefreshToken, next.RefreshToken)

	w = s.do(t, http.MethodPost, "/api/v1/auth/logout", next.AccessToken, `{"refresh_token":"`+next.RefreshToken+`"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+next.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh token revoked by logout")

	w = s.do(t, http.MethodPost, "/api/v1/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "val@example.com")

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/admin/stats", "", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/admin/stats", user.AccessToken, "").Code)

	root := s.admin(t, "root@example.com")
	w := s.do(t, http.MethodGet, "/api/v1/admin/stats", root.AccessToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	var st service.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, int64(2), st.TotalUsers)
}

func TestAdminModeration(t *testing.T) {
	s := newTestServer(t)
	root := s.admin(t, "root@example.com")
	user := s.register(t, "wes@example.com")
	base := "/api/v1/admin/users/" + user.User.ID

	w := s.do(t, http.MethodPost, base+"/block", root.AccessToken, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Admin action")

	w = s.do(t, http.MethodPost, base+"/unblock", root.AccessToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, base+"/timeout", root.AccessToken, `{"seconds":42,"reason":"spam"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, base+"/timeout", root.AccessToken, `{"seconds":300,"reason":"spam"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, base+"/untimeout", root.AccessToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/users/missing/block", root.AccessToken, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/users", root.AccessToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wes")

	w = s.do(t, http.MethodPost, "/api/v1/admin/admins", root.AccessToken, `{"username":"wes"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/admin/admins", root.AccessToken, `{"username":"wes"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminRooms(t *testing.T) {
	s := newTestServer(t)
	root := s.admin(t, "root@example.com")
	s.register(t, "xia@example.com")
	tok := root.AccessToken

	w := s.do(t, http.MethodPost, "/api/v1/admin/rooms", tok, `{"name":"ops","display_name":"Ops","description":"on call","is_public":false}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/v1/admin/rooms", tok, `{"name":"ops","display_name":"Ops"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/admin/rooms", tok, `{"name":"bad name!","display_name":"Ops"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/rooms", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ops"`)

	w = s.do(t, http.MethodPost, "/api/v1/admin/rooms/ops/grants", tok, `{"username":"xia","read":true,"write":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/v1/admin/rooms/ops/grants", tok, `{"username":"nobody","read":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodDelete, "/api/v1/admin/rooms/ops/grants/xia", tok, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/admin/rooms/general?confirm=true", http.StatusForbidden},
		{"/api/v1/admin/rooms/ops", http.StatusBadRequest},
		{"/api/v1/admin/rooms/ghost?confirm=true", http.StatusNotFound},
		{"/api/v1/admin/rooms/ops?confirm=true", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(t, http.MethodDelete, tt.path, tok, "").Code)
		})
	}
}
