package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/realm-live/internal/config"
	"github.com/weiawesome/realm-live/internal/hub"
	"github.com/weiawesome/realm-live/internal/metrics"
	"github.com/weiawesome/realm-live/internal/repository"
	"github.com/weiawesome/realm-live/internal/service"
	"github.com/weiawesome/realm-live/internal/testutil"
	"github.com/weiawesome/realm-live/pkg/jwt"
	"github.com/weiawesome/realm-live/pkg/middleware"
)

type testServer struct {
	*httptest.Server
	hub *hub.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	tokens, err := jwt.NewManager("handler-secret", time.Hour, "realm-live")
	require.NoError(t, err)

	h := hub.NewHub(nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()

	users := repository.NewGormUserRepository(db)
	projects := repository.NewGormProjectRepository(db)
	tasks := repository.NewGormTaskRepository(db)
	notifications := repository.NewGormNotificationRepository(db)

	dispatcher := service.NewDispatcher(projects, notifications, h, nil, m)
	workspace := service.NewWorkspaceService(users, projects, tasks, notifications, dispatcher, h, tokens)
	connections := service.NewConnectionService(h, service.NewJWTVerifier(tokens), m)

	r := gin.New()
	RegisterOpsRoutes(r, reg)
	NewHandler(workspace, middleware.NewAuthMiddleware(tokens)).RegisterRoutes(r)
	NewWSHandler(connections, config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
		SendBufferSize: 16,
	}).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{Server: srv, hub: h}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Count int `json:"count"`
	} `json:"meta"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

type account struct {
	ID    string
	Token string
}

func (s *testServer) register(t *testing.T, name string) account {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": name, "email": name + "@example.com", "password": "password",
	})
	require.Equal(t, http.StatusCreated, status)
	var out struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return account{ID: out.User.ID, Token: out.Token}
}

func (s *testServer) id(t *testing.T, env envelope) string {
	t.Helper()
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.ID)
	return out.ID
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocket_HandshakeAndPushes(t *testing.T) {
	s := newTestServer(t)
	bob := s.register(t, "bob")
	alice := s.register(t, "alice")

	conn := s.dial(t)

	// Bad credentials and garbage produce no frame; the next reply is the pong.
	send(t, conn, map[string]string{"type": "auth", "token": "garbage"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, map[string]string{"type": "subscribe"})
	send(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, "pong", read(t, conn).Type)

	send(t, conn, map[string]interface{}{"type": "auth", "data": map[string]string{"token": alice.Token}})
	f := read(t, conn)
	assert.Equal(t, "auth_success", f.Type)
	assert.Empty(t, f.Data)

	status, env := s.do(t, http.MethodPost, "/api/v1/projects", bob.Token, map[string]string{"name": "Launch"})
	require.Equal(t, http.StatusCreated, status)
	projectID := s.id(t, env)

	status, _ = s.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/members", bob.Token, map[string]string{"userId": alice.ID})
	require.Equal(t, http.StatusCreated, status)

	f = read(t, conn)
	require.Equal(t, "notification", f.Type)
	var n struct {
		UserID    string `json:"userId"`
		Type      string `json:"type"`
		ProjectID string `json:"projectId"`
		Read      bool   `json:"read"`
		CreatedAt int64  `json:"createdAt"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &n))
	assert.Equal(t, alice.ID, n.UserID)
	assert.Equal(t, "added_to_project", n.Type)
	assert.Equal(t, projectID, n.ProjectID)
	assert.False(t, n.Read)
	assert.Greater(t, n.CreatedAt, int64(1_000_000_000_000))

	status, _ = s.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/tasks", bob.Token, map[string]string{"title": "Write docs"})
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, "notification", read(t, conn).Type)
	f = read(t, conn)
	require.Equal(t, "task_created", f.Type)
	var created struct {
		ProjectID string `json:"projectId"`
		Task      struct {
			Title string `json:"title"`
		} `json:"task"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &created))
	assert.Equal(t, projectID, created.ProjectID)
	assert.Equal(t, "Write docs", created.Task.Title)

	send(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, "pong", read(t, conn).Type)
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")

	conn := s.dial(t)
	send(t, conn, map[string]string{"type": "auth", "token": alice.Token})
	require.Equal(t, "auth_success", read(t, conn).Type)
	assert.Equal(t, 1, s.hub.Stats().Channels)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return s.hub.Stats().Channels == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestHTTP_Errors(t *testing.T) {
	s := newTestServer(t)
	bob := s.register(t, "bob")
	eve := s.register(t, "eve")

	status, env := s.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)

	status, _ = s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "bob", "email": "bob@example.com", "password": "password",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "bob@example.com", "password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodPost, "/api/v1/projects", bob.Token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/projects", bob.Token, map[string]string{"name": "Launch"})
	projectID := s.id(t, env)

	status, _ = s.do(t, http.MethodGet, "/api/v1/projects/"+projectID, eve.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/members", bob.Token, map[string]string{"userId": "missing"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/tasks/missing", bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPut, "/api/v1/notifications/missing/read", bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/notifications?unread=maybe", bob.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHTTP_NotificationsAndPresence(t *testing.T) {
	s := newTestServer(t)
	bob := s.register(t, "bob")
	alice := s.register(t, "alice")

	_, env := s.do(t, http.MethodPost, "/api/v1/projects", bob.Token, map[string]string{"name": "Launch"})
	projectID := s.id(t, env)
	status, _ := s.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/members", bob.Token, map[string]string{"userId": alice.ID})
	require.Equal(t, http.StatusCreated, status)

	status, env = s.do(t, http.MethodGet, "/api/v1/notifications?unread=true", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	require.Equal(t, 1, env.Meta.Count)
	var list []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))

	status, _ = s.do(t, http.MethodPut, "/api/v1/notifications/"+list[0].ID+"/read", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)

	_, env = s.do(t, http.MethodGet, "/api/v1/notifications?unread=true", alice.Token, nil)
	assert.Equal(t, 0, env.Meta.Count)
	assert.JSONEq(t, `[]`, string(env.Data))

	// bob cannot read alice's notification
	status, _ = s.do(t, http.MethodPut, "/api/v1/notifications/"+list[0].ID+"/read", bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	conn := s.dial(t)
	send(t, conn, map[string]string{"type": "auth", "token": alice.Token})
	require.Equal(t, "auth_success", read(t, conn).Type)

	_, env = s.do(t, http.MethodGet, "/api/v1/projects/"+projectID+"/presence", bob.Token, nil)
	var presence struct {
		Online []string `json:"online"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &presence))
	assert.Equal(t, []string{alice.ID}, presence.Online)
}

func TestOpsRoutes(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.register(t, "bob")
	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "realm_ws_connected_channels")
}

func TestOriginChecker(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	assert.True(t, originChecker(nil)(req))

	check := originChecker([]string{"https://app.example.com"})
	assert.True(t, check(req), "requests without an origin are allowed")
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
