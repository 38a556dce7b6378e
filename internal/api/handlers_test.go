package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/pillbridge-verify/internal/assistant"
	"github.com/kuitang/pillbridge-verify/internal/auth"
	"github.com/kuitang/pillbridge-verify/internal/db"
	"github.com/kuitang/pillbridge-verify/internal/ratelimit"
)

type testServer struct {
	url string
}

func newTestServer(t *testing.T, limit ratelimit.Config) *testServer {
	t.Helper()
	store, err := db.Open(context.Background(), db.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	limiter := ratelimit.NewRateLimiter(limit)
	t.Cleanup(limiter.Stop)

	h := NewHandler(
		auth.NewUserService(store, auth.FakeInsecureHasher{}, nil),
		auth.NewSessionService(store, nil),
		assistant.NewService(store, assistant.CannedResponder{}),
		limiter,
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL}
}

// client returns a browser-like client with its own cookie jar.
func (s *testServer) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func do(t *testing.T, c *http.Client, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func register(t *testing.T, s *testServer, c *http.Client, req RegisterRequest) UserView {
	t.Helper()
	var resp UserResponse
	status := do(t, c, http.MethodPost, s.url+"/api/users/register", req, &resp)
	require.Equal(t, http.StatusCreated, status)
	return resp.User
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, ratelimit.DefaultConfig)
	var body map[string]string
	assert.Equal(t, http.StatusOK, do(t, s.client(t), http.MethodGet, s.url+"/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCaregiverPatientChatFlow(t *testing.T) {
	s := newTestServer(t, ratelimit.DefaultConfig)

	cgClient := s.client(t)
	cg := register(t, s, cgClient, RegisterRequest{
		Email: "caregiver@test.com", Password: "password123", FullName: "Test Caregiver", Role: "caregiver",
	})
	assert.Equal(t, "caregiver", cg.Role)
	assert.Len(t, cg.CaregiverCode, auth.CaregiverCodeLength)

	var me UserResponse
	require.Equal(t, http.StatusOK, do(t, cgClient, http.MethodGet, s.url+"/api/users/me", nil, &me))
	assert.Equal(t, cg.ID, me.User.ID)

	p := register(t, s, s.client(t), RegisterRequest{
		Email: "patient@test.com", Password: "password123", FullName: "Test Patient",
		Role: "patient", CaregiverCode: cg.CaregiverCode,
	})
	assert.Equal(t, cg.ID, p.LinkedCaregiverID)

	// Fresh browser: sign in again.
	c := s.client(t)
	var login UserResponse
	require.Equal(t, http.StatusOK, do(t, c, http.MethodPost, s.url+"/api/users/login",
		LoginRequest{Email: "caregiver@test.com", Password: "password123"}, &login))
	assert.Equal(t, cg.CaregiverCode, login.User.CaregiverCode)

	var patients map[string][]UserView
	require.Equal(t, http.StatusOK, do(t, c, http.MethodGet, s.url+"/api/users/patients/"+cg.ID, nil, &patients))
	require.Len(t, patients["patients"], 1)
	assert.Equal(t, "Test Patient", patients["patients"][0].FullName)

	var chat ChatResponse
	require.Equal(t, http.StatusOK, do(t, c, http.MethodPost, s.url+"/api/ai/chat",
		ChatRequest{PatientID: p.ID, Prompt: "Is the patient taking Paracetamol?"}, &chat))
	assert.NotEmpty(t, chat.Response)
	assert.Contains(t, chat.HTML, "<strong>Paracetamol</strong>")

	var history []MessageView
	require.Equal(t, http.StatusOK, do(t, c, http.MethodGet, s.url+"/api/ai/chat/"+p.ID, nil, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Sender)
	assert.Equal(t, "ai", history[1].Sender)
	assert.Equal(t, chat.Response, history[1].Content)

	var out map[string]bool
	require.Equal(t, http.StatusOK, do(t, c, http.MethodPost, s.url+"/api/users/logout", nil, &out))
	assert.Equal(t, http.StatusUnauthorized, do(t, c, http.MethodGet, s.url+"/api/users/me", nil, nil))
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t, ratelimit.DefaultConfig)
	c := s.client(t)

	var e ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, c, http.MethodPost, s.url+"/api/users/register",
		RegisterRequest{Email: "a@test.com"}, &e))
	assert.Equal(t, auth.MsgMissingFields, e.Error)

	register(t, s, c, RegisterRequest{Email: "a@test.com", Password: "pw", FullName: "A", Role: "caregiver"})
	assert.Equal(t, http.StatusBadRequest, do(t, c, http.MethodPost, s.url+"/api/users/register",
		RegisterRequest{Email: "a@test.com", Password: "pw", FullName: "A", Role: "caregiver"}, &e))
	assert.Equal(t, auth.MsgEmailRegistered, e.Error)

	req, err := http.NewRequest(http.MethodPost, s.url+"/api/users/register", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginErrors(t *testing.T) {
	s := newTestServer(t, ratelimit.DefaultConfig)
	c := s.client(t)
	register(t, s, c, RegisterRequest{Email: "a@test.com", Password: "pw", FullName: "A", Role: "caregiver"})

	var e ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, c, http.MethodPost, s.url+"/api/users/login",
		LoginRequest{Email: "b@test.com", Password: "pw"}, &e))
	assert.Equal(t, auth.MsgUserNotFound, e.Error)
	assert.Equal(t, http.StatusBadRequest, do(t, c, http.MethodPost, s.url+"/api/users/login",
		LoginRequest{Email: "a@test.com", Password: "nope"}, &e))
	assert.Equal(t, auth.MsgInvalidPassword, e.Error)
}

func TestAccessControl(t *testing.T) {
	s := newTestServer(t, ratelimit.DefaultConfig)

	anon := s.client(t)
	assert.Equal(t, http.StatusUnauthorized, do(t, anon, http.MethodGet, s.url+"/api/users/patients/x", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, do(t, anon, http.MethodPost, s.url+"/api/ai/chat",
		ChatRequest{PatientID: "x", Prompt: "q"}, nil))

	a := s.client(t)
	cgA := register(t, s, a, RegisterRequest{Email: "a@test.com", Password: "pw", FullName: "A", Role: "caregiver"})
	b := s.client(t)
	cgB := register(t, s, b, RegisterRequest{Email: "b@test.com", Password: "pw", FullName: "B", Role: "caregiver"})
	pc := s.client(t)
	p := register(t, s, pc, RegisterRequest{
		Email: "p@test.com", Password: "pw", FullName: "P", Role: "patient", CaregiverCode: cgA.CaregiverCode,
	})

	assert.Equal(t, http.StatusForbidden, do(t, b, http.MethodGet, s.url+"/api/users/patients/"+cgA.ID, nil, nil))
	assert.Equal(t, http.StatusForbidden, do(t, pc, http.MethodGet, s.url+"/api/users/patients/"+cgA.ID, nil, nil))
	assert.Equal(t, http.StatusForbidden, do(t, b, http.MethodPost, s.url+"/api/ai/chat",
		ChatRequest{PatientID: p.ID, Prompt: "q"}, nil))
	assert.Equal(t, http.StatusForbidden, do(t, b, http.MethodGet, s.url+"/api/ai/chat/"+p.ID, nil, nil))

	var e ErrorResponse
	assert.Equal(t, http.StatusNotFound, do(t, a, http.MethodPost, s.url+"/api/ai/chat",
		ChatRequest{PatientID: cgB.ID, Prompt: "q"}, &e))
	assert.Equal(t, assistant.MsgPatientNotFound, e.Error)
	assert.Equal(t, http.StatusBadRequest, do(t, a, http.MethodPost, s.url+"/api/ai/chat",
		ChatRequest{PatientID: p.ID}, &e))
	assert.Equal(t, assistant.MsgMissingFields, e.Error)
}

func TestChatRateLimit(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{RPS: 0.001, Burst: 2})
	c := s.client(t)
	cg := register(t, s, c, RegisterRequest{Email: "a@test.com", Password: "pw", FullName: "A", Role: "caregiver"})
	p := register(t, s, s.client(t), RegisterRequest{
		Email: "p@test.com", Password: "pw", FullName: "P", Role: "patient", CaregiverCode: cg.CaregiverCode,
	})

	req := ChatRequest{PatientID: p.ID, Prompt: "hello"}
	assert.Equal(t, http.StatusOK, do(t, c, http.MethodPost, s.url+"/api/ai/chat", req, nil))
	assert.Equal(t, http.StatusOK, do(t, c, http.MethodPost, s.url+"/api/ai/chat", req, nil))
	assert.Equal(t, http.StatusTooManyRequests, do(t, c, http.MethodPost, s.url+"/api/ai/chat", req, nil))
}
