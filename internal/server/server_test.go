package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"researchtools/internal/auth"
	"researchtools/internal/config"
	"researchtools/internal/embedding"
	"researchtools/internal/framework"
	"researchtools/internal/inference"
	"researchtools/internal/research"
	"researchtools/internal/search"
	"researchtools/internal/store"
	"researchtools/internal/websocket"
)

type loginRecorder struct {
	methods []string
}

func (l *loginRecorder) UserLoggedIn(_ context.Context, _ string, method string) {
	l.methods = append(l.methods, method)
}

type harness struct {
	srv    *Server
	ts     *httptest.Server
	db     *store.DB
	auth   *auth.AuthService
	jobs   *research.JobManager
	logins *loginRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithGenerator(t, nil)
}

// newHarnessWithGenerator backs the AI service with gen; nil leaves it unconfigured.
func newHarnessWithGenerator(t *testing.T, gen inference.TextGenerator) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		ServerPort: 0,
		CORSOrigin: "*",
		Auth: config.AuthConfig{
			JWTSecret:      "test-jwt-secret-with-enough-length",
			SessionSecret:  "test-session-secret-32-bytes-long",
			AccessTokenTTL: time.Hour,
			HashAuthDelay:  time.Millisecond,
			AccountHashTTL: time.Hour,
		},
		Research: config.ResearchConfig{FetchTimeout: 2 * time.Second, MaxScrapePages: 3, UserAgent: "test"},
	}

	logger := zap.NewNop()
	ai := inference.NewService(gen, "", logger, inference.WithTokenCounter(inference.HeuristicTokens))
	em := embedding.NewEmbeddingManager(embedding.Config{Dimensions: 64}, logger)
	index, err := search.NewIndex("", em.ChromemFunc(), logger)
	require.NoError(t, err)

	authService := auth.NewAuthService(db, cfg.Auth, logger)
	tools := research.NewService(db, ai, cfg.Research, logger)
	wsm := websocket.NewWebSocketManager("*", logger)
	jobs := research.NewJobManager(tools, db, wsm, 0, logger)
	t.Cleanup(jobs.Stop)
	logins := &loginRecorder{}

	srv := NewServer(Deps{
		Config:     cfg,
		DB:         db,
		Auth:       authService,
		Frameworks: framework.NewService(db, ai, logger, index),
		AI:         ai,
		Research:   tools,
		Jobs:       jobs,
		Search:     index,
		WS:         wsm,
		Logins:     logins,
	}, logger)
	srv.collect = func(context.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"cpu": 12.5}, nil
	}
	t.Cleanup(srv.limiter.Stop)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{srv: srv, ts: ts, db: db, auth: authService, jobs: jobs, logins: logins}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string                 `json:"message"`
		Code    string                 `json:"code"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, h.ts.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.send(t, req)
}

func (h *harness) send(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		json.Unmarshal(raw, &env)
	}
	return resp, env
}

// userToken creates a user with role directly in the store
func (h *harness) userToken(t *testing.T, role auth.Role) string {
	t.Helper()
	u := &store.User{
		ID:        uuid.NewString(),
		Username:  string(role) + "-" + uuid.NewString()[:8],
		Email:     uuid.NewString()[:8] + "@example.com",
		Role:      string(role),
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, h.db.CreateUser(context.Background(), u))
	token, err := h.auth.GenerateJWT(u)
	require.NoError(t, err)
	return token
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp, env := h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeData(t, env, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["ai_available"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestPreflightAnsweredBeforeRouting(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodOptions, h.ts.URL+"/api/v1/frameworks/swot", nil)
	require.NoError(t, err)
	resp, _ := h.send(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/v1/frameworks", "/api/v1/jobs", "/api/v1/auth/me"} {
		resp, env := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		require.NotNil(t, env.Error, path)
		assert.Equal(t, "could not validate credentials", env.Error.Message)
	}

	resp, _ := h.do(t, http.MethodGet, "/api/v1/frameworks", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterLoginAndMe(t *testing.T) {
	h := newHarness(t)

	resp, env := h.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "jdoe", "email": "jdoe@example.com", "password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "jdoe", "email": "jdoe@example.com", "password": "correct horse battery",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	form := url.Values{"username": {"jdoe"}, "password": {"wrong password"}}
	req, _ := http.NewRequest(http.MethodPost, h.ts.URL+"/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, _ = h.send(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	form.Set("password", "correct horse battery")
	req, _ = http.NewRequest(http.MethodPost, h.ts.URL+"/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, env = h.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Cookies(), "login starts a cookie session")

	var token auth.Token
	decodeData(t, env, &token)
	assert.Equal(t, "bearer", strings.ToLower(token.TokenType))
	assert.Equal(t, []string{"password"}, h.logins.methods)

	resp, env = h.do(t, http.MethodGet, "/api/v1/auth/me", token.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		User         store.User      `json:"user"`
		Capabilities map[string]bool `json:"capabilities"`
	}
	decodeData(t, env, &me)
	assert.Equal(t, "jdoe", me.User.Username)
	assert.True(t, me.Capabilities["create_frameworks"])
	assert.False(t, me.Capabilities["admin"])
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		body  map[string]string
		code  string
		field string
	}{
		{"short username", map[string]string{"username": "jd", "email": "jd@example.com", "password": "long enough"}, "VALIDATION_FAILED", "username"},
		{"bad email", map[string]string{"username": "jdoe", "email": "nope", "password": "long enough"}, "VALIDATION_FAILED", "email"},
		{"short password", map[string]string{"username": "jdoe", "email": "jd@example.com", "password": "short"}, "VALIDATION_FAILED", "password"},
		{"unknown role", map[string]string{"username": "jdoe", "email": "jd@example.com", "password": "long enough", "role": "wizard"}, "INVALID_CHOICE", "role"},
		{"admin role", map[string]string{"username": "jdoe", "email": "jd@example.com", "password": "long enough", "role": "admin"}, "INVALID_CHOICE", "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := h.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, tt.field, env.Error.Details["field"])
			if tt.code == "INVALID_CHOICE" {
				assert.ElementsMatch(t, []interface{}{"analyst", "researcher", "viewer"}, env.Error.Details["allowed"])
			}
		})
	}
}

func TestLoginRejectsJSONBody(t *testing.T) {
	h := newHarness(t)
	resp, env := h.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", env.Error.Code)
}

func TestHashRegisterLoginRotate(t *testing.T) {
	h := newHarness(t)

	resp, env := h.do(t, http.MethodPost, "/api/v1/auth/hash/register", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var reg auth.HashRegistration
	decodeData(t, env, &reg)
	require.Len(t, reg.AccountHash, 16)

	resp, env = h.do(t, http.MethodPost, "/api/v1/auth/hash/login", "", map[string]string{"account_hash": reg.AccountHash})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var token auth.Token
	decodeData(t, env, &token)

	resp, env = h.do(t, http.MethodPost, "/api/v1/auth/hash/rotate", token.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated auth.HashRegistration
	decodeData(t, env, &rotated)
	assert.NotEqual(t, reg.AccountHash, rotated.AccountHash)

	for _, hash := range []string{reg.AccountHash, "12345", "abcdefghijklmnop"} {
		resp, env = h.do(t, http.MethodPost, "/api/v1/auth/hash/login", "", map[string]string{"account_hash": hash})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, hash)
		require.NotNil(t, env.Error)
		assert.Equal(t, "could not validate credentials", env.Error.Message)
	}
	assert.Equal(t, []string{"account_hash"}, h.logins.methods)
}

func TestFrameworkSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	token := h.userToken(t, auth.RoleAnalyst)

	resp, env := h.do(t, http.MethodPost, "/api/v1/frameworks/swot", token, map[string]interface{}{
		"title": "Port study",
		"data":  map[string]interface{}{"objective": "assess", "strengths": []string{"deep water harbour"}},
		"tags":  []string{"ports"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)
	var sess struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
		Status  string `json:"status"`
	}
	decodeData(t, env, &sess)
	assert.Equal(t, 1, sess.Version)
	assert.Equal(t, "draft", sess.Status)
	base := "/api/v1/frameworks/swot/" + sess.ID

	resp, _ = h.do(t, http.MethodGet, base, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/frameworks/cog/"+sess.ID, token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "session belongs to another framework")

	resp, env = h.do(t, http.MethodPut, base, token, map[string]interface{}{
		"status": "in_progress",
		"data":   map[string]interface{}{"threats": []string{"storm season"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	decodeData(t, env, &sess)
	assert.Equal(t, 2, sess.Version)
	assert.Equal(t, "in_progress", sess.Status)

	resp, env = h.do(t, http.MethodPost, base+"/sections/weaknesses", token, "single rail line")
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)

	resp, env = h.do(t, http.MethodPost, base+"/sections/nonsense", token, "x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = h.do(t, http.MethodGet, "/api/v1/frameworks/swot?status=in_progress", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]interface{}
	decodeData(t, env, &list)
	assert.Len(t, list, 1)

	resp, env = h.do(t, http.MethodGet, "/api/v1/search?q=harbour", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found struct {
		Results []search.Hit `json:"results"`
	}
	decodeData(t, env, &found)
	require.NotEmpty(t, found.Results)
	assert.Equal(t, sess.ID, found.Results[0].SessionID)

	resp, _ = h.do(t, http.MethodDelete, base, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, env = h.do(t, http.MethodGet, base, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RESOURCE_NOT_FOUND", env.Error.Code)
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	h := newHarness(t)
	alice := h.userToken(t, auth.RoleAnalyst)
	bob := h.userToken(t, auth.RoleAnalyst)

	_, env := h.do(t, http.MethodPost, "/api/v1/frameworks/swot", alice, map[string]interface{}{"title": "Private"})
	var sess struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &sess)

	resp, _ := h.do(t, http.MethodGet, "/api/v1/frameworks/swot/"+sess.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidChoicesNameTheAllowedSet(t *testing.T) {
	h := newHarness(t)
	token := h.userToken(t, auth.RoleAnalyst)

	resp, env := h.do(t, http.MethodGet, "/api/v1/frameworks/astrology", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_CHOICE", env.Error.Code)
	assert.Contains(t, env.Error.Details["allowed"], "swot")

	_, env = h.do(t, http.MethodPost, "/api/v1/frameworks/swot", token, map[string]interface{}{"title": "T"})
	var sess struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &sess)

	resp, env = h.do(t, http.MethodPost, "/api/v1/frameworks/swot/"+sess.ID+"/export", token, map[string]string{"format": "xls"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_CHOICE", env.Error.Code)
	assert.Contains(t, env.Error.Details["allowed"], "pdf")
}

func TestValidationErrorOnMalformedData(t *testing.T) {
	h := newHarness(t)
	token := h.userToken(t, auth.RoleAnalyst)

	resp, env := h.do(t, http.MethodPost, "/api/v1/frameworks/swot", token, map[string]interface{}{
		"title": "Bad",
		"data":  map[string]interface{}{"strengths": "not a list"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/frameworks/swot", token, map[string]interface{}{"title": "", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportAndDownload(t *testing.T) {
	h := newHarness(t)
	token := h.userToken(t, auth.RoleResearcher)

	_, env := h.do(t, http.MethodPost, "/api/v1/frameworks/swot", token, map[string]interface{}{
		"title": "Exported",
		"data":  map[string]interface{}{"strengths": []string{"talent"}},
	})
	var sess struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &sess)

	for _, tt := range []struct {
		format      string
		status      int
		contentType string
	}{
		{"json", http.StatusOK, "application/json"},
		{"markdown", http.StatusOK, "text/markdown; charset=utf-8"},
		{"pdf", http.StatusNotImplemented, "application/json"},
	} {
		t.Run(tt.format, func(t *testing.T) {
			resp, env := h.do(t, http.MethodPost, "/api/v1/frameworks/swot/"+sess.ID+"/export", token, map[string]string{"format": tt.format})
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var res framework.ExportResult
			decodeData(t, env, &res)
			assert.Equal(t, "/api/v1/downloads/swot_"+sess.ID+"."+tt.format, res.DownloadURL)

			resp, _ = h.do(t, http.MethodGet, res.DownloadURL, token, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
		})
	}
}

func TestCapabilities(t *testing.T) {
	h := newHarness(t)
	viewer := h.userToken(t, auth.RoleViewer)
	analyst := h.userToken(t, auth.RoleAnalyst)
	admin := h.userToken(t, auth.RoleAdmin)

	resp, env := h.do(t, http.MethodPost, "/api/v1/frameworks/swot", viewer, map[string]interface{}{"title": "T"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotNil(t, env.Error)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/frameworks", viewer, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/system/metrics", analyst, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env = h.do(t, http.MethodGet, "/api/v1/system/metrics", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var metrics struct {
		System  map[string]interface{} `json:"system"`
		Service map[string]interface{} `json:"service"`
	}
	decodeData(t, env, &metrics)
	assert.Equal(t, 12.5, metrics.System["cpu"])
	assert.Contains(t, metrics.Service, "active_jobs")
}

func TestAnalyzeWithoutProviderIsUnavailable(t *testing.T) {
	h := newHarness(t)
	token := h.userToken(t, auth.RoleAnalyst)

	_, env := h.do(t, http.MethodPost, "/api/v1/frameworks/swot", token, map[string]interface{}{"title": "T"})
	var sess struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &sess)

	resp, _ := h.do(t, http.MethodPost, "/api/v1/frameworks/swot/"+sess.ID+"/analyze", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAIHelpersReturnPlaceholders(t *testing.T) {
	h := newHarness(t)
	token := h.userToken(t, auth.RoleAnalyst)

	resp, env := h.do(t, http.MethodPost, "/api/v1/ai/5w", token, map[string]string{"content": "A ship docked."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fiveW map[string]string
	decodeData(t, env, &fiveW)
	assert.Equal(t, inference.UnavailableText, fiveW["who"])
	assert.Len(t, fiveW, 5)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/ai/5w", token, map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type failingGenerator struct{}

func (failingGenerator) GenerateText(context.Context, string) (string, error) {
	return "", errors.New("upstream 502")
}

func TestAIHelpersDegradeWhenProviderFails(t *testing.T) {
	h := newHarnessWithGenerator(t, failingGenerator{})
	token := h.userToken(t, auth.RoleAnalyst)

	resp, env := h.do(t, http.MethodPost, "/api/v1/ai/5w", token, map[string]string{"content": "A ship docked."})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	var fiveW map[string]string
	decodeData(t, env, &fiveW)
	assert.Equal(t, inference.FailedText, fiveW["why"])

	resp, env = h.do(t, http.MethodPost, "/api/v1/ai/summarize", token, map[string]string{"content": "A ship docked."})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	var sum inference.Summary
	decodeData(t, env, &sum)
	assert.Equal(t, inference.FailedText, sum.Summary)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/ai/dime", token, map[string]string{"scenario": "Blockade"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/api/v1/ai/starbursting", token, map[string]string{"topic": "Blockade"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatelessCauseWayGraph(t *testing.T) {
	h := newHarness(t)
	token := h.userToken(t, auth.RoleViewer)

	tree := json.RawMessage(`{"Influence": {"capabilities": {"Naval": {"requirements": {"Port": {"potential_ptars": ["Harbor A"]}}}}}}`)
	resp, env := h.do(t, http.MethodPost, "/api/v1/causeway/graph", token, map[string]interface{}{"tree": tree})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	var out struct {
		Graph struct {
			Nodes []map[string]interface{} `json:"nodes"`
			Edges []map[string]interface{} `json:"edges"`
		} `json:"graph"`
	}
	decodeData(t, env, &out)
	assert.Len(t, out.Graph.Nodes, 4)
	assert.Len(t, out.Graph.Edges, 3)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/causeway/graph", token, map[string]interface{}{"tree": []int{1}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobsSubmitAndCancel(t *testing.T) {
	h := newHarness(t)
	token := h.userToken(t, auth.RoleResearcher)

	resp, env := h.do(t, http.MethodPost, "/api/v1/jobs", token, map[string]interface{}{
		"job_type":   "social_media",
		"input_data": map[string]interface{}{"urls": []string{"https://twitter.com/example/status/1"}},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, env.Error)
	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeData(t, env, &job)
	h.jobs.Wait()

	resp, env = h.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeData(t, env, &job)
	assert.Equal(t, research.JobCompleted, job.Status)

	resp, env = h.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/cancel", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "JOB_FINISHED", env.Error.Code)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/jobs", token, map[string]interface{}{
		"job_type": "mining", "input_data": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	defer rl.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "limits are per client")

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"), "window resets")

	now = now.Add(5 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}
