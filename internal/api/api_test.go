package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circlesync/internal/auth"
	"github.com/roach88/circlesync/internal/engine"
	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/schema"
	"github.com/roach88/circlesync/internal/store"
	"github.com/roach88/circlesync/internal/testutil"
)

const afterSetup = "2026-01-01T00:00:05.000000Z"

type testEnv struct {
	store   *store.Store
	tokens  *auth.Tokens
	handler http.Handler
}

// newTestEnv serves a fresh database with users u1, u2, u3 and circle c1
// where u1 is admin and u2 a member.
func newTestEnv(t *testing.T, opts Options, engineOpts ...engine.Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	engineOpts = append([]engine.Option{
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("id")),
	}, engineOpts...)
	eng, err := engine.New(ctx, s, engineOpts...)
	require.NoError(t, err)

	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := eng.CreateUser(ctx, ir.User{ID: id, Name: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
	_, err = eng.CreateCircle(ctx, ir.Circle{ID: "c1", Name: "Family"}, "u1")
	require.NoError(t, err)
	require.NoError(t, eng.AddMember(ctx, "c1", "u2", ir.RoleMember))

	tokens, err := auth.New([]byte("test-secret"), "circlesync")
	require.NoError(t, err)

	return &testEnv{
		store:   s,
		tokens:  tokens,
		handler: New(eng, tokens, schema.MustNew(), opts).Handler(),
	}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.tokens.Issue(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, target, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorBody {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decode[ErrorBody](t, w)
	assert.Equal(t, code, body.Error.Code)
	assert.NotEmpty(t, body.RequestID)
	return body
}

func pushBody(changes string) string {
	return `{"circleId":"c1","clientTimestamp":"2026-01-01T00:00:00Z","changes":[` + changes + `]}`
}

const createM1 = `{"entityType":"moment","entityId":"m1","action":"create","data":{"content":"hi"},"timestamp":"2026-01-01T00:00:00Z"}`

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	require.NoError(t, env.store.Close())
	w = env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, Options{})

	t.Run("missing header", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/sync/status", "", "")
		assertError(t, w, http.StatusUnauthorized, codeUnauthorized)
	})

	t.Run("malformed token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		assertError(t, w, http.StatusUnauthorized, codeInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		past := env.tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
		tok, err := past.Issue("u1", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		assertError(t, w, http.StatusUnauthorized, codeTokenExpired)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/sync/status", "ghost", "")
		assertError(t, w, http.StatusUnauthorized, codeUnauthorized)
	})

	t.Run("health is public", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/health", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestPushThenPull(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, http.MethodPost, "/sync/push", "u1", pushBody(createM1))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	push := decode[ir.PushResponse](t, w)
	assert.Equal(t, []ir.PushResult{{EntityID: "m1", Status: ir.StatusSuccess}}, push.Results)
	assert.Equal(t, 1, push.Processed)
	assert.Equal(t, "2026-01-01T00:00:06.000000Z", push.ServerTimestamp.String())

	w = env.do(t, http.MethodGet, "/sync/changes?circleId=c1&since="+afterSetup, "u2", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	pull := decode[ir.PullResponse](t, w)
	require.Len(t, pull.Changes, 1)
	assert.Equal(t, "m1", pull.Changes[0].EntityID)
	assert.Equal(t, ir.ActionCreate, pull.Changes[0].Action)
	assert.JSONEq(t, `{"content":"hi"}`, string(pull.Changes[0].Data))
	assert.False(t, pull.HasMore)
	assert.Equal(t, push.ServerTimestamp, pull.ServerTimestamp)

	// Caught up: the next page is empty.
	w = env.do(t, http.MethodGet, "/sync/changes?circleId=c1&since="+pull.ServerTimestamp.String(), "u2", "")
	require.Equal(t, http.StatusOK, w.Code)
	next := decode[ir.PullResponse](t, w)
	assert.Empty(t, next.Changes)
	assert.False(t, next.HasMore)
}

func TestPullFromStartIncludesMembership(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodPost, "/sync/push", "u1", pushBody(createM1))

	w := env.do(t, http.MethodGet, "/sync/changes?circleId=c1&limit=2", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	pull := decode[ir.PullResponse](t, w)
	require.Len(t, pull.Changes, 2)
	assert.Equal(t, ir.EntityMember, pull.Changes[0].EntityType)
	assert.Equal(t, "u1", pull.Changes[0].EntityID)
	assert.Equal(t, "u2", pull.Changes[1].EntityID)
	assert.True(t, pull.HasMore)
}

func TestPushNonAuthorDelete(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodPost, "/sync/push", "u1", pushBody(createM1))

	del := `{"entityType":"moment","entityId":"m1","action":"delete","timestamp":"2026-01-01T00:00:00Z"}`
	w := env.do(t, http.MethodPost, "/sync/push", "u2", pushBody(del))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	push := decode[ir.PushResponse](t, w)
	assert.Equal(t, []ir.PushResult{{EntityID: "m1", Status: ir.StatusError, Message: "Not authorized"}}, push.Results)
	assert.Equal(t, 1, push.Errors)

	w = env.do(t, http.MethodGet, "/sync/full?circleId=c1", "u2", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[ir.Snapshot](t, w)
	require.Len(t, snap.Moments, 1)
	assert.Nil(t, snap.Moments[0].DeletedAt)
}

func TestPushRejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid json", `{"circleId":`, http.StatusBadRequest, codeValidation},
		{"missing circle", `{"clientTimestamp":"2026-01-01T00:00:00Z","changes":[]}`, http.StatusBadRequest, codeValidation},
		{
			name:   "member entity type",
			body:   pushBody(`{"entityType":"member","entityId":"u2","action":"create","timestamp":"2026-01-01T00:00:00Z"}`),
			status: http.StatusBadRequest,
			code:   codeValidation,
		},
		{
			name:   "unknown action",
			body:   pushBody(`{"entityType":"moment","entityId":"m1","action":"upsert","timestamp":"2026-01-01T00:00:00Z"}`),
			status: http.StatusBadRequest,
			code:   codeValidation,
		},
	}

	env := newTestEnv(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/sync/push", "u1", tt.body)
			body := assertError(t, w, tt.status, tt.code)
			assert.NotEmpty(t, body.Error.Issues)
		})
	}
}

func TestPushBatchTooLarge(t *testing.T) {
	env := newTestEnv(t, Options{}, engine.WithMaxBatch(1))

	second := strings.Replace(createM1, `"m1"`, `"m2"`, 1)
	w := env.do(t, http.MethodPost, "/sync/push", "u1", pushBody(createM1+","+second))
	body := assertError(t, w, http.StatusBadRequest, codeValidation)
	assert.Contains(t, body.Error.Message, "too large")
}

func TestPushBodyLimit(t *testing.T) {
	env := newTestEnv(t, Options{MaxBodyBytes: 32})

	w := env.do(t, http.MethodPost, "/sync/push", "u1", pushBody(createM1))
	assertError(t, w, http.StatusRequestEntityTooLarge, codeInvalidInput)
}

func TestPullQueryValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, target := range []string{
		"/sync/changes",
		"/sync/changes?circleId=c1&since=yesterday",
		"/sync/changes?circleId=c1&limit=abc",
		"/sync/changes?circleId=c1&limit=0",
		"/sync/full",
	} {
		t.Run(target, func(t *testing.T) {
			w := env.do(t, http.MethodGet, target, "u1", "")
			assertError(t, w, http.StatusBadRequest, codeInvalidInput)
		})
	}
}

func TestNonMemberForbidden(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/sync/changes?circleId=c1", ""},
		{http.MethodGet, "/sync/full?circleId=c1", ""},
		{http.MethodPost, "/sync/push", pushBody(createM1)},
	} {
		t.Run(tc.target, func(t *testing.T) {
			w := env.do(t, tc.method, tc.target, "u3", tc.body)
			assertError(t, w, http.StatusForbidden, codeForbidden)
		})
	}
}

func TestFullSyncAndStatus(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodPost, "/sync/push", "u1", pushBody(createM1))

	w := env.do(t, http.MethodGet, "/sync/full?circleId=c1", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[ir.Snapshot](t, w)
	assert.Equal(t, "Family", snap.Circle.Name)
	assert.Len(t, snap.Members, 2)
	require.Len(t, snap.Moments, 1)
	assert.Equal(t, "hi", snap.Moments[0].Content)
	assert.Empty(t, snap.Letters)
	assert.Empty(t, snap.Comments)

	w = env.do(t, http.MethodGet, "/sync/status", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[ir.StatusResponse](t, w)
	require.Len(t, status.Circles, 1)
	assert.Equal(t, "c1", status.Circles[0].CircleID)
	require.NotNil(t, status.Circles[0].LastSync)
	assert.Equal(t, "2026-01-01T00:00:06.000000Z", status.Circles[0].LastSync.String())
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/sync/changes", nil)
	req.Header.Set("X-Request-Id", "req-42")
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u1"))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))
	body := decode[ErrorBody](t, w)
	assert.Equal(t, "req-42", body.RequestID)

	w = env.do(t, http.MethodGet, "/health", "", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, Options{})
	w := env.do(t, http.MethodGet, "/nope", "", "")
	assertError(t, w, http.StatusNotFound, codeNotFound)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Options{CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/sync/push", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/sync/push", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodPost, "/sync/push", "u1", pushBody(createM1))

	w := env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "circlesync_push_changes_total")
}
