package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledojo/progression-engine/internal/application/command"
	"github.com/ledojo/progression-engine/internal/application/query"
	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/skill"
	"github.com/ledojo/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/ledojo/progression-engine/internal/interface/http/handlers"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

const userID = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, checker handlers.HealthChecker) http.Handler {
	t.Helper()

	cfg, err := service.DefaultConfig()
	require.NoError(t, err)
	cfg.Clock = &timeutil.FixedClock{At: time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)}
	cfg.Source = fixedSource(0.1)
	cfg.Forest, err = skill.NewForest([]skill.Node{
		{ID: "cards", Name: "Cartes", PreUnlocked: true},
		{ID: "double_lift", Name: "Double Lift", Parent: "cards", Cost: 100},
	})
	require.NoError(t, err)

	store := memory.NewStore()
	engine := service.NewEngine(cfg, nil)
	runner := command.NewRunner(store, nil, nil)

	srv := NewServer(DefaultConfig(), Dependencies{
		InitializeUser:      command.NewInitializeUserHandler(runner, engine.Clock),
		CompleteSession:     command.NewCompleteSessionHandler(runner, engine),
		SpinWheel:           command.NewSpinWheelHandler(runner, engine),
		UnlockSkill:         command.NewUnlockSkillHandler(runner, engine),
		AddTrick:            command.NewAddTrickHandler(runner, engine),
		MarkTrickReady:      command.NewMarkTrickReadyHandler(runner, engine),
		RateConfidence:      command.NewRateConfidenceHandler(runner, engine),
		GetProgressionState: query.NewGetProgressionStateHandler(store, engine, nil, nil),
		GetXPHistory:        query.NewGetXPHistoryHandler(store),
		HealthChecker:       checker,
	})
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp JSONResponse
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func userPath(suffix string) string {
	return fmt.Sprintf("/api/v1/users/%s%s", userID, suffix)
}

func data(t *testing.T, resp JSONResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestInitializeUser_CreatedThenOK(t *testing.T) {
	h := newTestServer(t, nil)

	rec, resp := do(t, h, http.MethodPost, userPath("/init"), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, true, data(t, resp)["created"])

	rec, resp = do(t, h, http.MethodPost, userPath("/init"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, data(t, resp)["created"])
}

func TestUninitializedUserIs404(t *testing.T) {
	h := newTestServer(t, nil)

	rec, resp := do(t, h, http.MethodGet, userPath("/progression"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_initialized", resp.Error.Code)
}

func TestBadUserIDIs400(t *testing.T) {
	h := newTestServer(t, nil)

	rec, resp := do(t, h, http.MethodPost, "/api/v1/users/not-a-uuid/init", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Code)
}

func TestCompleteSessionAndState(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, userPath("/init"), nil)

	rec, resp := do(t, h, http.MethodPost, userPath("/sessions"), map[string]interface{}{
		"trickId":         "ambitious-card",
		"durationSeconds": 45,
		"stepCount":       4,
		"completedSteps":  []string{"technique", "script", "video", "practice"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := data(t, resp)
	assert.EqualValues(t, 150, d["xpEarned"])
	assert.EqualValues(t, 350, d["totalXp"])
	assert.Equal(t, false, d["antiCheatDenied"])

	rec, resp = do(t, h, http.MethodGet, userPath("/progression"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d = data(t, resp)
	assert.EqualValues(t, 350, d["totalXp"])
	assert.EqualValues(t, 2, d["level"])
	assert.EqualValues(t, 1, d["currentStreak"])

	rec, resp = do(t, h, http.MethodGet, userPath("/xp-history?limit=2"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, entries, 2)
}

func TestCompleteSession_StepIndicesCountAsSteps(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, userPath("/init"), nil)

	rec, resp := do(t, h, http.MethodPost, userPath("/sessions"), map[string]interface{}{
		"trickId":         "ambitious-card",
		"durationSeconds": 45,
		"stepCount":       4,
		"completedSteps":  []int{0, 1, 2, 3},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := data(t, resp)
	assert.EqualValues(t, 150, d["xpEarned"])
}

func TestCompleteSession_ShortSessionIsDeniedNotRejected(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, userPath("/init"), nil)

	rec, resp := do(t, h, http.MethodPost, userPath("/sessions"), map[string]interface{}{
		"trickId": "french-drop", "durationSeconds": 12,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, resp)
	assert.Equal(t, true, d["antiCheatDenied"])
	assert.EqualValues(t, 0, d["xpEarned"])
}

func TestCompleteSession_BodyValidation(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, userPath("/init"), nil)

	rec, _ := do(t, h, http.MethodPost, userPath("/sessions"), map[string]interface{}{"trickId": "french-drop"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, userPath("/sessions"), map[string]interface{}{
		"trickId": "french-drop", "durationSeconds": -3,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, userPath("/sessions"), bytes.NewBufferString("{broken"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpinWheel_NoSpinsIs409(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, userPath("/init"), nil)

	rec, resp := do(t, h, http.MethodPost, userPath("/wheel/spin"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "insufficient_resource", resp.Error.Code)
	assert.Equal(t, "no wheel spins available", resp.Error.Message)
}

func TestSpinWheel_AfterFiveSessions(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, userPath("/init"), nil)
	for i := 0; i < 5; i++ {
		rec, _ := do(t, h, http.MethodPost, userPath("/sessions"), map[string]interface{}{
			"trickId": "french-drop", "durationSeconds": 60,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := do(t, h, http.MethodPost, userPath("/wheel/spin"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := data(t, resp)
	assert.EqualValues(t, 0, d["winnerIndex"])
	assert.EqualValues(t, 0, d["remainingSpins"])
	reward, ok := d["reward"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "xp", reward["type"])
}

func TestUnlockSkill_StatusMapping(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, userPath("/init"), nil)

	rec, resp := do(t, h, http.MethodPost, userPath("/skills/double_lift/unlock"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_resource", resp.Error.Code)

	rec, resp = do(t, h, http.MethodPost, userPath("/skills/levitation/unlock"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", resp.Error.Code)

	// 50 session + 50 first_session
	do(t, h, http.MethodPost, userPath("/sessions"), map[string]interface{}{
		"trickId": "french-drop", "durationSeconds": 60,
	})

	rec, resp = do(t, h, http.MethodPost, userPath("/skills/double_lift/unlock"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, resp)
	assert.Equal(t, true, d["success"])
	assert.Equal(t, false, d["alreadyUnlocked"])
	assert.EqualValues(t, 0, d["totalXp"])

	rec, resp = do(t, h, http.MethodPost, userPath("/skills/double_lift/unlock"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d = data(t, resp)
	assert.Equal(t, true, d["success"])
	assert.Equal(t, true, d["alreadyUnlocked"])
}

func TestLibraryEndpoints(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, userPath("/init"), nil)

	rec, resp := do(t, h, http.MethodPost, userPath("/tricks/triumph"), map[string]string{"category": "cards"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []interface{}{"first_trick"}, data(t, resp)["achievements"])

	rec, resp = do(t, h, http.MethodPost, userPath("/tricks/triumph"), map[string]string{"category": "cards"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, data(t, resp)["alreadyInLibrary"])

	rec, resp = do(t, h, http.MethodPost, userPath("/tricks/triumph/ready"), map[string]string{"category": "cards"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 200, data(t, resp)["xpEarned"])

	rec, resp = do(t, h, http.MethodPost, userPath("/tricks/triumph/ready"), map[string]string{"category": "cards"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, data(t, resp)["alreadyReady"])

	rec, _ = do(t, h, http.MethodPost, userPath("/tricks/triumph/confidence"), map[string]int{"rating": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = do(t, h, http.MethodPost, userPath("/tricks/triumph/confidence"), map[string]interface{}{
		"rating": 8, "context": "close-up",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 15, data(t, resp)["xpEarned"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, userPath("/init"), nil)
	req.Header.Set(handlers.RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get(handlers.RequestIDHeader))
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-abc", resp.RequestID)

	rec, _ = do(t, h, http.MethodGet, "/live", nil)
	assert.NotEmpty(t, rec.Header().Get(handlers.RequestIDHeader))
}

func TestHealth(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	h := newTestServer(t, checker)

	rec, _ := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec, _ = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Healthy)
	assert.True(t, status.Checks["postgres"].Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
	assert.Equal(t, "Some checks failed: redis", status.Message)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		shared.ErrInvalidRating:                                    http.StatusBadRequest,
		shared.ErrProfileNotInitialized:                            http.StatusNotFound,
		shared.ErrSkillNotFound:                                    http.StatusNotFound,
		shared.ErrSkillInsufficientXP:                              http.StatusConflict,
		shared.ErrSkillPrerequisite:                                http.StatusConflict,
		shared.StorageError("ledger", "Credit", errors.New("eof")): http.StatusInternalServerError,
		fmt.Errorf("wrapped: %w", context.DeadlineExceeded):       http.StatusGatewayTimeout,
	}
	for err, want := range cases {
		got, _ := statusFor(err)
		assert.Equal(t, want, got, err.Error())
	}
}

func TestNoRoute(t *testing.T) {
	h := newTestServer(t, nil)
	rec, resp := do(t, h, http.MethodGet, "/api/v2/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}
