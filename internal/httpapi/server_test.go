package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"dev.synaq.judge/internal/broadcast"
	"dev.synaq.judge/internal/config"
	"dev.synaq.judge/internal/contest"
	"dev.synaq.judge/internal/dispatch"
	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/sandbox"
	"dev.synaq.judge/internal/store"
)

type gatedRunner struct {
	gate chan struct{}
}

func (r *gatedRunner) Run(ctx context.Context, req sandbox.Request) (*sandbox.Report, error) {
	select {
	case <-r.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	results := make([]sandbox.TestResult, len(req.Tests))
	for i := range req.Tests {
		results[i] = sandbox.TestResult{TestNum: i + 1, Verdict: models.VerdictAccepted}
	}
	return &sandbox.Report{Results: results}, nil
}

type testEnv struct {
	srv      *Server
	mgr      *contest.Manager
	store    *store.Store
	runner   *gatedRunner
	taskID   int
	gateOnce sync.Once
}

// openGate releases the runner so queued submissions judge immediately.
func (e *testEnv) openGate() {
	e.gateOnce.Do(func() { close(e.runner.gate) })
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pw"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.SecretKey = "test-secret"
	cfg.AdminPasswordHash = string(hash)

	st, err := store.Open(filepath.Join(t.TempDir(), "judge.db"), logger)
	require.NoError(t, err)

	taskID, err := st.AddTask(&models.Task{Title: "Sum"})
	require.NoError(t, err)
	_, err = st.AddTest(&models.Test{TaskID: taskID, Input: "1 2", ExpectedOutput: "3", TimeLimit: 1})
	require.NoError(t, err)

	runner := &gatedRunner{gate: make(chan struct{})}
	mgr := contest.New(st, logger)
	hub := broadcast.NewHub(mgr, logger)
	disp := dispatch.New(2, runner, mgr, st, hub, logger)
	disp.Start(context.Background())

	env := &testEnv{
		srv:    New(cfg, mgr, disp, hub, st, runner, logger),
		mgr:    mgr,
		store:  st,
		runner: runner,
		taskID: taskID,
	}
	t.Cleanup(func() {
		env.openGate()
		disp.Stop()
		st.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "admin-pw"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	return decodeBody(t, w)["token"].(string)
}

func TestAdminLogin(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := e.adminToken(t)
	assert.NotEmpty(t, token)

	// Admin routes reject missing and garbage tokens.
	w = e.do(t, http.MethodGet, "/api/admin/tasks", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(t, http.MethodGet, "/api/admin/tasks", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodGet, "/api/admin/tasks", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestContestLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	token := e.adminToken(t)

	w := e.do(t, http.MethodPost, "/api/admin/contests", map[string]any{
		"name":      "HTTP Round",
		"task_ids":  []int{e.taskID},
		"start_now": true,
	}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	contestID := decodeBody(t, w)["contest_id"].(string)

	w = e.do(t, http.MethodPost, "/api/contests/"+contestID+"/join",
		map[string]string{"nickname": "alice"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	pid := decodeBody(t, w)["participant_id"].(string)
	require.NotEmpty(t, pid)

	w = e.do(t, http.MethodGet, "/api/contests/"+contestID+"/scoreboard", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	board := decodeBody(t, w)
	assert.NotNil(t, board["remaining_seconds"])
}

func TestSubmitContract(t *testing.T) {
	e := newTestEnv(t)
	c, err := e.mgr.Create("Round", []int{e.taskID}, models.ContestConfig{DurationMinutes: 60}, time.Time{})
	require.NoError(t, err)
	require.NoError(t, e.mgr.Start(c.ID, time.Now()))
	pid, err := e.mgr.Join(c.ID, "bob", "", "")
	require.NoError(t, err)

	submit := func(body map[string]any) *httptest.ResponseRecorder {
		return e.do(t, http.MethodPost, "/api/contests/"+c.ID+"/submit", body, "")
	}
	valid := map[string]any{
		"participant_id": pid,
		"task_id":        e.taskID,
		"language":       "Python",
		"code":           "print(3)",
	}

	// The runner is gated shut, so submissions stay pending.
	for i := 0; i < 3; i++ {
		w := submit(valid)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "queued", body["status"])
		assert.NotNil(t, body["queue_size"])
	}

	w := submit(valid)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too_many_pending", decodeBody(t, w)["error"])

	w = submit(map[string]any{
		"participant_id": "ghost", "task_id": e.taskID, "language": "Python", "code": "x",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_authorized", decodeBody(t, w)["error"])

	w = submit(map[string]any{
		"participant_id": pid, "task_id": e.taskID, "language": "Cobol", "code": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "language_not_allowed", decodeBody(t, w)["error"])
}

func TestSubmitToMissingContest(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/contests/nope/submit", map[string]any{
		"participant_id": "p", "task_id": 1, "language": "Python", "code": "x",
	}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFinishEarlyEndpoint(t *testing.T) {
	e := newTestEnv(t)
	c, err := e.mgr.Create("Round", []int{e.taskID}, models.ContestConfig{DurationMinutes: 60}, time.Time{})
	require.NoError(t, err)
	require.NoError(t, e.mgr.Start(c.ID, time.Now()))
	pid, err := e.mgr.Join(c.ID, "carol", "", "")
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/contests/"+c.ID+"/finish", map[string]string{"participant_id": pid}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/contests/"+c.ID+"/finish", map[string]string{"participant_id": pid}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "already_finished", decodeBody(t, w)["error"])
}

func TestSubmitNotifiesPendingBeforeResult(t *testing.T) {
	e := newTestEnv(t)
	c, err := e.mgr.Create("Round", []int{e.taskID}, models.ContestConfig{DurationMinutes: 60}, time.Time{})
	require.NoError(t, err)
	require.NoError(t, e.mgr.Start(c.ID, time.Now()))
	pid, err := e.mgr.Join(c.ID, "dana", "", "")
	require.NoError(t, err)

	srv := httptest.NewServer(e.srv.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/contests/" + c.ID + "/ws?participant_id=" + pid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readType := func() string {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(msg, &ev))
		return ev.Type
	}
	require.Equal(t, "full_status_update", readType())

	// With the runner wide open the verdict can land immediately; the
	// pending notification must still arrive first.
	e.openGate()
	w := e.do(t, http.MethodPost, "/api/contests/"+c.ID+"/submit", map[string]any{
		"participant_id": pid,
		"task_id":        e.taskID,
		"language":       "Python",
		"code":           "print(3)",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var seen []string
	for {
		typ := readType()
		seen = append(seen, typ)
		if typ == "personal_result" {
			break
		}
	}
	require.NotEmpty(t, seen)
	assert.Equal(t, "submission_pending", seen[0])
}

func TestCreateContestRejectsEmptyTaskList(t *testing.T) {
	e := newTestEnv(t)
	token := e.adminToken(t)

	w := e.do(t, http.MethodPost, "/api/admin/contests", map[string]any{
		"name":     "No Tasks",
		"task_ids": []int{},
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_task_ids", decodeBody(t, w)["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
