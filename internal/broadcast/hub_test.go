package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.synaq.judge/internal/contest"
	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/store"
)

type hubEnv struct {
	hub *Hub
	mgr *contest.Manager
	srv *httptest.Server
	cID string
}

func newHubEnv(t *testing.T) *hubEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	st, err := store.Open(filepath.Join(t.TempDir(), "judge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mgr := contest.New(st, logger)
	c, err := mgr.Create("WS Round", []int{1}, models.ContestConfig{DurationMinutes: 60}, time.Time{})
	require.NoError(t, err)
	require.NoError(t, mgr.Start(c.ID, time.Now()))

	hub := NewHub(mgr, logger)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleConnection(w, r, c.ID, r.URL.Query().Get("pid"))
	}))
	t.Cleanup(func() {
		srv.Close()
		hub.CloseAll()
	})

	return &hubEnv{hub: hub, mgr: mgr, srv: srv, cID: c.ID}
}

func (e *hubEnv) dial(t *testing.T, pid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "?pid=" + pid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestInitialBoardOnConnect(t *testing.T) {
	e := newHubEnv(t)
	conn := e.dial(t, "p1")

	ev := readEvent(t, conn)
	assert.Equal(t, EventFullStatus, ev.Type)
	assert.Equal(t, e.cID, ev.ContestID)
}

func TestBoardBroadcastReachesRoom(t *testing.T) {
	e := newHubEnv(t)
	a := e.dial(t, "p1")
	b := e.dial(t, "p2")
	readEvent(t, a) // initial boards
	readEvent(t, b)

	e.hub.BroadcastBoard(e.cID)
	assert.Equal(t, EventFullStatus, readEvent(t, a).Type)
	assert.Equal(t, EventFullStatus, readEvent(t, b).Type)
}

func TestPersonalEventsTargetOneParticipant(t *testing.T) {
	e := newHubEnv(t)
	mine := e.dial(t, "p1")
	other := e.dial(t, "p2")
	readEvent(t, mine)
	readEvent(t, other)

	e.hub.SubmissionPending(e.cID, "p1", 1, 3)

	ev := readEvent(t, mine)
	assert.Equal(t, EventSubmissionPending, ev.Type)

	// The other participant gets nothing.
	other.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestResultAppliedSendsPersonalThenBoard(t *testing.T) {
	e := newHubEnv(t)
	conn := e.dial(t, "p1")
	readEvent(t, conn)

	e.hub.ResultApplied(&contest.ResultDelta{
		ContestID:     e.cID,
		ParticipantID: "p1",
		TaskID:        1,
		Verdict:       models.VerdictAccepted,
	})

	first := readEvent(t, conn)
	second := readEvent(t, conn)
	assert.Equal(t, EventPersonalResult, first.Type)
	assert.Equal(t, EventFullStatus, second.Type)
}
