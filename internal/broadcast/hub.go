// Package broadcast pushes contest events to websocket clients. Clients are
// grouped into one room per contest; scoreboard updates fan out to the whole
// room while judging results go only to the submitting participant's
// connections. Slow clients are dropped rather than allowed to stall a room.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dev.synaq.judge/internal/contest"
	"dev.synaq.judge/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Event is the wire envelope for every push message.
type Event struct {
	Type      string `json:"type"`
	ContestID string `json:"contest_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Event types.
const (
	EventFullStatus        = "full_status_update"
	EventPersonalResult    = "personal_result"
	EventSubmissionPending = "submission_pending"
	EventStarted           = "started"
	EventFinished          = "finished"
	EventRevealStep        = "reveal_step"
)

type client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	contestID     string
	participantID string
}

// Hub routes events to connected clients.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	mgr    *contest.Manager
	logger *logrus.Entry

	upgrader websocket.Upgrader
}

// NewHub builds a hub over the contest manager, which it queries for fresh
// boards when results land.
func NewHub(mgr *contest.Manager, logger *logrus.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*client]struct{}),
		mgr:    mgr,
		logger: logger.WithField("component", "broadcast"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and joins the contest room. The
// first full board is pushed immediately after the upgrade.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, contestID, participantID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		contestID:     contestID,
		participantID: participantID,
	}

	h.mu.Lock()
	room, ok := h.rooms[contestID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[contestID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()

	if view, err := h.mgr.Snapshot(contestID, time.Now(), false); err == nil {
		c.trySend(h.encode(Event{Type: EventFullStatus, ContestID: contestID, Payload: view}))
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.contestID]; ok {
		if _, present := room[c]; present {
			delete(room, c)
			close(c.send)
			if len(room) == 0 {
				delete(h.rooms, c.contestID)
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) encode(ev Event) []byte {
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).WithField("type", ev.Type).Error("encode event failed")
		return nil
	}
	return b
}

// toRoom sends to every client in the contest's room.
func (h *Hub) toRoom(contestID string, ev Event) {
	msg := h.encode(ev)
	if msg == nil {
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[contestID]))
	for c := range h.rooms[contestID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.trySend(msg)
	}
}

// toParticipant sends to the participant's connections only.
func (h *Hub) toParticipant(contestID, participantID string, ev Event) {
	msg := h.encode(ev)
	if msg == nil {
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, 2)
	for c := range h.rooms[contestID] {
		if c.participantID == participantID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.trySend(msg)
	}
}

// trySend drops the client if its buffer is full.
func (c *client) trySend(msg []byte) {
	if msg == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.logger.WithField("contest", c.contestID).Warn("dropping slow websocket client")
		c.hub.drop(c)
		c.conn.Close()
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Clients never send application messages; this drains pings and
		// detects the close.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastBoard pushes the current public board to the whole room.
func (h *Hub) BroadcastBoard(contestID string) {
	view, err := h.mgr.Snapshot(contestID, time.Now(), false)
	if err != nil {
		return
	}
	h.toRoom(contestID, Event{Type: EventFullStatus, ContestID: contestID, Payload: view})
}

// ContestStarted announces the start and follows with a fresh board.
func (h *Hub) ContestStarted(contestID string) {
	h.toRoom(contestID, Event{Type: EventStarted, ContestID: contestID})
	h.BroadcastBoard(contestID)
}

// ContestFinished announces the end and follows with the final board.
func (h *Hub) ContestFinished(contestID string) {
	h.toRoom(contestID, Event{Type: EventFinished, ContestID: contestID})
	h.BroadcastBoard(contestID)
}

// SubmissionPending tells one participant their submission is queued.
func (h *Hub) SubmissionPending(contestID, participantID string, taskID, queueSize int) {
	h.toParticipant(contestID, participantID, Event{
		Type:      EventSubmissionPending,
		ContestID: contestID,
		Payload: map[string]any{
			"task_id":    taskID,
			"queue_size": queueSize,
		},
	})
}

// ResultApplied delivers a verdict to its owner, then refreshes the room
// board. It satisfies the dispatcher's sink.
func (h *Hub) ResultApplied(delta *contest.ResultDelta) {
	h.toParticipant(delta.ContestID, delta.ParticipantID, Event{
		Type:      EventPersonalResult,
		ContestID: delta.ContestID,
		Payload:   delta,
	})
	h.BroadcastBoard(delta.ContestID)
}

// Reveal replays hidden verdicts step by step, then pushes the final board.
func (h *Hub) Reveal(contestID string, steps []contest.RevealStep, final *models.ScoreboardView) {
	for _, step := range steps {
		h.toRoom(contestID, Event{Type: EventRevealStep, ContestID: contestID, Payload: step})
	}
	h.toRoom(contestID, Event{Type: EventFullStatus, ContestID: contestID, Payload: final})
}

// CloseAll disconnects every client, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for _, room := range h.rooms {
		for c := range room {
			close(c.send)
			c.conn.Close()
		}
	}
	h.rooms = make(map[string]map[*client]struct{})
	h.mu.Unlock()
}
