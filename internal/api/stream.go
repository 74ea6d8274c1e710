package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// Stream timing
const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Hub fans task change signals out to status stream subscribers. A signal only
// says "task changed"; subscribers re-read the task, so a slow client sees the
// latest snapshot and never a backlog.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[chan struct{}]struct{}
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewHub creates an empty hub
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		subs: make(map[string]map[chan struct{}]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

// Publish signals every subscriber of task.ID. It never blocks.
func (h *Hub) Publish(task model.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[task.ID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of open streams for id
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

func (h *Hub) subscribe(id string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan struct{}]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[id], ch)
		if len(h.subs[id]) == 0 {
			delete(h.subs, id)
		}
	}
}

// serve streams snapshots of one task until it is terminal, removed, or the
// client goes away. get is called after every signal.
func (h *Hub) serve(conn *websocket.Conn, id string, get func(string) (model.Task, bool)) {
	log := h.log.WithField("task", id)
	defer conn.Close()

	signal, unsubscribe := h.subscribe(id)
	defer unsubscribe()
	log.WithField("subscribers", h.Subscribers(id)).Debug("Status stream opened")

	// Reader drains control frames and notices the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		task, ok := get(id)
		if !ok {
			closeStream(conn, "task removed")
			return
		}
		if err := writeSnapshot(conn, task); err != nil {
			log.WithError(err).Debug("Status stream closed")
			return
		}
		if task.Status.IsFinished() {
			closeStream(conn, string(task.Status))
			return
		}

	wait:
		for {
			select {
			case <-signal:
				break wait
			case <-gone:
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, task model.Task) error {
	data, err := json.Marshal(newStatusResponse(task))
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
