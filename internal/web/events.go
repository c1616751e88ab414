package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/filebay/filebay/internal/metrics"
)

// Event is one change notification pushed to feed clients after a
// mutating operation.
type Event struct {
	Type string    `json:"type"` // upload, delete, rename, move, mkdir, restore, purge
	Tab  string    `json:"tab"`
	Path string    `json:"path,omitempty"`
	Time time.Time `json:"time"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // same-credential clients only; auth happens before the upgrade
	},
}

const (
	eventBuffer  = 16
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

type eventClient struct {
	events chan Event
}

// hub fans change events out to connected websocket clients. Slow
// clients lose events rather than blocking the mutation path.
type hub struct {
	clients map[*eventClient]bool
	mu      sync.RWMutex
	m       *metrics.StoreMetrics
}

func newHub(m *metrics.StoreMetrics) *hub {
	return &hub{
		clients: make(map[*eventClient]bool),
		m:       m,
	}
}

func (h *hub) register(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	if h.m != nil {
		h.m.EventClients.Set(float64(len(h.clients)))
	}
	log.Debug().Int("clients", len(h.clients)).Msg("event feed client connected")
}

func (h *hub) unregister(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.events)
		if h.m != nil {
			h.m.EventClients.Set(float64(len(h.clients)))
		}
		log.Debug().Int("clients", len(h.clients)).Msg("event feed client disconnected")
	}
}

func (h *hub) broadcast(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.events <- e:
		default:
			log.Debug().Msg("event feed client buffer full, dropping event")
		}
	}
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleEvents upgrades the connection and streams change events until
// the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("event feed upgrade failed")
		return
	}

	client := &eventClient{events: make(chan Event, eventBuffer)}
	s.hub.register(client)
	defer s.hub.unregister(client)

	// Reader goroutine: discard inbound frames, detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer func() { _ = conn.Close() }()

	for {
		select {
		case event, ok := <-client.events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
