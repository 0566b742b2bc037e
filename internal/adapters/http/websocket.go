package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/usecases"
	"github.com/namtang/stopmap/internal/pkg/metrics"
)

// wsMessage is sent from client to move the viewport or change the filter.
type wsMessage struct {
	Action   string  `json:"action"` // "viewport" | "filter"
	BBox     string  `json:"bbox"`   // west,south,east,north
	Zoom     float64 `json:"zoom"`
	Types    *string `json:"types"` // absent = all types, "" = none
	Q        string  `json:"q"`
	District string  `json:"district"`
	Postcode string  `json:"postcode"`
}

// wsResult is pushed after each applied viewport cycle.
type wsResult struct {
	Type     string               `json:"type"`
	Session  string               `json:"session"`
	Token    uint64               `json:"token"`
	Zoom     int                  `json:"zoom"`
	Count    int                  `json:"count"`
	Points   []domain.Point       `json:"points"`
	Clusters []domain.ClusterNode `json:"clusters,omitempty"`
}

// wsSession holds the query state of one connection. Filter messages keep
// the current bbox, viewport messages keep the current filter.
type wsSession struct {
	query domain.Query
	zoom  int
}

func (s *wsSession) apply(m wsMessage) (usecases.ChangeKind, bool) {
	switch m.Action {
	case "viewport":
		s.query.BBox = nil
		if b, ok := domain.ParseBounds(m.BBox); ok {
			s.query.BBox = &b
		}
		if m.Zoom >= 0 {
			s.zoom = int(m.Zoom)
		}
		return usecases.ChangePan, true
	case "filter":
		if m.Types == nil {
			s.query.Types = nil
		} else {
			s.query.Types = domain.ParseTypeSet(*m.Types, true)
		}
		s.query.Text = m.Q
		s.query.District = m.District
		s.query.Postcode = m.Postcode
		return usecases.ChangeFilter, true
	}
	return 0, false
}

// WebSocketHandler returns a handler that runs one debounced viewport
// session per connection. Clients send
// {"action":"viewport","bbox":"w,s,e,n","zoom":12} or
// {"action":"filter","types":"bus,bts","q":"siam"}; the server answers
// with {"type":"result",...} for every applied cycle and
// {"type":"error",...} when a cycle fails.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	exec := usecases.NewQueryExecutor(deps.Engine, deps.Clusters)

	return func(c *websocket.Conn) {
		defer c.Close()

		session := uuid.NewString()
		logger := slog.Default().With("session", session, "remote", c.RemoteAddr().String())
		logger.Info("ws session opened")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		// mu guards writes to c; no write happens once closed is set.
		var (
			mu     sync.Mutex
			closed bool
		)
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return websocket.ErrCloseSent
			}
			return c.WriteMessage(websocket.TextMessage, data)
		}
		defer func() {
			mu.Lock()
			closed = true
			mu.Unlock()
		}()

		ctrl := usecases.NewViewportController(exec, usecases.ViewportOptions{
			PanDelay:    deps.Viewport.PanDelay,
			FilterDelay: deps.Viewport.FilterDelay,
			OnApply: func(r usecases.ViewportResult) {
				_ = writeJSON(wsResult{
					Type:     "result",
					Session:  session,
					Token:    r.Token,
					Zoom:     r.Zoom,
					Count:    len(r.Points),
					Points:   r.Points,
					Clusters: r.Clusters,
				})
			},
			OnError: func(err error) {
				logger.Warn("viewport cycle failed", "error", err)
				_ = writeJSON(map[string]string{"type": "error", "error": err.Error()})
			},
		})
		defer ctrl.Close()

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := websocket.ErrCloseSent
					if !closed {
						err = c.WriteMessage(websocket.PingMessage, nil)
					}
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		state := &wsSession{zoom: defaultZoom}
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			m := wsMessage{Zoom: -1}
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"type": "error", "error": "invalid JSON"})
				continue
			}
			kind, ok := state.apply(m)
			if !ok {
				_ = writeJSON(map[string]string{"type": "error", "error": "unknown action: " + m.Action})
				continue
			}
			ctrl.Submit(kind, state.query, state.zoom)
		}

		logger.Info("ws session closed")
	}
}
