package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/event"
	"github.com/matthewbaird/compliance/internal/types"
)

const (
	streamClientBuffer = 64
	streamWriteTimeout = 5 * time.Second
)

// StreamMessage is one corrective event pushed to a dashboard.
type StreamMessage struct {
	Type       string            `json:"type"`
	EventID    string            `json:"event_id,omitempty"`
	EventType  string            `json:"event_type,omitempty"`
	OccurredAt time.Time         `json:"occurred_at,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	Category   string            `json:"category,omitempty"`
	Stage      string            `json:"stage,omitempty"`
	Entities   []types.SourceRef `json:"entities,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

type streamClient struct {
	propertyID string
	events     chan event.DomainEvent
}

// StreamHub fans bus events out to websocket clients. It is an event bus
// subscriber. A client that falls behind by a full buffer is disconnected.
type StreamHub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	log     *zap.Logger
}

// NewStreamHub creates a hub with no clients.
func NewStreamHub(log *zap.Logger) *StreamHub {
	return &StreamHub{clients: make(map[*streamClient]struct{}), log: log}
}

// HandleEvent implements eventbus.Handler.
func (h *StreamHub) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.propertyID != "" && !touchesProperty(evt, c.propertyID) {
			continue
		}
		select {
		case c.events <- evt:
		default:
			h.log.Warn("stream client too slow; disconnecting", zap.String("property_id", c.propertyID))
			delete(h.clients, c)
			close(c.events)
		}
	}
	return nil
}

func touchesProperty(evt event.DomainEvent, propertyID string) bool {
	for _, ref := range evt.AffectedEntities {
		if ref.EntityType == "property" && ref.EntityID == propertyID {
			return true
		}
	}
	return false
}

// CloseAll disconnects every client.
func (h *StreamHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.events)
	}
}

// Clients returns the number of connected clients.
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *StreamHub) add(propertyID string) *streamClient {
	c := &streamClient{propertyID: propertyID, events: make(chan event.DomainEvent, streamClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.events)
	}
}

// ServeHTTP upgrades to a websocket and streams events until either side
// closes. ?property_id= limits the stream to one property.
// GET /v1/stream
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("stream: websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// The stream is server to client only; CloseRead handles control frames
	// and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	c := h.add(r.URL.Query().Get("property_id"))
	defer h.remove(c)

	if err := h.write(ctx, conn, StreamMessage{Type: "ready"}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			msg := StreamMessage{
				Type:       "event",
				EventID:    evt.ID,
				EventType:  evt.EventType,
				OccurredAt: evt.OccurredAt,
				Summary:    evt.Summary,
				Category:   evt.Category,
				Stage:      evt.Stage,
				Entities:   evt.AffectedEntities,
				Payload:    evt.Payload,
			}
			if err := h.write(ctx, conn, msg); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					h.log.Debug("stream: write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (h *StreamHub) write(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, msg)
}
