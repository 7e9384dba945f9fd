package gateway

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventBroadcaster pushes events to every /v1/events subscriber
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends an event to all subscribers and returns how many received it
func (b *EventBroadcaster) Broadcast(event, traceID string, data interface{}) int {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       b.nextSeq(),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		TraceID:   traceID,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return 0
	}

	clients := b.clients.OfKind(ClientEvents)
	if len(clients) == 0 {
		b.logger.Debug().Str("event", event).Int64("seq", msg.Seq).Msg("No subscribers to broadcast to")
		return 0
	}

	delivered := 0
	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", event).
				Int64("seq", msg.Seq).
				Msg("Failed to broadcast to client")
			continue
		}
		delivered++
	}

	b.logger.Debug().
		Str("event", event).
		Int64("seq", msg.Seq).
		Int("success", delivered).
		Int("failed", len(clients)-delivered).
		Msg("Event broadcast complete")
	return delivered
}

func (b *EventBroadcaster) nextSeq() int64 {
	return int64(atomic.AddUint64(&b.seq, 1))
}
