package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/events"
)

const heartbeatInterval = 30 * time.Second

// EventsStreamHandler streams pipeline events as Server-Sent Events
type EventsStreamHandler struct {
	manager   *events.Manager
	log       zerolog.Logger
	heartbeat time.Duration
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(manager *events.Manager, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		manager:   manager,
		log:       log.With().Str("component", "events_stream").Logger(),
		heartbeat: heartbeatInterval,
	}
}

// ServeHTTP handles GET /api/events/stream. ?types=A,B limits the stream to those event types.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var allowed map[events.EventType]bool
	if filter := r.URL.Query().Get("types"); filter != "" {
		allowed = make(map[events.EventType]bool)
		for _, t := range strings.Split(filter, ",") {
			allowed[events.EventType(strings.ToUpper(strings.TrimSpace(t)))] = true
		}
	}

	eventChan := make(chan events.Event, 100)
	unsubscribe := h.manager.Subscribe(func(e events.Event) {
		if allowed != nil && !allowed[e.Type] {
			return
		}
		// Never block the emitting cycle on a slow client
		select {
		case eventChan <- e:
		default:
			h.log.Warn().Str("event_type", string(e.Type)).Msg("Event channel full, dropping event")
		}
	})
	defer unsubscribe()

	h.log.Info().Msg("Client connected to event stream")

	h.send(w, map[string]interface{}{"type": "connected"})
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case e := <-eventChan:
			h.send(w, e)
			flusher.Flush()

		case <-heartbeat.C:
			h.send(w, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) send(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
