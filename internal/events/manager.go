// Package events emits structured pipeline events.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	CycleStarted      EventType = "CYCLE_STARTED"
	RatingsFetched    EventType = "RATINGS_FETCHED"
	AllocationReady   EventType = "ALLOCATION_READY"
	ReportWritten     EventType = "REPORT_WRITTEN"
	PositionsLoaded   EventType = "POSITIONS_LOADED"
	OrdersPlanned     EventType = "ORDERS_PLANNED"
	OrderSubmitted    EventType = "ORDER_SUBMITTED"
	OrderStatusChange EventType = "ORDER_STATUS_CHANGED"
	OrdersAbandoned   EventType = "ORDERS_ABANDONED"
	CycleCompleted    EventType = "CYCLE_COMPLETED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// Listener receives emitted events
type Listener func(Event)

// Manager handles event emission and logging
type Manager struct {
	log zerolog.Logger

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:       log.With().Str("service", "events").Logger(),
		listeners: make(map[int]Listener),
	}
}

// Emit logs an event and hands it to every listener
func (m *Manager) Emit(module string, data EventData) {
	if m == nil || data == nil {
		return
	}

	event := Event{
		Type:      data.EventType(),
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}
	m.log.Info().
		Str("event_type", string(event.Type)).
		Str("module", module).
		RawJSON("data", dataJSON).
		Msg("Event emitted")

	m.mu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.RUnlock()

	for _, l := range listeners {
		l(event)
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	if err == nil {
		return
	}
	m.Emit(module, &ErrorEventData{Error: err.Error(), Context: context})
}

// Subscribe registers a listener and returns a function that removes it
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}
