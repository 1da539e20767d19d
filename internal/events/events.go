package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Topics published by the scheduling services.
const (
	AppointmentBooked    = "appointment.booked"
	AppointmentCancelled = "appointment.cancelled"
	BlockCreated         = "block.created"
	BlockHourRemoved     = "block.hour_removed"
	BlockDeleted         = "block.deleted"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Mutation is the payload of every calendar mutation topic.
type Mutation struct {
	EventIDs []string `json:"event_ids"`
	Kind     string   `json:"kind"`
	Date     string   `json:"date,omitempty"`
	Hours    []int    `json:"hours,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	BatchID  string   `json:"batch_id,omitempty"`
	Failed   int      `json:"failed,omitempty"`
}

// Publisher is what services need from the bus.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range eventTypes {
		b.subscribers[et] = append(b.subscribers[et], handler)
	}
}

// Publish notifies subscribers of the event type and joins their errors.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", event.Type, err))
		}
	}
	return errors.Join(errs...)
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return b.Publish(Event{Type: eventType, Payload: data})
}

// Decode unmarshals a mutation payload.
func (e Event) Decode() (Mutation, error) {
	var m Mutation
	err := json.Unmarshal(e.Payload, &m)
	return m, err
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) PublishJSON(string, any) error { return nil }
