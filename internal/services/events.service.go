package services

import (
	"autoservice/internal/models"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives a copy of every event, after local subscribers.
// Forward is called from the hub loop and must not block for long.
type Sink interface {
	Forward(ctx context.Context, event models.Event) error
}

// Subscriber is one listener on the event hub
type Subscriber struct {
	ID   string
	Send chan models.Event
}

// EventHub fans events out to subscribers. Publishing never blocks: when the
// hub or a subscriber is behind, the event is dropped for that listener.
type EventHub struct {
	subscribers map[string]*Subscriber
	broadcast   chan models.Event
	register    chan *Subscriber
	unregister  chan string
	mu          sync.RWMutex
	sinks       []Sink
	onDrop      func()
	dropped     atomic.Uint64
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
}

// HubOption configures an EventHub
type HubOption func(*EventHub)

// WithSinks forwards every event to sinks
func WithSinks(sinks ...Sink) HubOption {
	return func(h *EventHub) {
		for _, s := range sinks {
			if s != nil {
				h.sinks = append(h.sinks, s)
			}
		}
	}
}

// WithDropHook calls f for every dropped delivery
func WithDropHook(f func()) HubOption {
	return func(h *EventHub) { h.onDrop = f }
}

// NewEventHub starts a hub with a broadcast buffer of size buffer
func NewEventHub(buffer int, opts ...HubOption) *EventHub {
	if buffer <= 0 {
		buffer = 256
	}
	h := &EventHub{
		subscribers: make(map[string]*Subscriber),
		broadcast:   make(chan models.Event, buffer),
		register:    make(chan *Subscriber),
		unregister:  make(chan string),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.run()
	return h
}

func (h *EventHub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, sub := range h.subscribers {
				delete(h.subscribers, id)
				close(sub.Send)
			}
			h.mu.Unlock()
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.ID] = sub
			total := len(h.subscribers)
			h.mu.Unlock()
			slog.Debug("event subscriber connected", "subscriber", sub.ID, "total", total)

		case id := <-h.unregister:
			h.mu.Lock()
			if sub, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(sub.Send)
			}
			total := len(h.subscribers)
			h.mu.Unlock()
			slog.Debug("event subscriber disconnected", "subscriber", id, "total", total)

		case event := <-h.broadcast:
			h.mu.RLock()
			for _, sub := range h.subscribers {
				select {
				case sub.Send <- event:
				default:
					h.drop()
				}
			}
			h.mu.RUnlock()
			h.forward(event)
		}
	}
}

func (h *EventHub) forward(event models.Event) {
	if len(h.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, sink := range h.sinks {
		if err := sink.Forward(ctx, event); err != nil {
			slog.Warn("forwarding event", "type", event.Type, "error", err)
		}
	}
}

func (h *EventHub) drop() {
	h.dropped.Add(1)
	if h.onDrop != nil {
		h.onDrop()
	}
}

// Publish queues event for delivery without blocking
func (h *EventHub) Publish(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- event:
	default:
		h.drop()
	}
}

// Subscribe registers a listener with its own buffer. The returned channel is
// closed on Unsubscribe or Close.
func (h *EventHub) Subscribe(id string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscriber{ID: id, Send: make(chan models.Event, buffer)}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.Send)
	}
	return sub
}

// Unsubscribe removes listener id
func (h *EventHub) Unsubscribe(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Subscribers returns the number of connected listeners
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were dropped so far
func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close stops the hub loop and closes every subscriber channel
func (h *EventHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.stopped
	})
}
