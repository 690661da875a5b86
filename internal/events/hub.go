package events

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	TypeOrderCreated     = "order.created"
	TypeOrderStatus      = "order.status"
	TypeTabUpdated       = "tab.updated"
	TypeTabBillRequested = "tab.bill_requested"
	TypeTabSettled       = "tab.settled"
	TypeDashboardTabs    = "dashboard.tabs"
	TypeDashboardOrders  = "dashboard.orders"
)

// TopicStaff carries every event the staff dashboard reacts to.
const TopicStaff = "staff"

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

type Event struct {
	Type    string    `json:"type"`
	Table   int       `json:"table,omitempty"`
	TabID   string    `json:"tab_id,omitempty"`
	OrderID string    `json:"order_id,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// TableTopic is the per-table stream followed by the customer device.
func TableTopic(table int) string {
	return "table:" + strconv.Itoa(table)
}

type Publisher interface {
	Publish(topic string, event Event)
	// PublishTable sends the event to the table stream and to the staff stream.
	PublishTable(table int, event Event)
}

type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	topic string
	id    uint64
	ch    chan Event
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish appends the event to the topic backlog and fans it out without blocking.
// Events for topics nobody follows are dropped.
func (h *Hub) Publish(topic string, event Event) {
	if h == nil {
		return
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	h.mu.RLock()
	stream := h.streams[topic]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) PublishTable(table int, event Event) {
	event.Table = table
	h.Publish(TableTopic(table), event)
	h.Publish(TopicStaff, event)
}

func (h *Hub) Subscribe(topic string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, nil, errors.New("invalid_topic")
	}

	stream := h.ensureStream(topic)
	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan Event)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]Event(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:   h,
		topic: topic,
		id:    id,
		ch:    ch,
	}, buffer, nil
}

func (h *Hub) ensureStream(topic string) *stream {
	h.mu.RLock()
	current := h.streams[topic]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[topic]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[topic] = current
	}
	return current
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	if h == nil {
		return
	}

	h.mu.RLock()
	stream := h.streams[topic]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[topic]
	if current != stream {
		h.mu.Unlock()
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, topic)
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}
