package eventbridge

import (
	"strings"
	"sync"

	"github.com/kingrea/layerdeck/internal/order"
)

const (
	defaultSubscriberCapacity = 100
	defaultBacklogLimit       = 50
	defaultDedupeWindow       = 1024
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router delivers bridge events to topic subscribers with buffering,
// deduplication, and bounded channel semantics.
type Router struct {
	mu           sync.RWMutex
	subscribers  map[string]map[*subscriber]struct{}
	backlog      map[string][]Event
	sourceTopics map[string]string
	seen         *seenIDs
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       Logger
}

// Subscription represents an active topic subscription.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with sane defaults.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]Event{},
		sourceTopics: map[string]string{},
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.seen = newSeenIDs(r.dedupeWindow)
	return r
}

// RouterWithLogger injects a logger for drop/diagnostic messages.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size per subscriber.
func RouterWithSubscriberCapacity(cap int) RouterOption {
	return func(r *Router) {
		if cap > 0 {
			r.channelSize = cap
		}
	}
}

// RouterWithBacklogLimit overrides the backlog size for pre-subscription buffering.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithDedupeWindow controls how many recent event IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Subscribe registers for events on one topic. Events routed before anyone
// subscribed are replayed from the backlog.
func (r *Router) Subscribe(name string) Subscription {
	topic := normalizeTopic(name)
	sub := newSubscriber(r.channelSize, r.logger)
	var backlog []Event
	r.mu.Lock()
	if r.subscribers[topic] == nil {
		r.subscribers[topic] = map[*subscriber]struct{}{}
	}
	r.subscribers[topic][sub] = struct{}{}
	if existing := r.backlog[topic]; len(existing) > 0 {
		backlog = append(backlog, existing...)
		delete(r.backlog, topic)
	}
	r.mu.Unlock()
	for _, event := range backlog {
		sub.deliver(event)
	}
	return Subscription{
		Events: sub.channel(),
		cancel: func() {
			r.removeSubscriber(topic, sub)
		},
	}
}

// HandleEvent satisfies the EventProcessor interface.
func (r *Router) HandleEvent(event Event) error {
	r.Route(event)
	return nil
}

// Route delivers the event to subscribers or buffers it when no subscriber exists.
func (r *Router) Route(event Event) {
	if event.EventID != "" && !r.seen.add(event.EventID) {
		return
	}
	topic := normalizeTopic(event.Topic)
	if topic == "" {
		topic = r.lookupTopic(event.Source)
	}
	if topic == "" {
		return
	}
	r.trackSource(event.Source, topic)
	r.mu.RLock()
	subs := r.snapshotSubscribers(topic)
	r.mu.RUnlock()
	if len(subs) == 0 {
		r.bufferEvent(topic, event)
		return
	}
	for _, sub := range subs {
		sub.deliver(event)
	}
}

func (r *Router) snapshotSubscribers(topic string) []*subscriber {
	live := r.subscribers[topic]
	if len(live) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(live))
	for sub := range live {
		items = append(items, sub)
	}
	return items
}

func (r *Router) removeSubscriber(topic string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs := r.subscribers[topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, topic)
		}
	}
	sub.close()
}

func (r *Router) bufferEvent(topic string, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.backlog[topic]
	if len(queue) >= r.backlogLimit {
		queue = queue[1:]
		if r.logger != nil {
			r.logger.Printf("eventbridge: backlog drop for %s (limit %d)", topic, r.backlogLimit)
		}
	}
	queue = append(queue, event)
	r.backlog[topic] = queue
}

// trackSource remembers the last topic a producer posted on so its
// untagged follow-ups land in the same place.
func (r *Router) trackSource(source, topic string) {
	if source == "" || topic == "" {
		return
	}
	r.mu.Lock()
	r.sourceTopics[source] = topic
	r.mu.Unlock()
}

func (r *Router) lookupTopic(source string) string {
	if source == "" {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sourceTopics[source]
}

func normalizeTopic(topic string) string {
	return strings.TrimSpace(strings.ToLower(topic))
}

// seenIDs remembers the last size event IDs so producer retries are routed
// once.
type seenIDs struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	ring []string
	next int
}

func newSeenIDs(size int) *seenIDs {
	return &seenIDs{ids: make(map[string]struct{}, size), ring: make([]string, size)}
}

// add records id and reports whether it was new.
func (s *seenIDs) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	if evicted := s.ring[s.next]; evicted != "" {
		delete(s.ids, evicted)
	}
	s.ring[s.next] = id
	s.next = (s.next + 1) % len(s.ring)
	s.ids[id] = struct{}{}
	return true
}

// subscriber is one stream's bounded queue. When it is full the event with
// the lower priority is dropped; ties drop the older one.
type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	logger Logger
	closed bool
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{ch: make(chan Event, capacity), logger: logger}
}

func (s *subscriber) channel() <-chan Event {
	return s.ch
}

func (s *subscriber) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	var queued Event
	select {
	case queued = <-s.ch:
	default:
		// The reader drained the queue in between.
		s.ch <- event
		return
	}
	if priority(queued.Type) <= priority(event.Type) {
		s.logDrop(queued, "queue overflow")
		s.ch <- event
		return
	}
	s.ch <- queued
	s.logDrop(event, "queue overflow:incoming")
}

func (s *subscriber) logDrop(event Event, reason string) {
	if s.logger != nil {
		s.logger.Printf("eventbridge: dropped %s %s (%s)", event.Type, event.EventID, reason)
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

const (
	priorityRedraw = iota
	priorityNormal
	priorityCritical
)

// priority ranks event types for overflow handling. Removals and order
// changes must reach observers; a redraw notice is superseded by the next.
func priority(kind string) int {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case TypeOrderChanged, TypeImageRemoved, TypeAnnotationRemoved:
		return priorityCritical
	case TypeCanvasRedrawn:
		return priorityRedraw
	}
	return priorityNormal
}

// PublishOrderChange routes an engine notification on TopicOrder.
func (r *Router) PublishOrderChange(change order.OrderChange) error {
	evt, err := OrderChangedEvent(change)
	if err != nil {
		return err
	}
	r.Route(evt)
	return nil
}
