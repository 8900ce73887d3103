package eventbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/order"
	"github.com/kingrea/layerdeck/internal/surface"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// EventSchemaVersion is the currently supported inbound event version.
	EventSchemaVersion = 1
)

// ErrBadPayload marks events whose payload cannot be applied as sent.
var ErrBadPayload = errors.New("eventbridge: bad payload")

// Event types. The first five are posted by producers; order.changed is
// emitted by layerdeck itself.
const (
	TypeImageAdded        = "image.added"
	TypeImageRemoved      = "image.removed"
	TypeAnnotationAdded   = "annotation.added"
	TypeAnnotationRemoved = "annotation.removed"
	TypeCanvasRedrawn     = "canvas.redrawn"
	TypeOrderChanged      = "order.changed"
)

// TopicOrder is the router topic order.changed events are published on.
const TopicOrder = "order"

var producerTypes = map[string]struct{}{
	TypeImageAdded:        {},
	TypeImageRemoved:      {},
	TypeAnnotationAdded:   {},
	TypeAnnotationRemoved: {},
	TypeCanvasRedrawn:     {},
}

// Event is one message crossing the bridge in either direction.
type Event struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	Sequence   int64           `json:"sequence"`
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	Source     string          `json:"source"`
	ClientTime time.Time       `json:"client_time"`
	ServerTime time.Time       `json:"server_time"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEvent builds an outbound event with a fresh id.
func NewEvent(eventType string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("eventbridge: encode %s payload: %w", eventType, err)
	}
	evt := Event{
		Version: EventSchemaVersion,
		EventID: uuid.NewString(),
		Type:    eventType,
		Source:  "layerdeck",
		Payload: raw,
	}
	evt.Normalize()
	evt.StampServerTime(now)
	return evt, nil
}

// Normalize applies defaults and canonical formatting before validation.
// Producers may omit event_id; one is generated for them.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Version == 0 {
		e.Version = EventSchemaVersion
	}
	e.EventID = strings.TrimSpace(e.EventID)
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	e.Source = strings.TrimSpace(e.Source)
	e.Topic = normalizeTopic(e.Topic)
	if e.Topic == "" {
		e.Topic = topicOf(e.Type)
	}
}

// StampServerTime overwrites ServerTime with the supplied clock reading (UTC).
func (e *Event) StampServerTime(now time.Time) {
	if e == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	e.ServerTime = now.UTC()
}

// Validate enforces baseline schema requirements for producer events.
func (e Event) Validate() error {
	if e.Version != EventSchemaVersion {
		return fmt.Errorf("version %d not supported", e.Version)
	}
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	if e.Type == "" {
		return errors.New("type is required")
	}
	if _, ok := producerTypes[e.Type]; !ok {
		return fmt.Errorf("type %q is not a producer event", e.Type)
	}
	return nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: payload is required: %w", e.Type, ErrBadPayload)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %v: %w", e.Type, err, ErrBadPayload)
	}
	return nil
}

func topicOf(eventType string) string {
	prefix, _, _ := strings.Cut(eventType, ".")
	return normalizeTopic(prefix)
}

// ImagePayload carries image.added. Index is the store position; omitted
// appends.
type ImagePayload struct {
	Record layer.ImageRecord `json:"record"`
	Index  *int              `json:"index,omitempty"`
}

// AnnotationPayload carries annotation.added.
type AnnotationPayload struct {
	Record layer.AnnotationRecord `json:"record"`
	Index  *int                   `json:"index,omitempty"`
}

// RemovePayload carries image.removed and annotation.removed.
type RemovePayload struct {
	ID string `json:"id"`
}

// CanvasPayload carries canvas.redrawn. A nil frame keeps the current one.
type CanvasPayload struct {
	Frame *surface.Frame `json:"frame,omitempty"`
}

// OrderEntry is one row of an order.changed payload or the /order response.
type OrderEntry struct {
	ID           string     `json:"id"`
	Kind         layer.Kind `json:"kind"`
	DisplayOrder int        `json:"display_order"`
	ZIndex       int        `json:"z_index"`
	Name         string     `json:"name"`
	Hidden       bool       `json:"hidden"`
	Placeholder  bool       `json:"placeholder"`
}

// OrderPayload carries order.changed.
type OrderPayload struct {
	Seq     uint64       `json:"seq"`
	Mode    string       `json:"mode"`
	Dragged string       `json:"dragged,omitempty"`
	Target  string       `json:"target,omitempty"`
	Trigger string       `json:"trigger,omitempty"`
	Entries []OrderEntry `json:"entries"`
}

// EntriesFromSnapshot converts a snapshot for the wire.
func EntriesFromSnapshot(s order.Snapshot) []OrderEntry {
	out := make([]OrderEntry, len(s))
	for i, entry := range s {
		out[i] = OrderEntry{
			ID:           entry.ID,
			Kind:         entry.Kind,
			DisplayOrder: entry.DisplayOrder,
			ZIndex:       entry.ZIndex,
			Name:         entry.Name,
			Hidden:       entry.Hidden,
			Placeholder:  entry.Placeholder(),
		}
	}
	return out
}

// OrderChangedEvent wraps an engine notification as a bridge event.
func OrderChangedEvent(change order.OrderChange) (Event, error) {
	evt, err := NewEvent(TypeOrderChanged, OrderPayload{
		Seq:     change.Seq,
		Mode:    string(change.Mode),
		Dragged: change.Dragged,
		Target:  change.Target,
		Trigger: change.Trigger,
		Entries: EntriesFromSnapshot(change.Entries),
	}, change.At)
	if err != nil {
		return Event{}, err
	}
	evt.Topic = TopicOrder
	evt.Sequence = int64(change.Seq)
	return evt, nil
}

// EventProcessor consumes validated events.
type EventProcessor interface {
	HandleEvent(Event) error
}

// EventProcessorFunc adapts a function into an EventProcessor.
type EventProcessorFunc func(Event) error

// HandleEvent executes f(e).
func (f EventProcessorFunc) HandleEvent(e Event) error {
	if f == nil {
		return nil
	}
	return f(e)
}

// Logger records bridge status information. *logbook.Logbook satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	RouterReady   bool   `json:"router_ready"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type eventResponse struct {
	Status     string    `json:"status"`
	EventID    string    `json:"event_id"`
	ServerTime time.Time `json:"server_time"`
}

type orderResponse struct {
	Base    int          `json:"base"`
	Entries []OrderEntry `json:"entries"`
}
