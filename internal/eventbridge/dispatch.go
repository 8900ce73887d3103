package eventbridge

import (
	"context"
	"fmt"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
)

// Producer is the workspace side of producer events. Implementations apply
// each mutation on the engine's loop and schedule a rebuild.
type Producer interface {
	AddImage(ctx context.Context, record layer.ImageRecord, index int) error
	RemoveImage(ctx context.Context, id string) error
	AddAnnotation(ctx context.Context, record layer.AnnotationRecord, index int) error
	RemoveAnnotation(ctx context.Context, id string) error
	RedrawCanvas(ctx context.Context, frame *surface.Frame) error
}

// Dispatcher applies producer events to a Producer and then forwards them
// to the router so observers see the same stream.
type Dispatcher struct {
	producer Producer
	router   *Router
	ctx      context.Context
}

// NewDispatcher builds a dispatcher. router may be nil. ctx bounds every
// call into the producer.
func NewDispatcher(ctx context.Context, producer Producer, router *Router) *Dispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Dispatcher{producer: producer, router: router, ctx: ctx}
}

// HandleEvent satisfies EventProcessor.
func (d *Dispatcher) HandleEvent(evt Event) error {
	if err := d.apply(evt); err != nil {
		return err
	}
	if d.router != nil {
		d.router.Route(evt)
	}
	return nil
}

func (d *Dispatcher) apply(evt Event) error {
	switch evt.Type {
	case TypeImageAdded:
		var p ImagePayload
		if err := evt.Decode(&p); err != nil {
			return err
		}
		if p.Record.ID == "" {
			return fmt.Errorf("%s: record.id is required: %w", evt.Type, ErrBadPayload)
		}
		return d.producer.AddImage(d.ctx, p.Record, indexOr(p.Index))
	case TypeAnnotationAdded:
		var p AnnotationPayload
		if err := evt.Decode(&p); err != nil {
			return err
		}
		if p.Record.ID == "" {
			return fmt.Errorf("%s: record.id is required: %w", evt.Type, ErrBadPayload)
		}
		return d.producer.AddAnnotation(d.ctx, p.Record, indexOr(p.Index))
	case TypeImageRemoved, TypeAnnotationRemoved:
		var p RemovePayload
		if err := evt.Decode(&p); err != nil {
			return err
		}
		if p.ID == "" {
			return fmt.Errorf("%s: id is required: %w", evt.Type, ErrBadPayload)
		}
		if evt.Type == TypeImageRemoved {
			return d.producer.RemoveImage(d.ctx, p.ID)
		}
		return d.producer.RemoveAnnotation(d.ctx, p.ID)
	case TypeCanvasRedrawn:
		var p CanvasPayload
		if len(evt.Payload) > 0 {
			if err := evt.Decode(&p); err != nil {
				return err
			}
		}
		return d.producer.RedrawCanvas(d.ctx, p.Frame)
	default:
		return fmt.Errorf("eventbridge: unsupported event type %q: %w", evt.Type, ErrBadPayload)
	}
}

func indexOr(index *int) int {
	if index == nil {
		return -1
	}
	return *index
}
