package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
)

type fakeProducer struct {
	calls  []string
	images []layer.ImageRecord
	index  []int
	frame  *surface.Frame
	err    error
}

func (p *fakeProducer) AddImage(_ context.Context, rec layer.ImageRecord, index int) error {
	p.calls = append(p.calls, "add-image:"+rec.ID)
	p.images = append(p.images, rec)
	p.index = append(p.index, index)
	return p.err
}

func (p *fakeProducer) RemoveImage(_ context.Context, id string) error {
	p.calls = append(p.calls, "remove-image:"+id)
	return p.err
}

func (p *fakeProducer) AddAnnotation(_ context.Context, rec layer.AnnotationRecord, index int) error {
	p.calls = append(p.calls, "add-annotation:"+rec.ID)
	p.index = append(p.index, index)
	return p.err
}

func (p *fakeProducer) RemoveAnnotation(_ context.Context, id string) error {
	p.calls = append(p.calls, "remove-annotation:"+id)
	return p.err
}

func (p *fakeProducer) RedrawCanvas(_ context.Context, frame *surface.Frame) error {
	p.calls = append(p.calls, "redraw")
	p.frame = frame
	return p.err
}

func producerEvent(t *testing.T, eventType, payload string) Event {
	t.Helper()
	evt := Event{Type: eventType, Payload: json.RawMessage(payload)}
	evt.Normalize()
	require.NoError(t, evt.Validate())
	return evt
}

func TestDispatcherAppliesProducerEvents(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(context.Background(), producer, nil)

	require.NoError(t, d.HandleEvent(producerEvent(t, TypeImageAdded, `{"record":{"id":"img-1","name":"Sky","visible":true},"index":0}`)))
	require.NoError(t, d.HandleEvent(producerEvent(t, TypeAnnotationAdded, `{"record":{"id":"a1","shape":"rect","visible":true}}`)))
	require.NoError(t, d.HandleEvent(producerEvent(t, TypeImageRemoved, `{"id":"img-0"}`)))
	require.NoError(t, d.HandleEvent(producerEvent(t, TypeAnnotationRemoved, `{"id":"a0"}`)))
	require.NoError(t, d.HandleEvent(producerEvent(t, TypeCanvasRedrawn, `{"frame":{"screen":{"x":0,"y":0,"w":800,"h":600},"view_box":{"x":0,"y":0,"w":800,"h":600},"transform":{"a":1,"b":0,"c":0,"d":1,"e":0,"f":0}}}`)))

	assert.Equal(t, []string{"add-image:img-1", "add-annotation:a1", "remove-image:img-0", "remove-annotation:a0", "redraw"}, producer.calls)
	assert.Equal(t, []int{0, -1}, producer.index, "omitted index appends")
	assert.Equal(t, "Sky", producer.images[0].Name)
	require.NotNil(t, producer.frame)
	assert.Equal(t, 800.0, producer.frame.Screen.W)
}

func TestDispatcherRedrawWithoutPayloadKeepsFrame(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(context.Background(), producer, nil)
	evt := Event{Type: TypeCanvasRedrawn}
	evt.Normalize()

	require.NoError(t, d.HandleEvent(evt))
	assert.Nil(t, producer.frame)
}

func TestDispatcherRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		payload   string
	}{
		{name: "missing record id", eventType: TypeImageAdded, payload: `{"record":{"name":"x"}}`},
		{name: "missing remove id", eventType: TypeAnnotationRemoved, payload: `{}`},
		{name: "malformed json", eventType: TypeAnnotationAdded, payload: `{"record":`},
		{name: "empty payload", eventType: TypeImageRemoved, payload: ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			producer := &fakeProducer{}
			d := NewDispatcher(context.Background(), producer, nil)
			evt := Event{Type: tc.eventType, Payload: json.RawMessage(tc.payload)}
			evt.Normalize()
			err := d.HandleEvent(evt)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadPayload)
			assert.Empty(t, producer.calls)
		})
	}
}

func TestDispatcherRoutesOnlyAppliedEvents(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe("image")
	defer sub.Close()
	producer := &fakeProducer{}
	d := NewDispatcher(context.Background(), producer, router)

	require.NoError(t, d.HandleEvent(producerEvent(t, TypeImageRemoved, `{"id":"img-1"}`)))
	got := <-sub.Events
	assert.Equal(t, TypeImageRemoved, got.Type)

	producer.err = errors.New("store closed")
	err := d.HandleEvent(producerEvent(t, TypeImageRemoved, `{"id":"img-2"}`))
	require.Error(t, err)
	select {
	case evt := <-sub.Events:
		t.Fatalf("failed event was routed: %+v", evt)
	default:
	}
}
