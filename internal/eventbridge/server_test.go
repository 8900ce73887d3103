package eventbridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/layerdeck/internal/config"
	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/order"
)

func testSettings(maxBody int64) Settings {
	return Settings{Enabled: true, Host: "127.0.0.1", Port: 0, MaxBodyBytes: maxBody, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
}

func startServer(t *testing.T, settings Settings, opts ...Option) *Server {
	t.Helper()
	srv := NewServer(settings, opts...)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return srv
}

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("LAYERDECK_BRIDGE_PORT", "9001")
	t.Setenv("LAYERDECK_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("LAYERDECK_BRIDGE_ENABLED", "false")
	cfg := &config.Config{}
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.Enabled {
		t.Fatalf("expected enabled=false from env override")
	}
}

func TestSettingsFromConfigUsesBridgeBlock(t *testing.T) {
	disabled := false
	cfg := &config.Config{Project: config.ProjectConfig{Bridge: config.BridgeConfig{Enabled: &disabled, Port: 7001}}}
	settings := SettingsFromConfig(cfg)
	if settings.Enabled || settings.Port != 7001 || settings.Host != DefaultHost {
		t.Fatalf("unexpected settings %+v", settings)
	}
}

func TestSettingsStreamOverrides(t *testing.T) {
	t.Setenv("LAYERDECK_BRIDGE_STREAM_BUFFER", "4")
	t.Setenv("LAYERDECK_BRIDGE_KEEPALIVE", "250ms")
	cfg := &config.Config{Project: config.ProjectConfig{Bridge: config.BridgeConfig{StreamBuffer: 64, KeepAliveMS: 5000}}}
	settings := SettingsFromConfig(cfg)
	if settings.StreamBuffer != 4 {
		t.Fatalf("env should win over config buffer, got %d", settings.StreamBuffer)
	}
	if settings.KeepAlive != 250*time.Millisecond {
		t.Fatalf("unexpected keep-alive %s", settings.KeepAlive)
	}
	if got := len(settings.RouterOptions(nil)); got != 2 {
		t.Fatalf("expected logger and capacity options, got %d", got)
	}
}

func TestSettingsIgnoresUnparsableEnv(t *testing.T) {
	t.Setenv("LAYERDECK_BRIDGE_PORT", "http")
	t.Setenv("LAYERDECK_BRIDGE_KEEPALIVE", "soon")
	settings := SettingsFromConfig(nil)
	if settings.Port != DefaultPort || settings.KeepAlive != DefaultKeepAlive {
		t.Fatalf("bad values should keep defaults: %+v", settings)
	}
}

func TestEventValidate(t *testing.T) {
	evt := Event{Type: " Image.Added "}
	evt.Normalize()
	if evt.EventID == "" {
		t.Fatalf("normalize should generate an event id")
	}
	if evt.Topic != "image" {
		t.Fatalf("topic = %q, want image", evt.Topic)
	}
	if err := evt.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
	evt.Version = 99
	if err := evt.Validate(); err == nil {
		t.Fatalf("expected version error")
	}
	evt.Version = EventSchemaVersion
	evt.Type = TypeOrderChanged
	if err := evt.Validate(); err == nil {
		t.Fatalf("producers must not post order.changed")
	}
}

func TestServerAcceptsEvents(t *testing.T) {
	t.Parallel()
	fixed := time.Unix(1730000000, 0).UTC()
	recorded := make(chan Event, 1)
	srv := startServer(t, testSettings(1024),
		WithClock(func() time.Time { return fixed }),
		WithProcessor(EventProcessorFunc(func(e Event) error {
			recorded <- e
			return nil
		})))
	base := srv.BaseURL()
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.StatusCode)
	}
	payload := Event{
		Version: EventSchemaVersion,
		EventID: "evt-1",
		Type:    TypeImageRemoved,
		Source:  "pipeline",
		Payload: json.RawMessage(`{"id":"img-1"}`),
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	resp, err = http.Post(base+"/events", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post event: %v", err)
	}
	var accepted eventResponse
	_ = json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if accepted.EventID != "evt-1" {
		t.Fatalf("accepted id = %q", accepted.EventID)
	}
	select {
	case evt := <-recorded:
		if !evt.ServerTime.Equal(fixed) {
			t.Fatalf("expected server time %s, got %s", fixed, evt.ServerTime)
		}
		if evt.Topic != "image" {
			t.Fatalf("expected topic derived from type, got %q", evt.Topic)
		}
	default:
		t.Fatalf("event not forwarded to processor")
	}
}

func TestServerRejectsBadPayloadWith400(t *testing.T) {
	t.Parallel()
	srv := startServer(t, testSettings(1024), WithProcessor(NewDispatcher(context.Background(), &fakeProducer{}, nil)))
	body := `{"type":"image.added","payload":{"record":{"name":"no id"}}}`
	resp, err := http.Post(srv.BaseURL()+"/events", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestServerEnforcesPayloadLimit(t *testing.T) {
	t.Parallel()
	srv := startServer(t, testSettings(64))
	tooLarge := bytes.Repeat([]byte("a"), 512)
	payload := map[string]any{
		"version":  EventSchemaVersion,
		"event_id": "evt",
		"type":     TypeCanvasRedrawn,
		"payload":  map[string]string{"note": string(tooLarge)},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(srv.BaseURL()+"/events", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

type staticOrder struct {
	snapshot order.Snapshot
}

func (s staticOrder) CurrentOrder(context.Context) (order.Snapshot, int, error) {
	return s.snapshot, order.DefaultBase, nil
}

func TestServerServesOrder(t *testing.T) {
	t.Parallel()
	snapshot := order.Snapshot{
		{ID: "a1", Kind: layer.KindAnnotation, DisplayOrder: 0, ZIndex: 101, Name: "Arrow", Ref: order.AnnotationRef{Record: layer.AnnotationRecord{ID: "a1"}}},
		{ID: "ghost", Kind: layer.KindImage, DisplayOrder: 1, ZIndex: 100, Name: "image ghost (unresolved)"},
	}
	srv := startServer(t, testSettings(1024), WithOrderSource(staticOrder{snapshot: snapshot}))
	resp, err := http.Get(srv.BaseURL() + "/order")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Base != 100 || len(got.Entries) != 2 {
		t.Fatalf("unexpected order response %+v", got)
	}
	if got.Entries[0].Kind != layer.KindAnnotation || got.Entries[0].Placeholder {
		t.Fatalf("first entry = %+v", got.Entries[0])
	}
	if !got.Entries[1].Placeholder {
		t.Fatalf("ghost entry should be a placeholder")
	}
}

func TestServerStreamsOrderChanges(t *testing.T) {
	t.Parallel()
	router := NewRouter()
	srv := startServer(t, testSettings(1024), WithRouter(router))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.BaseURL()+"/events/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	change := order.OrderChange{Seq: 7, Mode: order.ChangeFull, At: time.Unix(1730000000, 0), Dragged: "b", Target: "a"}
	if err := router.PublishOrderChange(change); err != nil {
		t.Fatalf("publish: %v", err)
	}

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	var evt Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Type != TypeOrderChanged || evt.Sequence != 7 {
		t.Fatalf("unexpected event %+v", evt)
	}
	var payload OrderPayload
	if err := evt.Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Mode != "full" || payload.Dragged != "b" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestServerStreamSendsKeepAlive(t *testing.T) {
	t.Parallel()
	settings := testSettings(1024)
	settings.KeepAlive = 10 * time.Millisecond
	srv := startServer(t, settings, WithRouter(NewRouter()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.BaseURL()+"/events/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if line != ": keep-alive\n" {
		t.Fatalf("expected keep-alive comment, got %q", line)
	}
}

func TestServerRejectsWrongMethod(t *testing.T) {
	t.Parallel()
	srv := startServer(t, testSettings(1024))
	resp, err := http.Get(srv.BaseURL() + "/events")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); !strings.Contains(allow, http.MethodPost) {
		t.Fatalf("unexpected Allow header %q", allow)
	}
}
