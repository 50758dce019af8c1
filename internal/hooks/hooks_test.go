package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestDispatcherEmit(t *testing.T) {
	d := &Dispatcher{}
	var sequence []string
	d.Register(func(ctx context.Context, evt Event) error {
		sequence = append(sequence, "first:"+string(evt.Type))
		return nil
	})
	d.Register(nil)
	d.Register(func(ctx context.Context, evt Event) error {
		sequence = append(sequence, "second:"+evt.Metadata["barcode"].(string))
		return errors.New("second handler failed")
	})
	if d.Len() != 2 {
		t.Fatalf("expected nil handler to be ignored, got %d handlers", d.Len())
	}

	evt := NewEvent(EventProductScanned, 42, map[string]any{"barcode": "8992753033737"})
	err := d.Emit(context.Background(), evt)
	if err == nil || !strings.Contains(err.Error(), "second handler failed") {
		t.Fatalf("expected aggregated error, got %v", err)
	}
	if len(sequence) != 2 {
		t.Fatalf("expected two handlers to run, got %d", len(sequence))
	}
	if sequence[0] != "first:"+string(EventProductScanned) || sequence[1] != "second:8992753033737" {
		t.Fatalf("unexpected sequence %v", sequence)
	}
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventConsumptionRecorded, 7, nil)
	b := NewEvent(EventConsumptionRecorded, 7, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique ids, got %q and %q", a.ID, b.ID)
	}
	if a.UserID != "7" || a.ActorID != "7" {
		t.Fatalf("unexpected user fields %+v", a)
	}
}

func TestNewScriptHandlerRunsCommand(t *testing.T) {
	MarshalEvent = JSONMarshaler

	evt := NewEvent(EventProfileUpdated, 42, map[string]any{"sugar_limit": 25.0})
	handler := NewScriptHandler(ScriptConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcessScriptHandler", "--"},
		Env: map[string]string{
			"GO_WANT_HELPER_PROCESS": "1",
			"HOOK_EXPECT_ID":         evt.ID,
			"HOOK_EXPECT_TYPE":       string(evt.Type),
		},
		Timeout: 5 * time.Second,
	})

	if err := handler(context.Background(), evt); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
}

func TestHelperProcessScriptHandler(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	var payload Event
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil {
		io.WriteString(os.Stderr, "decode error: "+err.Error())
		os.Exit(2)
	}
	if payload.ID != os.Getenv("HOOK_EXPECT_ID") {
		io.WriteString(os.Stderr, "unexpected id")
		os.Exit(3)
	}
	if string(payload.Type) != os.Getenv("HOOK_EXPECT_TYPE") {
		io.WriteString(os.Stderr, "unexpected type")
		os.Exit(4)
	}
	os.Exit(0)
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestKafkaHandlerPublishesKeyedMessage(t *testing.T) {
	w := &captureWriter{}
	handler := NewKafkaHandler(w)
	evt := NewEvent(EventLimitExceeded, 9, map[string]any{"total": 61.5})

	if err := handler(context.Background(), evt); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "9" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != EventLimitExceeded || decoded.Metadata["total"].(float64) != 61.5 {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(EventLimitExceeded) {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}

	w.err = errors.New("broker down")
	if err := handler(context.Background(), evt); err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when enabled without a sink")
	}

	cfg.ScriptPath = "/tmp/hook.sh"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if cfg.BuildScriptHandler() == nil {
		t.Fatalf("expected handler when config enabled")
	}

	cfg.KafkaBrokers = []string{"localhost:9092"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for brokers without topic")
	}
	cfg.KafkaTopic = "sugartrack.events"
	if err := cfg.Validate(); err != nil || !cfg.KafkaEnabled() {
		t.Fatalf("expected kafka sink to validate: %v", err)
	}

	disabled := Config{}
	if handler := disabled.BuildScriptHandler(); handler != nil {
		t.Fatalf("expected nil handler when config disabled")
	}
}
