package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/smart-watering-core/internal/infrastructure/config"
)

// ─── Helpers ───────────────────────────────────────────────────────

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "smartwatering-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprint(append([]any{msg}, args...)...))
}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, fmt.Sprint(append([]any{msg}, args...)...))
}

// ─── Topics ────────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	if got := topics.SystemStatus(); got != "smartwatering/system/status" {
		t.Errorf("SystemStatus() = %q", got)
	}
	if got := topics.SensorReading("dev-1"); got != "smartwatering/sensor/dev-1" {
		t.Errorf("SensorReading() = %q", got)
	}
	if got := topics.AllSensorReadings(); got != "smartwatering/sensor/+" {
		t.Errorf("AllSensorReadings() = %q", got)
	}
}

func TestSensorDeviceID(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"smartwatering/sensor/dev-1", "dev-1", true},
		{"smartwatering/sensor/", "", false},
		{"smartwatering/sensor/dev-1/extra", "", false},
		{"smartwatering/system/status", "", false},
		{"other/sensor/dev-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := Topics{}.SensorDeviceID(tt.topic)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("SensorDeviceID(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestValidatePublishTopic(t *testing.T) {
	valid := []string{"farm/pump-1/cmd", "pump", "a/b/c/d"}
	for _, topic := range valid {
		if err := validatePublishTopic(topic); err != nil {
			t.Errorf("validatePublishTopic(%q) = %v, want nil", topic, err)
		}
	}

	invalid := []string{"", "farm/+/cmd", "farm/#"}
	for _, topic := range invalid {
		if err := validatePublishTopic(topic); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("validatePublishTopic(%q) = %v, want ErrInvalidTopic", topic, err)
		}
	}
}

// ─── Options ───────────────────────────────────────────────────────

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "core", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "smartwatering-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "core" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want core/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if !opts.WillEnabled || opts.WillTopic != "smartwatering/system/status" || !opts.WillRetained {
		t.Errorf("will = (%v, %q, retained=%v)", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), `"unexpected_disconnect"`) {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig = nil")
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty without credentials", opts.Username)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal(statusPayload("core-1", "online", ""), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Status != "online" || msg.ClientID != "core-1" || msg.Timestamp == "" {
		t.Errorf("payload = %+v", msg)
	}
}

// ─── Disconnected client ───────────────────────────────────────────

func TestPublish_Validation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"wildcard topic", "farm/+/cmd", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "farm/pump", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "farm/pump", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "farm/pump", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newClient(testConfig())
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("a/b", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) = %v, want ErrNotConnected", err)
	}
	if got := c.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v, want none", got)
	}
	if err := c.Unsubscribe("a/b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe(disconnected) = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := newClient(testConfig())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v, want context.Canceled", err)
	}
}

func TestClose_NoSession(t *testing.T) {
	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
	if err := newClient(testConfig()).Close(); err != nil {
		t.Errorf("Close() without connect = %v", err)
	}
}

func TestQoS(t *testing.T) {
	cfg := testConfig()
	cfg.QoS = 2
	if got := newClient(cfg).QoS(); got != 2 {
		t.Errorf("QoS() = %d, want 2", got)
	}
}

// ─── Handler delivery ──────────────────────────────────────────────

func TestDeliver_LogsHandlerError(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.deliver(func(string, []byte) error { return errors.New("bad reading") },
		"smartwatering/sensor/dev-1", []byte("{}"))

	if len(logger.warns) != 1 || !strings.Contains(logger.warns[0], "bad reading") {
		t.Errorf("warns = %v, want one entry mentioning the handler error", logger.warns)
	}
}

func TestDeliver_RecoversPanic(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.deliver(func(string, []byte) error { panic("boom") }, "smartwatering/sensor/dev-1", nil)

	if len(logger.errs) != 1 {
		t.Errorf("errors = %v, want one panic entry", logger.errs)
	}
}

func TestDeliver_PassesTopicAndPayload(t *testing.T) {
	c := newClient(testConfig())

	var gotTopic, gotPayload string
	c.deliver(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	}, "smartwatering/sensor/dev-9", []byte(`{"moisture":21}`))

	if gotTopic != "smartwatering/sensor/dev-9" || gotPayload != `{"moisture":21}` {
		t.Errorf("handler got (%q, %q)", gotTopic, gotPayload)
	}
}
