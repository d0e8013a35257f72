package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/reading"
)

func fp(v float64) *float64 { return &v }

// ─── Mocks ────────────────────────────────────────────────────────

type mockDirectory map[string]automation.DeviceInfo

func (m mockDirectory) Lookup(_ context.Context, id string) (automation.DeviceInfo, error) {
	if d, ok := m[id]; ok {
		return d, nil
	}
	return automation.DeviceInfo{}, fmt.Errorf("%w: %s", automation.ErrDeviceNotFound, id)
}

type mockReadings struct {
	mu       sync.Mutex
	err      error
	readings []reading.Reading
}

func (m *mockReadings) Append(_ context.Context, r *reading.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	r.ID = fmt.Sprintf("rdg-%d", len(m.readings)+1)
	m.readings = append(m.readings, *r)
	return nil
}

type mockRules struct {
	err   error
	rules []automation.Rule
}

func (m *mockRules) ListEnabledRules(_ context.Context, deviceID string) ([]automation.Rule, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []automation.Rule
	for _, r := range m.rules {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
	topics []string
}

func (m *mockPublisher) Publish(_ context.Context, topic, _ string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn[m.calls] {
		return errors.New("broker unavailable")
	}
	m.topics = append(m.topics, topic)
	return nil
}

type mockState struct {
	mu     sync.Mutex
	status map[string]string
}

func (m *mockState) SetDeviceStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = status
	return nil
}

type mockActions struct {
	mu      sync.Mutex
	err     error
	actions []automation.TriggeredAction
}

func (m *mockActions) Append(_ context.Context, a *automation.TriggeredAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.actions = append(m.actions, *a)
	return nil
}

type mockMirror struct {
	mu       sync.Mutex
	readings []reading.Reading
}

func (m *mockMirror) MirrorReading(r reading.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
}

type mockHub struct {
	mu       sync.Mutex
	channels []string
}

func (m *mockHub) Broadcast(_, channel string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel)
}

// ─── Fixture ──────────────────────────────────────────────────────

type fixture struct {
	service   *Service
	readings  *mockReadings
	rules     *mockRules
	publisher *mockPublisher
	state     *mockState
	actions   *mockActions
	mirror    *mockMirror
	hub       *mockHub
}

func newFixture(rules ...automation.Rule) *fixture {
	dir := mockDirectory{"D": {ID: "D", OwnerID: "owner-1", Topic: "farm/D/cmd"}}
	f := &fixture{
		readings:  &mockReadings{},
		rules:     &mockRules{rules: rules},
		publisher: &mockPublisher{failOn: map[int]bool{}},
		state:     &mockState{status: map[string]string{}},
		actions:   &mockActions{},
		mirror:    &mockMirror{},
		hub:       &mockHub{},
	}
	dispatcher := automation.NewDispatcher(automation.DispatcherDeps{
		Devices:   dir,
		Publisher: f.publisher,
		State:     f.state,
		Actions:   f.actions,
	})
	f.service = NewService(Deps{
		Devices:    dir,
		Readings:   f.readings,
		Rules:      f.rules,
		Dispatcher: dispatcher,
		Hub:        f.hub,
		Mirror:     f.mirror,
	})
	return f
}

func tempRule(enabled bool) automation.Rule {
	return automation.Rule{ID: "temp", OwnerID: "owner-1", DeviceID: "D", ConditionType: automation.ConditionTemperature, Threshold: 30, Action: "on", Enabled: enabled}
}

func humidityRule(enabled bool) automation.Rule {
	return automation.Rule{ID: "hum", OwnerID: "owner-1", DeviceID: "D", ConditionType: automation.ConditionHumidity, Threshold: 50, Action: "on", Enabled: enabled}
}

func fullRequest() Request {
	return Request{DeviceID: "D", Temperature: fp(35), Humidity: fp(40), Moisture: fp(50)}
}

// ─── Tests ────────────────────────────────────────────────────────

func TestIngest_BothRulesFire(t *testing.T) {
	f := newFixture(tempRule(true), humidityRule(true))

	result, err := f.service.Ingest(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(result.Dispatches) != 2 || result.Failed() != 0 {
		t.Errorf("dispatches = %+v, want two successes", result.Dispatches)
	}
	if len(f.publisher.topics) != 2 {
		t.Errorf("published %d commands, want 2", len(f.publisher.topics))
	}
	if len(f.actions.actions) != 2 {
		t.Errorf("recorded %d actions, want 2", len(f.actions.actions))
	}
	for _, a := range f.actions.actions {
		if a.OwnerID != "owner-1" || a.ReadingID != result.Reading.ID {
			t.Errorf("action %+v not tied to owner and reading", a)
		}
	}
	if result.Reading.OwnerID != "owner-1" {
		t.Errorf("reading owner = %q, want owner-1", result.Reading.OwnerID)
	}
}

func TestIngest_DisabledHumidityRule(t *testing.T) {
	f := newFixture(tempRule(true), humidityRule(false))

	result, err := f.service.Ingest(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(result.Dispatches) != 1 || result.Dispatches[0].RuleID != "temp" {
		t.Errorf("dispatches = %+v, want only temp", result.Dispatches)
	}
}

func TestIngest_MissingTemperature(t *testing.T) {
	f := newFixture(tempRule(true), humidityRule(true))

	req := fullRequest()
	req.Temperature = nil
	result, err := f.service.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(result.Dispatches) != 1 || result.Dispatches[0].RuleID != "hum" {
		t.Errorf("dispatches = %+v, want only hum", result.Dispatches)
	}
}

func TestIngest_DispatchFailureStillSucceeds(t *testing.T) {
	f := newFixture(tempRule(true), humidityRule(true))
	f.publisher.failOn[1] = true

	result, err := f.service.Ingest(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("Ingest() error = %v, want success despite dispatch failure", err)
	}
	if result.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", result.Failed())
	}
	if !result.Dispatches[1].Success {
		t.Errorf("second rule = %+v, want success", result.Dispatches[1])
	}
	if len(f.readings.readings) != 1 {
		t.Errorf("stored %d readings, want 1", len(f.readings.readings))
	}
}

func TestIngest_ActionRecordFailure(t *testing.T) {
	f := newFixture(tempRule(true), humidityRule(true))
	f.actions.err = errors.New("disk full")

	result, err := f.service.Ingest(context.Background(), fullRequest())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Ingest() error = %v, want ErrPersistence", err)
	}
	if !errors.Is(err, automation.ErrPersistence) {
		t.Errorf("Ingest() error = %v, want it to wrap automation.ErrPersistence", err)
	}
	if result == nil || len(result.Dispatches) != 2 {
		t.Fatalf("result = %+v, want both firings reported", result)
	}
	if result.Failed() != 2 {
		t.Errorf("Failed() = %d, want 2", result.Failed())
	}
	if f.publisher.calls != 2 {
		t.Errorf("published %d commands, want 2", f.publisher.calls)
	}
	if len(f.readings.readings) != 1 {
		t.Errorf("stored %d readings, want 1", len(f.readings.readings))
	}
}

func TestIngest_LastFiredRuleSetsStatus(t *testing.T) {
	rules := []automation.Rule{
		{ID: "a", DeviceID: "D", ConditionType: automation.ConditionMoisture, Threshold: 60, Action: "valve_open", Enabled: true},
		{ID: "b", DeviceID: "D", ConditionType: automation.ConditionTemperature, Threshold: 30, Action: "mist", Enabled: true},
		{ID: "c", DeviceID: "D", ConditionType: automation.ConditionHumidity, Threshold: 45, Action: "pump_on", Enabled: true},
	}
	f := newFixture(rules...)

	if _, err := f.service.Ingest(context.Background(), fullRequest()); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if got := f.state.status["D"]; got != "pump_on" {
		t.Errorf("status = %q, want pump_on", got)
	}
}

func TestIngest_NoRulesStillStoresReading(t *testing.T) {
	f := newFixture()

	result, err := f.service.Ingest(context.Background(), Request{DeviceID: "D", Moisture: fp(10)})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(result.Dispatches) != 0 {
		t.Errorf("dispatches = %+v, want none", result.Dispatches)
	}
	if len(f.readings.readings) != 1 || len(f.mirror.readings) != 1 {
		t.Errorf("stored %d / mirrored %d readings, want 1 / 1", len(f.readings.readings), len(f.mirror.readings))
	}
	if len(f.hub.channels) != 1 || f.hub.channels[0] != ChannelReadingReceived {
		t.Errorf("hub channels = %v, want [%s]", f.hub.channels, ChannelReadingReceived)
	}
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		readingErr error
		rulesErr   error
		wantErr    error
		wantStored int
		wantResult bool
	}{
		{"unknown device", Request{DeviceID: "X", Temperature: fp(40)}, nil, nil, ErrDeviceNotFound, 0, false},
		{"missing device id", Request{Temperature: fp(40)}, nil, nil, ErrInvalidReading, 0, false},
		{"invalid reading", Request{DeviceID: "D"}, reading.ErrInvalidReading, nil, ErrInvalidReading, 0, false},
		{"store failure", fullRequest(), errors.New("disk full"), nil, ErrPersistence, 0, false},
		{"rule store failure", fullRequest(), nil, errors.New("closed"), ErrRuleStore, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tempRule(true))
			f.readings.err = tt.readingErr
			f.rules.err = tt.rulesErr

			result, err := f.service.Ingest(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Ingest() error = %v, want %v", err, tt.wantErr)
			}
			if (result != nil) != tt.wantResult {
				t.Errorf("Ingest() result = %+v, want present=%v", result, tt.wantResult)
			}
			if len(f.readings.readings) != tt.wantStored {
				t.Errorf("stored %d readings, want %d", len(f.readings.readings), tt.wantStored)
			}
			if f.publisher.calls != 0 {
				t.Errorf("published %d commands, want 0", f.publisher.calls)
			}
		})
	}
}
