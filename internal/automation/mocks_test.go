package automation

import (
	"context"
	"fmt"
	"sync"
)

// mockDirectory is an in-memory DeviceDirectory.
type mockDirectory struct {
	mu      sync.Mutex
	devices map[string]DeviceInfo
}

func newMockDirectory(devices ...DeviceInfo) *mockDirectory {
	m := &mockDirectory{devices: make(map[string]DeviceInfo)}
	for _, d := range devices {
		m.devices[d.ID] = d
	}
	return m
}

func (m *mockDirectory) Lookup(_ context.Context, id string) (DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return DeviceInfo{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

type published struct {
	Topic    string
	DeviceID string
	Payload  []byte
}

// mockPublisher records publishes. failOn lists 1-based call numbers that fail.
type mockPublisher struct {
	mu       sync.Mutex
	calls    int
	failOn   map[int]bool
	messages []published
}

func (m *mockPublisher) Publish(_ context.Context, topic, deviceID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn[m.calls] {
		return fmt.Errorf("broker unavailable")
	}
	m.messages = append(m.messages, published{Topic: topic, DeviceID: deviceID, Payload: payload})
	return nil
}

// mockState records status writes in order.
type mockState struct {
	mu      sync.Mutex
	err     error
	history []string
	status  map[string]string
}

func newMockState() *mockState {
	return &mockState{status: make(map[string]string)}
}

func (m *mockState) SetDeviceStatus(_ context.Context, deviceID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.history = append(m.history, status)
	m.status[deviceID] = status
	return nil
}

// mockActions is an in-memory ActionSink that enforces (reading, rule)
// uniqueness like the database does.
type mockActions struct {
	mu      sync.Mutex
	err     error
	actions []TriggeredAction
}

func (m *mockActions) Append(_ context.Context, a *TriggeredAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.actions {
		if a.ReadingID != "" && a.RuleID != "" && existing.ReadingID == a.ReadingID && existing.RuleID == a.RuleID {
			return ErrDuplicateAction
		}
	}
	m.actions = append(m.actions, *a)
	return nil
}

type hubEvent struct {
	OwnerID string
	Channel string
}

type mockHub struct {
	mu     sync.Mutex
	events []hubEvent
}

func (m *mockHub) Broadcast(ownerID, channel string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, hubEvent{OwnerID: ownerID, Channel: channel})
}

type mockMirror struct {
	mu      sync.Mutex
	actions []TriggeredAction
}

func (m *mockMirror) MirrorTrigger(a TriggeredAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a)
}

// mockRuleRepo is an in-memory RuleRepository.
type mockRuleRepo struct {
	mu        sync.Mutex
	rules     map[string]*Rule
	updateErr error
}

func newMockRuleRepo() *mockRuleRepo {
	return &mockRuleRepo{rules: make(map[string]*Rule)}
}

func (m *mockRuleRepo) List(_ context.Context) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rules := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, *r.DeepCopy())
	}
	return rules, nil
}

func (m *mockRuleRepo) Create(_ context.Context, r *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[r.ID]; ok {
		return ErrRuleExists
	}
	m.rules[r.ID] = r.DeepCopy()
	return nil
}

func (m *mockRuleRepo) Update(_ context.Context, r *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.rules[r.ID]; !ok {
		return ErrRuleNotFound
	}
	m.rules[r.ID] = r.DeepCopy()
	return nil
}

func (m *mockRuleRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}
