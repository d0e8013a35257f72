package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockRepository is an in-memory Repository.
type mockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	listN   int

	createErr   error
	statusErr   error
	statusDelay func(status string) time.Duration
}

func newMockRepository() *mockRepository {
	return &mockRepository{devices: make(map[string]*Device)}
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *mockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listN++
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	return devices, nil
}

func (m *mockRepository) ListByOwner(ctx context.Context, ownerID string) ([]Device, error) {
	all, _ := m.List(ctx) //nolint:errcheck // never fails
	var devices []Device
	for _, d := range all {
		if d.OwnerID == ownerID {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

func (m *mockRepository) Create(_ context.Context, d *Device) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; ok {
		return ErrDeviceExists
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *mockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; !ok {
		return ErrDeviceNotFound
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id, status string, at time.Time) error {
	if m.statusErr != nil {
		return m.statusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Status = status
	d.StatusUpdatedAt = &at
	if m.statusDelay != nil {
		m.mu.Unlock()
		time.Sleep(m.statusDelay(status))
		m.mu.Lock()
	}
	return nil
}

func newTestRegistry(t *testing.T, devices ...*Device) (*Registry, *mockRepository) {
	t.Helper()
	repo := newMockRepository()
	for _, d := range devices {
		repo.devices[d.ID] = d
	}
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	return reg, repo
}

func pump(owner string) *Device {
	return &Device{ID: "dev-pump", OwnerID: owner, Name: "Pump", Type: TypeActuator, Topic: "farm/pump", Status: StatusOff}
}

// ─── Lookups ──────────────────────────────────────────────────────

func TestRegistry_GetDevice(t *testing.T) {
	reg, _ := newTestRegistry(t, pump("owner-1"))

	d, err := reg.GetDevice(context.Background(), "dev-pump")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.OwnerID != "owner-1" || d.Topic != "farm/pump" {
		t.Errorf("GetDevice() = %+v", d)
	}

	if _, err := reg.GetDevice(context.Background(), "dev-missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(missing) = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_GetDeviceFallsBackToRepository(t *testing.T) {
	reg, repo := newTestRegistry(t)
	repo.devices["dev-late"] = &Device{ID: "dev-late", OwnerID: "owner-1", Name: "Late", Type: TypeSensor}

	if _, err := reg.GetDevice(context.Background(), "dev-late"); err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got := reg.GetDeviceCount(); got != 1 {
		t.Errorf("GetDeviceCount() = %d, want 1 after fallback", got)
	}
}

func TestRegistry_GetDeviceReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t, pump("owner-1"))

	d, _ := reg.GetDevice(context.Background(), "dev-pump") //nolint:errcheck // checked below
	d.Topic = "mutated"

	again, err := reg.GetDevice(context.Background(), "dev-pump")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if again.Topic != "farm/pump" {
		t.Errorf("cache was mutated through returned device: Topic = %q", again.Topic)
	}
}

func TestRegistry_GetOwnedDevice(t *testing.T) {
	reg, _ := newTestRegistry(t, pump("owner-1"))
	ctx := context.Background()

	if _, err := reg.GetOwnedDevice(ctx, "owner-1", "dev-pump"); err != nil {
		t.Errorf("GetOwnedDevice(owner) error = %v", err)
	}
	if _, err := reg.GetOwnedDevice(ctx, "owner-2", "dev-pump"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetOwnedDevice(other owner) = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_ListDevices(t *testing.T) {
	farm := "farm-1"
	reg, _ := newTestRegistry(t,
		&Device{ID: "dev-1", OwnerID: "owner-1", FarmID: &farm, Name: "Valve", Type: TypeActuator, Topic: "v"},
		&Device{ID: "dev-2", OwnerID: "owner-1", Name: "Moisture", Type: TypeSensor},
		&Device{ID: "dev-3", OwnerID: "owner-2", Name: "Other", Type: TypeSensor},
	)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all for owner", Filter{}, []string{"dev-2", "dev-1"}},
		{"by farm", Filter{FarmID: "farm-1"}, []string{"dev-1"}},
		{"by type", Filter{Type: TypeSensor}, []string{"dev-2"}},
		{"no match", Filter{FarmID: "farm-9"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reg.ListDevices("owner-1", tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("ListDevices() returned %d devices, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("ListDevices()[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	if n := reg.CountByOwner("owner-1"); n != 2 {
		t.Errorf("CountByOwner() = %d, want 2", n)
	}
}

// ─── Writes ───────────────────────────────────────────────────────

func TestRegistry_CreateDevice(t *testing.T) {
	reg, repo := newTestRegistry(t)

	d := &Device{OwnerID: "owner-1", Name: "Sprinkler", Type: TypeActuator, Topic: "farm/sprinkler"}
	if err := reg.CreateDevice(context.Background(), d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if d.ID == "" {
		t.Fatal("CreateDevice() did not assign an ID")
	}
	if d.Status != StatusOff {
		t.Errorf("Status = %q, want %q", d.Status, StatusOff)
	}
	if _, ok := repo.devices[d.ID]; !ok {
		t.Error("device not persisted")
	}
	if reg.GetDeviceCount() != 1 {
		t.Errorf("GetDeviceCount() = %d, want 1", reg.GetDeviceCount())
	}
}

func TestRegistry_CreateDeviceValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)

	d := &Device{OwnerID: "owner-1", Name: "Pump", Type: TypeActuator}
	if err := reg.CreateDevice(context.Background(), d); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("CreateDevice(actuator without topic) = %v, want ErrInvalidTopic", err)
	}
	if reg.GetDeviceCount() != 0 {
		t.Error("invalid device was cached")
	}
}

func TestRegistry_CreateDeviceRepositoryError(t *testing.T) {
	reg, repo := newTestRegistry(t)
	repo.createErr = errors.New("disk full")

	d := &Device{OwnerID: "owner-1", Name: "Moisture", Type: TypeSensor}
	if err := reg.CreateDevice(context.Background(), d); err == nil {
		t.Fatal("CreateDevice() expected error")
	}
	if reg.GetDeviceCount() != 0 {
		t.Error("failed device was cached")
	}
}

func TestRegistry_UpdateDeviceKeepsStatus(t *testing.T) {
	existing := pump("owner-1")
	existing.Status = "turn_on"
	reg, _ := newTestRegistry(t, existing)
	ctx := context.Background()

	update := &Device{ID: "dev-pump", OwnerID: "owner-1", Name: "Big Pump", Type: TypeActuator, Topic: "farm/pump/big", Status: "hacked"}
	if err := reg.UpdateDevice(ctx, update); err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}

	got, _ := reg.GetDevice(ctx, "dev-pump") //nolint:errcheck // present
	if got.Name != "Big Pump" || got.Topic != "farm/pump/big" {
		t.Errorf("got name=%q topic=%q", got.Name, got.Topic)
	}
	if got.Status != "turn_on" {
		t.Errorf("Status = %q, want turn_on (unchanged)", got.Status)
	}

	other := &Device{ID: "dev-pump", OwnerID: "owner-2", Name: "Mine", Type: TypeActuator, Topic: "x"}
	if err := reg.UpdateDevice(ctx, other); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateDevice(other owner) = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_DeleteDevice(t *testing.T) {
	reg, _ := newTestRegistry(t, pump("owner-1"))
	ctx := context.Background()

	if err := reg.DeleteDevice(ctx, "owner-2", "dev-pump"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("DeleteDevice(other owner) = %v, want ErrDeviceNotFound", err)
	}
	if err := reg.DeleteDevice(ctx, "owner-1", "dev-pump"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := reg.GetDevice(ctx, "dev-pump"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() after delete = %v, want ErrDeviceNotFound", err)
	}
}

// ─── Status ───────────────────────────────────────────────────────

func TestRegistry_SetDeviceStatus(t *testing.T) {
	reg, repo := newTestRegistry(t, pump("owner-1"))
	ctx := context.Background()

	if err := reg.SetDeviceStatus(ctx, "dev-pump", "turn_on"); err != nil {
		t.Fatalf("SetDeviceStatus() error = %v", err)
	}
	if err := reg.SetDeviceStatus(ctx, "dev-pump", "turn_off"); err != nil {
		t.Fatalf("SetDeviceStatus() error = %v", err)
	}

	got, _ := reg.GetDevice(ctx, "dev-pump") //nolint:errcheck // present
	if got.Status != "turn_off" {
		t.Errorf("cached Status = %q, want turn_off (last write wins)", got.Status)
	}
	if got.StatusUpdatedAt == nil {
		t.Error("StatusUpdatedAt not set")
	}
	if repo.devices["dev-pump"].Status != "turn_off" {
		t.Errorf("stored Status = %q, want turn_off", repo.devices["dev-pump"].Status)
	}
}

func TestRegistry_SetDeviceStatusError(t *testing.T) {
	reg, repo := newTestRegistry(t, pump("owner-1"))
	repo.statusErr = errors.New("locked")
	ctx := context.Background()

	if err := reg.SetDeviceStatus(ctx, "dev-pump", "turn_on"); err == nil {
		t.Fatal("SetDeviceStatus() expected error")
	}
	got, _ := reg.GetDevice(ctx, "dev-pump") //nolint:errcheck // present
	if got.Status != StatusOff {
		t.Errorf("cached Status = %q after failed write, want %q", got.Status, StatusOff)
	}
}

func TestRegistry_ConcurrentStatusWritesAgree(t *testing.T) {
	reg, repo := newTestRegistry(t, pump("owner-1"))
	ctx := context.Background()
	// Early writers return slowest, so they would land in the cache last.
	repo.statusDelay = func(status string) time.Duration {
		var n int
		fmt.Sscanf(status, "cmd_%d", &n) //nolint:errcheck // always matches
		return time.Duration(20-n) * time.Millisecond
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.SetDeviceStatus(ctx, "dev-pump", fmt.Sprintf("cmd_%d", i)) //nolint:errcheck // racing writers
		}()
	}
	wg.Wait()

	cached, _ := reg.GetDevice(ctx, "dev-pump") //nolint:errcheck // present
	stored, _ := repo.GetByID(ctx, "dev-pump")  //nolint:errcheck // present
	if cached.Status != stored.Status {
		t.Errorf("cached Status = %q, stored Status = %q, want equal", cached.Status, stored.Status)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg, _ := newTestRegistry(t, pump("owner-1"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.SetDeviceStatus(ctx, "dev-pump", "turn_on") //nolint:errcheck // racing writers
		}()
		go func() {
			defer wg.Done()
			_, _ = reg.GetDevice(ctx, "dev-pump") //nolint:errcheck // racing readers
			_ = reg.ListDevices("owner-1", Filter{})
		}()
	}
	wg.Wait()

	stats := reg.GetStats()
	if stats.TotalDevices != 1 || stats.ByType[TypeActuator] != 1 {
		t.Errorf("GetStats() = %+v", stats)
	}
}
