package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device lookups with caching and thread safety.
// It wraps a Repository and keeps every device in memory so the rule
// dispatcher can resolve owner and topic without a query per reading.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the registry's own write methods.
//
// All public methods are thread-safe.
type Registry struct {
	repo     Repository
	cache    map[string]*Device
	cacheMu  sync.RWMutex
	// statusMu orders status writes so the cache matches the repository.
	statusMu sync.Mutex
	logger   Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// Call it on startup, and after anything that changes devices behind the
// registry's back.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID regardless of owner. This is the
// device directory lookup used by ingest: a reading names only its device,
// and the owner is taken from the result.
//
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.put(d)
	return d, nil
}

// GetOwnedDevice retrieves a device that belongs to ownerID. A device owned
// by someone else is reported as ErrDeviceNotFound.
func (r *Registry) GetOwnedDevice(ctx context.Context, ownerID, id string) (*Device, error) {
	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != ownerID {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}

// ListDevices returns the owner's devices that match filter, ordered by
// name. The returned devices are deep copies.
func (r *Registry) ListDevices(ownerID string, filter Filter) []Device {
	devices := []Device{}
	r.each(func(d *Device) {
		if d.OwnerID == ownerID && filter.matches(d) {
			devices = append(devices, *d.DeepCopy())
		}
	})

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// CreateDevice validates and persists a new device.
// An ID is generated if not provided; status starts as "off".
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.Status == "" {
		d.Status = StatusOff
	}

	if err := ValidateDevice(d); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.put(d)
	r.logger.Info("device created", "id", d.ID, "owner_id", d.OwnerID, "type", d.Type)
	return nil
}

// UpdateDevice persists changes to an owner's device. Owner, status and
// creation time are carried over from the stored device.
func (r *Registry) UpdateDevice(ctx context.Context, d *Device) error {
	existing, err := r.GetOwnedDevice(ctx, d.OwnerID, d.ID)
	if err != nil {
		return err
	}
	d.Status = existing.Status
	d.StatusUpdatedAt = existing.StatusUpdatedAt
	d.CreatedAt = existing.CreatedAt

	if err := ValidateDevice(d); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.put(d)
	r.logger.Info("device updated", "id", d.ID, "owner_id", d.OwnerID)
	return nil
}

// DeleteDevice removes an owner's device. Rules attached to the device are
// removed by the database; callers holding a rule cache must refresh it.
func (r *Registry) DeleteDevice(ctx context.Context, ownerID, id string) error {
	if _, err := r.GetOwnedDevice(ctx, ownerID, id); err != nil {
		return err
	}

	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id, "owner_id", ownerID)
	return nil
}

// SetDeviceStatus records the last command issued to a device.
// Concurrent writers race; the last one to land wins, in the repository
// and the cache alike.
func (r *Registry) SetDeviceStatus(ctx context.Context, id, status string) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}

	r.statusMu.Lock()
	defer r.statusMu.Unlock()

	now := time.Now().UTC()
	if err := r.repo.UpdateStatus(ctx, id, status, now); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.Status = status
		updated.StatusUpdatedAt = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device status updated", "id", id, "status", status)
	return nil
}

// CountByOwner returns how many devices ownerID has.
func (r *Registry) CountByOwner(ownerID string) int {
	n := 0
	r.each(func(d *Device) {
		if d.OwnerID == ownerID {
			n++
		}
	})
	return n
}

// put caches a copy of d.
func (r *Registry) put(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()
}

// each calls fn for every cached device under the read lock. fn must not
// modify the device or call back into the registry.
func (r *Registry) each(fn func(*Device)) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for _, d := range r.cache {
		fn(d)
	}
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int
	ByType       map[Type]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	stats := Stats{ByType: make(map[Type]int)}
	r.each(func(d *Device) {
		stats.TotalDevices++
		stats.ByType[d.Type]++
	})
	return stats
}
