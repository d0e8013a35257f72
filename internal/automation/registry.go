package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry and Dispatcher.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides rule management with caching and thread safety.
// It wraps a RuleRepository and adds an in-memory cache so ingest can list
// a device's enabled rules without a query per reading.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the registry's own write methods.
//
// All public methods are thread-safe.
type Registry struct {
	repo    RuleRepository
	devices DeviceDirectory
	cache   map[string]*Rule // Cached rules by ID
	cacheMu sync.RWMutex     // Protects cache
	logger  Logger
}

// NewRegistry creates a new rule registry. devices is used to check that a
// rule's device belongs to the rule's owner.
func NewRegistry(repo RuleRepository, devices DeviceDirectory) *Registry {
	return &Registry{
		repo:    repo,
		devices: devices,
		cache:   make(map[string]*Rule),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all rules from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	rules, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Rule, len(rules))
	for i := range rules {
		r.cache[rules[i].ID] = rules[i].DeepCopy()
	}

	r.logger.Info("rule cache refreshed", "count", len(rules))
	return nil
}

// ListEnabledRules returns the enabled rules of a device in creation order.
// This is the rule store read by ingest; the evaluator still checks Enabled.
func (r *Registry) ListEnabledRules(_ context.Context, deviceID string) ([]Rule, error) {
	return r.collect(func(rule *Rule) bool {
		return rule.DeviceID == deviceID && rule.Enabled
	}), nil
}

// GetRule retrieves one of the owner's rules.
// The returned rule is a deep copy; callers can safely modify it.
func (r *Registry) GetRule(_ context.Context, ownerID, id string) (*Rule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if cached, ok := r.cache[id]; ok && cached.OwnerID == ownerID {
		return cached.DeepCopy(), nil
	}
	return nil, ErrRuleNotFound
}

// ListRules returns the owner's rules in creation order, optionally
// limited to one device.
func (r *Registry) ListRules(_ context.Context, ownerID, deviceID string) ([]Rule, error) {
	return r.collect(func(rule *Rule) bool {
		return rule.OwnerID == ownerID && (deviceID == "" || rule.DeviceID == deviceID)
	}), nil
}

// CreateRule validates and persists a new rule. The rule's device must
// exist, belong to the rule's owner, and have a command topic.
func (r *Registry) CreateRule(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = GenerateRuleID()
	}
	rule.Days = normaliseDays(rule.Days)

	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := r.checkDevice(ctx, rule); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, rule); err != nil {
		return err
	}

	r.store(rule)
	r.logger.Info("rule created",
		"id", rule.ID,
		"device_id", rule.DeviceID,
		"condition_type", rule.ConditionType,
		"threshold", rule.Threshold,
		"action", rule.Action,
	)
	return nil
}

// UpdateRule replaces an existing rule of the same owner. CreatedAt is
// carried over from the stored rule.
func (r *Registry) UpdateRule(ctx context.Context, rule *Rule) error {
	existing, err := r.GetRule(ctx, rule.OwnerID, rule.ID)
	if err != nil {
		return err
	}
	rule.CreatedAt = existing.CreatedAt
	rule.Days = normaliseDays(rule.Days)

	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := r.checkDevice(ctx, rule); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, rule); err != nil {
		return err
	}

	r.store(rule)
	r.logger.Info("rule updated", "id", rule.ID, "enabled", rule.Enabled)
	return nil
}

// ToggleRule flips a rule between enabled and disabled and returns the
// updated rule.
func (r *Registry) ToggleRule(ctx context.Context, ownerID, id string) (*Rule, error) {
	rule, err := r.GetRule(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	rule.Enabled = !rule.Enabled

	if err := r.repo.Update(ctx, rule); err != nil {
		return nil, err
	}

	r.store(rule)
	r.logger.Info("rule toggled", "id", rule.ID, "enabled", rule.Enabled)
	return rule, nil
}

// DeleteRule removes one of the owner's rules.
func (r *Registry) DeleteRule(ctx context.Context, ownerID, id string) error {
	if _, err := r.GetRule(ctx, ownerID, id); err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("rule deleted", "id", id)
	return nil
}

// ForgetDevice drops the cached rules of a deleted device. The database
// removes the rows itself.
func (r *Registry) ForgetDevice(deviceID string) int {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	n := 0
	for id, rule := range r.cache {
		if rule.DeviceID == deviceID {
			delete(r.cache, id)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("dropped rules of deleted device", "device_id", deviceID, "count", n)
	}
	return n
}

// CountActive returns how many of the owner's rules are enabled.
func (r *Registry) CountActive(ownerID string) int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	n := 0
	for _, rule := range r.cache {
		if rule.OwnerID == ownerID && rule.Enabled {
			n++
		}
	}
	return n
}

// GetRuleCount returns the number of cached rules.
func (r *Registry) GetRuleCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) checkDevice(ctx context.Context, rule *Rule) error {
	dev, err := r.devices.Lookup(ctx, rule.DeviceID)
	if err != nil {
		return err
	}
	if dev.OwnerID != rule.OwnerID {
		return ErrDeviceNotFound
	}
	if dev.Topic == "" {
		return fmt.Errorf("%w: device %s has no command topic", ErrInvalidRule, dev.ID)
	}
	return nil
}

func (r *Registry) store(rule *Rule) {
	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()
}

func (r *Registry) collect(match func(*Rule) bool) []Rule {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	rules := []Rule{}
	for _, rule := range r.cache {
		if match(rule) {
			rules = append(rules, *rule.DeepCopy())
		}
	}
	sortRules(rules)
	return rules
}

// sortRules orders rules by creation time, then ID, matching the
// repository's natural order.
func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}
