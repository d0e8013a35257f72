package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Broker        BrokerMetrics   `json:"broker"`
	Devices       DeviceMetrics   `json:"devices"`
	Rules         RuleMetrics     `json:"rules"`
	Database      DatabaseMetrics `json:"database"`
	Audit         AuditMetrics    `json:"audit"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// BrokerMetrics contains command transport statistics.
type BrokerMetrics struct {
	Configured    bool     `json:"configured"`
	Connected     bool     `json:"connected"`
	Subscriptions []string `json:"subscriptions,omitempty"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// RuleMetrics contains rule registry statistics.
type RuleMetrics struct {
	Total int `json:"total"`
}

// AuditMetrics contains audit queue statistics.
type AuditMetrics struct {
	Enabled bool   `json:"enabled"`
	Queued  int    `json:"queued"`
	Dropped uint64 `json:"dropped"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics reports process, registry and transport statistics. It is
// not owner scoped.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       runtimeMetrics(),
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.DroppedCount(),
		},
		Broker:   s.brokerMetrics(),
		Devices:  s.deviceMetrics(),
		Rules:    RuleMetrics{Total: s.rules.GetRuleCount()},
		Database: s.databaseMetrics(),
		Audit:    s.auditMetrics(),
	})
}

func runtimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	const mb = 1 << 20
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(mem.Alloc) / mb,
		MemoryTotalMB: float64(mem.TotalAlloc) / mb,
		NumGC:         mem.NumGC,
	}
}

func (s *Server) brokerMetrics() BrokerMetrics {
	if s.broker == nil {
		return BrokerMetrics{}
	}
	m := BrokerMetrics{Configured: true, Connected: s.broker.IsConnected()}
	if l, ok := s.broker.(subscriptionLister); ok {
		m.Subscriptions = l.Subscriptions()
	}
	return m
}

func (s *Server) deviceMetrics() DeviceMetrics {
	stats := s.devices.GetStats()
	m := DeviceMetrics{Total: stats.TotalDevices, ByType: make(map[string]int, len(stats.ByType))}
	for typ, n := range stats.ByType {
		m.ByType[string(typ)] = n
	}
	return m
}

func (s *Server) databaseMetrics() DatabaseMetrics {
	if s.db == nil {
		return DatabaseMetrics{}
	}
	st := s.db.Stats()
	return DatabaseMetrics{
		OpenConnections: st.OpenConnections,
		InUse:           st.InUse,
		Idle:            st.Idle,
		WaitCount:       st.WaitCount,
	}
}

func (s *Server) auditMetrics() AuditMetrics {
	if s.auditQ == nil {
		return AuditMetrics{}
	}
	return AuditMetrics{
		Enabled: true,
		Queued:  len(s.auditQ.entries),
		Dropped: s.auditQ.droppedCount(),
	}
}
