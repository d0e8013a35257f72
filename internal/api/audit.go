package api

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/smart-watering-core/internal/audit"
)

// auditQueueSize bounds the entries waiting to be written. Requests never
// wait on the audit log; entries beyond this are dropped.
const auditQueueSize = 256

// auditQueue writes entity change entries in the background, one at a time.
// A nil queue discards everything.
type auditQueue struct {
	repo    audit.Repository
	logger  auditLogger
	entries chan *audit.AuditLog
	dropped atomic.Uint64
}

// auditLogger is the part of the service logger the queue uses.
type auditLogger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func newAuditQueue(repo audit.Repository, logger auditLogger) *auditQueue {
	if repo == nil {
		return nil
	}
	return &auditQueue{
		repo:    repo,
		logger:  logger,
		entries: make(chan *audit.AuditLog, auditQueueSize),
	}
}

func (q *auditQueue) enqueue(entry *audit.AuditLog) {
	if q == nil {
		return
	}
	select {
	case q.entries <- entry:
	default:
		q.dropped.Add(1)
		q.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
		)
	}
}

// run writes entries until ctx is cancelled, then writes whatever is
// still queued.
func (q *auditQueue) run(ctx context.Context) {
	for {
		select {
		case entry := <-q.entries:
			q.write(entry)
		case <-ctx.Done():
			q.flush()
			return
		}
	}
}

// flush writes the queued entries without waiting for new ones.
func (q *auditQueue) flush() {
	for {
		select {
		case entry := <-q.entries:
			q.write(entry)
		default:
			return
		}
	}
}

func (q *auditQueue) write(entry *audit.AuditLog) {
	// The request that produced the entry may be long gone.
	if err := q.repo.Create(context.Background(), entry); err != nil {
		q.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

func (q *auditQueue) droppedCount() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}

// auditLog records a change made through the API by ownerID.
func (s *Server) auditLog(action, entityType, entityID, ownerID string, details map[string]any) {
	s.auditQ.enqueue(&audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OwnerID:    ownerID,
		Source:     "api",
		Details:    details,
	})
}

var (
	auditActions = map[string]bool{
		audit.ActionCreate: true, audit.ActionUpdate: true, audit.ActionDelete: true,
		audit.ActionToggle: true, audit.ActionCommand: true,
	}
	auditEntities = map[string]bool{
		audit.EntityFarm: true, audit.EntityDevice: true, audit.EntityRule: true,
	}
)

// handleListAuditLogs returns the owner's audit log entries, newest first.
//
// Query parameters:
//   - action: create, update, delete, toggle or command
//   - entity_type: farm, device or rule
//   - entity_id: a specific entity
//   - since: RFC 3339 timestamp, entries at or after it
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		OwnerID:    ownerID(r),
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if filter.Action != "" && !auditActions[filter.Action] {
		writeBadRequest(w, "unknown action: "+filter.Action)
		return
	}
	if filter.EntityType != "" && !auditEntities[filter.EntityType] {
		writeBadRequest(w, "unknown entity_type: "+filter.EntityType)
		return
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	var ok bool
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt reads an optional non-negative integer query parameter, writing
// a 400 when it is malformed.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
