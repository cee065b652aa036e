// Package audit records who touched which clinic record. Entries are both
// persisted for the data access report and emitted as JSON log lines.
package audit

import (
	"context"
	"strings"
	"time"

	"medidesk.org/internal/auth"
	"medidesk.org/internal/ids"
	"medidesk.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is one recorded access or mutation.
type Entry struct {
	ID         string         `json:"id"`
	OccurredAt time.Time      `json:"occurredAt"`
	ActorID    string         `json:"actorId"`
	ActorRole  string         `json:"actorRole"`
	Action     string         `json:"action"`
	SubjectID  string         `json:"subjectId"`
	Decision   string         `json:"decision"`
	RequestID  string         `json:"requestId,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// ListBySubject returns entries touching one subject, newest first.
	ListBySubject(ctx context.Context, subjectID string) ([]*Entry, error)
}

// Recorder writes entries to the store and mirrors them to the log stream.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder wires the audit trail. A nil store keeps only the log stream.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record captures one event, enriched with the principal and request id from
// the context. Audit failures are reported but must not fail the request;
// callers decide whether to ignore the returned error.
func (r *Recorder) Record(ctx context.Context, action, subjectID, decision string, fields map[string]any) error {
	e := &Entry{
		ID:         ids.New(),
		OccurredAt: r.now().UTC(),
		Action:     action,
		SubjectID:  subjectID,
		Decision:   decision,
		RequestID:  RequestIDFromContext(ctx),
		Fields:     fields,
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		e.ActorID = p.ID
		e.ActorRole = string(p.Role)
	}
	r.emit(e)
	if r.store == nil {
		return nil
	}
	return r.store.Append(ctx, e)
}

// Report returns the recorded accesses for one subject, for the data access
// report endpoint.
func (r *Recorder) Report(ctx context.Context, subjectID string) ([]*Entry, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.ListBySubject(ctx, subjectID)
}

func (r *Recorder) emit(e *Entry) {
	line := map[string]any{
		"ts":      e.OccurredAt.Format(time.RFC3339Nano),
		"event":   e.Action,
		"subject": e.SubjectID,
	}
	if e.ActorID != "" {
		line["user_id"] = e.ActorID
	}
	if e.RequestID != "" {
		line["request_id"] = e.RequestID
	}
	if e.Decision != "" {
		line["decision"] = e.Decision
	}
	if len(e.Fields) > 0 {
		line["fields"] = e.Fields
	}
	obs.LogEvent("audit", line)
}
