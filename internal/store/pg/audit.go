package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"medidesk.org/internal/audit"
)

// Audit implements audit.Store.
type Audit struct {
	db *sql.DB
}

var _ audit.Store = (*Audit)(nil)

// Audit returns the audit store bound to the shared pool.
func (s *Store) Audit() *Audit { return &Audit{db: s.db} }

func (a *Audit) Append(ctx context.Context, e *audit.Entry) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, actor_id, actor_role, action, subject_id, decision, request_id, fields)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.OccurredAt, e.ActorID, e.ActorRole, e.Action, e.SubjectID, e.Decision,
		nullIfEmpty(e.RequestID), fields)
	return err
}

func (a *Audit) ListBySubject(ctx context.Context, subjectID string) ([]*audit.Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		select id, occurred_at, actor_id, actor_role, action, subject_id, decision, coalesce(request_id, ''), fields
		from audit_log where subject_id = $1 order by occurred_at desc
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e      audit.Entry
			fields []byte
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &e.ActorRole, &e.Action,
			&e.SubjectID, &e.Decision, &e.RequestID, &fields); err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			_ = json.Unmarshal(fields, &e.Fields)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
