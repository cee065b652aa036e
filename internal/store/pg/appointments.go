package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"medidesk.org/internal/clinic"
	"medidesk.org/internal/ids"
)

// Appointments implements clinic.AppointmentStore.
type Appointments struct {
	db *sql.DB
}

var _ clinic.AppointmentStore = (*Appointments)(nil)

// Appointments returns the appointment store bound to the shared pool.
func (s *Store) Appointments() *Appointments { return &Appointments{db: s.db} }

const appointmentColumns = `id, patient_id, doctor_id, starts_at, ends_at, duration_minutes, status,
	visit_type, reason, notes, previous_appointment_id, cancellation_reason, reminder_sent,
	created_by, created_at, updated_at`

func (a *Appointments) Create(ctx context.Context, appt *clinic.Appointment) error {
	if appt.ID == "" {
		appt.ID = ids.New()
	}
	_, err := a.db.ExecContext(ctx, `
		insert into appointments (id, patient_id, doctor_id, starts_at, ends_at, duration_minutes, status,
			visit_type, reason, notes, previous_appointment_id, cancellation_reason, reminder_sent, created_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.StartsAt, appt.EndsAt, appt.DurationMinutes,
		appt.Status, appt.Type, appt.Reason, nullIfEmpty(appt.Notes),
		nullIfEmpty(appt.PreviousAppointmentID), nullIfEmpty(appt.CancellationReason),
		appt.ReminderSent, appt.CreatedBy)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return clinic.ErrAlreadyExists
		case pgErrForeignKeyViolation:
			return clinic.ErrNotFound
		}
	}
	return err
}

func (a *Appointments) Find(ctx context.Context, id string) (*clinic.Appointment, error) {
	row := a.db.QueryRowContext(ctx,
		`select `+appointmentColumns+` from appointments where id = $1`, id)
	return scanAppointment(row)
}

func (a *Appointments) List(ctx context.Context, f clinic.AppointmentFilter) ([]*clinic.Appointment, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	add := func(cond string, value any) {
		where = append(where, fmt.Sprintf(cond, idx))
		args = append(args, value)
		idx++
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Type != "" {
		add("visit_type = $%d", f.Type)
	}
	if f.From != nil {
		add("ends_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("starts_at <= $%d", *f.To)
	}
	query := `select ` + appointmentColumns + ` from appointments`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by starts_at asc`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*clinic.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (a *Appointments) Update(ctx context.Context, id string, upd clinic.AppointmentUpdate) (*clinic.Appointment, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.StartsAt != nil {
		add("starts_at", *upd.StartsAt)
	}
	if upd.DurationMinutes != nil {
		add("duration_minutes", *upd.DurationMinutes)
	}
	if upd.StartsAt != nil || upd.DurationMinutes != nil {
		// ends_at is derived, recompute from the final values.
		sets = append(sets, "ends_at = starts_at + duration_minutes * interval '1 minute'")
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Notes != nil {
		add("notes", nullIfEmpty(*upd.Notes))
	}
	if upd.CancellationReason != nil {
		add("cancellation_reason", nullIfEmpty(*upd.CancellationReason))
	}
	if upd.ReminderSent != nil {
		add("reminder_sent", *upd.ReminderSent)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update appointments set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := a.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		if err := requireRow(res); err != nil {
			return nil, err
		}
	}
	return a.Find(ctx, id)
}

func (a *Appointments) DueReminders(ctx context.Context, deadline time.Time) ([]*clinic.Appointment, error) {
	rows, err := a.db.QueryContext(ctx, `
		select `+appointmentColumns+` from appointments
		where reminder_sent = false and status not in ('cancelled', 'completed') and starts_at <= $1
		order by starts_at asc
	`, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*clinic.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func scanAppointment(row rowScanner) (*clinic.Appointment, error) {
	var (
		appt     clinic.Appointment
		notes    sql.NullString
		previous sql.NullString
		cancel   sql.NullString
	)
	err := row.Scan(&appt.ID, &appt.PatientID, &appt.DoctorID, &appt.StartsAt, &appt.EndsAt,
		&appt.DurationMinutes, &appt.Status, &appt.Type, &appt.Reason, &notes, &previous,
		&cancel, &appt.ReminderSent, &appt.CreatedBy, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, clinic.ErrNotFound
		}
		return nil, err
	}
	appt.Notes = notes.String
	appt.PreviousAppointmentID = previous.String
	appt.CancellationReason = cancel.String
	return &appt, nil
}
