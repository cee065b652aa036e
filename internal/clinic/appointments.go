package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Clinic working hours; slots are generated on a fixed grid inside them.
const (
	openingHour = 9
	closingHour = 18
	slotStepMin = 30
	minVisitMin = 5
	maxVisitMin = 240
	controlScan = 14 * 24 * time.Hour
)

// AppointmentStore persists appointments.
type AppointmentStore interface {
	Create(ctx context.Context, a *Appointment) error
	Find(ctx context.Context, id string) (*Appointment, error)
	List(ctx context.Context, f AppointmentFilter) ([]*Appointment, error)
	Update(ctx context.Context, id string, upd AppointmentUpdate) (*Appointment, error)
	// DueReminders returns unsent reminders for active appointments starting
	// before the deadline.
	DueReminders(ctx context.Context, deadline time.Time) ([]*Appointment, error)
}

// ProcedureCatalog is the read side of the catalog the scheduler consults for
// follow-up windows.
type ProcedureCatalog interface {
	FindType(ctx context.Context, id string) (*ProcedureType, error)
}

// RoleDirectory resolves a user's stored role. The scheduler uses it to
// confirm the booking target actually is a doctor; nil skips the check.
type RoleDirectory interface {
	RoleOf(ctx context.Context, id string) (Role, error)
}

// Appointments implements scheduling on top of the store: booking validation,
// overlap rejection, slot generation and control-visit recommendations.
type Appointments struct {
	store     AppointmentStore
	catalog   ProcedureCatalog
	directory RoleDirectory
	now       func() time.Time
}

// NewAppointments constructs the scheduling service.
func NewAppointments(store AppointmentStore, catalog ProcedureCatalog, directory RoleDirectory) *Appointments {
	return &Appointments{store: store, catalog: catalog, directory: directory, now: time.Now}
}

// BookingRequest carries the fields needed to create an appointment.
type BookingRequest struct {
	PatientID             string
	DoctorID              string
	StartsAt              time.Time
	DurationMinutes       int
	Type                  string
	Reason                string
	Notes                 string
	PreviousAppointmentID string
	CreatedBy             string
}

// Book validates and stores a new appointment. Overlapping bookings for the
// same doctor are rejected with ErrSlotTaken.
func (s *Appointments) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if strings.TrimSpace(req.PatientID) == "" || strings.TrimSpace(req.DoctorID) == "" {
		return nil, fmt.Errorf("%w: patient and doctor ids are required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}
	if !validVisitType(req.Type) {
		return nil, fmt.Errorf("%w: unsupported appointment type %s", ErrInvalidInput, req.Type)
	}
	if req.DurationMinutes < minVisitMin || req.DurationMinutes > maxVisitMin {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes", ErrInvalidInput, minVisitMin, maxVisitMin)
	}
	start := req.StartsAt.UTC()
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	if start.Before(s.now().UTC()) {
		return nil, fmt.Errorf("%w: appointment starts in the past", ErrInvalidInput)
	}
	if !withinWorkingHours(start, end) {
		return nil, ErrNotBookable
	}
	if s.directory != nil {
		role, err := s.directory.RoleOf(ctx, req.DoctorID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrNotDoctor, req.DoctorID)
			}
			return nil, err
		}
		if role != RoleDoctor {
			return nil, fmt.Errorf("%w: %s", ErrNotDoctor, req.DoctorID)
		}
	}
	if err := s.ensureFree(ctx, req.DoctorID, start, end, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	appt := &Appointment{
		PatientID:             req.PatientID,
		DoctorID:              req.DoctorID,
		StartsAt:              start,
		EndsAt:                end,
		DurationMinutes:       req.DurationMinutes,
		Status:                AppointmentScheduled,
		Type:                  req.Type,
		Reason:                req.Reason,
		Notes:                 req.Notes,
		PreviousAppointmentID: req.PreviousAppointmentID,
		CreatedBy:             req.CreatedBy,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.store.Create(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// Find returns one appointment.
func (s *Appointments) Find(ctx context.Context, id string) (*Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: appointment id is required", ErrInvalidInput)
	}
	return s.store.Find(ctx, id)
}

// List returns appointments matching the filter.
func (s *Appointments) List(ctx context.Context, f AppointmentFilter) ([]*Appointment, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, fmt.Errorf("%w: endDate precedes startDate", ErrInvalidInput)
	}
	if f.Status != "" && !validStatus(f.Status) {
		return nil, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, f.Status)
	}
	return s.store.List(ctx, f)
}

// Reschedule applies partial updates; moving the slot re-runs the overlap
// check against the other bookings of the same doctor.
func (s *Appointments) Reschedule(ctx context.Context, id string, upd AppointmentUpdate) (*Appointment, error) {
	current, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == AppointmentCancelled || current.Status == AppointmentCompleted {
		return nil, ErrAlreadySettled
	}
	if upd.Status != nil && !validStatus(*upd.Status) {
		return nil, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, *upd.Status)
	}
	if upd.DurationMinutes != nil && (*upd.DurationMinutes < minVisitMin || *upd.DurationMinutes > maxVisitMin) {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes", ErrInvalidInput, minVisitMin, maxVisitMin)
	}
	if upd.StartsAt != nil || upd.DurationMinutes != nil {
		start := current.StartsAt
		if upd.StartsAt != nil {
			start = upd.StartsAt.UTC()
			*upd.StartsAt = start
		}
		duration := current.DurationMinutes
		if upd.DurationMinutes != nil {
			duration = *upd.DurationMinutes
		}
		end := start.Add(time.Duration(duration) * time.Minute)
		if !withinWorkingHours(start, end) {
			return nil, ErrNotBookable
		}
		if err := s.ensureFree(ctx, current.DoctorID, start, end, current.ID); err != nil {
			return nil, err
		}
	}
	return s.store.Update(ctx, id, upd)
}

// Cancel marks the appointment cancelled instead of deleting the record.
func (s *Appointments) Cancel(ctx context.Context, id, reason string) (*Appointment, error) {
	current, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == AppointmentCancelled || current.Status == AppointmentCompleted {
		return nil, ErrAlreadySettled
	}
	status := AppointmentCancelled
	return s.store.Update(ctx, id, AppointmentUpdate{
		Status:             &status,
		CancellationReason: &reason,
	})
}

// AvailableSlots returns the booking grid for one doctor and day. Taken slots
// are included with Available=false so clients can render the full day.
func (s *Appointments) AvailableSlots(ctx context.Context, doctorID string, day time.Time, durationMin int) ([]TimeSlot, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, fmt.Errorf("%w: doctor id is required", ErrInvalidInput)
	}
	if durationMin <= 0 {
		durationMin = slotStepMin
	}
	if durationMin < minVisitMin || durationMin > maxVisitMin {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes", ErrInvalidInput, minVisitMin, maxVisitMin)
	}

	day = day.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), openingHour, 0, 0, 0, time.UTC)
	dayEnd := time.Date(day.Year(), day.Month(), day.Day(), closingHour, 0, 0, 0, time.UTC)

	from, to := dayStart, dayEnd
	booked, err := s.store.List(ctx, AppointmentFilter{DoctorID: doctorID, From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	var slots []TimeSlot
	duration := time.Duration(durationMin) * time.Minute
	for start := dayStart; !start.Add(duration).After(dayEnd); start = start.Add(slotStepMin * time.Minute) {
		end := start.Add(duration)
		free := true
		for _, a := range booked {
			if a.Status == AppointmentCancelled {
				continue
			}
			if start.Before(a.EndsAt) && a.StartsAt.Before(end) {
				free = false
				break
			}
		}
		slots = append(slots, TimeSlot{Start: start, End: end, Available: free})
	}
	return slots, nil
}

// UpcomingControls lists control visits scheduled within the next two weeks,
// for operator and doctor dashboards.
func (s *Appointments) UpcomingControls(ctx context.Context) ([]*Appointment, error) {
	from := s.now().UTC()
	to := from.Add(controlScan)
	return s.store.List(ctx, AppointmentFilter{
		From:   &from,
		To:     &to,
		Type:   VisitControl,
		Status: AppointmentScheduled,
	})
}

// RecommendedControlDates derives follow-up windows from the procedure type's
// checkup intervals, anchored at the procedure date.
func (s *Appointments) RecommendedControlDates(ctx context.Context, procedureTypeID string, performedAt time.Time) ([]ControlRecommendation, error) {
	if s.catalog == nil {
		return nil, ErrNotFound
	}
	pt, err := s.catalog.FindType(ctx, procedureTypeID)
	if err != nil {
		return nil, err
	}
	anchor := performedAt.UTC().Truncate(24 * time.Hour)
	recs := make([]ControlRecommendation, 0, len(pt.CheckupIntervals))
	for _, iv := range pt.CheckupIntervals {
		recs = append(recs, ControlRecommendation{
			Stage:    iv.Stage,
			Required: iv.Required,
			Range: DateRange{
				Earliest:    anchor.AddDate(0, 0, iv.MinDays),
				Latest:      anchor.AddDate(0, 0, iv.MaxDays),
				Recommended: anchor.AddDate(0, 0, iv.RecommendedDays),
			},
		})
	}
	return recs, nil
}

// DueReminders surfaces appointments that need a reminder before deadline.
func (s *Appointments) DueReminders(ctx context.Context, deadline time.Time) ([]*Appointment, error) {
	return s.store.DueReminders(ctx, deadline)
}

// MarkReminderSent flags the appointment after its reminder was dispatched.
func (s *Appointments) MarkReminderSent(ctx context.Context, id string) error {
	sent := true
	_, err := s.store.Update(ctx, id, AppointmentUpdate{ReminderSent: &sent})
	return err
}

func (s *Appointments) ensureFree(ctx context.Context, doctorID string, start, end time.Time, excludeID string) error {
	from, to := start, end
	existing, err := s.store.List(ctx, AppointmentFilter{DoctorID: doctorID, From: &from, To: &to})
	if err != nil {
		return err
	}
	for _, a := range existing {
		if a.ID == excludeID || a.Status == AppointmentCancelled {
			continue
		}
		if start.Before(a.EndsAt) && a.StartsAt.Before(end) {
			return ErrSlotTaken
		}
	}
	return nil
}

func withinWorkingHours(start, end time.Time) bool {
	if start.Day() != end.Day() || start.Month() != end.Month() || start.Year() != end.Year() {
		return false
	}
	open := time.Date(start.Year(), start.Month(), start.Day(), openingHour, 0, 0, 0, time.UTC)
	closed := time.Date(start.Year(), start.Month(), start.Day(), closingHour, 0, 0, 0, time.UTC)
	return !start.Before(open) && !end.After(closed)
}

func validStatus(s string) bool {
	switch s {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

func validVisitType(t string) bool {
	switch t {
	case VisitInitial, VisitFollowUp, VisitControl, VisitProcedure:
		return true
	}
	return false
}
