package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"medidesk.org/internal/clinic"
	"medidesk.org/internal/obs"
)

const reminderWorkers = 4

// Reminder periodically finds appointments starting within the lead time and
// pushes a reminder notification for each.
type Reminder struct {
	appointments  *clinic.Appointments
	notifications *clinic.Notifications
	stream        *Stream
	leadTime      time.Duration
	cron          *cron.Cron
	now           func() time.Time
}

// NewReminder wires the reminder job.
func NewReminder(appts *clinic.Appointments, notifs *clinic.Notifications, stream *Stream, leadTime time.Duration) *Reminder {
	return &Reminder{
		appointments:  appts,
		notifications: notifs,
		stream:        stream,
		leadTime:      leadTime,
		cron:          cron.New(),
		now:           time.Now,
	}
}

// Start schedules the sweep on the given cron spec and begins running it.
func (r *Reminder) Start(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Sweep(ctx); err != nil {
			obs.LogEvent("error", map[string]any{
				"msg":   "reminder sweep failed",
				"error": err.Error(),
			})
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (r *Reminder) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep sends reminders for all appointments starting before now+leadTime.
// Dispatch is bounded so a large backlog cannot exhaust the pool.
func (r *Reminder) Sweep(ctx context.Context) error {
	deadline := r.now().UTC().Add(r.leadTime)
	due, err := r.appointments.DueReminders(ctx, deadline)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reminderWorkers)
	for _, appt := range due {
		g.Go(func() error {
			return r.send(ctx, appt)
		})
	}
	return g.Wait()
}

func (r *Reminder) send(ctx context.Context, appt *clinic.Appointment) error {
	n, err := r.notifications.Create(ctx, &clinic.Notification{
		UserID:       appt.PatientID,
		Type:         clinic.NotifyReminder,
		Title:        "Upcoming appointment",
		Message:      fmt.Sprintf("You have an appointment on %s.", appt.StartsAt.Format("2006-01-02 15:04")),
		ScheduledFor: appt.StartsAt,
	})
	if err != nil {
		return err
	}
	if err := r.appointments.MarkReminderSent(ctx, appt.ID); err != nil {
		return err
	}
	if r.stream != nil {
		r.stream.Publish(*n)
	}
	obs.ObserveReminder()
	return nil
}
