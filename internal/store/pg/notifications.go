package pg

import (
	"context"
	"database/sql"
	"errors"

	"medidesk.org/internal/clinic"
	"medidesk.org/internal/ids"
)

// Notifications implements clinic.NotificationStore.
type Notifications struct {
	db *sql.DB
}

var _ clinic.NotificationStore = (*Notifications)(nil)

// Notifications returns the notification store bound to the shared pool.
func (s *Store) Notifications() *Notifications { return &Notifications{db: s.db} }

const notificationColumns = `id, user_id, kind, title, message, status, scheduled_for, sent_at, read_at, created_at`

func (n *Notifications) Create(ctx context.Context, notif *clinic.Notification) error {
	if notif.ID == "" {
		notif.ID = ids.New()
	}
	_, err := n.db.ExecContext(ctx, `
		insert into notifications (id, user_id, kind, title, message, status, scheduled_for, sent_at, read_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, notif.ID, notif.UserID, notif.Type, notif.Title, notif.Message, notif.Status,
		notif.ScheduledFor, notif.SentAt, notif.ReadAt)
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

func (n *Notifications) Find(ctx context.Context, id string) (*clinic.Notification, error) {
	row := n.db.QueryRowContext(ctx,
		`select `+notificationColumns+` from notifications where id = $1`, id)
	return scanNotification(row)
}

func (n *Notifications) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*clinic.Notification, error) {
	query := `select ` + notificationColumns + ` from notifications where user_id = $1`
	if unreadOnly {
		query += ` and read_at is null`
	}
	query += ` order by created_at desc`

	rows, err := n.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*clinic.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, notif)
	}
	return out, rows.Err()
}

func (n *Notifications) Update(ctx context.Context, notif *clinic.Notification) error {
	res, err := n.db.ExecContext(ctx, `
		update notifications set status = $1, sent_at = $2, read_at = $3 where id = $4
	`, notif.Status, notif.SentAt, notif.ReadAt, notif.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanNotification(row rowScanner) (*clinic.Notification, error) {
	var notif clinic.Notification
	err := row.Scan(&notif.ID, &notif.UserID, &notif.Type, &notif.Title, &notif.Message,
		&notif.Status, &notif.ScheduledFor, &notif.SentAt, &notif.ReadAt, &notif.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, clinic.ErrNotFound
		}
		return nil, err
	}
	return &notif, nil
}
