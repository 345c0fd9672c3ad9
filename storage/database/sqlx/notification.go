package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/event"
	"github.com/trezcool/masomo-audit/core/notification"
)

type notificationRow struct {
	ID                string      `db:"id"`
	Type              string      `db:"type"`
	Title             string      `db:"title"`
	Message           string      `db:"message"`
	Priority          string      `db:"priority"`
	RelatedEntityType null.String `db:"related_entity_type"`
	RelatedEntityID   null.String `db:"related_entity_id"`
	IsRead            bool        `db:"is_read"`
	ReadAt            dbTime      `db:"read_at"`
	EmailSent         bool        `db:"email_sent"`
	EmailSentAt       dbTime      `db:"email_sent_at"`
	CreatedAt         dbTime      `db:"created_at"`
}

func (r notificationRow) toNotification() notification.Notification {
	return notification.Notification{
		ID:                r.ID,
		Type:              event.Type(r.Type),
		Title:             r.Title,
		Message:           r.Message,
		Priority:          notification.Priority(r.Priority),
		RelatedEntityType: r.RelatedEntityType,
		RelatedEntityID:   r.RelatedEntityID,
		IsRead:            r.IsRead,
		ReadAt:            r.ReadAt.nullable(),
		EmailSent:         r.EmailSent,
		EmailSentAt:       r.EmailSentAt.nullable(),
		CreatedAt:         r.CreatedAt.value(),
	}
}

const notificationColumns = `id, type, title, message, priority, related_entity_type, related_entity_id,
	is_read, read_at, email_sent, email_sent_at, created_at`

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	q := `INSERT INTO notifications (` + notificationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(
		ctx, repo.db.Rebind(q),
		n.ID, string(n.Type), n.Title, n.Message, string(n.Priority), n.RelatedEntityType, n.RelatedEntityID,
		n.IsRead, nullTimeArg(repo.db, n.ReadAt), n.EmailSent, nullTimeArg(repo.db, n.EmailSentAt),
		timeArg(repo.db, n.CreatedAt),
	)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return repo.GetNotification(ctx, n.ID)
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	var row notificationRow
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return notification.Notification{}, core.NewNotFoundError("notification", id)
		}
		return notification.Notification{}, errors.Wrap(err, "getting notification")
	}
	return row.toNotification(), nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, filter notification.QueryFilter) ([]notification.Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications`
	var args []interface{}
	if filter.UnreadOnly {
		q += ` WHERE is_read = FALSE`
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.toNotification())
	}
	return ns, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE is_read = FALSE`)
	return count, errors.Wrap(err, "counting unread notifications")
}

func (repo *notificationRepository) MarkRead(ctx context.Context, id string, at time.Time) (notification.Notification, error) {
	q := `UPDATE notifications SET is_read = TRUE, read_at = ? WHERE id = ? AND is_read = FALSE`
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), timeArg(repo.db, at), id); err != nil {
		return notification.Notification{}, errors.Wrap(err, "marking notification read")
	}
	return repo.GetNotification(ctx, id)
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, snapshot, at time.Time) (int64, error) {
	q := `UPDATE notifications SET is_read = TRUE, read_at = ? WHERE is_read = FALSE AND created_at <= ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), timeArg(repo.db, at), timeArg(repo.db, snapshot))
	if err != nil {
		return 0, errors.Wrap(err, "marking all notifications read")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "marking all notifications read")
}

func (repo *notificationRepository) MarkEmailSent(ctx context.Context, id string, at time.Time) (notification.Notification, error) {
	q := `UPDATE notifications SET email_sent = TRUE, email_sent_at = ? WHERE id = ? AND email_sent = FALSE`
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), timeArg(repo.db, at), id); err != nil {
		return notification.Notification{}, errors.Wrap(err, "marking notification email sent")
	}
	return repo.GetNotification(ctx, id)
}
