package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored := n
	repo.db.table[n.ID] = &stored
	return n, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.table[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, core.NewNotFoundError("notification", id)
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, filter notification.QueryFilter) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ns := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		ns = append(ns, *n)
	}
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].ID > ns[j].ID
		}
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
	if filter.Limit > 0 && len(ns) > filter.Limit {
		ns = ns[:filter.Limit]
	}
	return ns, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, n := range repo.db.table {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, id string, at time.Time) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, ok := repo.db.table[id]
	if !ok {
		return notification.Notification{}, core.NewNotFoundError("notification", id)
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = null.TimeFrom(at)
	}
	return *n, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, snapshot, at time.Time) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var count int64
	for _, n := range repo.db.table {
		if !n.IsRead && !n.CreatedAt.After(snapshot) {
			n.IsRead = true
			n.ReadAt = null.TimeFrom(at)
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) MarkEmailSent(_ context.Context, id string, at time.Time) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, ok := repo.db.table[id]
	if !ok {
		return notification.Notification{}, core.NewNotFoundError("notification", id)
	}
	if !n.EmailSent {
		n.EmailSent = true
		n.EmailSentAt = null.TimeFrom(at)
	}
	return *n, nil
}
