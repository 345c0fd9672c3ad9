// Package notification turns ledger & payment events into administrator notifications.
// Notifications are organization-wide: any active admin may read and acknowledge any of them.
package notification

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/access"
	"github.com/trezcool/masomo-audit/core/event"
	"github.com/trezcool/masomo-audit/core/principal"
)

var NowFunc = time.Now

func now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

type (
	// Repository persists notifications.
	// MarkRead and MarkEmailSent only set flags that are still unset and return the current row.
	// MarkAllRead only touches notifications created at or before `snapshot`.
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		QueryNotifications(ctx context.Context, filter QueryFilter) ([]Notification, error)
		CountUnread(ctx context.Context) (int, error)
		MarkRead(ctx context.Context, id string, at time.Time) (Notification, error)
		MarkAllRead(ctx context.Context, snapshot, at time.Time) (int64, error)
		MarkEmailSent(ctx context.Context, id string, at time.Time) (Notification, error)
	}

	Dispatcher struct {
		repo   Repository
		rules  Rules
		mailer core.EmailService
		conf   *core.Config
		log    core.Logger
	}
)

var _ event.Handler = (*Dispatcher)(nil)

func NewDispatcher(repo Repository, rules Rules, mailer core.EmailService, conf *core.Config, log core.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, rules: rules, mailer: mailer, conf: conf, log: log}
}

func notFound(id string) error {
	return core.NewNotFoundError("notification", id)
}

// Create stores the notification raised by ev and emails it when its priority calls for it.
func (d *Dispatcher) Create(ctx context.Context, ev event.Event) (Notification, error) {
	title, prio, ok := d.rules.Classify(ev)
	if !ok {
		return Notification{}, core.NewValidationError(
			nil, core.FieldError{Field: "type", Error: fmt.Sprintf("no notification rule for %q", ev.Type)},
		)
	}

	n := Notification{
		ID:                uuid.NewString(),
		Type:              ev.Type,
		Title:             title,
		Message:           message(ev),
		Priority:          prio,
		RelatedEntityType: null.NewString(ev.RelatedEntityType, ev.RelatedEntityType != ""),
		RelatedEntityID:   null.NewString(ev.RelatedEntityID, ev.RelatedEntityID != ""),
		CreatedAt:         now(),
	}
	n, err := d.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}

	d.email(n)
	return n, nil
}

// HandleEvent consumes events delivered by the event bus.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev event.Event) error {
	_, err := d.Create(ctx, ev)
	return err
}

func message(ev event.Event) string {
	var amount string
	if ev.Amount != nil {
		amount = ev.Amount.StringFixed(2) + " " + ev.Currency
	}
	from := ""
	if ev.Subject != "" {
		from = " from " + ev.Subject
	}

	switch ev.Type {
	case event.TransactionRecorded:
		return fmt.Sprintf("%s recorded%s in %s unit #%d.", amount, from, ev.Domain, ev.UnitID)
	case event.PaymentReceived:
		return fmt.Sprintf("Payment of %s received%s for school #%d.", amount, from, ev.UnitID)
	case event.TransactionReversed:
		return fmt.Sprintf("A verified transaction of %s was reversed in %s unit #%d.", amount, ev.Domain, ev.UnitID)
	case event.SubmissionPending:
		if ev.Subject != "" {
			return fmt.Sprintf("%q is awaiting review.", ev.Subject)
		}
		return "A submission is awaiting review."
	}
	return string(ev.Type)
}

func (d *Dispatcher) recipients() []mail.Address {
	addrs := make([]mail.Address, 0, len(d.conf.Email.NotifyRecipients))
	for _, r := range d.conf.Email.NotifyRecipients {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			d.log.Warn(fmt.Sprintf("invalid notification recipient %q: %v", r, err))
			continue
		}
		addrs = append(addrs, *addr)
	}
	return addrs
}

// email hands n over to the email transport; the transport reports delivery through MarkEmailSent.
func (d *Dispatcher) email(n Notification) {
	if d.mailer == nil || d.conf.Email.DisableNotifyEmails {
		return
	}
	if minPrio := Priority(d.conf.Email.NotifyMinPriority); minPrio.Valid() && !n.Priority.AtLeast(minPrio) {
		return
	}
	to := d.recipients()
	if len(to) == 0 {
		return
	}

	id := n.ID
	d.mailer.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      n.Title,
		TemplateName: "notification",
		TemplateData: n,
		Sent: func(at time.Time) {
			if _, err := d.MarkEmailSent(context.Background(), id, at); err != nil {
				d.log.Error(fmt.Sprintf("marking notification email sent: %v", err), err)
			}
		},
	})
}

// ListFor returns the notifications newest first; all admins share the same notifications.
func (d *Dispatcher) ListFor(ctx context.Context, p principal.Principal, filter QueryFilter) ([]Notification, error) {
	if _, err := access.Resolve(p); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	} else if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	ns, err := d.repo.QueryNotifications(ctx, filter)
	return ns, errors.Wrap(err, "querying notifications")
}

func (d *Dispatcher) Get(ctx context.Context, p principal.Principal, id string) (Notification, error) {
	if _, err := access.Resolve(p); err != nil {
		return Notification{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Notification{}, notFound(id)
	}
	return d.repo.GetNotification(ctx, id)
}

func (d *Dispatcher) UnreadCount(ctx context.Context, p principal.Principal) (int, error) {
	if _, err := access.Resolve(p); err != nil {
		return 0, err
	}
	count, err := d.repo.CountUnread(ctx)
	return count, errors.Wrap(err, "counting unread notifications")
}

// MarkRead is idempotent: an already read notification keeps its first read timestamp.
func (d *Dispatcher) MarkRead(ctx context.Context, p principal.Principal, id string) (Notification, error) {
	if _, err := access.Resolve(p); err != nil {
		return Notification{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Notification{}, notFound(id)
	}
	return d.repo.MarkRead(ctx, id, now())
}

// MarkAllRead marks the notifications unread at call time; notifications created afterwards stay unread.
func (d *Dispatcher) MarkAllRead(ctx context.Context, p principal.Principal) (int64, error) {
	if _, err := access.Resolve(p); err != nil {
		return 0, err
	}
	snapshot := now()
	count, err := d.repo.MarkAllRead(ctx, snapshot, snapshot)
	return count, errors.Wrap(err, "marking all notifications read")
}

// MarkEmailSent records the email transport's delivery; it is never reversed.
func (d *Dispatcher) MarkEmailSent(ctx context.Context, id string, at time.Time) (Notification, error) {
	return d.repo.MarkEmailSent(ctx, id, at.UTC().Truncate(time.Microsecond))
}
