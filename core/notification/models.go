package notification

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-audit/core/event"
)

type Priority string

// Priorities
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRanks = map[Priority]int{
	PriorityLow:    1,
	PriorityMedium: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// AtLeast reports whether p ranks at or above other.
func (p Priority) AtLeast(other Priority) bool {
	return priorityRanks[p] >= priorityRanks[other]
}

type Notification struct {
	ID                string      `json:"id"`
	Type              event.Type  `json:"type"`
	Title             string      `json:"title"`
	Message           string      `json:"message"`
	Priority          Priority    `json:"priority"`
	RelatedEntityType null.String `json:"related_entity_type"`
	RelatedEntityID   null.String `json:"related_entity_id"`
	IsRead            bool        `json:"is_read"`
	ReadAt            null.Time   `json:"read_at"` // UTC
	EmailSent         bool        `json:"email_sent"`
	EmailSentAt       null.Time   `json:"email_sent_at"` // UTC
	CreatedAt         time.Time   `json:"created_at"`    // UTC
}

// QueryFilter narrows a notification listing; results are always newest first.
type QueryFilter struct {
	UnreadOnly bool
	Limit      int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)
