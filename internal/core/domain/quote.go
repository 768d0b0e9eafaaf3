package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
	QuoteStatusExpired  QuoteStatus = "expired"
)

// QuoteBreakdown splits the quoted amount. Both parts are minor units.
type QuoteBreakdown struct {
	Materials int64 `json:"materials"`
	Labour    int64 `json:"labour"`
}

// Quote is a tradie's priced offer on a service request.
type Quote struct {
	ID                      uuid.UUID      `json:"id"`
	ServiceRequestID        uuid.UUID      `json:"service_request_id"`
	TradieID                uuid.UUID      `json:"tradie_id"`
	Amount                  int64          `json:"amount"`
	Breakdown               QuoteBreakdown `json:"breakdown"`
	EstimatedStartDate      time.Time      `json:"estimated_start_date"`
	EstimatedCompletionDate time.Time      `json:"estimated_completion_date"`
	Notes                   string         `json:"notes,omitempty"`
	Status                  QuoteStatus    `json:"status"`
	CreatedAt               time.Time      `json:"created_at"`
	AcceptedAt              *time.Time     `json:"accepted_at,omitempty"`
}

// IsPending returns true while the quote awaits a customer decision.
func (q *Quote) IsPending() bool {
	return q.Status == QuoteStatusPending
}

// TimelineDays is the estimated job length in whole days, rounded up.
func (q *Quote) TimelineDays() int {
	d := q.EstimatedCompletionDate.Sub(q.EstimatedStartDate)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
