package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a service request.
type RequestStatus string

const (
	RequestStatusOpen       RequestStatus = "open"
	RequestStatusActive     RequestStatus = "active"
	RequestStatusInProgress RequestStatus = "in-progress"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// Urgency is how soon the customer needs the job done.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// IsValid reports whether u is a known urgency.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyUrgent:
		return true
	}
	return false
}

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusOpen:       {RequestStatusActive, RequestStatusInProgress, RequestStatusCancelled},
	RequestStatusActive:     {RequestStatusInProgress, RequestStatusCancelled},
	RequestStatusInProgress: {RequestStatusCompleted},
}

// ServiceRequest is a job posted by a customer.
type ServiceRequest struct {
	ID              uuid.UUID     `json:"id"`
	CustomerID      uuid.UUID     `json:"customer_id"`
	TradeType       string        `json:"trade_type"`
	Description     string        `json:"description"`
	Postcode        string        `json:"postcode"`
	Urgency         Urgency       `json:"urgency"`
	Status          RequestStatus `json:"status"`
	AcceptedQuoteID *uuid.UUID    `json:"accepted_quote_id,omitempty"`
	Rating          *float64      `json:"rating,omitempty"`
	Review          *string       `json:"review,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsTerminal returns true once the request can no longer change.
func (r *ServiceRequest) IsTerminal() bool {
	return r.Status == RequestStatusCompleted || r.Status == RequestStatusCancelled
}

// IsOpenForBids returns true while tradies may unlock and quote.
func (r *ServiceRequest) IsOpenForBids() bool {
	return r.Status == RequestStatusOpen || r.Status == RequestStatusActive
}

// IsOwnedBy reports whether customerID posted the request.
func (r *ServiceRequest) IsOwnedBy(customerID uuid.UUID) bool {
	return r.CustomerID == customerID
}

// CanTransitionTo reports whether next is a legal successor of the current status.
func (r *ServiceRequest) CanTransitionTo(next RequestStatus) bool {
	for _, s := range requestTransitions[r.Status] {
		if s == next {
			return true
		}
	}
	return false
}
