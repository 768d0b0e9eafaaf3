package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCreateRequest AuditAction = "CREATE_REQUEST"
	AuditActionUnlock        AuditAction = "UNLOCK"
	AuditActionSubmitQuote   AuditAction = "SUBMIT_QUOTE"
	AuditActionAcceptQuote   AuditAction = "ACCEPT_QUOTE"
	AuditActionComplete      AuditAction = "COMPLETE_REQUEST"
	AuditActionCancel        AuditAction = "CANCEL_REQUEST"
	AuditActionRecharge      AuditAction = "RECHARGE"
	AuditActionReconcile     AuditAction = "RECONCILE"
	AuditActionAccessDenied  AuditAction = "ACCESS_DENIED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *uuid.UUID  `json:"actor_id,omitempty"`
	ActorRole    Role        `json:"actor_role,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
