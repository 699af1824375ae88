package events

import (
	"time"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventMessageReceived     EventType = "message_received"
	EventReplySent           EventType = "reply_sent"
)

// Actor encapsulates who triggered an event: either a platform user (by
// external id) or a staff member.
type Actor struct {
	UserID  *int64  `json:"user_id,omitempty"`
	StaffID *string `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	GroupID  int64                 `json:"group_id"`
	UserID   int64                 `json:"user_id"`
	Subject  string                `json:"subject"`
	Priority domain.TicketPriority `json:"priority"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	StaffID string `json:"staff_id"`
}

// MessageReceivedPayload payload.
type MessageReceivedPayload struct {
	MessageID   string `json:"message_id"`
	TextPreview string `json:"text_preview"`
}

// ReplySentPayload payload.
type ReplySentPayload struct {
	MessageID   string `json:"message_id"`
	TextPreview string `json:"text_preview"`
}
