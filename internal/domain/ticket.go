package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusWaiting  TicketStatus = "waiting"
	TicketStatusAnswered TicketStatus = "answered"
	TicketStatusClosed   TicketStatus = "closed"
)

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusWaiting, TicketStatusAnswered, TicketStatusClosed:
		return true
	}
	return false
}

// ActiveStatuses are the states in which a ticket still collects inbound
// messages. A user has at most one ticket in these states per group.
var ActiveStatuses = []TicketStatus{TicketStatusOpen, TicketStatusWaiting, TicketStatusAnswered}

// IsActive reports whether the status counts as an active ticket.
func (s TicketStatus) IsActive() bool {
	return s == TicketStatusOpen || s == TicketStatusWaiting || s == TicketStatusAnswered
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket groups all messages exchanged with one platform user within one
// group until it is closed. TicketID is the allocated, date-scoped
// identifier (YYYYMMDD-NNNN) and is the public handle for the ticket.
type Ticket struct {
	TicketID        string
	UserID          int64
	UserName        string
	UserAvatar      string
	Subject         string
	Status          TicketStatus
	Priority        TicketPriority
	GroupID         int64
	AssignedStaffID *string
	Tags            []Tag
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time
}
