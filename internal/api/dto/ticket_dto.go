package dto

import (
	"encoding/json"
	"time"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
)

// TicketSummary is one row of the staff list view.
type TicketSummary struct {
	TicketID        string                `json:"ticket_id"`
	UserID          int64                 `json:"user_id"`
	UserName        string                `json:"user_name"`
	UserAvatar      string                `json:"user_avatar,omitempty"`
	Subject         string                `json:"subject"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	GroupID         int64                 `json:"group_id"`
	AssignedStaffID *string               `json:"assigned_staff_id"`
	UnreadCount     int64                 `json:"unread_count"`
	LastMessage     string                `json:"last_message,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
}

// TicketDetailResponse provides full ticket info with the ledger.
type TicketDetailResponse struct {
	TicketSummary
	Tags     []TagResponse     `json:"tags"`
	Messages []MessageResponse `json:"messages"`
}

// MessageResponse represents one ledger entry.
type MessageResponse struct {
	ID            string               `json:"id"`
	ExternalID    *int64               `json:"external_id,omitempty"`
	Text          string               `json:"text"`
	Attachments   json.RawMessage      `json:"attachments,omitempty"`
	Origin        domain.MessageOrigin `json:"origin"`
	Read          bool                 `json:"read"`
	StaffAuthorID *string              `json:"staff_author_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// TagResponse represents a tag.
type TagResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ReplyRequest payload.
type ReplyRequest struct {
	Text string `json:"text"`
}

// SetStatusRequest payload.
type SetStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// SetPriorityRequest payload.
type SetPriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// SetTagsRequest payload.
type SetTagsRequest struct {
	TagIDs []string `json:"tag_ids"`
}

// CreateTagRequest payload.
type CreateTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// BulkActionRequest payload.
type BulkActionRequest struct {
	TicketIDs []string            `json:"ticket_ids"`
	Action    string              `json:"action"`
	NewStatus domain.TicketStatus `json:"new_status,omitempty"`
	TagID     string              `json:"tag_id,omitempty"`
}

// StatsResponse summarizes workload counters.
type StatsResponse struct {
	ByStatus    map[domain.TicketStatus]int64 `json:"by_status"`
	TotalUnread int64                         `json:"total_unread"`
}
