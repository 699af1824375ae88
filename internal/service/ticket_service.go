package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
	"github.com/supportdesk/helpdesk-bridge/internal/events"
	"github.com/supportdesk/helpdesk-bridge/internal/repository"
	"github.com/supportdesk/helpdesk-bridge/internal/vk"
	"github.com/supportdesk/helpdesk-bridge/pkg/errorutil"
)

// TicketService owns ticket reconciliation: mapping inbound messages to
// tickets, driving the status state machine and the message ledger.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	tags       repository.TagRepository
	groups     repository.GroupRepository
	resolver   vk.Resolver
	sender     vk.Sender
	allocator  *TicketIDAllocator
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	TagRepo     repository.TagRepository
	GroupRepo   repository.GroupRepository
	Resolver    vk.Resolver
	Sender      vk.Sender
	Allocator   *TicketIDAllocator
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		tags:       deps.TagRepo,
		groups:     deps.GroupRepo,
		resolver:   deps.Resolver,
		sender:     deps.Sender,
		allocator:  deps.Allocator,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// InboundMessage is one message_new webhook event, already unwrapped.
type InboundMessage struct {
	ExternalID  int64
	UserID      int64
	Text        string
	Attachments json.RawMessage
	SentAt      time.Time
}

// HandleInboundMessage maps an inbound platform message onto the user's
// active ticket, creating one when needed, appends the message to the
// ledger and applies the inbound status transition. Identity resolution
// happens before the find-or-create critical section; only the ticket-id
// allocation runs inside it.
func (s *TicketService) HandleInboundMessage(ctx context.Context, group *domain.Group, in InboundMessage) (*domain.Ticket, error) {
	identity := s.resolver.ResolveUser(ctx, in.UserID, group.AccessToken)

	ticket, created, err := s.tickets.FindOrCreateActive(ctx, in.UserID, group.GroupID, func(ctx context.Context) (*domain.Ticket, error) {
		ticketID, err := s.allocator.Allocate(ctx)
		if err != nil {
			return nil, err
		}
		return &domain.Ticket{
			TicketID:   ticketID,
			UserID:     in.UserID,
			UserName:   identity.Name,
			UserAvatar: identity.Avatar,
			Subject:    ExtractSubject(in.Text),
			Status:     domain.TicketStatusOpen,
			Priority:   domain.TicketPriorityMedium,
			GroupID:    group.GroupID,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	externalID := in.ExternalID
	msg := &domain.Message{
		TicketID:    ticket.TicketID,
		ExternalID:  &externalID,
		Text:        in.Text,
		Attachments: in.Attachments,
		Origin:      domain.OriginUser,
		Read:        false,
		CreatedAt:   in.SentAt,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	if created {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketCreated,
			TicketID: ticket.TicketID,
			Actor:    userActor(in.UserID),
			Payload: events.TicketCreatedPayload{
				GroupID:  group.GroupID,
				UserID:   in.UserID,
				Subject:  ticket.Subject,
				Priority: ticket.Priority,
			},
		})
	} else if next, changed := inboundTransition(ticket.Status); changed {
		if err := s.tickets.UpdateStatus(ctx, ticket.TicketID, next, nil); err != nil {
			return nil, err
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.TicketID,
			Actor:    userActor(in.UserID),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: ticket.Status,
				NewStatus: next,
			},
		})
		ticket.Status = next
		ticket.ClosedAt = nil
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventMessageReceived,
		TicketID: ticket.TicketID,
		Actor:    userActor(in.UserID),
		Payload: events.MessageReceivedPayload{
			MessageID:   msg.ID,
			TextPreview: textPreview(msg.Text, 120),
		},
	})
	return ticket, nil
}

// inboundTransition is the state-machine row for an inbound user message:
// a closed ticket reopens, an answered ticket goes back to waiting, open
// and waiting stay put.
func inboundTransition(status domain.TicketStatus) (domain.TicketStatus, bool) {
	switch status {
	case domain.TicketStatusClosed:
		return domain.TicketStatusOpen, true
	case domain.TicketStatusAnswered:
		return domain.TicketStatusWaiting, true
	default:
		return status, false
	}
}

// Reply delivers a staff answer to the user and records it. Delivery runs
// first, with no locks held; the ledger append and the answered transition
// happen only after the platform confirms the send, so a failed send leaves
// the ticket unchanged and the staff member can retry.
func (s *TicketService) Reply(ctx context.Context, staff *domain.StaffMember, ticketID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errorutil.NewValidationError("reply text required", nil)
	}

	ticket, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, errorutil.NewConflict("ticket is closed", nil)
	}

	group, err := s.groups.GetByGroupID(ctx, ticket.GroupID)
	if err != nil {
		return nil, err
	}

	if err := s.sender.SendMessage(ctx, ticket.UserID, text, group.AccessToken); err != nil {
		s.logger.Warn("reply delivery failed",
			zap.String("ticket_id", ticket.TicketID),
			zap.Error(err))
		return nil, errorutil.NewUpstreamError("reply delivery failed", err)
	}

	msg := &domain.Message{
		TicketID:      ticket.TicketID,
		Text:          text,
		Origin:        domain.OriginStaff,
		Read:          true,
		StaffAuthorID: &staff.ID,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	if err := s.tickets.UpdateStatus(ctx, ticket.TicketID, domain.TicketStatusAnswered, nil); err != nil {
		return nil, err
	}
	if err := s.tickets.Assign(ctx, ticket.TicketID, staff.ID); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventReplySent,
		TicketID: ticket.TicketID,
		Actor:    staffActor(staff.ID),
		Payload: events.ReplySentPayload{
			MessageID:   msg.ID,
			TextPreview: textPreview(text, 120),
		},
	})
	if oldStatus != domain.TicketStatusAnswered {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.TicketID,
			Actor:    staffActor(staff.ID),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: domain.TicketStatusAnswered,
			},
		})
	}
	return msg, nil
}

// TicketDetail is a ticket with its full ledger.
type TicketDetail struct {
	Ticket   *domain.Ticket
	Messages []domain.Message
}

// OpenTicket returns a ticket with its messages in creation order and marks
// all unread user messages as read, matching the staff detail view.
func (s *TicketService) OpenTicket(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkUserMessagesRead(ctx, ticket.TicketID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.TicketID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.ListByTicket(ctx, ticket.TicketID)
	if err != nil {
		return nil, err
	}
	ticket.Tags = tags
	return &TicketDetail{Ticket: ticket, Messages: msgs}, nil
}

// SetStatus applies an explicit staff status change. Closing stamps
// closed_at; any other target clears it. Status and closed_at are written
// as one atomic update.
func (s *TicketService) SetStatus(ctx context.Context, staff *domain.StaffMember, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if !domain.ValidStatus(status) {
		return nil, errorutil.NewValidationError("unknown status", map[string]any{"status": status})
	}
	ticket, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == status {
		return ticket, nil
	}

	var closedAt *time.Time
	if status == domain.TicketStatusClosed {
		now := time.Now()
		closedAt = &now
	}
	if err := s.tickets.UpdateStatus(ctx, ticket.TicketID, status, closedAt); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.TicketID,
		Actor:    staffActor(staff.ID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: ticket.Status,
			NewStatus: status,
		},
	})
	ticket.Status = status
	ticket.ClosedAt = closedAt
	return ticket, nil
}

// AssignSelf assigns the ticket to the acting staff member; status is
// untouched.
func (s *TicketService) AssignSelf(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.Assign(ctx, ticket.TicketID, staff.ID); err != nil {
		return nil, err
	}
	ticket.AssignedStaffID = &staff.ID
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.TicketID,
		Actor:    staffActor(staff.ID),
		Payload:  events.TicketAssignedPayload{StaffID: staff.ID},
	})
	return ticket, nil
}

// SetPriority changes the ticket priority.
func (s *TicketService) SetPriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !domain.ValidPriority(priority) {
		return nil, errorutil.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	ticket, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.UpdatePriority(ctx, ticket.TicketID, priority); err != nil {
		return nil, err
	}
	ticket.Priority = priority
	return ticket, nil
}

// SetTags replaces the ticket's tag set.
func (s *TicketService) SetTags(ctx context.Context, ticketID string, tagIDs []string) error {
	if _, err := s.tickets.GetByTicketID(ctx, ticketID); err != nil {
		return err
	}
	return s.tags.ReplaceForTicket(ctx, ticketID, tagIDs)
}

// TicketListFilter describes the staff list view query.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	GroupID    *int64
	Assigned   string // "", "me", "unassigned"
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketListItem pairs a ticket with its computed unread count and a
// preview of the latest ledger entry.
type TicketListItem struct {
	Ticket  domain.Ticket
	Unread  int64
	Preview string
}

// ListTickets returns the filtered staff ticket list, newest activity
// first, with per-ticket unread counts and last-message previews.
func (s *TicketService) ListTickets(ctx context.Context, staff *domain.StaffMember, filter TicketListFilter) ([]TicketListItem, error) {
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		GroupID:    filter.GroupID,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch filter.Assigned {
	case "me":
		repoFilter.AssigneeID = &staff.ID
	case "unassigned":
		repoFilter.Unassigned = true
	}

	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].TicketID
	}
	unread := map[string]int64{}
	if len(ids) > 0 {
		unread, err = s.messages.UnreadCounts(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	items := make([]TicketListItem, len(tickets))
	for i := range tickets {
		item := TicketListItem{Ticket: tickets[i], Unread: unread[tickets[i].TicketID]}
		last, err := s.messages.LastByTicket(ctx, tickets[i].TicketID)
		switch {
		case err == nil:
			item.Preview = textPreview(last.Text, 120)
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, err
		}
		items[i] = item
	}
	return items, nil
}

// Stats summarizes workload for the staff dashboard.
type Stats struct {
	ByStatus    map[domain.TicketStatus]int64
	TotalUnread int64
}

// GetStats returns ticket counters per status and the total unread count.
func (s *TicketService) GetStats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.tickets.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	unread, err := s.messages.TotalUnread(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{ByStatus: byStatus, TotalUnread: unread}, nil
}

// BulkAction names the supported bulk operations.
type BulkAction string

const (
	BulkAssignToMe   BulkAction = "assign_to_me"
	BulkChangeStatus BulkAction = "change_status"
	BulkAddTag       BulkAction = "add_tag"
)

// BulkInput describes one bulk operation over a set of tickets.
type BulkInput struct {
	TicketIDs []string
	Action    BulkAction
	NewStatus domain.TicketStatus
	TagID     string
}

// Bulk applies one action to many tickets and returns how many were
// affected.
func (s *TicketService) Bulk(ctx context.Context, staff *domain.StaffMember, input BulkInput) (int64, error) {
	if len(input.TicketIDs) == 0 {
		return 0, errorutil.NewValidationError("ticket ids required", nil)
	}
	switch input.Action {
	case BulkAssignToMe:
		return s.tickets.BulkAssign(ctx, input.TicketIDs, staff.ID)
	case BulkChangeStatus:
		if !domain.ValidStatus(input.NewStatus) {
			return 0, errorutil.NewValidationError("unknown status", map[string]any{"status": input.NewStatus})
		}
		var closedAt *time.Time
		if input.NewStatus == domain.TicketStatusClosed {
			now := time.Now()
			closedAt = &now
		}
		return s.tickets.BulkUpdateStatus(ctx, input.TicketIDs, input.NewStatus, closedAt)
	case BulkAddTag:
		if _, err := s.tags.GetByID(ctx, input.TagID); err != nil {
			return 0, err
		}
		if err := s.tags.AddToTickets(ctx, input.TicketIDs, input.TagID); err != nil {
			return 0, err
		}
		return int64(len(input.TicketIDs)), nil
	default:
		return 0, errorutil.NewValidationError("unknown bulk action", map[string]any{"action": input.Action})
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func userActor(userID int64) events.Actor {
	return events.Actor{UserID: &userID}
}

func staffActor(staffID string) events.Actor {
	return events.Actor{StaffID: &staffID}
}

func textPreview(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-3]) + "..."
}
