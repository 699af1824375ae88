package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/helpdesk-bridge/internal/api/dto"
	"github.com/supportdesk/helpdesk-bridge/internal/auth"
	"github.com/supportdesk/helpdesk-bridge/internal/domain"
	"github.com/supportdesk/helpdesk-bridge/internal/service"
	"github.com/supportdesk/helpdesk-bridge/pkg/errorutil"
)

// TicketsHandler manages the staff ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	staff, ok := auth.StaffFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	filter := parseTicketListQuery(c)
	items, err := h.service.ListTickets(c.Context(), staff, filter)
	if err != nil {
		return err
	}
	summaries := make([]dto.TicketSummary, 0, len(items))
	for i := range items {
		summary := ticketSummary(&items[i].Ticket, items[i].Unread)
		summary.LastMessage = items[i].Preview
		summaries = append(summaries, summary)
	}
	return c.JSON(fiber.Map{"data": summaries})
}

// GetTicket GET /api/tickets/:id. Opening the detail view marks all unread
// user messages as read.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	if _, ok := auth.StaffFromContext(c); !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	detail, err := h.service.OpenTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// Reply POST /api/tickets/:id/reply.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	staff, ok := auth.StaffFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	msg, err := h.service.Reply(c.Context(), staff, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// SetStatus PATCH /api/tickets/:id/status.
func (h *TicketsHandler) SetStatus(c *fiber.Ctx) error {
	staff, ok := auth.StaffFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	var req dto.SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.SetStatus(c.Context(), staff, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket, 0)})
}

// Assign POST /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	staff, ok := auth.StaffFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	ticket, err := h.service.AssignSelf(c.Context(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket, 0)})
}

// SetPriority PATCH /api/tickets/:id/priority.
func (h *TicketsHandler) SetPriority(c *fiber.Ctx) error {
	if _, ok := auth.StaffFromContext(c); !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	var req dto.SetPriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.SetPriority(c.Context(), c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket, 0)})
}

// SetTags PUT /api/tickets/:id/tags.
func (h *TicketsHandler) SetTags(c *fiber.Ctx) error {
	if _, ok := auth.StaffFromContext(c); !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	var req dto.SetTagsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	if err := h.service.SetTags(c.Context(), c.Params("id"), req.TagIDs); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": "updated"})
}

// Bulk POST /api/tickets/bulk.
func (h *TicketsHandler) Bulk(c *fiber.Ctx) error {
	staff, ok := auth.StaffFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	var req dto.BulkActionRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	affected, err := h.service.Bulk(c.Context(), staff, service.BulkInput{
		TicketIDs: req.TicketIDs,
		Action:    service.BulkAction(req.Action),
		NewStatus: req.NewStatus,
		TagID:     req.TagID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"affected": affected}})
}

// Stats GET /api/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	if _, ok := auth.StaffFromContext(c); !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	stats, err := h.service.GetStats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StatsResponse{
		ByStatus:    stats.ByStatus,
		TotalUnread: stats.TotalUnread,
	}})
}

func parseTicketListQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{
		Assigned: c.Query("assigned"),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if groupStr := c.Query("group_id"); groupStr != "" {
		if groupID, err := strconv.ParseInt(groupStr, 10, 64); err == nil {
			filter.GroupID = &groupID
		}
	}
	if search := c.Query("q"); search != "" {
		filter.SearchTerm = &search
	}
	page := parseIntQuery(c.Query("page"), 1)
	pageSize := parseIntQuery(c.Query("page_size"), 25)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseIntQuery(val string, fallback int) int {
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket, unread int64) dto.TicketSummary {
	return dto.TicketSummary{
		TicketID:        ticket.TicketID,
		UserID:          ticket.UserID,
		UserName:        ticket.UserName,
		UserAvatar:      ticket.UserAvatar,
		Subject:         ticket.Subject,
		Status:          ticket.Status,
		Priority:        ticket.Priority,
		GroupID:         ticket.GroupID,
		AssignedStaffID: ticket.AssignedStaffID,
		UnreadCount:     unread,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
		ClosedAt:        ticket.ClosedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		TicketSummary: ticketSummary(detail.Ticket, 0),
		Tags:          make([]dto.TagResponse, 0, len(detail.Ticket.Tags)),
		Messages:      make([]dto.MessageResponse, 0, len(detail.Messages)),
	}
	for _, tag := range detail.Ticket.Tags {
		resp.Tags = append(resp.Tags, dto.TagResponse{ID: tag.ID, Name: tag.Name, Color: tag.Color})
	}
	for i := range detail.Messages {
		resp.Messages = append(resp.Messages, messageResponse(&detail.Messages[i]))
	}
	return resp
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:            msg.ID,
		ExternalID:    msg.ExternalID,
		Text:          msg.Text,
		Attachments:   msg.Attachments,
		Origin:        msg.Origin,
		Read:          msg.Read,
		StaffAuthorID: msg.StaffAuthorID,
		CreatedAt:     msg.CreatedAt,
	}
}
