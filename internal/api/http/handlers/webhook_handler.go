package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/supportdesk/helpdesk-bridge/internal/api/dto"
	"github.com/supportdesk/helpdesk-bridge/internal/config"
	"github.com/supportdesk/helpdesk-bridge/internal/domain"
	"github.com/supportdesk/helpdesk-bridge/internal/observability"
	"github.com/supportdesk/helpdesk-bridge/internal/repository"
	"github.com/supportdesk/helpdesk-bridge/internal/service"
	"github.com/supportdesk/helpdesk-bridge/pkg/errorutil"
)

// InboundProcessor applies one inbound platform message to ticket state.
type InboundProcessor interface {
	HandleInboundMessage(ctx context.Context, group *domain.Group, in service.InboundMessage) (*domain.Ticket, error)
}

// WebhookHandler receives platform callback events.
type WebhookHandler struct {
	groups    repository.GroupRepository
	processor InboundProcessor
	cfg       config.VKConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewWebhookHandler constructs the handler.
func NewWebhookHandler(groups repository.GroupRepository, processor InboundProcessor, cfg config.VKConfig, metrics *observability.Metrics, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		groups:    groups,
		processor: processor,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// callbackHandlers maps event types to their handlers. The mapping is
// static: adding an event type means adding an entry here.
var callbackHandlers = map[string]func(*WebhookHandler, context.Context, *domain.Group, dto.CallbackEvent) error{
	"message_new": (*WebhookHandler).handleMessageNew,
}

// Callback handles POST /vk/callback. The platform expects the literal
// body "ok" as acknowledgment; any other body makes it redeliver the
// event, so responses here bypass the JSON error middleware.
func (h *WebhookHandler) Callback(c *fiber.Ctx) error {
	var event dto.CallbackEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		return c.Status(http.StatusBadRequest).SendString("invalid json")
	}

	group, err := h.groups.GetByGroupID(c.Context(), event.GroupID)
	if err != nil && err != pgx.ErrNoRows {
		h.logger.Error("group lookup failed", zap.Int64("group_id", event.GroupID), zap.Error(err))
		return c.Status(http.StatusInternalServerError).SendString("error")
	}

	if event.Type == "confirmation" {
		token := h.cfg.ConfirmationToken
		if group != nil && group.ConfirmationToken != "" {
			token = group.ConfirmationToken
		}
		return c.SendString(token)
	}

	if group == nil {
		h.logger.Warn("callback for unknown group", zap.Int64("group_id", event.GroupID))
		return c.Status(http.StatusInternalServerError).SendString("error")
	}
	if group.SecretKey != "" && event.Secret != group.SecretKey {
		return c.Status(http.StatusForbidden).SendString("invalid secret")
	}

	h.metrics.RecordEvent(event.Type)

	if handler, ok := callbackHandlers[event.Type]; ok {
		if err := handler(h, c.UserContext(), group, event); err != nil {
			domainErr := errorutil.ToDomainError(err)
			if domainErr.HTTPStatus == http.StatusBadRequest {
				return c.Status(http.StatusBadRequest).SendString("invalid event")
			}
			h.logger.Error("callback processing failed",
				zap.String("event_type", event.Type),
				zap.Int64("group_id", event.GroupID),
				zap.Error(err))
			return c.Status(http.StatusInternalServerError).SendString("error")
		}
	}

	return c.SendString("ok")
}

func (h *WebhookHandler) handleMessageNew(ctx context.Context, group *domain.Group, event dto.CallbackEvent) error {
	var obj dto.MessageNewObject
	if err := json.Unmarshal(event.Object, &obj); err != nil {
		return errorutil.NewValidationError("malformed message_new object", nil)
	}
	if obj.Message.FromID == 0 {
		return errorutil.NewValidationError("message_new missing from_id", nil)
	}

	in := service.InboundMessage{
		ExternalID:  obj.Message.ID,
		UserID:      obj.Message.FromID,
		Text:        obj.Message.Text,
		Attachments: obj.Message.Attachments,
	}
	if obj.Message.Date > 0 {
		in.SentAt = time.Unix(obj.Message.Date, 0).UTC()
	}

	_, err := h.processor.HandleInboundMessage(ctx, group, in)
	return err
}
