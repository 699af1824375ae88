package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/helpdesk-bridge/internal/api/dto"
	"github.com/supportdesk/helpdesk-bridge/internal/auth"
	"github.com/supportdesk/helpdesk-bridge/internal/service"
	"github.com/supportdesk/helpdesk-bridge/pkg/errorutil"
)

// StaffHandler manages staff authentication endpoints.
type StaffHandler struct {
	service *service.AuthService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService) *StaffHandler {
	return &StaffHandler{service: authService}
}

// Login POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return errorutil.NewValidationError("email and password required", nil)
	}

	staff, token, expiresAt, err := h.service.LoginStaff(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StaffLoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      staff.Role,
		Staff: dto.StaffResponse{
			ID:    staff.ID,
			Name:  staff.Name,
			Email: staff.Email,
			Role:  staff.Role,
		},
	}})
}

// ChangePassword POST /auth/staff/password.
func (h *StaffHandler) ChangePassword(c *fiber.Ctx) error {
	staff, ok := auth.StaffFromContext(c)
	if !ok {
		return errorutil.NewUnauthorized("staff required")
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	if len(req.NewPassword) < 8 {
		return errorutil.NewValidationError("new password too short", nil)
	}
	if err := h.service.ChangePassword(c.Context(), staff, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": "password updated"})
}
