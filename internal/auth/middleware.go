package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
	"github.com/supportdesk/helpdesk-bridge/internal/repository"
	"github.com/supportdesk/helpdesk-bridge/pkg/errorutil"
)

const staffKey = "auth_staff"

// AuthMiddleware validates bearer tokens and loads the staff principal.
type AuthMiddleware struct {
	tokens *TokenManager
	staff  repository.StaffRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return errorutil.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return errorutil.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return errorutil.NewUnauthorized("invalid token")
	}

	staff, err := m.staff.GetByID(c.Context(), claims.StaffID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return errorutil.NewUnauthorized("staff not found")
		}
		return errorutil.MapError(err)
	}
	if !staff.Active {
		return errorutil.NewForbidden("staff inactive")
	}

	c.Locals(staffKey, staff)
	return c.Next()
}

// StaffFromContext retrieves the authenticated staff member.
func StaffFromContext(c *fiber.Ctx) (*domain.StaffMember, bool) {
	val := c.Locals(staffKey)
	if val == nil {
		return nil, false
	}
	staff, ok := val.(*domain.StaffMember)
	return staff, ok
}

// RequireRole ensures the staff principal has one of the allowed roles.
// With no arguments any authenticated staff member passes.
func RequireRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		staff, ok := StaffFromContext(c)
		if !ok {
			return errorutil.NewForbidden("staff required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[staff.Role]; !exists {
			return errorutil.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
