package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const operatorKey = "operator"

// RoleLookup returns the stored role of a user.
type RoleLookup func(ctx context.Context, userID uuid.UUID) (string, error)

// UserRoles reads roles from the users table.
func UserRoles(db *gorm.DB) RoleLookup {
	return func(ctx context.Context, userID uuid.UUID) (string, error) {
		var user models.User
		if err := db.WithContext(ctx).Select("role").First(&user, "id = ?", userID).Error; err != nil {
			return "", err
		}
		return user.Role, nil
	}
}

// OperatorRequired guards the operator routes (manual trigger, delivery log).
// An operator is either a job presenting X-Admin-Token, which needs no user
// session, or a signed-in user listed in ADMIN_USER_IDS / ADMIN_EMAILS or
// holding the admin role.
func OperatorRequired(cfg *config.Config, roles RoleLookup) fiber.Handler {
	userIDs := parseCSV(cfg.AdminUserIDs)
	emails := parseCSV(strings.ToLower(cfg.AdminEmails))

	session := jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		},
		SuccessHandler: func(c *fiber.Ctx) error {
			token, _ := c.Locals("user").(*jwt.Token)
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
					Error: true, Message: "Invalid claims",
				})
			}
			sub, _ := claims["sub"].(string)
			email, _ := claims["email"].(string)

			if contains(userIDs, sub) || (email != "" && contains(emails, strings.ToLower(email))) {
				c.Locals(operatorKey, "user:"+sub)
				return c.Next()
			}
			if id, err := uuid.Parse(sub); err == nil && roles != nil {
				if role, err := roles(c.UserContext(), id); err == nil && role == "admin" {
					c.Locals(operatorKey, "user:"+sub)
					return c.Next()
				}
			}
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Operator access required",
			})
		},
	})

	return func(c *fiber.Ctx) error {
		if cfg.AdminToken != "" && c.Get("X-Admin-Token") != "" {
			if subtle.ConstantTimeCompare([]byte(c.Get("X-Admin-Token")), []byte(cfg.AdminToken)) != 1 {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
					Error: true, Message: "Invalid admin token",
				})
			}
			c.Locals(operatorKey, "token")
			return c.Next()
		}
		return session(c)
	}
}

// Operator names who passed OperatorRequired, for audit logs.
func Operator(c *fiber.Ctx) string {
	op, _ := c.Locals(operatorKey).(string)
	return op
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
