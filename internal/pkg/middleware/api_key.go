package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/jaat-ai/ledger/internal/pkg/apierror"
	"github.com/jaat-ai/ledger/internal/pkg/constants"
)

// AdminAPIKey authenticates operator requests against a bcrypt hash of the
// admin key. An empty hash disables the admin routes.
func AdminAPIKey(hash string) fiber.Handler {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		log.Warn("[API] ADMIN_API_KEY_HASH is not set, admin routes are disabled")
	}
	return func(c *fiber.Ctx) error {
		if hash == "" {
			return apierror.New(c, fiber.StatusForbidden, "forbidden", "Admin API is disabled")
		}
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return apierror.New(c, fiber.StatusUnauthorized, "unauthorized", "Missing API key")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
			return apierror.New(c, fiber.StatusUnauthorized, "unauthorized", "Invalid API key")
		}
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get(constants.HeaderAPIKey))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
