package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// CallerIdentity extracts an optional caller identity from a bearer token.
// When the token parses against the configured secret, its subject becomes
// the request's user id; a missing or invalid token is not an error — the
// request simply proceeds anonymously. Authentication proper is out of
// scope here.
func CallerIdentity(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		auth := c.Get("Authorization")
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if auth == "" || tokenStr == auth {
			return c.Next()
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err == nil && token.Valid && claims.Subject != "" {
			c.Locals("user_id", claims.Subject)
		}

		return c.Next()
	}
}
