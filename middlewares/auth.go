package middlewares

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// Claims is the staff session payload (subject=userID, plus tenant schema).
type Claims struct {
	Schema string `json:"schema"`
	jwt.RegisteredClaims
}

// StaffAuth validates a Bearer token, enforces HS256, and populates
// c.Locals("userID","schema"). Signer capability tokens are signed with a
// different secret and never pass here.
func StaffAuth(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *fiber.Ctx) error {
		h := c.Get(authHeader)
		if h == "" || !strings.HasPrefix(strings.ToLower(h), strings.ToLower(bearerPrefix)) {
			return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid Authorization header")
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Schema) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "token missing subject/schema")
		}

		c.Locals("userID", claims.Subject)
		c.Locals("schema", claims.Schema)
		return c.Next()
	}
}

// GenerateJWT signs a new HS256 staff token for the given user & schema.
func GenerateJWT(secret string, ttl time.Duration, userID, schema string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("JWT secret not configured")
	}
	now := time.Now()
	claims := &Claims{
		Schema: schema,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// UserID returns the authenticated staff user id.
func UserID(c *fiber.Ctx) string {
	v, _ := c.Locals("userID").(string)
	return v
}

// Schema returns the authenticated tenant schema.
func Schema(c *fiber.Ctx) string {
	v, _ := c.Locals("schema").(string)
	return v
}
