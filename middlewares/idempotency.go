package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"esign-backend/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Idempotency replays the stored response of a mutating request that carries
// an Idempotency-Key already seen for the same tenant and user. Only 2xx
// responses are kept; a failed attempt releases the key for a retry.
func Idempotency(db *gorm.DB, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get("Idempotency-Key"))
		if key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		schema, userID := Schema(c), UserID(c)
		if schema == "" || userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "auth context missing")
		}
		path := c.OriginalURL()
		reqHash := requestHash(method, path, c.Body(), schema, userID)
		scope := func() *gorm.DB {
			return db.WithContext(c.UserContext()).
				Where("tenant_schema = ? AND user_id = ? AND key = ?", schema, userID, key)
		}

		// Phase 1: claim the key, or replay what it already produced.
		var replay *models.IdempotencyKey
		err := db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			var existing models.IdempotencyKey
			err := tx.Where("tenant_schema = ? AND user_id = ? AND key = ?", schema, userID, key).Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tx.Create(&models.IdempotencyKey{
					Key:          key,
					RequestHash:  reqHash,
					Method:       method,
					Path:         path,
					TenantSchema: schema,
					UserID:       userID,
				}).Error
			}
			if err != nil {
				return err
			}
			if existing.RequestHash != reqHash {
				return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
			}
			if existing.ResponseStatus == 0 {
				return fiber.NewError(fiber.StatusConflict, "request with this Idempotency-Key is still in progress")
			}
			replay = &existing
			return nil
		})
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return fe
			}
			logger.Error("idempotency lookup failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
		}
		if replay != nil {
			c.Set("Idempotent-Replayed", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(replay.ResponseStatus).Send(replay.ResponseBody)
		}

		handlerErr := c.Next()
		status := c.Response().StatusCode()

		// Phase 2: keep successes, release the key otherwise.
		if handlerErr != nil || status < 200 || status >= 300 {
			if err := scope().Where("response_status = 0").Delete(&models.IdempotencyKey{}).Error; err != nil {
				logger.Warn("idempotency release failed", zap.Error(err))
			}
			return handlerErr
		}
		now := time.Now().UTC()
		body := append([]byte(nil), c.Response().Body()...)
		err = scope().Model(&models.IdempotencyKey{}).Updates(map[string]any{
			"response_status": status,
			"response_body":   body,
			"completed_at":    &now,
		}).Error
		if err != nil {
			logger.Warn("idempotency store failed", zap.Error(err))
		}
		return nil
	}
}

// requestHash is sha256 over method|path|body|schema|user.
func requestHash(method, path string, body []byte, schema, userID string) string {
	h := sha256.New()
	for i, part := range [][]byte{[]byte(method), []byte(path), body, []byte(schema), []byte(userID)} {
		if i > 0 {
			h.Write([]byte{'\n'})
		}
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
