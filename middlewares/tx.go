package middlewares

import (
	"errors"
	"strings"

	"esign-backend/database"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// TenantTx runs the rest of the chain in one transaction pinned to the
// tenant schema. Run it after StaffAuth so the schema is known. The
// transaction commits when the handler returns nil.
func TenantTx(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		schema := Schema(c)
		if strings.TrimSpace(schema) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "auth context missing")
		}
		err := database.WithTenant(db.WithContext(c.UserContext()), schema, func(tx *gorm.DB) error {
			c.Locals("tx", tx)
			return c.Next()
		})
		if err == nil {
			return nil
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe
		}
		return err
	}
}

// TenantDB returns the request transaction opened by TenantTx.
func TenantDB(c *fiber.Ctx) *gorm.DB {
	tx, _ := c.Locals("tx").(*gorm.DB)
	return tx
}
