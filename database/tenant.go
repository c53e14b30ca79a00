package database

import (
	"fmt"
	"regexp"
	"strings"

	"esign-backend/models"

	"gorm.io/gorm"
)

var schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SchemaName derives a tenant schema name from a company name.
func SchemaName(company string) (string, error) {
	safe := strings.ToLower(strings.TrimSpace(company))
	safe = strings.ReplaceAll(safe, " ", "_")
	if !schemaPattern.MatchString(safe) {
		return "", fmt.Errorf("invalid schema name after sanitization: %s", safe)
	}
	return safe, nil
}

// CreateTenantSchema creates the schema and its tables if missing.
func CreateTenantSchema(db *gorm.DB, schema string) error {
	if !schemaPattern.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error; err != nil {
			return err
		}
	}
	return WithTenant(db, schema, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&models.Customer{}); err != nil {
			return fmt.Errorf("tenant automigrate failed: %w", err)
		}
		return nil
	})
}

// WithTenant runs fn in a transaction pinned to the tenant schema. SET LOCAL
// reverts at transaction end, so pooled connections never leak the path.
func WithTenant(db *gorm.DB, schema string, fn func(tx *gorm.DB) error) error {
	if !schemaPattern.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(`SET LOCAL search_path = "` + schema + `", public`).Error; err != nil {
				return fmt.Errorf("set search_path failed: %w", err)
			}
		}
		return fn(tx)
	})
}
