package database

import (
	"fmt"
	"time"

	"esign-backend/config"
	"esign-backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres pool described by cfg.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Info
	if cfg.IsProduction() {
		level = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// MigratePublic migrates the tables shared by all tenants.
func MigratePublic(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.ContactPerson{}, &models.Company{}, &models.User{},
		&models.SignatureRequest{}, &models.SignatureOtp{}, &models.SignatureAudit{},
		&models.Notification{}, &models.RateLimitHit{}, &models.IdempotencyKey{},
	); err != nil {
		return fmt.Errorf("public automigrate failed: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_signature_requests_tenant_created ON signature_requests (tenant_schema, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signature_audits_request_created ON signature_audits (request_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_signature_otps_request_created ON signature_otps (request_id, created_at)`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
		}
	}

	if db.Dialector.Name() == "postgres" {
		if err := protectAuditLedger(db); err != nil {
			return err
		}
	}
	return nil
}

// protectAuditLedger makes the database itself refuse UPDATE and DELETE on
// signature_audits.
func protectAuditLedger(db *gorm.DB) error {
	stmts := []string{
		`CREATE OR REPLACE FUNCTION signature_audits_append_only() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'signature_audits is append-only';
END $$ LANGUAGE plpgsql;`,
		`DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_trigger
		WHERE tgname = 'trg_signature_audits_append_only'
	) THEN
		CREATE TRIGGER trg_signature_audits_append_only
		BEFORE UPDATE OR DELETE ON signature_audits
		FOR EACH ROW EXECUTE FUNCTION signature_audits_append_only();
	END IF;
END $$;`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("audit ledger protection failed: %w", err)
		}
	}
	return nil
}
