// Package audit appends rows to the signature audit ledger. It exposes no
// update or delete: the ledger is write-once.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"esign-backend/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry describes one recorded event.
type Entry struct {
	RequestID string
	Action    models.AuditAction
	IP        string
	UserAgent string
	Metadata  map[string]any
	At        time.Time
}

// Record writes e using tx. Pass the transaction that carries the state
// change so both commit or neither does.
func Record(tx *gorm.DB, e Entry) (*models.SignatureAudit, error) {
	if strings.TrimSpace(e.RequestID) == "" {
		return nil, fmt.Errorf("audit: empty request id")
	}
	if _, err := models.ParseAuditAction(string(e.Action)); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("audit: encode metadata: %w", err)
	}

	row := &models.SignatureAudit{
		RequestID: e.RequestID,
		Action:    e.Action,
		IPAddress: optional(e.IP),
		UserAgent: optional(e.UserAgent),
		Metadata:  datatypes.JSON(blob),
		CreatedAt: e.At,
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("audit: insert %s: %w", e.Action, err)
	}
	return row, nil
}

// List returns the trail of one request in recording order.
func List(db *gorm.DB, requestID string) ([]models.SignatureAudit, error) {
	var rows []models.SignatureAudit
	err := db.Where("request_id = ?", requestID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// Count returns how many rows exist for requestID, optionally per action.
func Count(db *gorm.DB, requestID string, actions ...models.AuditAction) (int64, error) {
	q := db.Model(&models.SignatureAudit{}).Where("request_id = ?", requestID)
	if len(actions) > 0 {
		q = q.Where("action IN ?", actions)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
