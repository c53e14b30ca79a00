package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SignatureStatus is the lifecycle state of a SignatureRequest.
type SignatureStatus string

const (
	StatusPending   SignatureStatus = "PENDING"
	StatusOtpSent   SignatureStatus = "OTP_SENT"
	StatusSigned    SignatureStatus = "SIGNED"
	StatusDeclined  SignatureStatus = "DECLINED"
	StatusCancelled SignatureStatus = "CANCELLED"
	StatusExpired   SignatureStatus = "EXPIRED"
)

// OpenStatuses are the states from which a signer or staff action may proceed.
var OpenStatuses = []SignatureStatus{StatusPending, StatusOtpSent}

func ParseSignatureStatus(s string) (SignatureStatus, error) {
	switch st := SignatureStatus(s); st {
	case StatusPending, StatusOtpSent, StatusSigned, StatusDeclined, StatusCancelled, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown signature status %q", s)
}

// IsTerminal reports whether no further transition is permitted.
func (s SignatureStatus) IsTerminal() bool {
	return s != StatusPending && s != StatusOtpSent
}

func (s SignatureStatus) Value() (driver.Value, error) {
	if _, err := ParseSignatureStatus(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

func (s *SignatureStatus) Scan(value any) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	st, err := ParseSignatureStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// AuditAction names a recorded event on a signature request.
type AuditAction string

const (
	AuditCreated   AuditAction = "created"
	AuditOtpSent   AuditAction = "otp_sent"
	AuditOtpFailed AuditAction = "otp_failed"
	AuditViewed    AuditAction = "viewed"
	AuditSigned    AuditAction = "signed"
	AuditDeclined  AuditAction = "declined"
	AuditCancelled AuditAction = "cancelled"
)

func ParseAuditAction(s string) (AuditAction, error) {
	switch a := AuditAction(s); a {
	case AuditCreated, AuditOtpSent, AuditOtpFailed, AuditViewed, AuditSigned, AuditDeclined, AuditCancelled:
		return a, nil
	}
	return "", fmt.Errorf("unknown audit action %q", s)
}

func (a AuditAction) Value() (driver.Value, error) {
	if _, err := ParseAuditAction(string(a)); err != nil {
		return nil, err
	}
	return string(a), nil
}

func (a *AuditAction) Scan(value any) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	act, err := ParseAuditAction(raw)
	if err != nil {
		return err
	}
	*a = act
	return nil
}

func scanString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("unexpected NULL enum value")
	}
	return "", fmt.Errorf("unsupported enum source %T", value)
}

// SignatureRequest is one document awaiting a signer's decision.
type SignatureRequest struct {
	ID             string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantSchema   string          `json:"-" gorm:"size:64;not null;index"`
	DocumentTitle  string          `json:"document_title" gorm:"not null"`
	SignerName     string          `json:"signer_name" gorm:"not null"`
	SignerEmail    string          `json:"signer_email" gorm:"not null"`
	SignerClientID *uint           `json:"signer_client_id"`
	RequesterID    string          `json:"requester_id" gorm:"size:36;not null;index"`
	Status         SignatureStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	DeclineReason  *string         `json:"decline_reason"`
	ExpiresAt      time.Time       `json:"expires_at" gorm:"not null"`
	SignedAt       *time.Time      `json:"signed_at"`
	DeclinedAt     *time.Time      `json:"declined_at"`
	CancelledAt    *time.Time      `json:"cancelled_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (r *SignatureRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return
}

// SignatureOtp is one OTP issuance. Only the bcrypt hash of the code is kept.
type SignatureOtp struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RequestID string    `json:"request_id" gorm:"type:varchar(36);not null;index"`
	OtpHash   string    `json:"-" gorm:"size:72;not null"`
	Channel   string    `json:"channel" gorm:"size:16;not null"`
	SentTo    string    `json:"-" gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	IsUsed    bool      `json:"is_used" gorm:"not null;default:false"`
	Attempts  int       `json:"attempts" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
}

func (o *SignatureOtp) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return
}

// SignatureAudit is an append-only ledger row. Rows are never updated or deleted.
type SignatureAudit struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	RequestID string         `json:"request_id" gorm:"type:varchar(36);not null;index"`
	Action    AuditAction    `json:"action" gorm:"type:varchar(20);not null;index"`
	IPAddress *string        `json:"ip_address" gorm:"size:64"`
	UserAgent *string        `json:"user_agent"`
	Metadata  datatypes.JSON `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}
