package signature

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"esign-backend/audit"
	"esign-backend/database"
	"esign-backend/mailer"
	"esign-backend/models"
	"esign-backend/otp"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateInput describes a new request. Signer fields left empty are taken
// from the CRM client when SignerClientID is set.
type CreateInput struct {
	RequesterID    string
	TenantSchema   string
	DocumentTitle  string
	SignerName     string
	SignerEmail    string
	SignerClientID *uint
	ExpiresInDays  int
	Client         Client
}

type Created struct {
	Request    *models.SignatureRequest `json:"request"`
	SigningURL string                   `json:"signing_url"`
	EmailSent  bool                     `json:"email_sent"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Created, error) {
	in.DocumentTitle = strings.TrimSpace(in.DocumentTitle)
	in.SignerName = strings.TrimSpace(in.SignerName)
	in.SignerEmail = strings.TrimSpace(in.SignerEmail)

	if in.SignerClientID != nil {
		if err := s.fillFromClient(ctx, &in); err != nil {
			return nil, err
		}
	}
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	ttl := s.cfg.RequestTTL
	if in.ExpiresInDays > 0 {
		ttl = time.Duration(in.ExpiresInDays) * 24 * time.Hour
	}
	now := s.now()
	req := &models.SignatureRequest{
		TenantSchema:   in.TenantSchema,
		DocumentTitle:  in.DocumentTitle,
		SignerName:     in.SignerName,
		SignerEmail:    in.SignerEmail,
		SignerClientID: in.SignerClientID,
		RequesterID:    in.RequesterID,
		Status:         models.StatusPending,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var company string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		company = s.companyName(tx, in.TenantSchema)
		return s.record(tx, req, models.AuditCreated, in.Client, map[string]any{
			"document_title": req.DocumentTitle,
			"signer":         otp.MaskRecipient(req.SignerEmail),
		})
	})
	if err != nil {
		return nil, s.fail("create", err)
	}
	s.logger.Info("request created", zap.String("request_id", req.ID), zap.String("schema", req.TenantSchema))

	url, sent, err := s.sendLink(req, company)
	if err != nil {
		return nil, s.fail("create", err)
	}
	return &Created{Request: req, SigningURL: url, EmailSent: sent}, nil
}

func (s *Service) fillFromClient(ctx context.Context, in *CreateInput) error {
	var customer models.Customer
	err := database.WithTenant(s.db.WithContext(ctx), in.TenantSchema, func(tx *gorm.DB) error {
		return tx.Take(&customer, *in.SignerClientID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalid("unknown signer client %d", *in.SignerClientID)
	}
	if err != nil {
		return s.fail("create", err)
	}
	if in.SignerName == "" {
		in.SignerName = customer.DisplayName()
	}
	if in.SignerEmail == "" {
		in.SignerEmail = customer.Email
	}
	return nil
}

func validateCreate(in CreateInput) error {
	switch {
	case in.RequesterID == "" || in.TenantSchema == "":
		return invalid("requester is required")
	case in.DocumentTitle == "":
		return invalid("document title is required")
	case len(in.DocumentTitle) > maxTitleLength:
		return invalid("document title must be at most %d characters", maxTitleLength)
	case in.SignerName == "":
		return invalid("signer name is required")
	case in.ExpiresInDays < 0 || in.ExpiresInDays > maxExpiryDays:
		return invalid("expiry must be between 1 and %d days", maxExpiryDays)
	}
	if addr, err := mail.ParseAddress(in.SignerEmail); err != nil || addr.Address != in.SignerEmail {
		return invalid("signer email is invalid")
	}
	return nil
}

// sendLink issues a fresh capability token and emails it. Delivery is
// reported, not enforced.
func (s *Service) sendLink(req *models.SignatureRequest, company string) (string, bool, error) {
	token, err := s.tokens.Issue(req.ID)
	if err != nil {
		return "", false, err
	}
	url := s.signingURL(token)
	subject, body, err := mailer.RenderLink(mailer.LinkEmail{
		SignerName:    req.SignerName,
		DocumentTitle: req.DocumentTitle,
		CompanyName:   company,
		URL:           url,
		ExpiresAt:     req.ExpiresAt,
	})
	if err != nil {
		return "", false, err
	}
	sent := s.mail.Send(req.SignerEmail, subject, body)
	if !sent {
		s.logger.Warn("signing link not sent", zap.String("request_id", req.ID))
	}
	return url, sent, nil
}

// Cancel closes an open request on behalf of staff user actorID.
func (s *Service) Cancel(ctx context.Context, schema, id, actorID string, c Client) error {
	req, err := s.transition(ctx, "cancel", byTenant(schema, id), func(tx *gorm.DB, req *models.SignatureRequest) error {
		if req.Status.IsTerminal() {
			return &StateError{Status: req.Status, Action: "cancel"}
		}
		if err := s.setStatus(tx, req, "cancel", models.StatusCancelled, map[string]any{"cancelled_at": s.now()}); err != nil {
			return err
		}
		return s.record(tx, req, models.AuditCancelled, c, map[string]any{"cancelled_by": actorID})
	})
	if err != nil {
		return err
	}
	if actorID != req.RequesterID {
		s.notifyRequester(ctx, req, "Signature request cancelled",
			fmt.Sprintf("The request for %q was cancelled.", req.DocumentTitle))
	}
	return nil
}

// ResendLink emails a fresh signing link for an open request.
func (s *Service) ResendLink(ctx context.Context, schema, id string) (string, error) {
	var company string
	req, err := s.transition(ctx, "resend", byTenant(schema, id), func(tx *gorm.DB, req *models.SignatureRequest) error {
		if req.Status.IsTerminal() {
			return &StateError{Status: req.Status, Action: "resend"}
		}
		company = s.companyName(tx, req.TenantSchema)
		return nil
	})
	if err != nil {
		return "", err
	}
	url, sent, err := s.sendLink(req, company)
	if err != nil {
		return "", s.fail("resend", err)
	}
	if !sent {
		return "", ErrEmailDelivery
	}
	return url, nil
}

// Get returns a request of the tenant.
func (s *Service) Get(ctx context.Context, schema, id string) (*models.SignatureRequest, error) {
	var req models.SignatureRequest
	err := byTenant(schema, id)(s.db.WithContext(ctx)).Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, s.fail("get", err)
	}
	return &req, nil
}

type ListFilter struct {
	Status *models.SignatureStatus
	Limit  int
	Offset int
}

// List returns the tenant's requests newest first with the unpaged total.
func (s *Service) List(ctx context.Context, schema string, f ListFilter) ([]models.SignatureRequest, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	scope := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.SignatureRequest{}).Where("tenant_schema = ?", schema)
		if f.Status != nil {
			q = q.Where("status = ?", *f.Status)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, s.fail("list", err)
	}
	var rows []models.SignatureRequest
	err := scope().Order("created_at DESC").Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error
	if err != nil {
		return nil, 0, s.fail("list", err)
	}
	return rows, total, nil
}

// AuditTrail returns the recorded events of a tenant's request.
func (s *Service) AuditTrail(ctx context.Context, schema, id string) ([]models.SignatureAudit, error) {
	if _, err := s.Get(ctx, schema, id); err != nil {
		return nil, err
	}
	rows, err := audit.List(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, s.fail("audit", err)
	}
	return rows, nil
}
