// Package signature owns the lifecycle of signature requests: issuing
// signer links, OTP verification, and the guarded transitions to the
// terminal states. Every accepted transition writes its audit row in the
// same transaction as the status change.
package signature

import (
	"context"
	"errors"
	"time"

	"esign-backend/audit"
	"esign-backend/mailer"
	"esign-backend/models"
	"esign-backend/notify"
	"esign-backend/ratelimit"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxTitleLength  = 255
	maxReasonLength = 1000
	maxExpiryDays   = 90
)

// Tokens issues and verifies signer capability tokens.
type Tokens interface {
	Issue(requestID string) (string, error)
	Verify(raw string) (string, error)
}

// Limits are per source address budgets over Window.
type Limits struct {
	OtpIssue  int
	OtpVerify int
	Window    time.Duration
}

type Config struct {
	PublicBaseURL string
	RequestTTL    time.Duration
	Limits        Limits
}

// Client identifies the caller for audit rows and rate limiting.
type Client struct {
	IP        string
	UserAgent string
}

type Service struct {
	db       *gorm.DB
	tokens   Tokens
	mail     mailer.Sender
	notifier notify.Notifier
	limiter  ratelimit.Limiter
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(db *gorm.DB, tokens Tokens, mail mailer.Sender, notifier notify.Notifier, limiter ratelimit.Limiter, cfg Config, opts ...Option) *Service {
	s := &Service{
		db:       db,
		tokens:   tokens,
		mail:     mail,
		notifier: notifier,
		limiter:  limiter,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(zap.String("component", "signature"))
	return s
}

func byID(id string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("id = ?", id) }
}

func byTenant(schema, id string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ? AND tenant_schema = ?", id, schema)
	}
}

// transition locks the request selected by scope, applies lazy expiry and
// then runs fn inside the same transaction. When the request has expired the
// EXPIRED status is committed and ErrExpired returned; fn is not called.
func (s *Service) transition(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB, fn func(tx *gorm.DB, req *models.SignatureRequest) error) (*models.SignatureRequest, error) {
	var (
		locked  *models.SignatureRequest
		expired bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, scope)
		if err != nil {
			return err
		}
		locked = req

		if !req.Status.IsTerminal() && !s.now().Before(req.ExpiresAt) {
			if err := s.setStatus(tx, req, op, models.StatusExpired, nil); err != nil {
				return err
			}
			expired = true
			return nil
		}
		if fn == nil {
			return nil
		}
		return fn(tx, req)
	})
	if err != nil {
		return locked, s.fail(op, err)
	}
	if expired {
		s.logger.Info("request expired", zap.String("request_id", locked.ID), zap.String("op", op))
		return locked, ErrExpired
	}
	return locked, nil
}

func lockRequest(tx *gorm.DB, scope func(*gorm.DB) *gorm.DB) (*models.SignatureRequest, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var req models.SignatureRequest
	if err := scope(q).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// setStatus moves req out of an open status. The WHERE on status makes a
// lost race fail instead of applying twice.
func (s *Service) setStatus(tx *gorm.DB, req *models.SignatureRequest, op string, to models.SignatureStatus, fields map[string]any) error {
	now := s.now()
	updates := map[string]any{"status": to, "updated_at": now}
	for k, v := range fields {
		updates[k] = v
	}
	res := tx.Model(&models.SignatureRequest{}).
		Where("id = ? AND status IN ?", req.ID, models.OpenStatuses).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current := req.Status
		var row models.SignatureRequest
		if err := tx.Select("status").Where("id = ?", req.ID).Take(&row).Error; err == nil {
			current = row.Status
		}
		return &StateError{Status: current, Action: op}
	}
	req.Status = to
	req.UpdatedAt = now
	return nil
}

func (s *Service) record(tx *gorm.DB, req *models.SignatureRequest, action models.AuditAction, c Client, meta map[string]any) error {
	_, err := audit.Record(tx, audit.Entry{
		RequestID: req.ID,
		Action:    action,
		IP:        c.IP,
		UserAgent: c.UserAgent,
		Metadata:  meta,
		At:        s.now(),
	})
	return err
}

// fail passes domain errors through and hides everything else.
func (s *Service) fail(op string, err error) error {
	if isKind(err) {
		return err
	}
	s.logger.Error("signature operation failed", zap.String("op", op), zap.Error(err))
	return ErrInternal
}

func (s *Service) allow(bucket string, c Client, limit int) bool {
	ip := c.IP
	if ip == "" {
		ip = "unknown"
	}
	window := s.cfg.Limits.Window
	if window <= 0 {
		window = time.Minute
	}
	return s.limiter.Allow(bucket+":"+ip, limit, window)
}

func (s *Service) companyName(db *gorm.DB, schema string) string {
	var company models.Company
	err := db.Select("company_name").Where("schema_name = ?", schema).Take(&company).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("company lookup failed", zap.String("schema", schema), zap.Error(err))
		}
		return ""
	}
	return company.CompanyName
}

func (s *Service) signingURL(token string) string {
	return s.cfg.PublicBaseURL + "/sign/" + token
}

func (s *Service) notifyRequester(ctx context.Context, req *models.SignatureRequest, title, message string) {
	s.notifier.Notify(ctx, req.RequesterID, title, message, "/signature-requests/"+req.ID)
}
