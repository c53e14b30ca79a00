package signature

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"esign-backend/mailer"
	"esign-backend/models"
	"esign-backend/otp"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SignerView is what the holder of a signing link may see.
type SignerView struct {
	DocumentTitle string                 `json:"document_title"`
	SignerName    string                 `json:"signer_name"`
	MaskedEmail   string                 `json:"masked_email"`
	CompanyName   string                 `json:"company_name"`
	Status        models.SignatureStatus `json:"status"`
	ExpiresAt     time.Time              `json:"expires_at"`
}

func (s *Service) resolve(token string) (string, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return id, nil
}

// CheckLink reports whether token is a valid signing link. It does not
// look at the request itself.
func (s *Service) CheckLink(token string) error {
	_, err := s.resolve(token)
	return err
}

// View returns the signer page data. A viewed row is recorded while the
// request is still open; closed and expired requests are shown without one.
func (s *Service) View(ctx context.Context, token string, c Client) (*SignerView, error) {
	id, err := s.resolve(token)
	if err != nil {
		return nil, err
	}

	var company string
	req, err := s.transition(ctx, "view", byID(id), func(tx *gorm.DB, req *models.SignatureRequest) error {
		company = s.companyName(tx, req.TenantSchema)
		if req.Status.IsTerminal() {
			return nil
		}
		return s.record(tx, req, models.AuditViewed, c, nil)
	})
	if errors.Is(err, ErrExpired) {
		company = s.companyName(s.db.WithContext(ctx), req.TenantSchema)
	} else if err != nil {
		return nil, err
	}

	return &SignerView{
		DocumentTitle: req.DocumentTitle,
		SignerName:    req.SignerName,
		MaskedEmail:   otp.MaskRecipient(req.SignerEmail),
		CompanyName:   company,
		Status:        req.Status,
		ExpiresAt:     req.ExpiresAt,
	}, nil
}

// RequestOTP issues a new code and emails it to the signer. The OTP row is
// kept even when the email is refused, so every issuance counts toward
// otp.MaxPerRequest; the OTP_SENT status and the otp_sent row are written only
// after the email was accepted. It returns the masked recipient.
func (s *Service) RequestOTP(ctx context.Context, token string, c Client) (string, error) {
	id, err := s.resolve(token)
	if err != nil {
		return "", err
	}
	if !s.allow("otp-issue", c, s.cfg.Limits.OtpIssue) {
		return "", ErrRateLimited
	}

	var (
		masked      string
		undelivered bool
	)
	_, err = s.transition(ctx, "request_otp", byID(id), func(tx *gorm.DB, req *models.SignatureRequest) error {
		if req.Status != models.StatusPending && req.Status != models.StatusOtpSent {
			return &StateError{Status: req.Status, Action: "request_otp"}
		}

		var issued int64
		if err := tx.Model(&models.SignatureOtp{}).Where("request_id = ?", req.ID).Count(&issued).Error; err != nil {
			return err
		}
		if issued >= otp.MaxPerRequest {
			return ErrOtpLimitExceeded
		}

		code, err := otp.GenerateCode()
		if err != nil {
			return err
		}
		hash, err := otp.Hash(code)
		if err != nil {
			return err
		}
		now := s.now()
		row := models.SignatureOtp{
			RequestID: req.ID,
			OtpHash:   hash,
			Channel:   otp.ChannelEmail,
			SentTo:    req.SignerEmail,
			ExpiresAt: now.Add(otp.TTL),
			CreatedAt: now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		masked = otp.MaskRecipient(req.SignerEmail)
		subject, body, err := mailer.RenderOTP(mailer.OTPEmail{
			SignerName:    req.SignerName,
			DocumentTitle: req.DocumentTitle,
			CompanyName:   s.companyName(tx, req.TenantSchema),
			Code:          code,
			ValidMinutes:  int(otp.TTL / time.Minute),
		})
		if err != nil {
			return err
		}
		if !s.mail.Send(req.SignerEmail, subject, body) {
			s.logger.Warn("otp email not sent",
				zap.String("request_id", req.ID),
				zap.String("otp_id", row.ID),
				zap.String("to", masked))
			// Commit the OTP row alone.
			undelivered = true
			return nil
		}

		if req.Status == models.StatusPending {
			if err := s.setStatus(tx, req, "request_otp", models.StatusOtpSent, nil); err != nil {
				return err
			}
		}
		return s.record(tx, req, models.AuditOtpSent, c, map[string]any{
			"otp_id":  row.ID,
			"channel": otp.ChannelEmail,
			"sent_to": masked,
		})
	})
	if err != nil {
		return "", err
	}
	if undelivered {
		return "", ErrEmailDelivery
	}
	return masked, nil
}

// Sign checks code against the request's live OTPs. A match consumes the OTP
// and moves the request to SIGNED. A mismatch counts an attempt on every live
// OTP and is itself recorded; an OTP with MaxAttempts failures is locked.
func (s *Service) Sign(ctx context.Context, token, code string, c Client) error {
	id, err := s.resolve(token)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !otp.ValidCode(code) {
		return invalid("code must be %d digits", otp.CodeLength)
	}
	if !s.allow("otp-verify", c, s.cfg.Limits.OtpVerify) {
		return ErrRateLimited
	}

	var mismatch bool
	req, err := s.transition(ctx, "sign", byID(id), func(tx *gorm.DB, req *models.SignatureRequest) error {
		if req.Status != models.StatusOtpSent {
			return &StateError{Status: req.Status, Action: "sign"}
		}

		var issued []models.SignatureOtp
		err := tx.Where("request_id = ? AND is_used = ? AND attempts < ?", req.ID, false, otp.MaxAttempts).
			Order("created_at DESC").
			Find(&issued).Error
		if err != nil {
			return err
		}

		now := s.now()
		var (
			live    []string
			matched *models.SignatureOtp
		)
		for i := range issued {
			o := &issued[i]
			if !now.Before(o.ExpiresAt) {
				continue
			}
			live = append(live, o.ID)
			if matched == nil && otp.Matches(code, o.OtpHash) {
				matched = o
			}
		}

		if matched == nil {
			if len(live) > 0 {
				err := tx.Model(&models.SignatureOtp{}).
					Where("id IN ?", live).
					UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
				if err != nil {
					return err
				}
			}
			mismatch = true
			return s.record(tx, req, models.AuditOtpFailed, c, map[string]any{"candidates": len(live)})
		}

		res := tx.Model(&models.SignatureOtp{}).
			Where("id = ? AND is_used = ?", matched.ID, false).
			UpdateColumn("is_used", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("otp %s consumed concurrently", matched.ID)
		}
		if err := s.setStatus(tx, req, "sign", models.StatusSigned, map[string]any{"signed_at": now}); err != nil {
			return err
		}
		req.SignedAt = &now
		return s.record(tx, req, models.AuditSigned, c, map[string]any{"otp_id": matched.ID})
	})
	if err != nil {
		return err
	}
	if mismatch {
		return ErrInvalidCode
	}

	s.logger.Info("request signed", zap.String("request_id", req.ID))
	s.notifyRequester(ctx, req, "Document signed",
		fmt.Sprintf("%s signed %q.", req.SignerName, req.DocumentTitle))
	return nil
}

// Decline closes the request on the signer's behalf. reason is optional.
func (s *Service) Decline(ctx context.Context, token string, reason *string, c Client) error {
	id, err := s.resolve(token)
	if err != nil {
		return err
	}
	var stored *string
	if reason != nil {
		r := strings.TrimSpace(*reason)
		if len(r) > maxReasonLength {
			return invalid("reason must be at most %d characters", maxReasonLength)
		}
		if r != "" {
			stored = &r
		}
	}

	req, err := s.transition(ctx, "decline", byID(id), func(tx *gorm.DB, req *models.SignatureRequest) error {
		if req.Status.IsTerminal() {
			return &StateError{Status: req.Status, Action: "decline"}
		}
		now := s.now()
		if err := s.setStatus(tx, req, "decline", models.StatusDeclined, map[string]any{
			"decline_reason": stored,
			"declined_at":    now,
		}); err != nil {
			return err
		}
		req.DeclineReason = stored
		req.DeclinedAt = &now

		meta := map[string]any{}
		if stored != nil {
			meta["reason"] = *stored
		}
		return s.record(tx, req, models.AuditDeclined, c, meta)
	})
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("%s declined %q.", req.SignerName, req.DocumentTitle)
	if stored != nil {
		msg += " Reason: " + *stored
	}
	s.notifyRequester(ctx, req, "Signature declined", msg)
	return nil
}
