package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"esign-backend/config"
	"esign-backend/otp"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const sendTimeout = 20 * time.Second

// SMTPSender delivers mail through an SMTP relay. STARTTLS is used when the
// server offers it; PLAIN auth when a username is configured.
type SMTPSender struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "mailer")),
		now:    time.Now,
	}
}

func (s *SMTPSender) Send(to, subject, htmlBody string) bool {
	if err := s.send(to, subject, htmlBody); err != nil {
		s.logger.Warn("email delivery failed",
			zap.String("to", otp.MaskRecipient(to)),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return false
	}
	s.logger.Info("email delivered",
		zap.String("to", otp.MaskRecipient(to)),
		zap.String("subject", subject),
	)
	return true
}

func (s *SMTPSender) send(to, subject, htmlBody string) error {
	msg, err := newMessage(s.cfg.From, to, subject, htmlBody, s.now())
	if err != nil {
		return err
	}
	client, err := s.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return client.DialAndSendWithContext(ctx, msg)
}

func (s *SMTPSender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(sendTimeout / 2),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}

func newMessage(from, to, subject, htmlBody string, at time.Time) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	m.Subject(subject)
	m.SetDateWithValue(at)
	m.SetMessageIDWithValue(uuid.NewString() + "@" + domainOf(from))
	m.SetBodyString(mail.TypeTextHTML, htmlBody)
	return m, nil
}

func domainOf(addr string) string {
	addr = strings.TrimSuffix(strings.TrimSpace(addr), ">")
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
