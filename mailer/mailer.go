// Package mailer delivers transactional email to signers.
package mailer

import (
	"strings"

	"esign-backend/otp"

	"go.uber.org/zap"
)

// Sender delivers one HTML message. It reports success only; callers must
// treat false as "not sent" and must not advance any state.
type Sender interface {
	Send(to, subject, htmlBody string) bool
}

// LogSender writes a line per message instead of delivering it. Used when
// SMTP is not configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.With(zap.String("component", "mailer"))}
}

func (l *LogSender) Send(to, subject, htmlBody string) bool {
	if strings.TrimSpace(to) == "" {
		return false
	}
	l.logger.Info("email not delivered (smtp disabled)",
		zap.String("to", otp.MaskRecipient(to)),
		zap.String("subject", subject),
		zap.Int("bytes", len(htmlBody)),
	)
	return true
}
