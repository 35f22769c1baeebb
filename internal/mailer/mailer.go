package mailer

import (
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"carhistory/internal/config"
	"carhistory/internal/util"
)

// Mailer delivers one-time codes. Delivery failures are surfaced to the
// caller, which decides whether the enclosing operation still succeeds.
type Mailer interface {
	SendOTP(email, otp string) error
}

// NullMailer drops mail on the floor. Default outside production; pairs with
// the dev OTP echo for local testing.
type NullMailer struct{}

func NewNullMailer() *NullMailer { return &NullMailer{} }

func (m *NullMailer) SendOTP(email, otp string) error {
	util.Debug("null mailer dropping OTP mail")
	return nil
}

// SMTPMailer sends over plain SMTP with AUTH PLAIN.
type SMTPMailer struct {
	config *config.MailerConfig
}

func NewSMTPMailer(cfg *config.MailerConfig) *SMTPMailer {
	return &SMTPMailer{config: cfg}
}

func (m *SMTPMailer) SendOTP(email, otp string) error {
	addr := fmt.Sprintf("%s:%d", m.config.SMTPHost, m.config.SMTPPort)
	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.SMTPHost)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your verification code\r\n\r\nYour verification code is %s. It expires shortly. If you did not request it, ignore this message.\r\n",
		m.config.From, email, otp))

	if err := smtp.SendMail(addr, auth, m.config.From, []string{email}, msg); err != nil {
		// Log without the recipient; the caller audits the failure.
		util.Error("failed to send OTP mail", zap.String("smtp_host", m.config.SMTPHost), zap.Error(err))
		return fmt.Errorf("failed to send OTP mail: %w", err)
	}
	return nil
}

// New builds the mailer for the configured mode. Config validation already
// rejected unknown modes.
func New(cfg *config.MailerConfig) Mailer {
	if cfg.Mode == "smtp" {
		return NewSMTPMailer(cfg)
	}
	return NewNullMailer()
}
