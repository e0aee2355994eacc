package notify

import (
	"context"
	"errors"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/scorredoira/email"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSSender delivers a text message to a phone number
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EmailSender delivers a plain text email
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSenderFunc adapts a function to SMSSender
type SMSSenderFunc func(ctx context.Context, to, body string) error

func (f SMSSenderFunc) SendSMS(ctx context.Context, to, body string) error {
	return f(ctx, to, body)
}

// EmailSenderFunc adapts a function to EmailSender
type EmailSenderFunc func(ctx context.Context, to, subject, body string) error

func (f EmailSenderFunc) SendEmail(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// TwilioSender sends SMS through the Twilio messages API
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender returns nil when Twilio is disabled
func NewTwilioSender(config engine.TwilioConfig) *TwilioSender {
	if !config.Enable {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})
	return &TwilioSender{client: client, from: config.From}
}

// SendSMS implements SMSSender. The twilio client takes no context, so
// cancellation is only honoured before the call.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(ToE164(to))
	params.SetFrom(s.from)
	params.SetBody(body)

	_, err := s.client.Api.CreateMessage(params)
	return err
}

// ToE164 strips the formatting characters a validated phone number may carry
func ToE164(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SMTPSender sends email through an SMTP relay
type SMTPSender struct {
	server   string
	from     string
	auth     smtp.Auth
	fromName string
}

// NewSMTPSender returns nil when mail is disabled
func NewSMTPSender(config engine.MailConfig) *SMTPSender {
	if !config.Enable {
		return nil
	}
	port := config.MailSMTPPort
	if port == "" {
		port = "25"
	}

	var auth smtp.Auth
	if config.MailPassword != "" {
		auth = smtp.PlainAuth("", config.MailFrom, config.MailPassword, config.MailSMTP)
	}

	return &SMTPSender{
		server:   config.MailSMTP + ":" + port,
		from:     config.MailFrom,
		auth:     auth,
		fromName: "Witness",
	}
}

// SendEmail implements EmailSender
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.from == "" {
		return errors.New("mail sender address not configured")
	}

	m := email.NewMessage(subject, body)
	m.From = mail.Address{Name: s.fromName, Address: s.from}
	m.To = []string{to}

	return email.Send(s.server, s.auth, m)
}
