package transport

import (
	"context"
	"fmt"

	"unichat/internal/models"

	mailgun "github.com/mailgun/mailgun-go/v5"
	"github.com/sirupsen/logrus"
	mail "github.com/wneessen/go-mail"
)

// Email 邮件外发。凭据里带 mailgun_api_key 时走 Mailgun，
// 否则按 smtp_host/smtp_port/username/password 走 SMTP。

type Email struct {
	logger *logrus.Logger
}

func NewEmail(logger *logrus.Logger) *Email {
	return &Email{logger: logger}
}

// SendText 寄出一封纯文本回复
func (e *Email) SendText(ctx context.Context, channel *models.Channel, recipient, text string) error {
	if channel.Credential("mailgun_api_key") != "" {
		return e.sendMailgun(ctx, channel, recipient, text)
	}
	return e.sendSMTP(ctx, channel, recipient, text)
}

func (e *Email) sendMailgun(ctx context.Context, channel *models.Channel, recipient, text string) error {
	domain := channel.Credential("mailgun_domain")
	if domain == "" {
		return fmt.Errorf("email: channel %d missing mailgun_domain", channel.ID)
	}

	client := mailgun.NewMailgun(channel.Credential("mailgun_api_key"))
	if channel.Credential("mailgun_region") == "eu" {
		client.SetAPIBase(mailgun.APIBaseEU)
	}

	from := channel.Credential("address")
	if from == "" {
		from = fmt.Sprintf("noreply@%s", domain)
	}
	subject := channel.Setting("reply_subject")
	if subject == "" {
		subject = "Re: your message"
	}

	msg := mailgun.NewMessage(domain, from, subject, text, recipient)
	if _, err := client.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}

func (e *Email) sendSMTP(ctx context.Context, channel *models.Channel, recipient, text string) error {
	host := channel.Credential("smtp_host")
	username := channel.Credential("username")
	password := channel.Credential("password")
	if host == "" || username == "" {
		return fmt.Errorf("email: channel %d missing smtp credentials", channel.ID)
	}

	port := 587
	if p, ok := channel.Credentials["smtp_port"].(float64); ok && p > 0 {
		port = int(p)
	}

	from := channel.Credential("address")
	if from == "" {
		from = username
	}
	subject := channel.Setting("reply_subject")
	if subject == "" {
		subject = "Re: your message"
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return fmt.Errorf("email: set from: %w", err)
	}
	if err := m.To(recipient); err != nil {
		return fmt.Errorf("email: set to: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, text)
	m.SetMessageID()

	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("email: create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}
