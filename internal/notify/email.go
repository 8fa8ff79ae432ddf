package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	FromName string
	FromAddr string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers user notices over SMTP.
type EmailSender struct {
	cfg      SMTPConfig
	tr       Translator
	sendMail sendMailFunc
}

// NewEmailSender constructs an EmailSender.
func NewEmailSender(cfg SMTPConfig, tr Translator) *EmailSender {
	return &EmailSender{cfg: cfg, tr: tr, sendMail: smtp.SendMail}
}

func (e *EmailSender) Name() string { return "email" }

// Deliver sends n to its recipient. Broadcasts and users without an address
// are skipped.
func (e *EmailSender) Deliver(_ context.Context, n Notice) error {
	if n.Broadcast() || n.Email == "" {
		return nil
	}
	subject, body := Render(e.tr, n)

	headers := [][2]string{
		{"From", fmt.Sprintf("%s <%s>", e.cfg.FromName, e.cfg.FromAddr)},
		{"To", n.Email},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="UTF-8"`},
	}
	var msg strings.Builder
	for _, h := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}
	msg.WriteString("\r\n" + body + "\r\n")

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := e.cfg.Host + ":" + e.cfg.Port
	if err := e.sendMail(addr, auth, e.cfg.FromAddr, []string{n.Email}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
