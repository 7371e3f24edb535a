// Package email sends transactional mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends an HTML email with a plain text alternative.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	return s.send(s.server, s.auth, s.config.From, to, s.buildMessage(to, subject, textBody, htmlBody))
}

func (s *Service) buildMessage(to []string, subject, textBody, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-cabinet"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type InvitationData struct {
	CompanyName string
	InviterName string
	AcceptURL   string
	ExpiresAt   time.Time
}

func (d InvitationData) ExpiresOn() string {
	return d.ExpiresAt.Format("02/01/2006")
}

// SendInvitationEmail tells the invitee where to accept an invitation.
func (s *Service) SendInvitationEmail(to string, data InvitationData) error {
	subject := fmt.Sprintf("Invitation à rejoindre %s", data.CompanyName)
	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}
	text := fmt.Sprintf(
		"%s vous invite à rejoindre %s.\nAcceptez l'invitation avant le %s : %s",
		data.InviterName, data.CompanyName, data.ExpiresOn(), data.AcceptURL,
	)
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const invitationEmailTemplate = `<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="UTF-8">
    <title>Invitation à rejoindre {{.CompanyName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.CompanyName}}</h1>
    </div>

    <p>Bonjour,</p>

    <p>{{.InviterName}} vous invite à rejoindre l'espace de recrutement de {{.CompanyName}}.</p>

    <p>
        <a href="{{.AcceptURL}}" class="button">Accepter l'invitation</a>
    </p>

    <p>Ou copiez ce lien dans votre navigateur :</p>
    <p class="link">{{.AcceptURL}}</p>

    <p>Cette invitation expire le {{.ExpiresOn}}.</p>

    <div class="footer">
        <p>Si vous n'attendiez pas cette invitation, vous pouvez ignorer ce message.</p>
    </div>
</body>
</html>`
