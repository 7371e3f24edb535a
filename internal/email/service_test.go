package email

import (
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "rh@cabinet.fr",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.cabinet.fr",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.cabinet.fr",
				Port: "587",
				From: "rh@cabinet.fr",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendHTMLEmailRequiresConfig(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendHTMLEmail([]string{"a@b.fr"}, "s", "t", "<p>h</p>"); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRenderInvitationTemplate(t *testing.T) {
	data := InvitationData{
		CompanyName: "Acme Recrutement",
		InviterName: "Camille Martin",
		AcceptURL:   "https://app.cabinet.fr/invitation/abc123",
		ExpiresAt:   time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
	}

	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	for _, want := range []string{"Acme Recrutement", "Camille Martin", "https://app.cabinet.fr/invitation/abc123", "09/03/2026"} {
		if !strings.Contains(html, want) {
			t.Errorf("template should contain %q", want)
		}
	}
}

func TestSendInvitationEmail(t *testing.T) {
	svc := NewService(Config{Host: "smtp.cabinet.fr", Port: "587", From: "rh@cabinet.fr", FromName: "Cabinet"})

	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.cabinet.fr:587" {
			t.Errorf("unexpected addr %q", addr)
		}
		if from != "rh@cabinet.fr" {
			t.Errorf("unexpected envelope sender %q", from)
		}
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := svc.SendInvitationEmail("new@cabinet.fr", InvitationData{
		CompanyName: "Acme",
		InviterName: "Camille",
		AcceptURL:   "https://app.cabinet.fr/invitation/tok",
		ExpiresAt:   time.Now().Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("SendInvitationEmail() error = %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "new@cabinet.fr" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	if !strings.Contains(gotMsg, "From: Cabinet <rh@cabinet.fr>") {
		t.Error("message should carry the display name")
	}
	if !strings.Contains(gotMsg, "Subject: Invitation à rejoindre Acme") {
		t.Error("message should carry the subject")
	}
	if !strings.Contains(gotMsg, "https://app.cabinet.fr/invitation/tok") {
		t.Error("message should carry the accept link")
	}
}
