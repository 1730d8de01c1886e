package utils

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Embedded email templates, keyed by the template_key stored on rules and
// drip emails. Each template receives the event payload / enrollment
// metadata as its data.
var emailTemplates = map[string]string{
	"welcome_day_0": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Welcome to your 45-day journey</h2>
    </div>
    <div class="content">
        <p>Hi{{if .name}} {{.name}}{{end}},</p>
        <p>Your transformation starts today. Open your journal and complete day one — it takes less than ten minutes.</p>
        <p>We'll check in along the way. You've got this.</p>
    </div>
    <div class="footer">
        <p>You're receiving this because you joined RiseLoop.</p>
    </div>
</body>
</html>`,

	"welcome_webinar": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>You're registered</h2>
    </div>
    <div class="content">
        <p>Hi{{if .name}} {{.name}}{{end}},</p>
        <p>Your seat for the live session is confirmed. We'll send a reminder with the join link before it starts.</p>
    </div>
    <div class="footer">
        <p>You're receiving this because you registered for a RiseLoop session.</p>
    </div>
</body>
</html>`,

	"streak_reminder": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { margin: 20px 0; }
        .streak { font-size: 24px; font-weight: bold; color: #e67e22; text-align: center; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="content">
        <p>Hi{{if .name}} {{.name}}{{end}},</p>
        <div class="streak">🔥 {{.streak}}-day streak</div>
        <p>You haven't journaled today yet. A few minutes now keeps your streak alive.</p>
    </div>
    <div class="footer">
        <p>You're receiving this because streak reminders are enabled on your account.</p>
    </div>
</body>
</html>`,

	"winback_1": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="content">
        <p>Hi{{if .name}} {{.name}}{{end}},</p>
        <p>It's been a little while. Your journal is right where you left it — one entry is all it takes to get moving again.</p>
    </div>
    <div class="footer">
        <p>You're receiving this because you have a RiseLoop account.</p>
    </div>
</body>
</html>`,

	"winback_2": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="content">
        <p>Hi{{if .name}} {{.name}}{{end}},</p>
        <p>Most people who finish the 45 days restarted at least once. Today is a good day to be one of them.</p>
    </div>
    <div class="footer">
        <p>You're receiving this because you have a RiseLoop account.</p>
    </div>
</body>
</html>`,

	"milestone_unlocked": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { margin: 20px 0; }
        .badge { font-size: 24px; font-weight: bold; color: #27ae60; text-align: center; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="content">
        <p>Hi{{if .name}} {{.name}}{{end}},</p>
        <div class="badge">🏅 Milestone unlocked</div>
        <p>Your consistency just earned you new content. It's waiting in your dashboard.</p>
    </div>
    <div class="footer">
        <p>You're receiving this because you have a RiseLoop account.</p>
    </div>
</body>
</html>`,
}

// MailerConfig carries the SMTP settings the mailer needs; values come from
// config at startup so the mailer has no hidden environment reads.
type MailerConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// Mailer renders an embedded template and delivers it over SMTP. It
// implements automation.EmailSender.
type Mailer struct {
	config MailerConfig
	dial   func(m *gomail.Message) error
}

func NewMailer(cfg MailerConfig) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{
		config: cfg,
		dial:   func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

func (m *Mailer) Send(to, subject, templateKey string, data map[string]interface{}) error {
	tmplContent, ok := emailTemplates[templateKey]
	if !ok {
		return fmt.Errorf("template %q not found", templateKey)
	}

	tmpl, err := template.New("email").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("error parsing template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("error executing template: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.config.FromName, m.config.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", fmt.Sprintf("<%s@riseloop.app>", uuid.New().String()))
	msg.SetBody("text/html", body.String())

	if err := m.dial(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

// HasTemplate reports whether a template key exists; rule and campaign CRUD
// validates keys eagerly so dispatch never hits a missing template.
func HasTemplate(key string) bool {
	_, ok := emailTemplates[key]
	return ok
}
