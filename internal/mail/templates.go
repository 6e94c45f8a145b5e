package mail

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/tazhibayda/authflow/internal/queue"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
<div style="background: linear-gradient(to right, #7c3aed, #a78bfa); padding: 20px; text-align: center;">
<h1 style="color: white; margin: 0;">{{template "title" .}}</h1></div>
<div style="background-color: #f9f9f9; padding: 20px; border-radius: 0 0 5px 5px;">{{template "content" .}}
<p>Best regards,<br>Your App Team</p></div>
<p style="text-align: center; color: #888; font-size: 0.8em;">This is an automated message, please do not reply to this email.</p>
</body></html>`

var templates = map[queue.MailKind]mailTemplate{
	queue.MailVerification: mustTemplate("Verify your email",
		`{{define "title"}}Verify Your Email{{end}}
{{define "content"}}<p>Hello,</p><p>Thank you for signing up! Your verification code is:</p>
<p style="text-align: center; font-size: 32px; font-weight: bold; letter-spacing: 5px; color: #7c3aed;">{{.Code}}</p>
<p>Enter this code on the verification page to complete your registration.</p>
<p>This code will expire in 24 hours for security reasons.</p>
<p>If you didn't create an account with us, please ignore this email.</p>{{end}}`),
	queue.MailWelcome: mustTemplate("Welcome",
		`{{define "title"}}Welcome{{end}}
{{define "content"}}<p>Hello {{.Name}},</p><p>Your email has been verified and your account is ready.</p>{{end}}`),
	queue.MailResetRequest: mustTemplate("Reset your password",
		`{{define "title"}}Password Reset{{end}}
{{define "content"}}<p>Hello,</p><p>We received a request to reset your password. If you didn't make this request, please ignore this email.</p>
<p>To reset your password, click the button below:</p>
<p style="text-align: center;"><a href="{{.Link}}" style="background-color: #7c3aed; color: white; padding: 12px 20px; text-decoration: none; border-radius: 5px; font-weight: bold;">Reset Password</a></p>
<p>This link will expire in 1 hour for security reasons.</p>{{end}}`),
	queue.MailResetSuccess: mustTemplate("Password Reset Successful",
		`{{define "title"}}Password Reset Successful{{end}}
{{define "content"}}<p>Hello,</p><p>We're writing to confirm that your password has been successfully reset.</p>
<p>If you did not initiate this password reset, please contact our support team immediately.</p>{{end}}`),
}

func mustTemplate(subject, parts string) mailTemplate {
	t := template.Must(template.New("layout").Parse(layout))
	template.Must(t.Parse(parts))
	return mailTemplate{subject: subject, body: t}
}

// Render returns the subject and HTML body for ev.
func Render(ev queue.MailEvent) (string, string, error) {
	mt, ok := templates[ev.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown mail kind %q", ev.Kind)
	}
	var buf bytes.Buffer
	if err := mt.body.ExecuteTemplate(&buf, "layout", ev); err != nil {
		return "", "", fmt.Errorf("render %s: %w", ev.Kind, err)
	}
	return mt.subject, buf.String(), nil
}
