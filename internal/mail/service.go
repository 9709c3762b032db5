// Package mail sends Conductor's notification emails via SMTP.
package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new mail service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if SMTP is configured. Callers treat an
// unconfigured service as "notifications disabled", not as an error.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("mail not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("mail not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-conductor"

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
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type newMessageData struct {
	AppName      string
	AuthorName   string
	ProjectTitle string
	ThreadTitle  string
	Body         string
}

type projectFlaggedData struct {
	AppName      string
	ProjectTitle string
	Description  string
}

type addedAsMemberData struct {
	AppName      string
	ProjectTitle string
}

type projectCompletedData struct {
	AppName      string
	ProjectTitle string
}

type publishingRequestData struct {
	AppName      string
	ProjectTitle string
	OwnerName    string
}

// SendNewMessageNotification notifies project members about discussion
// activity in a thread.
func (s *Service) SendNewMessageNotification(to []string, authorName, projectTitle, threadTitle, body string) error {
	data := newMessageData{
		AppName:      "Conductor",
		AuthorName:   authorName,
		ProjectTitle: projectTitle,
		ThreadTitle:  threadTitle,
		Body:         body,
	}

	subject := fmt.Sprintf("New message in %s", projectTitle)
	html, err := renderTemplate(newMessageTemplate, data)
	if err != nil {
		return fmt.Errorf("render new message template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

// SendProjectFlaggedNotification tells the flagged group a project needs
// their attention.
func (s *Service) SendProjectFlaggedNotification(to []string, projectTitle, description string) error {
	data := projectFlaggedData{
		AppName:      "Conductor",
		ProjectTitle: projectTitle,
		Description:  description,
	}

	subject := fmt.Sprintf("Project flagged for review: %s", projectTitle)
	html, err := renderTemplate(projectFlaggedTemplate, data)
	if err != nil {
		return fmt.Errorf("render flagged template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

// SendAddedAsMemberNotification welcomes a new collaborator to a project.
func (s *Service) SendAddedAsMemberNotification(to, projectTitle string) error {
	data := addedAsMemberData{
		AppName:      "Conductor",
		ProjectTitle: projectTitle,
	}

	subject := fmt.Sprintf("You were added to %s", projectTitle)
	html, err := renderTemplate(addedAsMemberTemplate, data)
	if err != nil {
		return fmt.Errorf("render added as member template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendProjectCompletedAlert notifies watchers that a project reached the
// completed status.
func (s *Service) SendProjectCompletedAlert(to []string, projectTitle string) error {
	data := projectCompletedData{
		AppName:      "Conductor",
		ProjectTitle: projectTitle,
	}

	subject := fmt.Sprintf("Project completed: %s", projectTitle)
	html, err := renderTemplate(projectCompletedTemplate, data)
	if err != nil {
		return fmt.Errorf("render completed template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

// SendPublishingRequestNotification asks platform administrators to publish
// a finished project.
func (s *Service) SendPublishingRequestNotification(to []string, projectTitle, ownerName string) error {
	data := publishingRequestData{
		AppName:      "Conductor",
		ProjectTitle: projectTitle,
		OwnerName:    ownerName,
	}

	subject := fmt.Sprintf("Publishing requested: %s", projectTitle)
	html, err := renderTemplate(publishingRequestTemplate, data)
	if err != nil {
		return fmt.Errorf("render publishing request template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("mail").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const mailStyle = `
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #127bc4; padding-bottom: 10px; margin-bottom: 20px; }
        .quote { background: #f4f6f8; padding: 12px; border-left: 3px solid #127bc4; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
`

const newMessageTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New message in {{.ProjectTitle}}</title>
    <style>` + mailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>New message in {{.ProjectTitle}}</h2>

    <p>{{.AuthorName}} posted in the thread <strong>{{.ThreadTitle}}</strong>:</p>

    <div class="quote">{{.Body}}</div>

    <div class="footer">
        <p>You are receiving this because you are a member of {{.ProjectTitle}} on {{.AppName}}.</p>
    </div>
</body>
</html>`

const projectFlaggedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Project flagged for review</title>
    <style>` + mailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.ProjectTitle}} needs your attention</h2>

    <p>The project <strong>{{.ProjectTitle}}</strong> was flagged for your review.</p>

    {{if .Description}}<div class="quote">{{.Description}}</div>{{end}}

    <div class="footer">
        <p>Open {{.AppName}} to review and clear the flag.</p>
    </div>
</body>
</html>`

const addedAsMemberTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>You were added to {{.ProjectTitle}}</title>
    <style>` + mailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Welcome aboard!</h2>

    <p>You have been added as a member of <strong>{{.ProjectTitle}}</strong> on {{.AppName}}.</p>

    <div class="footer">
        <p>Sign in to {{.AppName}} to view the project.</p>
    </div>
</body>
</html>`

const projectCompletedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Project completed</title>
    <style>` + mailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.ProjectTitle}} is complete</h2>

    <p>The project <strong>{{.ProjectTitle}}</strong> you are watching has been marked completed.</p>

    <div class="footer">
        <p>You are receiving this because you enabled alerts for this project.</p>
    </div>
</body>
</html>`

const publishingRequestTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Publishing requested</title>
    <style>` + mailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Publishing requested for {{.ProjectTitle}}</h2>

    <p>{{.OwnerName}} has requested publishing for <strong>{{.ProjectTitle}}</strong>.</p>

    <div class="footer">
        <p>Open {{.AppName}} to review the request.</p>
    </div>
</body>
</html>`
