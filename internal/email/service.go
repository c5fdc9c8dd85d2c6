// Package email sends item links and sharing notices via SMTP. Without an
// SMTP host the sends are simulated and logged.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"docuflex/internal/logging"
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

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config   Config
	server   string
	auth     smtp.Auth
	sendMail sendFunc
	logger   *zap.Logger
}

// Delivery reports how a message left the service.
type Delivery struct {
	Recipient string
	Subject   string
	Simulated bool
}

// NewService creates a new email service
func NewService(config Config, logger *zap.Logger) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     auth,
		sendMail: smtp.SendMail,
		logger:   logging.OrNop(logger).Named("email"),
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends an HTML email with a plain text alternative.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	boundary := "boundary-docuflex"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
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

	return s.sendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// ItemLinkData is the payload of an "email a link" message.
type ItemLinkData struct {
	AppName    string
	SenderName string
	ItemName   string
	Link       string
}

// ShareNoticeData is the payload of a sharing notification.
type ShareNoticeData struct {
	AppName     string
	OwnerName   string
	GranteeName string
	ItemName    string
	Access      string
	Link        string
}

// SendItemLink emails a link to an item.
func (s *Service) SendItemLink(to string, data ItemLinkData) (Delivery, error) {
	subject := fmt.Sprintf("%s shared %q with you", data.SenderName, data.ItemName)
	text := fmt.Sprintf("%s shared %s with you: %s", data.SenderName, data.ItemName, data.Link)
	return s.deliver(to, subject, text, itemLinkTemplate, data)
}

// SendShareNotice tells a grantee about a new or changed grant.
func (s *Service) SendShareNotice(to string, data ShareNoticeData) (Delivery, error) {
	subject := fmt.Sprintf("%s gave you %s access to %q", data.OwnerName, data.Access, data.ItemName)
	text := fmt.Sprintf("Hi %s, %s gave you %s access to %s: %s", data.GranteeName, data.OwnerName, data.Access, data.ItemName, data.Link)
	return s.deliver(to, subject, text, shareNoticeTemplate, data)
}

func (s *Service) deliver(to, subject, text, tmpl string, data interface{}) (Delivery, error) {
	delivery := Delivery{Recipient: to, Subject: subject, Simulated: !s.IsConfigured()}
	if delivery.Simulated {
		s.logger.Info("email simulated", zap.String("to", to), zap.String("subject", subject))
		return delivery, nil
	}

	html, err := renderTemplate(tmpl, data)
	if err != nil {
		return delivery, fmt.Errorf("render email template: %w", err)
	}
	if err := s.SendHTMLEmail([]string{to}, subject, text, html); err != nil {
		s.logger.Warn("email send failed", zap.String("to", to), zap.Error(err))
		return delivery, fmt.Errorf("send email: %w", err)
	}
	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return delivery, nil
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
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

const itemLinkTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.SenderName}} shared {{.ItemName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>{{.SenderName}} sent you a link to <strong>{{.ItemName}}</strong>.</p>

    <p>Open it in {{.AppName}} with this link:</p>
    <p class="link">{{.Link}}</p>
</body>
</html>`

const shareNoticeTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.ItemName}} was shared with you</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .access { display: inline-block; padding: 2px 8px; background: #e6f0fa; border-radius: 4px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Hi {{.GranteeName}},</p>

    <p>{{.OwnerName}} gave you <span class="access">{{.Access}}</span> access to <strong>{{.ItemName}}</strong>.</p>

    <p class="link">{{.Link}}</p>

    <div class="footer">
        <p>You can change notification settings with the owner of the item.</p>
    </div>
</body>
</html>`
