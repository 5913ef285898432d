package email

import (
	"fmt"
	"net/http"

	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultSendGridHost = "https://api.sendgrid.com"
	sendEndpoint        = "/v3/mail/send"
)

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	sendGridKey string
	host        string
	useSendGrid bool
	log         logger.Logger
}

// NewService creates a new email service.
// If sendGridAPIKey is provided, emails will be sent via SendGrid;
// otherwise they are only logged (development mode).
func NewService(fromEmail, fromName, sendGridAPIKey string, log logger.Logger) *Service {
	log = log.With("component", "email")
	useSendGrid := sendGridAPIKey != ""
	if useSendGrid {
		log.Info("email service initialized with SendGrid")
	} else {
		log.Warn("email service in console-only mode, set SENDGRID_API_KEY for production")
	}

	return &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		sendGridKey: sendGridAPIKey,
		host:        defaultSendGridHost,
		useSendGrid: useSendGrid,
		log:         log,
	}
}

// SendEmail sends an email with the given subject and bodies.
// Uses SendGrid in production, logs in development.
func (s *Service) SendEmail(toEmail, toName, subject, htmlBody, plainTextBody string) error {
	if toEmail == "" {
		return fmt.Errorf("recipient email is required")
	}
	if s.useSendGrid {
		return s.sendViaSendGrid(toEmail, toName, subject, htmlBody, plainTextBody)
	}

	s.log.Info("email not sent (development mode)",
		"subject", subject,
		"to", toEmail,
		"to_name", toName,
		"from", s.fromEmail,
	)
	return nil
}

// sendViaSendGrid sends email using the SendGrid v3 API
func (s *Service) sendViaSendGrid(toEmail, toName, subject, htmlBody, plainTextBody string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextBody, htmlBody)

	request := sendgrid.GetRequest(s.sendGridKey, sendEndpoint, s.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequest(request)
	if err != nil {
		s.log.Error("sendgrid request failed", "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		s.log.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	s.log.Info("email sent", "to", toEmail, "subject", subject, "status", response.StatusCode)
	return nil
}
