package sendemail

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type EmailService interface {
	SendEmail(subject, toEmail, plainTextContent, htmlContent string) error
}

// Sender identifies the SendGrid account and the From header used for every
// outgoing message.
type Sender struct {
	APIKey string
	Email  string
	Name   string
}

type emailService struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewEmailService(sender Sender) EmailService {
	return &emailService{
		client: sendgrid.NewSendClient(sender.APIKey),
		from:   mail.NewEmail(sender.Name, sender.Email),
	}
}

func (e *emailService) SendEmail(subject, toEmail, plainTextContent, htmlContent string) error {
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(e.from, subject, to, plainTextContent, htmlContent)
	response, err := e.client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected message: status %d", response.StatusCode)
	}
	return nil
}
