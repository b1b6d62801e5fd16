package provider

import "context"

// Email is one message for the email service.
type Email struct {
	To      string
	Message string
}

// EmailSender is the outbound email delivery port.
type EmailSender interface {
	Send(ctx context.Context, email Email) (*ProviderResponse, error)
}

// ProviderResponse keeps the email service reply for the attempt log.
type ProviderResponse struct {
	StatusCode int
	Body       string
}
