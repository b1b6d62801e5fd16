package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultEmailTimeout = 10 * time.Second

type sendEmailRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

var _ EmailSender = (*EmailServiceProvider)(nil)

// EmailServiceProvider posts messages to the HTTP email service. Retries are
// left to the dispatch queue, so the client never retries on its own.
type EmailServiceProvider struct {
	client   *resty.Client
	endpoint string
}

func NewEmailServiceProvider(endpoint string, timeout time.Duration) (*EmailServiceProvider, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultEmailTimeout
	}
	client.SetTimeout(timeout)

	return NewEmailServiceProviderWithClient(endpoint, client)
}

func NewEmailServiceProviderWithClient(endpoint string, client *resty.Client) (*EmailServiceProvider, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("email service endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid email service endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultEmailTimeout)
	}
	client.SetRetryCount(0)

	return &EmailServiceProvider{
		client:   client,
		endpoint: endpoint,
	}, nil
}

// Send succeeds only when the service answers 200 OK.
func (p *EmailServiceProvider) Send(ctx context.Context, email Email) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("email provider is not initialized")
	}
	if strings.TrimSpace(email.To) == "" {
		return nil, fmt.Errorf("email recipient is required")
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sendEmailRequest{Email: email.To, Message: email.Message}).
		Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())

	if statusCode == http.StatusOK {
		return &ProviderResponse{StatusCode: statusCode, Body: body}, nil
	}

	msg := fmt.Sprintf("unexpected status %d", statusCode)
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    msg,
		Transient:  statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError,
	}
}
