// Package notifx sends the assistant's transactional email.
package notifx

import (
	"context"
	"strings"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) (SendResult, error)
}

// Client is the main entry point for sending notifications.
type Client struct {
	provider    EmailSender
	templates   *TemplateRegistry
	fromAddress string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithFromAddress sets the sender used when a message has none.
func WithFromAddress(from string) ClientOption {
	return func(c *Client) { c.fromAddress = from }
}

// WithTemplates replaces the template registry.
func WithTemplates(r *TemplateRegistry) ClientOption {
	return func(c *Client) { c.templates = r }
}

// NewClient creates a new notification client with the built-in templates.
func NewClient(provider EmailSender, opts ...ClientOption) *Client {
	c := &Client{
		provider:  provider,
		templates: DefaultTemplates(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendEmail sends an email through the configured provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) (SendResult, error) {
	if c.provider == nil {
		return SendResult{}, notifxErrors.New(ErrNoProvider)
	}
	if len(msg.To) == 0 {
		return SendResult{}, notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	for _, to := range msg.To {
		if strings.TrimSpace(to) == "" {
			return SendResult{}, notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty recipient")
		}
	}
	if msg.Subject == "" {
		return SendResult{}, notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.From == "" {
		msg.From = c.fromAddress
	}
	return c.provider.SendEmail(ctx, msg, opts...)
}

// RegisterTemplate parses and stores a named template for later use.
func (c *Client) RegisterTemplate(name, tmplString string) error {
	return c.templates.Register(name, tmplString)
}

// HasTemplate reports whether name is registered.
func (c *Client) HasTemplate(name string) bool {
	return c.templates.Has(name)
}

// SendTemplatedEmail renders a template and sends the resulting email.
func (c *Client) SendTemplatedEmail(ctx context.Context, templateName string, data any, msg EmailMessage, opts ...Option) (SendResult, error) {
	body, err := c.templates.Render(templateName, data)
	if err != nil {
		return SendResult{}, err
	}

	msg.HTMLBody = body
	return c.SendEmail(ctx, msg, opts...)
}
