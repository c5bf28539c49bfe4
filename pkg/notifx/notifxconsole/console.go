package notifxconsole

import (
	"context"
	"strings"
	"sync"

	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/Abraxas-365/remodel/pkg/notifx"
	"github.com/google/uuid"
)

// ConsoleProvider prints emails to the terminal via logx and keeps them in an
// outbox. Intended for development and testing.
type ConsoleProvider struct {
	mu     sync.Mutex
	outbox []notifx.EmailMessage
}

// NewConsoleProvider creates a new console email provider.
func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

// SendEmail logs the email details instead of sending it.
func (p *ConsoleProvider) SendEmail(_ context.Context, msg notifx.EmailMessage, _ ...notifx.Option) (notifx.SendResult, error) {
	id := uuid.NewString()
	logx.WithFields(logx.Fields{
		"message_id": id,
		"from":       msg.From,
		"to":         strings.Join(msg.To, ", "),
		"subject":    msg.Subject,
	}).Info("notifx/console: email sent (dev mode)")

	if msg.TextBody != "" {
		logx.Debugf("notifx/console: text body:\n%s", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		logx.Debugf("notifx/console: html body:\n%s", msg.HTMLBody)
	}

	p.mu.Lock()
	p.outbox = append(p.outbox, msg)
	p.mu.Unlock()

	return notifx.SendResult{MessageID: id, Provider: "console"}, nil
}

// Outbox returns the messages sent so far.
func (p *ConsoleProvider) Outbox() []notifx.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notifx.EmailMessage(nil), p.outbox...)
}
