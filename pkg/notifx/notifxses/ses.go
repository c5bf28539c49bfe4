package notifxses

import (
	"context"
	"errors"
	"strings"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/notifx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const providerName = "ses"

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESProvider implements notifx.EmailSender using AWS SES.
type SESProvider struct {
	client      sesAPI
	fromAddress string
}

// NewSESProvider creates a new SES email provider.
func NewSESProvider(client *ses.Client, fromAddress string) *SESProvider {
	return &SESProvider{
		client:      client,
		fromAddress: fromAddress,
	}
}

// SendEmail sends a single email via SES.
func (p *SESProvider) SendEmail(ctx context.Context, msg notifx.EmailMessage, opts ...notifx.Option) (notifx.SendResult, error) {
	so := notifx.ApplySendOptions(opts)

	from := msg.From
	if from == "" {
		from = p.fromAddress
	}

	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.CC,
			BccAddresses: msg.BCC,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if so.ConfigID != "" {
		input.ConfigurationSetName = aws.String(so.ConfigID)
	}
	for k, v := range so.Tags {
		input.Tags = append(input.Tags, types.MessageTag{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return notifx.SendResult{}, classify(err).
			WithDetail("to", msg.To).
			WithDetail("subject", msg.Subject)
	}

	return notifx.SendResult{MessageID: aws.ToString(out.MessageId), Provider: providerName}, nil
}

// classify separates messages SES will never accept from transient failures.
func classify(err error) *errx.Error {
	var rejected *types.MessageRejected
	var unverified *types.MailFromDomainNotVerifiedException
	var missingConfig *types.ConfigurationSetDoesNotExistException
	switch {
	case errors.As(err, &rejected), errors.As(err, &unverified), errors.As(err, &missingConfig):
		return sesErrors.NewWithCause(ErrRejected, err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "throttling") || strings.Contains(msg, "maximum sending rate") {
		return sesErrors.NewWithCause(ErrThrottled, err)
	}
	return sesErrors.NewWithCause(ErrSendFailed, err)
}
