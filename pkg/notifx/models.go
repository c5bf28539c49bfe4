package notifx

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	CC       []string `json:"cc,omitempty"`
	BCC      []string `json:"bcc,omitempty"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// SendResult represents the outcome of a send.
type SendResult struct {
	MessageID string `json:"message_id,omitempty"`
	Provider  string `json:"provider"`
}

// SendOptions carries provider metadata of one send.
type SendOptions struct {
	// Tags become SES message tags; values must be tag-safe.
	Tags     map[string]string
	ConfigID string
}

// Option adjusts SendOptions.
type Option func(*SendOptions)

// WithTags merges tags into the send. Later values win.
func WithTags(tags map[string]string) Option {
	return func(o *SendOptions) {
		if o.Tags == nil {
			o.Tags = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			o.Tags[k] = v
		}
	}
}

// WithConfigID selects a provider configuration set.
func WithConfigID(id string) Option {
	return func(o *SendOptions) { o.ConfigID = id }
}

// ApplySendOptions folds opts into SendOptions.
func ApplySendOptions(opts []Option) SendOptions {
	var so SendOptions
	for _, o := range opts {
		o(&so)
	}
	return so
}
