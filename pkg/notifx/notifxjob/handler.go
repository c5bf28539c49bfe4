// Package notifxjob delivers email:send-notification jobs.
package notifxjob

import (
	"context"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/jobs"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/Abraxas-365/remodel/pkg/notifx"
)

// Handler sends one templated email per job.
type Handler struct {
	client *notifx.Client
}

// NewHandler creates an email job handler.
func NewHandler(client *notifx.Client) *Handler {
	return &Handler{client: client}
}

// Definition binds the handler to the email queue with the given policy.
func (h *Handler) Definition(concurrency, attempts int, backoff jobx.Backoff, deadLetter bool) jobx.Definition {
	return jobx.Definition{
		Concurrency: concurrency,
		Attempts:    attempts,
		Backoff:     backoff,
		DeadLetter:  deadLetter,
		Handler:     jobx.Handle(h.Handle),
	}
}

// Handle renders the job's template and sends it to the recipient.
// An unknown template fails the job permanently.
func (h *Handler) Handle(ctx context.Context, job *jobx.JobInfo, p jobs.SendNotification) error {
	res, err := h.client.SendTemplatedEmail(ctx, p.Template, p.Data, notifx.EmailMessage{
		To:      []string{p.To},
		Subject: p.Subject,
	}, notifx.WithTags(map[string]string{"queue": "email-send-notification", "template": p.Template}))
	if err != nil {
		if errx.HasCode(err, notifx.ErrTemplateNotFound) {
			return jobx.Permanent(err)
		}
		return err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":     job.ID,
		"message_id": res.MessageID,
		"provider":   res.Provider,
		"template":   p.Template,
	}).Info("notifxjob: email sent")
	return nil
}
