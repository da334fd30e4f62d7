package notify

import (
	"context"
	"fmt"

	"github.com/aosc-dev/buildit/pkg/mailer"
)

// MailRetryPayload is the durable job payload for a completion email that
// failed to send on its first attempt. It carries the fully-rendered HTML
// rather than a CompletionSummary so a retry never re-derives (and
// potentially re-sanitizes against a changed policy) the same content twice.
type MailRetryPayload struct {
	JobID   int64  `json:"job_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// MailRetryTaskName is the task name registered with the job manager; it
// must match between job.WithTask's registration and any job already
// durably enqueued under it.
const MailRetryTaskName = "notify_mail_retry"

// MailRetryTask resends a completion email that failed on its first attempt.
// River's own retry/backoff policy governs repeated failures; once it gives
// up, the job lands in River's dead-job state rather than being silently
// lost.
type MailRetryTask struct {
	mailer *mailer.Mailer
}

// NewMailRetryTask constructs a MailRetryTask.
func NewMailRetryTask(m *mailer.Mailer) *MailRetryTask {
	return &MailRetryTask{mailer: m}
}

func (t *MailRetryTask) Name() string { return MailRetryTaskName }

func (t *MailRetryTask) Handle(ctx context.Context, p MailRetryPayload) error {
	err := t.mailer.SendRaw(ctx, &mailer.Email{
		To:      []string{mailer.Recipient(p.Name, p.Email)},
		Subject: p.Subject,
		HTML:    p.HTML,
	})
	if err != nil {
		return fmt.Errorf("retry completion email for job %d: %w", p.JobID, err)
	}
	return nil
}
