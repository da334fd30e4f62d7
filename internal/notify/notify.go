// Package notify sends downstream notifications to a pipeline's submitter
// surface. The submitter surface itself is an external collaborator (§1);
// this package only defines the callback contract and one concrete adapter.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/yuin/goldmark"

	"github.com/aosc-dev/buildit/pkg/job"
	"github.com/aosc-dev/buildit/pkg/mailer"
	"github.com/aosc-dev/buildit/pkg/sanitizer"
)

// Notifier is the downstream callback fired by the orchestrator and the
// completion handler. Implementations must not block their caller's
// transaction: failures are logged, never surfaced to the writing request.
type Notifier interface {
	// NotifyPipelineCreated fires after a pipeline and its jobs are
	// durably recorded.
	NotifyPipelineCreated(ctx context.Context, pipelineID int64, topicDescription string)

	// NotifyJobCompleted fires after a completion is durably recorded,
	// carrying the job id, the rendered log URL, and a human-readable
	// summary of the result.
	NotifyJobCompleted(ctx context.Context, jobID int64, logURL string, summary CompletionSummary)
}

// CompletionSummary is the data a Notifier renders into a human-readable
// message.
type CompletionSummary struct {
	PipelineID         int64
	Arch               string
	Status             string
	SuccessfulPackages string
	FailedPackage      string
	SkippedPackages    string
}

// Noop is the default Notifier: it drops every notification.
type Noop struct{}

func (Noop) NotifyPipelineCreated(context.Context, int64, string)                  {}
func (Noop) NotifyJobCompleted(context.Context, int64, string, CompletionSummary) {}

// EmailRecipient resolves the submitter's email for a notification, or ""
// if none is on file — in which case the mail adapter silently skips.
type EmailRecipient func(ctx context.Context, pipelineID int64) (email, displayName string)

// Enqueuer is the subset of *pkg/job.Manager a Notifier needs to hand off a
// failed send for durable, backed-off retry instead of dropping it.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...job.EnqueueOption) error
}

// MailNotifier renders a goldmark Markdown->HTML completion summary and
// sends it through the configured mailer when the submitter has a
// resolvable email. Pipeline-creation notifications are not emailed (no
// strong signal yet that anything needs the submitter's attention).
type MailNotifier struct {
	mailer    *mailer.Mailer
	recipient EmailRecipient
	logger    *slog.Logger
	enqueuer  Enqueuer
}

// NewMailNotifier constructs a MailNotifier. enqueuer may be nil, in which
// case a send failure is only logged, matching the package's general
// never-block contract; passing a *pkg/job.Manager registered with
// MailRetryTask upgrades a transient failure into a durably retried job.
func NewMailNotifier(m *mailer.Mailer, recipient EmailRecipient, logger *slog.Logger, enqueuer Enqueuer) *MailNotifier {
	return &MailNotifier{mailer: m, recipient: recipient, logger: logger, enqueuer: enqueuer}
}

func (n *MailNotifier) NotifyPipelineCreated(context.Context, int64, string) {}

func (n *MailNotifier) NotifyJobCompleted(ctx context.Context, jobID int64, logURL string, summary CompletionSummary) {
	email, name := n.recipient(ctx, summary.PipelineID)
	if email == "" {
		return
	}

	html, err := renderSummaryHTML(summary, logURL)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to render completion summary", "error", err, "job_id", jobID)
		return
	}

	subject := fmt.Sprintf("Build job %d %s", jobID, summary.Status)
	err = n.mailer.SendRaw(ctx, &mailer.Email{
		To:      []string{mailer.Recipient(name, email)},
		Subject: subject,
		HTML:    html,
	})
	if err == nil {
		return
	}

	// Transient notification failures never block the completion that
	// triggered them. With an enqueuer configured, hand the already-rendered
	// email to River's own backoff/retry policy instead of dropping it.
	n.logger.ErrorContext(ctx, "failed to send completion notification", "error", err, "job_id", jobID)
	if n.enqueuer == nil {
		return
	}

	enqErr := n.enqueuer.Enqueue(ctx, MailRetryTaskName, MailRetryPayload{
		JobID:   jobID,
		Email:   email,
		Name:    name,
		Subject: subject,
		HTML:    html,
	}, job.MaxAttempts(5))
	if enqErr != nil {
		n.logger.ErrorContext(ctx, "failed to enqueue completion notification retry", "error", enqErr, "job_id", jobID)
	}
}

func renderSummaryHTML(summary CompletionSummary, logURL string) (string, error) {
	md := fmt.Sprintf(`# Job result: %s

- **Architecture:** %s
- **Successful packages:** %s
- **Failed package:** %s
- **Skipped packages:** %s
- **Log:** [%s](%s)
`, summary.Status, summary.Arch, orDash(summary.SuccessfulPackages), orDash(summary.FailedPackage),
		orDash(summary.SkippedPackages), logURL, logURL)

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}

	// Package names and the log URL both originate from the worker that
	// reported completion, not the submitter; sanitize before they reach an
	// inbox as HTML.
	return sanitizer.SanitizeHTML(buf.String()), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
