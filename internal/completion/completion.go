// Package completion implements the Completion Handler: records a worker's
// reported job result, rolls up status via the derived-status truth table,
// and fires a notification to the original submitter surface.
package completion

import (
	"context"
	"errors"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/dispatch"
	"github.com/aosc-dev/buildit/internal/notify"
	"github.com/aosc-dev/buildit/internal/store"
)

// BlobSink resolves a job's raw log stream to a stable URL once the worker
// finishes uploading it. Out of scope per §1; only this interface is owned
// by the core, and most deployments simply pass the worker-reported URL
// through unchanged (the zero-value IdentitySink).
type BlobSink interface {
	ResolveLogURL(ctx context.Context, jobID int64, workerReportedURL string) (string, error)
}

// IdentitySink trusts the worker-reported URL as-is.
type IdentitySink struct{}

func (IdentitySink) ResolveLogURL(_ context.Context, _ int64, workerReportedURL string) (string, error) {
	return workerReportedURL, nil
}

// Handler is the Completion Handler component.
type Handler struct {
	store    *store.Store
	notifier notify.Notifier
	blobSink BlobSink
}

// New constructs a Handler.
func New(s *store.Store, notifier notify.Notifier, blobSink BlobSink) *Handler {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if blobSink == nil {
		blobSink = IdentitySink{}
	}
	return &Handler{store: s, notifier: notifier, blobSink: blobSink}
}

// Complete authenticates the reporting worker by its shared secret, the
// same credential Poll and Heartbeat require, then records jobID's result.
// On success it fires a notification carrying the job id, rendered log URL,
// and a human-readable summary; notification failures are logged but never
// roll back the completion. A Stale result (the job was reclaimed and is
// being redone elsewhere) maps to apierr.Conflict and must be discarded by
// the caller.
func (h *Handler) Complete(ctx context.Context, jobID, workerID int64, secret string, result store.CompletionResult) error {
	worker, err := h.store.GetWorker(ctx, workerID)
	if err != nil {
		return apierr.Unauthorisedf("unknown worker")
	}
	if err := dispatch.Authenticate(worker, secret); err != nil {
		return err
	}

	logURL, err := h.blobSink.ResolveLogURL(ctx, jobID, result.LogURL)
	if err != nil {
		return apierr.Upstreamf("failed to resolve log url", err)
	}
	result.LogURL = logURL

	err = h.store.CompleteJob(ctx, jobID, workerID, result)
	if err != nil {
		if errors.Is(err, store.ErrStale) {
			return apierr.Conflictf("job is no longer assigned to this worker")
		}
		return apierr.Internalf("failed to complete job", err)
	}

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		// The completion itself already committed; a lookup failure here
		// only affects the notification, not the recorded result.
		return nil
	}

	h.notifier.NotifyJobCompleted(ctx, jobID, logURL, notify.CompletionSummary{
		PipelineID:         job.PipelineID,
		Arch:               job.Arch,
		Status:             string(job.Status),
		SuccessfulPackages: job.SuccessfulPackages,
		FailedPackage:      job.FailedPackage,
		SkippedPackages:    job.SkippedPackages,
	})

	return nil
}
