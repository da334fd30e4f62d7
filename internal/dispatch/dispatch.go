// Package dispatch implements the Job Dispatcher: the endpoint through
// which a worker asks "give me work", performing the atomic job claim.
package dispatch

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/store"
)

// HashSecret returns the stored form of a worker's shared secret: hex-encoded
// so the result is safe to store in a UTF8 TEXT column (the raw digest is
// arbitrary binary and would fail insertion for most random secrets).
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Authenticate verifies secret against the worker's stored hash using a
// constant-time comparison, rejecting with Unauthorised on mismatch. Shared
// by every worker-facing endpoint that identifies its caller by shared
// secret: Poll, Heartbeat, and the Completion Handler.
func Authenticate(worker *store.Worker, secret string) error {
	got := HashSecret(secret)
	if subtle.ConstantTimeCompare([]byte(got), []byte(worker.SecretHash)) != 1 {
		return apierr.Unauthorisedf("bad worker credential")
	}
	return nil
}

// PollRequest is a worker's "give me work" call.
type PollRequest struct {
	Hostname             string
	Arch                 string
	Secret               string
	Capabilities         store.Capabilities
	InternetConnectivity bool
}

// Dispatcher is the Job Dispatcher component.
type Dispatcher struct {
	store *store.Store
}

// New constructs a Dispatcher.
func New(s *store.Store) *Dispatcher {
	return &Dispatcher{store: s}
}

// Poll authenticates the worker, refreshes its heartbeat/capabilities, and
// either confirms its existing in-flight assignment (idempotent under
// retry) or atomically claims a new job. Returns (nil, nil) for "no work".
func (d *Dispatcher) Poll(ctx context.Context, req PollRequest) (*store.Job, error) {
	worker, err := d.store.GetWorkerByHostnameArch(ctx, req.Hostname, req.Arch)
	if err != nil {
		return nil, apierr.Unauthorisedf("unknown worker")
	}
	if err := Authenticate(worker, req.Secret); err != nil {
		return nil, err
	}

	if err := d.store.TouchHeartbeat(ctx, worker.ID, req.Capabilities, req.InternetConnectivity); err != nil {
		return nil, apierr.Internalf("failed to record heartbeat", err)
	}
	worker.LogicalCores = req.Capabilities.LogicalCores
	worker.MemoryBytes = req.Capabilities.MemoryBytes
	worker.DiskFreeSpaceBytes = req.Capabilities.DiskFreeSpaceBytes

	// Still responsible for a previous assignment: return no new job so a
	// retried poll never causes a double-claim.
	if worker.RunningJobID != nil {
		job, err := d.store.GetJob(ctx, *worker.RunningJobID)
		if err != nil {
			return nil, apierr.Internalf("failed to load in-flight job", err)
		}
		return job, nil
	}

	job, err := d.store.ClaimOneJob(ctx, *worker)
	if err != nil {
		return nil, apierr.Internalf("failed to claim job", err)
	}
	return job, nil
}

// HeartbeatRequest is a worker's standalone liveness ping, distinct from a
// Poll (which also refreshes the heartbeat but may additionally return
// work).
type HeartbeatRequest struct {
	Hostname             string
	Arch                 string
	Secret               string
	Capabilities         store.Capabilities
	InternetConnectivity bool
}

// Heartbeat refreshes a worker's liveness without attempting to claim work.
func (d *Dispatcher) Heartbeat(ctx context.Context, req HeartbeatRequest) error {
	worker, err := d.store.GetWorkerByHostnameArch(ctx, req.Hostname, req.Arch)
	if err != nil {
		return apierr.Unauthorisedf("unknown worker")
	}
	if err := Authenticate(worker, req.Secret); err != nil {
		return err
	}
	if err := d.store.TouchHeartbeat(ctx, worker.ID, req.Capabilities, req.InternetConnectivity); err != nil {
		return apierr.Internalf("failed to record heartbeat", err)
	}
	return nil
}

// Register upserts a worker by its (hostname, arch) identity. A candidate
// secret is always minted and offered to the store; RegisterWorker's upsert
// only applies it on first insert (see its ON CONFLICT clause), so the
// candidate sticks for a brand-new worker and is silently discarded for one
// that already exists. Comparing the stored hash against the candidate's
// tells Register which case happened: the plaintext secret is returned only
// when it was actually the one accepted, since it can never be recovered
// from secret_hash afterwards.
func (d *Dispatcher) Register(ctx context.Context, hostname, arch string, caps store.Capabilities) (worker *store.Worker, mintedSecret string, err error) {
	candidate := uuid.NewString()
	candidateHash := HashSecret(candidate)

	worker, err = d.store.RegisterWorker(ctx, hostname, arch, caps, candidateHash)
	if err != nil {
		return nil, "", apierr.Internalf("failed to register worker", err)
	}

	if subtle.ConstantTimeCompare([]byte(worker.SecretHash), []byte(candidateHash)) == 1 {
		return worker, candidate, nil
	}
	return worker, "", nil
}
