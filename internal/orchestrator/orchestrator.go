// Package orchestrator turns an external pipeline-creation request into a
// pipeline row plus one job per requested architecture, and derives a
// pipeline's roll-up status from its jobs.
package orchestrator

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/notify"
	"github.com/aosc-dev/buildit/internal/store"
	"github.com/aosc-dev/buildit/pkg/db"
)

// Resolver maps a (branch|PR, packages) submission to the commit it
// resolves to and the set of architectures the packages must be built for.
// Git repository inspection itself is an external collaborator; only this
// interface is owned by the core.
type Resolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error)
}

// ResolveRequest is the input to a Resolver.
type ResolveRequest struct {
	GitBranch string
	GitHubPR  *int64
	Packages  []string
}

// ResolveResult is a Resolver's answer.
type ResolveResult struct {
	GitSHA            string
	RequiredArchs     []string
	TopicDescription  string
}

// CreateRequest is a submitter's pipeline-creation request.
type CreateRequest struct {
	Packages         []string
	Archs            []string // caller-supplied subset; empty means "all resolved archs"
	GitBranch        string
	GitHubPR         *int64
	CreatorLogin     string
	CreatorAvatarURL string
	Requirements     store.Requirements
}

// Orchestrator is the Pipeline Orchestrator component.
type Orchestrator struct {
	store    *store.Store
	resolver Resolver
	notifier notify.Notifier
}

// New constructs an Orchestrator.
func New(s *store.Store, resolver Resolver, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Orchestrator{store: s, resolver: resolver, notifier: notifier}
}

// CreatePipeline resolves the request, inserts the pipeline and one job per
// required architecture inside a single transaction, and returns the new
// pipeline id. Resolver failures abort creation with Upstream; an empty
// resulting architecture set fails with Validation.
func (o *Orchestrator) CreatePipeline(ctx context.Context, req CreateRequest) (int64, error) {
	resolved, err := o.resolver.Resolve(ctx, ResolveRequest{
		GitBranch: req.GitBranch,
		GitHubPR:  req.GitHubPR,
		Packages:  req.Packages,
	})
	if err != nil {
		return 0, apierr.Upstreamf("resolver failed", err)
	}

	archs := resolved.RequiredArchs
	if len(req.Archs) > 0 {
		archs = intersect(req.Archs, resolved.RequiredArchs)
	}
	if len(archs) == 0 {
		return 0, apierr.Validationf("no architecture in the request intersects the resolved set")
	}

	var pipelineID int64
	err = db.WithTx(ctx, o.store.Pool(), func(tx pgx.Tx) error {
		pipelineID, err = o.store.InsertPipeline(ctx, tx, store.Pipeline{
			Packages:         strings.Join(req.Packages, ","),
			Archs:            strings.Join(archs, ","),
			GitBranch:        req.GitBranch,
			GitSHA:           resolved.GitSHA,
			GitHubPR:         req.GitHubPR,
			CreatorLogin:     req.CreatorLogin,
			CreatorAvatarURL: req.CreatorAvatarURL,
		})
		if err != nil {
			return err
		}

		for _, arch := range archs {
			if _, err := o.store.InsertJob(ctx, tx, pipelineID, strings.Join(req.Packages, ","), arch, req.Requirements); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, apierr.Internalf("failed to create pipeline", err)
	}

	o.notifier.NotifyPipelineCreated(ctx, pipelineID, resolved.TopicDescription)

	return pipelineID, nil
}

// PipelineStatus derives a pipeline's roll-up status from its jobs.
func (o *Orchestrator) PipelineStatus(ctx context.Context, pipelineID int64) (store.PipelineState, []store.Job, error) {
	jobs, err := o.store.JobsByPipeline(ctx, pipelineID)
	if err != nil {
		return "", nil, apierr.Internalf("failed to load jobs", err)
	}
	return store.PipelineStatus(jobs), jobs, nil
}

func intersect(requested, resolved []string) []string {
	set := make(map[string]bool, len(resolved))
	for _, a := range resolved {
		set[a] = true
	}
	var out []string
	for _, a := range requested {
		if set[a] {
			out = append(out, a)
		}
	}
	return out
}
