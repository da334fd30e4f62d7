package api

import (
	"errors"
	"net/http"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/orchestrator"
	"github.com/aosc-dev/buildit/internal/store"
)

// pipelineJobView is the condensed job summary embedded in a pipeline listing.
type pipelineJobView struct {
	JobID  int64           `json:"job_id"`
	Arch   string          `json:"arch"`
	Status store.JobStatus `json:"status"`
}

type pipelineView struct {
	ID               int64                 `json:"id"`
	CreationTime     string                `json:"creation_time"`
	GitBranch        string                `json:"git_branch"`
	GitSHA           string                `json:"git_sha"`
	GitHubPR         *int64                `json:"github_pr"`
	Packages         string                `json:"packages"`
	Archs            string                `json:"archs"`
	CreatorLogin     string                `json:"creator_login"`
	CreatorAvatarURL string                `json:"creator_avatar_url"`
	Status           store.PipelineState   `json:"status"`
	Jobs             []pipelineJobView     `json:"jobs"`
}

func (a *API) viewPipeline(r *http.Request, p store.Pipeline) (pipelineView, error) {
	status, jobs, err := a.orchestrator.PipelineStatus(r.Context(), p.ID)
	if err != nil {
		return pipelineView{}, err
	}
	views := make([]pipelineJobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, pipelineJobView{JobID: j.ID, Arch: j.Arch, Status: j.Status})
	}
	return pipelineView{
		ID:               p.ID,
		CreationTime:     p.CreatedAt.Format(http.TimeFormat),
		GitBranch:        p.GitBranch,
		GitSHA:           p.GitSHA,
		GitHubPR:         p.GitHubPR,
		Packages:         p.Packages,
		Archs:            p.Archs,
		CreatorLogin:     p.CreatorLogin,
		CreatorAvatarURL: p.CreatorAvatarURL,
		Status:           status,
		Jobs:             views,
	}, nil
}

// ListPipelines handles GET /api/pipeline/list.
func (a *API) ListPipelines(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r)
	q := r.URL.Query()
	filter := store.ListPipelinesFilter{
		StableOnly:   q.Get("stable_only") == "true",
		GitHubPROnly: q.Get("github_pr_only") == "true",
	}

	pipelines, total, err := a.store.ListPipelines(r.Context(), p.Page, p.ItemsPerPage, filter)
	if err != nil {
		apierr.Respond(w, r, a.logger, apierr.Internalf("failed to list pipelines", err))
		return
	}

	views := make([]pipelineView, 0, len(pipelines))
	for _, pl := range pipelines {
		v, err := a.viewPipeline(r, pl)
		if err != nil {
			apierr.Respond(w, r, a.logger, err)
			return
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, pageResponse{TotalItems: total, Items: views})
}

// GetPipeline handles GET /api/pipeline/info.
func (a *API) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "pipeline_id")
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}

	pl, err := a.store.GetPipeline(r.Context(), id)
	if err != nil {
		apierr.Respond(w, r, a.logger, notFoundOr(err, "pipeline not found"))
		return
	}

	view, err := a.viewPipeline(r, *pl)
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// createPipelineRequest is a submitter's POST /api/pipeline/new body.
type createPipelineRequest struct {
	Packages  []string `json:"packages" validate:"required,min=1"`
	Archs     []string `json:"archs"`
	GitBranch string   `json:"git_branch" validate:"required"`
	GitHubPR  *int64   `json:"github_pr"`

	MinCores              *int32 `json:"min_cores"`
	MinTotalMemoryBytes   *int64 `json:"min_total_memory_bytes"`
	MinMemoryPerCoreBytes *int64 `json:"min_memory_per_core_bytes"`
	MinFreeDiskBytes      *int64 `json:"min_free_disk_bytes"`
}

type createPipelineResponse struct {
	PipelineID int64 `json:"pipeline_id"`
}

// CreatePipeline handles POST /api/pipeline/new. Requires an authenticated
// submitter per §6; anonymous callers may read but never create.
func (a *API) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req createPipelineRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	user := userFromContext(r.Context())

	id, err := a.orchestrator.CreatePipeline(r.Context(), orchestrator.CreateRequest{
		Packages:         req.Packages,
		Archs:            req.Archs,
		GitBranch:        req.GitBranch,
		GitHubPR:         req.GitHubPR,
		CreatorLogin:     user.ForgeLogin,
		CreatorAvatarURL: "",
		Requirements: store.Requirements{
			MinCores:              req.MinCores,
			MinTotalMemoryBytes:   req.MinTotalMemoryBytes,
			MinMemoryPerCoreBytes: req.MinMemoryPerCoreBytes,
			MinFreeDiskBytes:      req.MinFreeDiskBytes,
		},
	})
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, createPipelineResponse{PipelineID: id})
}

func notFoundOr(err error, msg string) error {
	if err == store.ErrNotFound {
		return apierr.NotFoundf(msg)
	}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return apierr.Internalf(msg, err)
}
