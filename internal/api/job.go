package api

import (
	"net/http"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/store"
)

type jobView struct {
	ID                 int64            `json:"job_id"`
	PipelineID         int64            `json:"pipeline_id"`
	Packages           string           `json:"packages"`
	Arch               string           `json:"arch"`
	Status             store.JobStatus  `json:"status"`
	Requirements       store.Requirements `json:"requirements"`
	CreatedAt          string           `json:"created_time"`
	AssignedWorkerID   *int64           `json:"assigned_worker_id"`
	AssignedHostname   string           `json:"assigned_worker_hostname,omitempty"`
	AssignTime         *string          `json:"assign_time,omitempty"`
	FinishTime         *string          `json:"finish_time,omitempty"`
	BuildSuccess       *bool            `json:"build_success,omitempty"`
	UploadSuccess      *bool            `json:"upload_success,omitempty"`
	SuccessfulPackages string           `json:"successful_packages,omitempty"`
	FailedPackage      string           `json:"failed_package,omitempty"`
	SkippedPackages    string           `json:"skipped_packages,omitempty"`
	LogURL             string           `json:"log_url,omitempty"`
	ErrorMessage       string           `json:"error_message,omitempty"`
	BuiltByWorkerID    *int64           `json:"built_by_worker_id,omitempty"`
	BuiltByHostname    string           `json:"built_by_worker_hostname,omitempty"`
}

func (a *API) viewJob(r *http.Request, j store.Job, withWorkerNames bool) jobView {
	v := jobView{
		ID:                 j.ID,
		PipelineID:         j.PipelineID,
		Packages:           j.Packages,
		Arch:               j.Arch,
		Status:             j.Status,
		Requirements:       j.Requirements,
		CreatedAt:          j.CreatedAt.Format(http.TimeFormat),
		AssignedWorkerID:   j.AssignedWorkerID,
		BuildSuccess:       j.BuildSuccess,
		UploadSuccess:      j.UploadSuccess,
		SuccessfulPackages: j.SuccessfulPackages,
		FailedPackage:      j.FailedPackage,
		SkippedPackages:    j.SkippedPackages,
		LogURL:             j.LogURL,
		ErrorMessage:       j.ErrorMessage,
		BuiltByWorkerID:    j.BuiltByWorkerID,
	}
	if j.AssignTime != nil {
		s := j.AssignTime.Format(http.TimeFormat)
		v.AssignTime = &s
	}
	if j.FinishTime != nil {
		s := j.FinishTime.Format(http.TimeFormat)
		v.FinishTime = &s
	}
	if withWorkerNames {
		if j.AssignedWorkerID != nil {
			if w, err := a.store.GetWorker(r.Context(), *j.AssignedWorkerID); err == nil {
				v.AssignedHostname = w.Hostname
			}
		}
		if j.BuiltByWorkerID != nil {
			if w, err := a.store.GetWorker(r.Context(), *j.BuiltByWorkerID); err == nil {
				v.BuiltByHostname = w.Hostname
			}
		}
	}
	return v
}

// ListJobs handles GET /api/job/list.
func (a *API) ListJobs(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r)
	jobs, total, err := a.store.ListJobs(r.Context(), p.Page, p.ItemsPerPage)
	if err != nil {
		apierr.Respond(w, r, a.logger, apierr.Internalf("failed to list jobs", err))
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, a.viewJob(r, j, false))
	}
	writeJSON(w, http.StatusOK, pageResponse{TotalItems: total, Items: views})
}

// GetJob handles GET /api/job/info.
func (a *API) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "job_id")
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	j, err := a.store.GetJob(r.Context(), id)
	if err != nil {
		apierr.Respond(w, r, a.logger, notFoundOr(err, "job not found"))
		return
	}
	writeJSON(w, http.StatusOK, a.viewJob(r, *j, true))
}

type restartJobRequest struct {
	JobID int64 `json:"job_id" validate:"required"`
}

type restartJobResponse struct {
	JobID int64 `json:"job_id"`
}

// RestartJob handles POST /api/job/restart. Requires an authenticated caller.
func (a *API) RestartJob(w http.ResponseWriter, r *http.Request) {
	var req restartJobRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}

	newID, err := a.store.RestartJob(r.Context(), req.JobID)
	if err != nil {
		apierr.Respond(w, r, a.logger, notFoundOr(err, "job not found"))
		return
	}
	writeJSON(w, http.StatusCreated, restartJobResponse{JobID: newID})
}
