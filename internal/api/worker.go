package api

import (
	"net/http"
	"time"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/dispatch"
	"github.com/aosc-dev/buildit/internal/store"
)

type workerView struct {
	ID                    int64   `json:"worker_id"`
	Hostname              string  `json:"hostname"`
	Arch                  string  `json:"arch"`
	LogicalCores          int32   `json:"logical_cores"`
	MemoryBytes           int64   `json:"memory_bytes"`
	DiskFreeSpaceBytes    int64   `json:"disk_free_space_bytes"`
	SourceRevision        string  `json:"source_revision"`
	LastHeartbeatTime     string  `json:"last_heartbeat_time"`
	InternetConnectivity  bool    `json:"internet_connectivity"`
	IsLive                bool    `json:"is_live"`
	RunningJobID          *int64  `json:"running_job_id"`
	RunningJobAssignTime  *string `json:"running_job_assign_time,omitempty"`
	PerfHint              float64 `json:"perf_hint"`
	CreatedAt             string  `json:"created_time"`
}

func (a *API) viewWorker(r *http.Request, w store.Worker, livenessTimeout time.Duration) workerView {
	v := workerView{
		ID:                   w.ID,
		Hostname:             w.Hostname,
		Arch:                 w.Arch,
		LogicalCores:         w.LogicalCores,
		MemoryBytes:          w.MemoryBytes,
		DiskFreeSpaceBytes:   w.DiskFreeSpaceBytes,
		SourceRevision:       w.SourceRevision,
		LastHeartbeatTime:    w.LastHeartbeatTime.Format(http.TimeFormat),
		InternetConnectivity: w.InternetConnectivity,
		IsLive:               store.IsLive(w, time.Now(), livenessTimeout),
		RunningJobID:         w.RunningJobID,
		PerfHint:             w.PerfHint,
		CreatedAt:            w.CreatedAt.Format(http.TimeFormat),
	}
	if w.RunningJobID != nil {
		if job, err := a.store.GetJob(r.Context(), *w.RunningJobID); err == nil && job.AssignTime != nil {
			s := job.AssignTime.Format(http.TimeFormat)
			v.RunningJobAssignTime = &s
		}
	}
	return v
}

// ListWorkers handles GET /api/worker/list.
func (a *API) ListWorkers(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r)
	workers, total, err := a.store.ListWorkers(r.Context(), p.Page, p.ItemsPerPage)
	if err != nil {
		apierr.Respond(w, r, a.logger, apierr.Internalf("failed to list workers", err))
		return
	}

	views := make([]workerView, 0, len(workers))
	for _, wk := range workers {
		views = append(views, a.viewWorker(r, wk, a.livenessTimeout))
	}
	writeJSON(w, http.StatusOK, pageResponse{TotalItems: total, Items: views})
}

// GetWorker handles GET /api/worker/info.
func (a *API) GetWorker(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "worker_id")
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	wk, err := a.store.GetWorker(r.Context(), id)
	if err != nil {
		apierr.Respond(w, r, a.logger, notFoundOr(err, "worker not found"))
		return
	}
	writeJSON(w, http.StatusOK, a.viewWorker(r, *wk, a.livenessTimeout))
}

type pollRequest struct {
	Hostname             string            `json:"hostname" validate:"required"`
	Arch                 string            `json:"arch" validate:"required"`
	Secret               string            `json:"secret" validate:"required"`
	Capabilities         capabilitiesBody  `json:"capabilities" validate:"required"`
	InternetConnectivity bool              `json:"internet_connectivity"`
}

type capabilitiesBody struct {
	LogicalCores       int32 `json:"logical_cores"`
	MemoryBytes        int64 `json:"memory_bytes"`
	DiskFreeSpaceBytes int64 `json:"disk_free_space_bytes"`
}

func (c capabilitiesBody) toStore() store.Capabilities {
	return store.Capabilities{
		LogicalCores:       c.LogicalCores,
		MemoryBytes:        c.MemoryBytes,
		DiskFreeSpaceBytes: c.DiskFreeSpaceBytes,
	}
}

type pollResponse struct {
	Job *jobView `json:"job"`
}

// Poll handles POST /api/worker/poll: the dispatcher's "give me work" call.
func (a *API) Poll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}

	job, err := a.dispatcher.Poll(r.Context(), dispatch.PollRequest{
		Hostname:             req.Hostname,
		Arch:                 req.Arch,
		Secret:               req.Secret,
		Capabilities:         req.Capabilities.toStore(),
		InternetConnectivity: req.InternetConnectivity,
	})
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	if job == nil {
		writeJSON(w, http.StatusOK, pollResponse{Job: nil})
		return
	}
	view := a.viewJob(r, *job, false)
	writeJSON(w, http.StatusOK, pollResponse{Job: &view})
}

type heartbeatRequest struct {
	Hostname             string           `json:"hostname" validate:"required"`
	Arch                 string           `json:"arch" validate:"required"`
	Secret               string           `json:"secret" validate:"required"`
	Capabilities         capabilitiesBody `json:"capabilities" validate:"required"`
	InternetConnectivity bool             `json:"internet_connectivity"`
}

// Heartbeat handles POST /api/worker/heartbeat.
func (a *API) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}

	if err := a.dispatcher.Heartbeat(r.Context(), dispatch.HeartbeatRequest{
		Hostname:             req.Hostname,
		Arch:                 req.Arch,
		Secret:               req.Secret,
		Capabilities:         req.Capabilities.toStore(),
		InternetConnectivity: req.InternetConnectivity,
	}); err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	JobID              int64  `json:"job_id" validate:"required"`
	WorkerID           int64  `json:"worker_id" validate:"required"`
	Secret             string `json:"secret" validate:"required"`
	BuildSuccess       bool   `json:"build_success"`
	UploadSuccess      bool   `json:"upload_success"`
	SuccessfulPackages string `json:"successful_packages"`
	FailedPackage      string `json:"failed_package"`
	SkippedPackages    string `json:"skipped_packages"`
	LogURL             string `json:"log_url"`
	ErrorMessage       string `json:"error_message"`
}

// Complete handles POST /api/worker/complete.
func (a *API) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}

	err := a.completion.Complete(r.Context(), req.JobID, req.WorkerID, req.Secret, store.CompletionResult{
		BuildSuccess:       req.BuildSuccess,
		UploadSuccess:      req.UploadSuccess,
		SuccessfulPackages: req.SuccessfulPackages,
		FailedPackage:      req.FailedPackage,
		SkippedPackages:    req.SkippedPackages,
		LogURL:             req.LogURL,
		ErrorMessage:       req.ErrorMessage,
	})
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	a.dashboard.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Hostname     string           `json:"hostname" validate:"required"`
	Arch         string           `json:"arch" validate:"required"`
	Capabilities capabilitiesBody `json:"capabilities" validate:"required"`
}

type registerResponse struct {
	Worker workerView `json:"worker"`
	// Secret is the worker's shared secret in the clear, present only on
	// first registration — it is never recoverable after this response, the
	// store keeps only its hash.
	Secret string `json:"secret,omitempty"`
}

// Register handles POST /api/worker/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}

	wk, secret, err := a.dispatcher.Register(r.Context(), req.Hostname, req.Arch, req.Capabilities.toStore())
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		Worker: a.viewWorker(r, *wk, a.livenessTimeout),
		Secret: secret,
	})
}
