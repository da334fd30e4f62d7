// Package store is the coordinator's persistence layer: typed access to
// pipelines, jobs, workers, and users, plus the three atomic operations the
// scheduler depends on for correctness under concurrency.
package store

import (
	"time"

	"github.com/aosc-dev/buildit/internal/capability"
)

// JobStatus is the five-state lifecycle of a Job.
type JobStatus string

const (
	JobCreated  JobStatus = "created"
	JobAssigned JobStatus = "assigned"
	JobSuccess  JobStatus = "success"
	JobFailed   JobStatus = "failed"
	JobError    JobStatus = "error"
)

// Requirements are a job's optional capability floor, shared with the
// capability package's pure matcher.
type Requirements = capability.Requirements

// Capabilities are a worker's self-reported hardware, refreshed on every
// dispatcher call so hardware upgrades take effect without re-registration.
type Capabilities struct {
	LogicalCores       int32
	MemoryBytes        int64
	DiskFreeSpaceBytes int64
}

// Pipeline is a user-visible build request spanning one or more architectures.
type Pipeline struct {
	ID               int64
	Packages         string // comma-joined, input order preserved
	Archs            string // comma-joined
	GitBranch        string
	GitSHA           string
	GitHubPR         *int64
	CreatorLogin     string
	CreatorAvatarURL string
	CreatedAt        time.Time
}

// Job is a single (packages x architecture) unit dispatched to one worker
// at a time.
type Job struct {
	ID           int64
	PipelineID   int64
	Packages     string
	Arch         string
	Status       JobStatus
	Requirements Requirements
	CreatedAt    time.Time

	AssignedWorkerID *int64
	AssignTime       *time.Time

	FinishTime         *time.Time
	BuildSuccess       *bool
	UploadSuccess      *bool
	SuccessfulPackages string
	FailedPackage      string
	SkippedPackages    string
	LogURL             string
	ErrorMessage       string
	BuiltByWorkerID    *int64
}

// Worker is a long-lived build-executor registration.
type Worker struct {
	ID                   int64
	Hostname             string
	Arch                 string
	LogicalCores         int32
	MemoryBytes          int64
	DiskFreeSpaceBytes   int64
	SourceRevision       string
	LastHeartbeatTime    time.Time
	InternetConnectivity bool
	RunningJobID         *int64
	SecretHash           string
	PerfHint             float64
	CreatedAt            time.Time
}

// User associates a chat-surface identity with a code-forge login, plus a
// bearer token used for pipeline-creation authorisation.
type User struct {
	ID         int64
	ChatUserID string
	ForgeLogin string
	TokenHash  string
	CreatedAt  time.Time
}

// CompletionResult is the worker-reported outcome of a finished job.
type CompletionResult struct {
	BuildSuccess       bool
	UploadSuccess      bool
	SuccessfulPackages string
	FailedPackage      string
	SkippedPackages    string
	LogURL             string
	ErrorMessage       string
}

// DerivedStatus applies the §4.6 truth table to a completion result.
func (r CompletionResult) DerivedStatus() JobStatus {
	if r.ErrorMessage != "" {
		return JobError
	}
	if r.BuildSuccess && r.UploadSuccess {
		return JobSuccess
	}
	return JobFailed
}

// PipelineState is the derived roll-up status of a pipeline's jobs. It is
// never persisted; computed fresh on every read.
type PipelineState string

const (
	PipelineRunning PipelineState = "running"
	PipelineSuccess PipelineState = "success"
	PipelineFailed  PipelineState = "failed"
	PipelineError   PipelineState = "error"
)

// PipelineStatus derives a pipeline's roll-up status from its jobs'
// statuses using the precedence: error > failed > running > success.
func PipelineStatus(jobs []Job) PipelineState {
	sawRunning := false
	sawFailed := false
	for _, j := range jobs {
		switch j.Status {
		case JobError:
			return PipelineError
		case JobFailed:
			sawFailed = true
		case JobCreated, JobAssigned:
			sawRunning = true
		}
	}
	if sawFailed {
		return PipelineFailed
	}
	if sawRunning {
		return PipelineRunning
	}
	return PipelineSuccess
}
