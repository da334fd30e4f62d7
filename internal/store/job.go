package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/capability"
)

// ClaimOneJob atomically selects the oldest `created` job matching the
// worker's architecture and capabilities, assigns it to the worker, and
// marks the worker as running it. Returns (nil, nil) if no job qualifies.
//
// The candidate row is locked with FOR UPDATE SKIP LOCKED so two concurrent
// dispatcher invocations never claim the same job, and a row already locked
// by another in-flight claim is simply skipped rather than blocked on.
func (s *Store) ClaimOneJob(ctx context.Context, worker Worker) (*Job, error) {
	var claimed *Job

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		memPerCore := capability.MemoryPerCore(worker.MemoryBytes, worker.LogicalCores)

		row := tx.QueryRow(ctx, `
			SELECT id FROM jobs
			WHERE status = 'created' AND arch = $1
			  AND (min_cores IS NULL OR min_cores <= $2)
			  AND (min_total_memory_bytes IS NULL OR min_total_memory_bytes <= $3)
			  AND (min_memory_per_core_bytes IS NULL OR min_memory_per_core_bytes <= $4)
			  AND (min_free_disk_bytes IS NULL OR min_free_disk_bytes <= $5)
			ORDER BY id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1`,
			worker.Arch, worker.LogicalCores, worker.MemoryBytes, memPerCore, worker.DiskFreeSpaceBytes,
		)

		var jobID int64
		if err := row.Scan(&jobID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		job, err := scanJob(tx.QueryRow(ctx, jobSelectByID, jobID))
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE jobs SET status = 'assigned', assigned_worker_id = $1, assign_time = now()
			WHERE id = $2`, worker.ID, jobID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE workers SET running_job_id = $1 WHERE id = $2`, jobID, worker.ID); err != nil {
			return err
		}

		job.Status = JobAssigned
		job.AssignedWorkerID = &worker.ID
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteJob records a worker-reported result for job_id, but only if the
// job is currently assigned to worker_id. A mismatch (already reclaimed, or
// assigned elsewhere) returns ErrStale and leaves the row untouched.
func (s *Store) CompleteJob(ctx context.Context, jobID, workerID int64, result CompletionResult) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		status := result.DerivedStatus()

		tag, err := tx.Exec(ctx, `
			UPDATE jobs SET
				status = $1,
				finish_time = now(),
				build_success = $2,
				upload_success = $3,
				successful_packages = $4,
				failed_package = $5,
				skipped_packages = $6,
				log_url = $7,
				error_message = $8,
				built_by_worker_id = $9
			WHERE id = $10 AND status = 'assigned' AND assigned_worker_id = $9`,
			status, result.BuildSuccess, result.UploadSuccess, result.SuccessfulPackages,
			result.FailedPackage, result.SkippedPackages, result.LogURL, result.ErrorMessage,
			workerID, jobID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStale
		}

		_, err = tx.Exec(ctx, `
			UPDATE workers SET running_job_id = NULL
			WHERE id = $1 AND running_job_id = $2`, workerID, jobID)
		return err
	})
}

// ReclaimJobsOfWorker reverts every job currently assigned to worker_id back
// to created, clearing the assignment. Idempotent: a job already completed
// before the sweeper runs is untouched because the WHERE clause requires
// status = 'assigned'.
func (s *Store) ReclaimJobsOfWorker(ctx context.Context, workerID int64) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE jobs SET status = 'created', assigned_worker_id = NULL, assign_time = NULL
			WHERE assigned_worker_id = $1 AND status = 'assigned'`, workerID)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()

		_, err = tx.Exec(ctx, `UPDATE workers SET running_job_id = NULL WHERE id = $1`, workerID)
		return err
	})
	return n, err
}

const jobSelectByID = `
	SELECT id, pipeline_id, packages, arch, status, min_cores, min_total_memory_bytes,
	       min_memory_per_core_bytes, min_free_disk_bytes, assigned_worker_id, assign_time,
	       finish_time, build_success, upload_success, successful_packages, failed_package,
	       skipped_packages, log_url, error_message, built_by_worker_id, created_at
	FROM jobs WHERE id = $1`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.PipelineID, &j.Packages, &j.Arch, &j.Status,
		&j.Requirements.MinCores, &j.Requirements.MinTotalMemoryBytes,
		&j.Requirements.MinMemoryPerCoreBytes, &j.Requirements.MinFreeDiskBytes,
		&j.AssignedWorkerID, &j.AssignTime,
		&j.FinishTime, &j.BuildSuccess, &j.UploadSuccess, &j.SuccessfulPackages,
		&j.FailedPackage, &j.SkippedPackages, &j.LogURL, &j.ErrorMessage,
		&j.BuiltByWorkerID, &j.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	return scanJob(s.pool.QueryRow(ctx, jobSelectByID, id))
}

// InsertJob inserts a new created job for pipelineID.
func (s *Store) InsertJob(ctx context.Context, tx pgx.Tx, pipelineID int64, packages, arch string, req Requirements) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO jobs (pipeline_id, packages, arch, status, min_cores, min_total_memory_bytes,
		                   min_memory_per_core_bytes, min_free_disk_bytes)
		VALUES ($1, $2, $3, 'created', $4, $5, $6, $7)
		RETURNING id`,
		pipelineID, packages, arch,
		req.MinCores, req.MinTotalMemoryBytes, req.MinMemoryPerCoreBytes, req.MinFreeDiskBytes,
	).Scan(&id)
	return id, err
}

// RestartJob clones a failed/error job's inputs into a brand-new created
// job on the same pipeline. The original job is retained untouched.
func (s *Store) RestartJob(ctx context.Context, jobID int64) (int64, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Status != JobFailed && job.Status != JobError {
		return 0, apierr.Conflictf("job is not failed or errored")
	}

	var newID int64
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		newID, err = s.InsertJob(ctx, tx, job.PipelineID, job.Packages, job.Arch, job.Requirements)
		return err
	})
	return newID, err
}

// ListJobs returns a page of jobs, descending by id.
func (s *Store) ListJobs(ctx context.Context, page, itemsPerPage int) ([]Job, int64, error) {
	offset, limit := pageOffset(page, itemsPerPage)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, pipeline_id, packages, arch, status, min_cores, min_total_memory_bytes,
		       min_memory_per_core_bytes, min_free_disk_bytes, assigned_worker_id, assign_time,
		       finish_time, build_success, upload_success, successful_packages, failed_package,
		       skipped_packages, log_url, error_message, built_by_worker_id, created_at
		FROM jobs ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *j)
	}
	return out, total, rows.Err()
}

// JobsByPipeline returns every job belonging to pipelineID, ascending by id.
func (s *Store) JobsByPipeline(ctx context.Context, pipelineID int64) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pipeline_id, packages, arch, status, min_cores, min_total_memory_bytes,
		       min_memory_per_core_bytes, min_free_disk_bytes, assigned_worker_id, assign_time,
		       finish_time, build_success, upload_success, successful_packages, failed_package,
		       skipped_packages, log_url, error_message, built_by_worker_id, created_at
		FROM jobs WHERE pipeline_id = $1 ORDER BY id ASC`, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func pageOffset(page, itemsPerPage int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if itemsPerPage < 1 {
		itemsPerPage = 20
	}
	return (page - 1) * itemsPerPage, itemsPerPage
}
