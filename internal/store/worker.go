package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const workerSelectColumns = `
	id, hostname, arch, logical_cores, memory_bytes, disk_free_space_bytes, source_revision,
	last_heartbeat_time, internet_connectivity, running_job_id, secret_hash, perf_hint, created_at`

func scanWorker(row rowScanner) (*Worker, error) {
	var w Worker
	err := row.Scan(&w.ID, &w.Hostname, &w.Arch, &w.LogicalCores, &w.MemoryBytes, &w.DiskFreeSpaceBytes,
		&w.SourceRevision, &w.LastHeartbeatTime, &w.InternetConnectivity, &w.RunningJobID,
		&w.SecretHash, &w.PerfHint, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// RegisterWorker upserts a worker by its (hostname, arch) identity key:
// re-registering with the same pair updates the existing row, never
// creates a duplicate. secretHash is only applied on first insert — the
// secret is minted once at registration and never replaced implicitly.
func (s *Store) RegisterWorker(ctx context.Context, hostname, arch string, caps Capabilities, secretHash string) (*Worker, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO workers (hostname, arch, logical_cores, memory_bytes, disk_free_space_bytes, secret_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hostname, arch) DO UPDATE SET
			logical_cores = excluded.logical_cores,
			memory_bytes = excluded.memory_bytes,
			disk_free_space_bytes = excluded.disk_free_space_bytes,
			last_heartbeat_time = now()
		RETURNING `+workerSelectColumns,
		hostname, arch, caps.LogicalCores, caps.MemoryBytes, caps.DiskFreeSpaceBytes, secretHash,
	)
	return scanWorker(row)
}

// TouchHeartbeat refreshes a worker's last_heartbeat_time, self-reported
// capabilities, and internet connectivity bit. Called by both the
// dispatcher and the standalone heartbeat endpoint.
func (s *Store) TouchHeartbeat(ctx context.Context, workerID int64, caps Capabilities, internetConnectivity bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workers SET
			last_heartbeat_time = now(),
			logical_cores = $1,
			memory_bytes = $2,
			disk_free_space_bytes = $3,
			internet_connectivity = $4
		WHERE id = $5`,
		caps.LogicalCores, caps.MemoryBytes, caps.DiskFreeSpaceBytes, internetConnectivity, workerID)
	return err
}

// GetWorker fetches one worker by id.
func (s *Store) GetWorker(ctx context.Context, id int64) (*Worker, error) {
	return scanWorker(s.pool.QueryRow(ctx, `SELECT `+workerSelectColumns+` FROM workers WHERE id = $1`, id))
}

// GetWorkerByHostnameArch fetches one worker by its identity key.
func (s *Store) GetWorkerByHostnameArch(ctx context.Context, hostname, arch string) (*Worker, error) {
	return scanWorker(s.pool.QueryRow(ctx, `
		SELECT `+workerSelectColumns+` FROM workers WHERE hostname = $1 AND arch = $2`, hostname, arch))
}

// ListWorkers returns a page of workers, ascending by id.
func (s *Store) ListWorkers(ctx context.Context, page, itemsPerPage int) ([]Worker, int64, error) {
	offset, limit := pageOffset(page, itemsPerPage)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM workers`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+workerSelectColumns+` FROM workers ORDER BY id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *w)
	}
	return out, total, rows.Err()
}

// ListDeadWorkers returns the ids of workers whose last heartbeat is older
// than cutoff and that still hold a running job — the sweeper's candidate
// set for reclamation.
func (s *Store) ListDeadWorkers(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM workers WHERE last_heartbeat_time < $1 AND running_job_id IS NOT NULL`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsLive reports whether a worker counts as live given cutoff (now -
// LivenessTimeout). Liveness is derived, never stored.
func IsLive(w Worker, now time.Time, timeout time.Duration) bool {
	return now.Sub(w.LastHeartbeatTime) < timeout
}
