package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/store"
	"github.com/aosc-dev/buildit/pkg/cache"
)

// archStats is the per-architecture breakdown in dashboard/status.
type archStats struct {
	PendingJobCount  int64 `json:"pending_job_count"`
	RunningJobCount  int64 `json:"running_job_count"`
	FinishedJobCount int64 `json:"finished_job_count"`
	LiveWorkerCount  int64 `json:"live_worker_count"`
	TotalWorkerCount int64 `json:"total_worker_count"`
}

type dashboardStats struct {
	TotalPipelineCount int64                `json:"total_pipeline_count"`
	TotalJobCount      int64                `json:"total_job_count"`
	PendingJobCount    int64                `json:"pending_job_count"`
	RunningJobCount    int64                `json:"running_job_count"`
	FinishedJobCount   int64                `json:"finished_job_count"`
	TotalWorkerCount   int64                `json:"total_worker_count"`
	LiveWorkerCount    int64                `json:"live_worker_count"`
	TotalLogicalCores  int64                `json:"total_logical_cores"`
	TotalMemoryBytes   int64                `json:"total_memory_bytes"`
	ByArch             map[string]archStats `json:"by_arch"`
}

const dashboardCacheKey = "status"

// dashboardCache recomputes dashboard/status by scanning the current
// pipeline/job/worker rows. Recomputation is coalesced through
// cache.GetOrSet's singleflight, and cached in Redis for ttl when a Redis
// client is wired in — recomputing on every poll across a large worker
// fleet is wasteful. Without Redis it degrades to singleflight-only
// coalescing, recomputing on every call that misses the dedup window.
type dashboardCache struct {
	store           *store.Store
	livenessTimeout time.Duration
	ttl             time.Duration
	backing         cache.Cache[dashboardStats]
}

func newDashboardCache(s *store.Store, livenessTimeout time.Duration) *dashboardCache {
	return &dashboardCache{
		store:           s,
		livenessTimeout: livenessTimeout,
		backing:         cache.NewMemory[dashboardStats](cache.WithDefaultTTL(0)),
	}
}

// EnableRedisCache swaps the in-process memory cache for a Redis-backed one
// so the aggregate survives coordinator restarts and is shared across a
// multi-instance deployment.
func (d *dashboardCache) EnableRedisCache(client redis.UniversalClient, ttl time.Duration) {
	d.ttl = ttl
	d.backing = cache.NewRedis[dashboardStats](client, nil, cache.WithPrefix("buildit:dashboard:"))
}

func (d *dashboardCache) get(ctx context.Context) (dashboardStats, error) {
	stats, err := cache.GetOrSet(ctx, d.backing, dashboardCacheKey, func(ctx context.Context) (dashboardStats, time.Duration, error) {
		stats, err := d.compute(ctx)
		return stats, d.ttl, err
	})
	if d.ttl <= 0 {
		// No TTL configured: a zero TTL would keep the entry forever, so drop
		// it and let the next call recompute.
		_ = d.backing.Delete(ctx, dashboardCacheKey)
	}
	return stats, err
}

// invalidate drops the cached aggregate; called after every job completion
// so dashboard/status never reports a stale finished-job count for longer
// than the window between a completion and the next request.
func (d *dashboardCache) invalidate(ctx context.Context) {
	_ = d.backing.Delete(ctx, dashboardCacheKey)
}

func (d *dashboardCache) compute(ctx context.Context) (dashboardStats, error) {
	stats := dashboardStats{ByArch: make(map[string]archStats)}

	const pageSize = 500
	for page := 1; ; page++ {
		pipelines, total, err := d.store.ListPipelines(ctx, page, pageSize, store.ListPipelinesFilter{})
		if err != nil {
			return dashboardStats{}, apierr.Internalf("failed to scan pipelines", err)
		}
		stats.TotalPipelineCount = total
		if len(pipelines) == 0 || int64(page*pageSize) >= total {
			break
		}
	}

	for page := 1; ; page++ {
		jobs, total, err := d.store.ListJobs(ctx, page, pageSize)
		if err != nil {
			return dashboardStats{}, apierr.Internalf("failed to scan jobs", err)
		}
		stats.TotalJobCount = total
		for _, j := range jobs {
			a := stats.ByArch[j.Arch]
			switch j.Status {
			case store.JobCreated:
				stats.PendingJobCount++
				a.PendingJobCount++
			case store.JobAssigned:
				stats.RunningJobCount++
				a.RunningJobCount++
			case store.JobSuccess, store.JobFailed, store.JobError:
				stats.FinishedJobCount++
				a.FinishedJobCount++
			}
			stats.ByArch[j.Arch] = a
		}
		if len(jobs) == 0 || int64(page*pageSize) >= total {
			break
		}
	}

	now := time.Now()
	for page := 1; ; page++ {
		workers, total, err := d.store.ListWorkers(ctx, page, pageSize)
		if err != nil {
			return dashboardStats{}, apierr.Internalf("failed to scan workers", err)
		}
		stats.TotalWorkerCount = total
		for _, w := range workers {
			stats.TotalLogicalCores += int64(w.LogicalCores)
			stats.TotalMemoryBytes += w.MemoryBytes

			a := stats.ByArch[w.Arch]
			a.TotalWorkerCount++
			if store.IsLive(w, now, d.livenessTimeout) {
				stats.LiveWorkerCount++
				a.LiveWorkerCount++
			}
			stats.ByArch[w.Arch] = a
		}
		if len(workers) == 0 || int64(page*pageSize) >= total {
			break
		}
	}

	return stats, nil
}

// DashboardStatus handles GET /api/dashboard/status.
func (a *API) DashboardStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := a.dashboard.get(r.Context())
	if err != nil {
		apierr.Respond(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
