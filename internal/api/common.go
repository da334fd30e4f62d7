// Package api wires the coordinator's persistence and domain components into
// the public HTTP JSON surface: pipeline/job/worker queries, the dashboard
// aggregate, the dispatcher's poll/heartbeat/complete endpoints, and the Log
// Relay's WebSocket routes.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/completion"
	"github.com/aosc-dev/buildit/internal/dispatch"
	"github.com/aosc-dev/buildit/internal/orchestrator"
	"github.com/aosc-dev/buildit/internal/relay"
	"github.com/aosc-dev/buildit/internal/store"
)

var validate = validator.New()

// API bundles every component a handler needs. Constructed once in
// cmd/coordinator and mounted onto a chi router.
type API struct {
	store           *store.Store
	orchestrator    *orchestrator.Orchestrator
	dispatcher      *dispatch.Dispatcher
	completion      *completion.Handler
	relay           *relay.Relay
	logger          *slog.Logger
	dashboard       *dashboardCache
	livenessTimeout time.Duration
}

// New constructs the handler bundle. livenessTimeout is the same duration
// the liveness sweeper uses, so worker/list's derived is_live agrees with
// what the sweeper will act on.
func New(s *store.Store, o *orchestrator.Orchestrator, d *dispatch.Dispatcher, c *completion.Handler, rl *relay.Relay, logger *slog.Logger, livenessTimeout time.Duration) *API {
	a := &API{store: s, orchestrator: o, dispatcher: d, completion: c, relay: rl, logger: logger, livenessTimeout: livenessTimeout}
	a.dashboard = newDashboardCache(s, livenessTimeout)
	return a
}

// EnableRedisDashboardCache switches dashboard/status's aggregate cache from
// in-process memory to Redis, letting a multi-instance deployment share one
// computed snapshot instead of each instance recomputing it independently.
func (a *API) EnableRedisDashboardCache(client redis.UniversalClient, ttl time.Duration) {
	a.dashboard.EnableRedisCache(client, ttl)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierr.Validationf("malformed request body")
	}
	if err := validate.Struct(v); err != nil {
		return apierr.Validationf(err.Error())
	}
	return nil
}

// page is the {page, items_per_page} pair every list endpoint accepts.
type page struct {
	Page         int
	ItemsPerPage int
}

func parsePage(r *http.Request) page {
	p := page{Page: 1, ItemsPerPage: 20}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if v := r.URL.Query().Get("items_per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.ItemsPerPage = n
		}
	}
	return p
}

func parseID(r *http.Request, param string) (int64, error) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return 0, apierr.Validationf(param + " is required")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, apierr.Validationf(param + " must be an integer")
	}
	return id, nil
}

// pageResponse is the envelope every paginated endpoint responds with.
type pageResponse struct {
	TotalItems int64 `json:"total_items"`
	Items      any   `json:"items"`
}
