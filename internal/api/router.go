package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aosc-dev/buildit/internal/apierr"
)

// Router builds the coordinator's chi mux. Middleware (recover, request id,
// CORS, timeout) is assembled by the caller in cmd/coordinator, matching the
// teacher's separation between ambient middleware and route wiring.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api/pipeline", func(r chi.Router) {
		r.Get("/list", a.ListPipelines)
		r.Get("/info", a.GetPipeline)
		r.Post("/new", a.requireUser(a.CreatePipeline))
	})

	r.Route("/api/job", func(r chi.Router) {
		r.Get("/list", a.ListJobs)
		r.Get("/info", a.GetJob)
		r.Post("/restart", a.requireUser(a.RestartJob))
	})

	r.Route("/api/worker", func(r chi.Router) {
		r.Get("/list", a.ListWorkers)
		r.Get("/info", a.GetWorker)
		r.Post("/register", a.Register)
		r.Post("/poll", a.Poll)
		r.Post("/heartbeat", a.Heartbeat)
		r.Post("/complete", a.Complete)
	})

	r.Get("/api/dashboard/status", a.DashboardStatus)

	r.Get("/api/ws/producer/{hostname}", a.relay.ProducerHandler())
	r.Get("/api/ws/viewer/{hostname}", a.relay.ViewerHandler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierr.Respond(w, r, a.logger, apierr.NotFoundf("no such route"))
	})

	return r
}
