package httpx

import (
	"log/slog"
	"net/http"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Queue      *service.QueueService
	Results    *service.ResultService
	Exceptions *service.ExceptionService
	WhatIf     *service.WhatIfService
	// Optional: memo cache, exposed for result memo inspection
	Memos  *core.MemoCacheService
	IsDev  bool         // Development mode flag
	Logger *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Queue}
	resultHandlers := &ResultHandlers{Svc: services.Results, Memos: services.Memos}
	exceptionHandlers := &ExceptionHandlers{Svc: services.Exceptions}
	whatIfHandlers := &WhatIfHandlers{Svc: services.WhatIf}

	registerJobRoutes(mux, jobHandlers)
	registerResultRoutes(mux, resultHandlers)
	registerExceptionRoutes(mux, exceptionHandlers)
	registerWhatIfRoutes(mux, whatIfHandlers)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.Submit)
	mux.HandleFunc("GET /api/jobs", h.List)
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetByID)
	mux.HandleFunc("POST /api/queue/block", h.Block)
	mux.HandleFunc("POST /api/queue/unblock", h.Unblock)
}

func registerResultRoutes(mux *http.ServeMux, h *ResultHandlers) {
	mux.HandleFunc("GET /api/results/id/{id}", h.GetByID)
	mux.HandleFunc("GET /api/results/id/{id}/memos", h.ListMemos)
	mux.HandleFunc("GET /api/results/run/{run}", h.GetByRun)
	mux.HandleFunc("GET /api/results/{student}/{area}/active", h.GetActive)
	mux.HandleFunc("GET /api/results/{student}/{area}/history", h.History)
	mux.HandleFunc("GET /api/results/{student}/{area}/{revision}", h.GetRevision)
}

func registerExceptionRoutes(mux *http.ServeMux, h *ExceptionHandlers) {
	mux.HandleFunc("POST /api/exceptions", h.Create)
	mux.HandleFunc("GET /api/exceptions/id/{id}", h.GetByID)
	mux.HandleFunc("PATCH /api/exceptions/{id}", h.Update)
	mux.HandleFunc("POST /api/exceptions/{id}/disable", h.Disable)
	mux.HandleFunc("POST /api/exceptions/{id}/enable", h.Enable)
	mux.HandleFunc("GET /api/exceptions/{student}/{area}", h.ListForLineage)
}

func registerWhatIfRoutes(mux *http.ServeMux, h *WhatIfHandlers) {
	mux.HandleFunc("GET /api/whatif/{student}/{area}", h.ListStaged)
	mux.HandleFunc("DELETE /api/whatif/{student}/{area}", h.ClearStaged)
	mux.HandleFunc("POST /api/whatif/{student}/{area}/preview", h.Preview)
	mux.HandleFunc("POST /api/whatif/{student}/{area}/{kind}", h.Stage)
	mux.HandleFunc("PUT /api/templates/{student}/{name}", h.SaveTemplate)
	mux.HandleFunc("GET /api/templates/{student}/{name}", h.GetTemplate)
	mux.HandleFunc("GET /api/templates/{student}", h.ListTemplates)
}
