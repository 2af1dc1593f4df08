package handler

import (
	"log/slog"
	"net/http"

	"transitcat/internal/middleware"
)

type Handlers struct {
	HTTP   *HTTPHandler
	WS     *WSHandler
	Health *HealthHandler
	Stats  *StatsHandler
}

// NewRouter mounts every endpoint. The websocket endpoint skips compression
// and response recording since it hijacks the connection. limiter may be nil.
func NewRouter(h Handlers, limiter *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /v1/buses", h.HTTP.ListBuses)
	api.HandleFunc("GET /v1/buses/{name}", h.HTTP.GetBus)
	api.HandleFunc("GET /v1/buses/{name}/shape", h.HTTP.GetBusShape)
	api.HandleFunc("GET /v1/stops", h.HTTP.ListStops)
	api.HandleFunc("GET /v1/stops/{name}", h.HTTP.GetStop)
	api.HandleFunc("POST /v1/stat", h.HTTP.PostStat)
	api.HandleFunc("POST /v1/base", h.HTTP.PostBase)
	api.HandleFunc("GET /v1/stats", h.Stats.GetStats)

	api.HandleFunc("GET /healthz", h.Health.Healthz)
	api.HandleFunc("GET /readyz", h.Health.Readyz)

	var apiHandler http.Handler = GzipMiddleware(api)
	var wsHandler http.Handler = http.HandlerFunc(h.WS.ServeWS)
	if limiter != nil {
		apiHandler = limiter.Middleware(apiHandler)
		wsHandler = limiter.Middleware(wsHandler)
	}

	root := http.NewServeMux()
	root.Handle("/v1/ws", CountRequests(wsHandler))
	root.Handle("/", middleware.RequestLogger(logger)(CountRequests(CORSMiddleware(apiHandler))))
	return root
}
