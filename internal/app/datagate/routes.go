package datagate

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/sl"
	"github.com/magabrotheeeer/datagate/internal/storage/pool"
)

const healthTimeout = 2 * time.Second

// Pinger проверка доступности хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
	Stats() pool.Stats
}

// HealthResponse ответ /health.
type HealthResponse struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Pool   PoolInfo `json:"pool"`
}

// PoolInfo состояние пула соединений.
type PoolInfo struct {
	Size      int `json:"size"`
	Available int `json:"available"`
	InUse     int `json:"in_use"`
}

// RegisterRoutes регистрирует служебные маршруты.
func RegisterRoutes(r chi.Router, logger *slog.Logger, db Pinger, registry *prometheus.Registry, tracing config.Tracing) {
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)
	if tracing.OTLPEndpoint != "" {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, tracing.ServiceName)
		})
	}

	r.Get("/health", healthHandler(logger, db))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
}

func healthHandler(logger *slog.Logger, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		stats := db.Stats()
		resp := HealthResponse{
			Status: "ok",
			Pool:   PoolInfo{Size: stats.Size, Available: stats.Available, InUse: stats.InUse},
		}
		if err := db.Ping(ctx); err != nil {
			logger.Warn("health check failed", sl.Err(err), slog.String("request_id", middleware.GetReqID(r.Context())))
			resp.Status = "unavailable"
			resp.Error = err.Error()
			render.Status(r, http.StatusServiceUnavailable)
		}
		render.JSON(w, r, resp)
	}
}
