package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/auctionhouse-backend/api/controllers"
	"github.com/angelmondragon/auctionhouse-backend/api/middleware"
	"github.com/angelmondragon/auctionhouse-backend/internal/livefeed"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

type connectLimiter interface {
	ConnectAllow(ctx context.Context, clientID string, limit int64, window time.Duration) (bool, error)
}

// LiveFeedParams carries what the live feed HTTP surface needs.
type LiveFeedParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	Subscribe    http.Handler
	Limiter      connectLimiter
	Gatherer     prometheus.Gatherer
	Dependencies map[string]controllers.Pinger
}

// OpsParams configures the health and metrics surface shared by every service.
type OpsParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	Gatherer     prometheus.Gatherer
	Dependencies map[string]controllers.Pinger
	// AllowedOrigins feeds the CORS policy on the health routes.
	AllowedOrigins []string
}

// NewOpsRouter serves /health and /metrics only. Background workers mount it
// on their ops port.
func NewOpsRouter(params OpsParams) http.Handler {
	r := newBaseRouter(params.Logger)
	mountOps(r, params)
	return r
}

func NewLiveFeedRouter(params LiveFeedParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := newBaseRouter(logg)
	mountOps(r, OpsParams{
		Config:         cfg,
		Logger:         logg,
		Gatherer:       params.Gatherer,
		Dependencies:   params.Dependencies,
		AllowedOrigins: cfg.LiveFeed.AllowedOrigins(),
	})

	r.Route("/ws/auctions", func(r chi.Router) {
		r.Use(middleware.ConnectRateLimit(params.Limiter, cfg.LiveFeed.ConnectLimit, cfg.LiveFeed.ConnectWindow, logg))
		r.Method(http.MethodGet, "/{"+livefeed.ProductIDParam+"}", params.Subscribe)
	})

	return r
}

func newBaseRouter(logg *logger.Logger) chi.Router {
	r := chi.NewRouter()
	// recoverer sits inside logging so a panic is logged as a 500 with its request id
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
	)
	return r
}

func mountOps(r chi.Router, params OpsParams) {
	r.Route("/health", func(r chi.Router) {
		r.Use(middleware.CORS(params.AllowedOrigins))
		r.Get("/live", controllers.HealthLive(params.Config))
		r.Get("/ready", controllers.HealthReady(params.Config, params.Logger, params.Dependencies))
	})

	if params.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}
}
