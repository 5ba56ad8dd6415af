package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"car-dashboard/config"
	"car-dashboard/models"
	"car-dashboard/predictor"
	"car-dashboard/services"
	"car-dashboard/storage"
	"car-dashboard/utils"
)

// Server is the dashboard's HTTP front end. It holds no per-session state:
// every request loads and cleans the listings file again and takes its
// selections from the request itself.
type Server struct {
	cfg           config.ServerConfig
	source        storage.ListingSource
	cleaner       *services.Cleaner
	insights      *services.InsightService
	relationships *services.RelationshipService
	explain       *services.ExplainService
	predictor     *predictor.Predictor
	metrics       *Metrics
	logger        *utils.Logger
	pages         *pageSet
	router        chi.Router
	server        *http.Server
	startTime     time.Time
}

// NewServer wires the dashboard. pred and explainer may be nil, in which case
// the predictor and explainability views report the model as unavailable.
func NewServer(cfg config.ServerConfig, source storage.ListingSource, pred *predictor.Predictor, explainer services.Explainer, logger *utils.Logger) *Server {
	s := &Server{
		cfg:           cfg,
		source:        source,
		cleaner:       services.NewCleaner(logger),
		insights:      services.NewInsightService(logger),
		relationships: services.NewRelationshipService(logger),
		predictor:     pred,
		metrics:       NewMetrics(),
		logger:        logger.With("component", "dashboard"),
		pages:         mustParsePages(),
		startTime:     time.Now(),
	}
	if pred != nil && explainer != nil {
		s.explain = services.NewExplainService(pred.Artifact(), explainer, logger)
	}
	s.setupRouter()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/", s.handleHome)
	r.Get("/explorer", s.handleExplorer)
	r.Get("/relationships", s.handleRelationships)
	r.Get("/predictor", s.handlePredictorForm)
	r.Post("/predictor", s.handlePredictorSubmit)
	r.Get("/explainability", s.handleExplainability)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/overview", s.handleOverview)
		r.Get("/distributions", s.handleDistributions)
		r.Get("/categories", s.handleCategories)
		r.Get("/top-expensive", s.handleTopExpensive)
		r.Get("/brand-prices", s.handleBrandPrices)
		r.Get("/scatter/{feature}", s.handleScatter)
		r.Get("/box/{feature}", s.handleBox)
		r.Get("/correlation", s.handleCorrelation)
		r.Get("/options", s.handleOptions)
		r.Post("/predict", s.handlePredict)
		r.Get("/shap/global", s.handleShapGlobal)
		r.Get("/shap/local/{index}", s.handleShapLocal)
		r.Get("/shap/dependence", s.handleShapDependence)
	})

	r.Route("/charts", func(r chi.Router) {
		r.Get("/histogram/{feature}", s.chartHistogram)
		r.Get("/scatter/{feature}", s.chartScatter)
		r.Get("/box/{feature}", s.chartBox)
		r.Get("/brands", s.chartBrands)
		r.Get("/shap/importance", s.chartShapImportance)
		r.Get("/shap/local/{index}", s.chartShapLocal)
		r.Get("/shap/dependence", s.chartShapDependence)
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router = r
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dashboard: listen on %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dashboard: serve on %s: %w", ln.Addr(), err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-errCh:
		return err
	}
}

// Close shuts the HTTP server down gracefully.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("Stopping dashboard")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Zerolog().Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// render is one run of the pipeline for a single request.
type render struct {
	ID     string
	Raw    []*models.RawListing
	Result *models.CleanResult
}

func (s *Server) render(ctx context.Context) (*render, error) {
	start := time.Now()
	id := uuid.NewString()

	raw, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", id, err)
	}
	res := s.cleaner.LoadAndClean(raw)

	s.metrics.Renders.Inc()
	s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	s.metrics.RowsKept.Set(float64(res.CleanedRows))
	s.metrics.RowsRemoved.Set(float64(res.RemovedRows()))
	s.logger.With("render_id", id).Debug("[render] %d raw, %d after null drop, %d kept",
		len(raw), res.InitialRows, res.CleanedRows)

	return &render{ID: id, Raw: raw, Result: res}, nil
}

// nullDropped is the null-free table before bucketing, used by the per-car
// price ranking.
func (rd *render) nullDropped() []*models.Listing {
	return services.DropMissing(rd.Raw)
}
