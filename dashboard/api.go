package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"car-dashboard/models"
	"car-dashboard/predictor"
	"car-dashboard/services"
)

var errModelUnavailable = errors.New("no model artifact loaded")

type summaryResponse struct {
	RenderID string `json:"render_id"`
	models.CleaningSummary
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, summaryResponse{RenderID: rd.ID, CleaningSummary: s.insights.CleaningSummary(rd.Result)})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.insights.Overview(rd.Result))
}

func (s *Server) handleDistributions(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	bins := services.HistogramBins
	if v := r.URL.Query().Get("bins"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.sendError(w, r, badRequest("bins must be a positive integer"))
			return
		}
		bins = n
	}
	out := make([]any, 0, len(services.NumericFeatures))
	for _, f := range services.NumericFeatures {
		h, err := s.insights.Histogram(rd.Result, f, bins)
		if err != nil {
			s.sendError(w, r, err)
			return
		}
		out = append(out, h)
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.insights.CategoricalDistributions(rd.Result))
}

func (s *Server) handleTopExpensive(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.insights.TopExpensive(rd.nullDropped(), 10))
}

func (s *Server) handleBrandPrices(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.insights.TopBrandsByMeanPrice(rd.Result, 10))
}

func (s *Server) handleScatter(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	pts, err := s.relationships.Scatter(rd.Result, chi.URLParam(r, "feature"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, pts)
}

func (s *Server) handleBox(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	boxes, err := s.relationships.BoxStats(rd.Result, chi.URLParam(r, "feature"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, boxes)
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.relationships.CorrelationMatrix(rd.Result))
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	raw, err := s.source.Load(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, predictor.BuildOptions(raw))
}

type predictResponse struct {
	Price float64 `json:"price"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var in predictor.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, r, badRequest("invalid JSON body"))
		return
	}
	price, err := s.predict(r, in)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, predictResponse{Price: price})
}

func (s *Server) predict(r *http.Request, in predictor.Input) (float64, error) {
	if s.predictor == nil {
		return 0, errModelUnavailable
	}
	price, err := s.predictor.Predict(r.Context(), in)
	switch {
	case err == nil:
		s.metrics.Predictions.WithLabelValues("ok").Inc()
	case errors.Is(err, predictor.ErrUnseenLabel):
		s.metrics.Predictions.WithLabelValues("unseen_label").Inc()
	default:
		s.metrics.Predictions.WithLabelValues("invalid").Inc()
	}
	return price, err
}

func (s *Server) explanation(r *http.Request) (*services.Explanation, error) {
	if s.explain == nil {
		return nil, errModelUnavailable
	}
	rd, err := s.render(r.Context())
	if err != nil {
		return nil, err
	}
	return s.explain.Explain(rd.Result)
}

func (s *Server) handleShapGlobal(w http.ResponseWriter, r *http.Request) {
	e, err := s.explanation(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.explain.Global(e))
}

func (s *Server) handleShapLocal(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.sendError(w, r, badRequest("index must be an integer"))
		return
	}
	e, err := s.explanation(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	l, err := s.explain.Local(e, idx)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, l)
}

func (s *Server) handleShapDependence(w http.ResponseWriter, r *http.Request) {
	feature, interaction := dependenceParams(r)
	e, err := s.explanation(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	d, err := s.explain.Dependence(e, feature, interaction)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, d)
}

// dependenceParams reads the feature pair, defaulting to mileage against engV.
func dependenceParams(r *http.Request) (string, string) {
	q := r.URL.Query()
	feature, interaction := q.Get("feature"), q.Get("interaction")
	if feature == "" {
		feature = services.DependenceFeatures[0]
	}
	if interaction == "" {
		interaction = "engV"
	}
	return feature, interaction
}

type healthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	Model     bool          `json:"model_loaded"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime),
		Model:     s.predictor != nil,
	})
}

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func badRequest(msg string) error { return badRequestError(msg) }

// statusFor maps an error to the response status and the message shown to
// the caller.
func statusFor(err error) (int, string) {
	var br badRequestError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &verrs):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, predictor.ErrUnseenLabel):
		return http.StatusUnprocessableEntity, predictor.UnseenLabelMessage
	case errors.Is(err, services.ErrUnknownFeature),
		errors.Is(err, services.ErrSameFeature),
		errors.Is(err, services.ErrIndexOutOfRange):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNoExplainableRows):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, errModelUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("[%s] %s %s: %v", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, err)
	}
	s.sendJSON(w, status, map[string]any{
		"error":     msg,
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}
