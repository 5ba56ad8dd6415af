package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-dashboard/config"
	"car-dashboard/explain"
	"car-dashboard/models"
	"car-dashboard/predictor"
	"car-dashboard/storage"
	"car-dashboard/utils"
)

type staticSource struct {
	rows  func() []*models.RawListing
	err   error
	loads int
}

func (s *staticSource) Load(context.Context) ([]*models.RawListing, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.rows(), nil
}

func raw(car, model string, price float64, body string, mileage, engV float64, engType, reg string, year int64, drive string) *models.RawListing {
	return &models.RawListing{
		Car:          sql.NullString{String: car, Valid: true},
		Model:        sql.NullString{String: model, Valid: true},
		Price:        sql.NullFloat64{Float64: price, Valid: true},
		Body:         sql.NullString{String: body, Valid: true},
		Mileage:      sql.NullFloat64{Float64: mileage, Valid: true},
		EngV:         sql.NullFloat64{Float64: engV, Valid: true},
		EngType:      sql.NullString{String: engType, Valid: true},
		Registration: sql.NullString{String: reg, Valid: true},
		Year:         sql.NullInt64{Int64: year, Valid: true},
		Drive:        sql.NullString{String: drive, Valid: true},
	}
}

// fixtureRows has 17 rows: 16 complete, 15 inside the accepted ranges.
func fixtureRows() []*models.RawListing {
	var rows []*models.RawListing
	for i := 0; i < 12; i++ {
		rows = append(rows, raw("Toyota", "Camry", 9000+float64(i)*1000, "sedan", 40+float64(i)*10, 2.5, "Gas", "yes", int64(2004+i), "front"))
	}
	rows = append(rows, raw("Toyota", "Camry", 500, "sedan", 300, 2.0, "Petrol", "yes", 1999, "front"))
	for i := 0; i < 3; i++ {
		rows = append(rows, raw("BMW", "X5", 30000+float64(i)*5000, "crossover", 120, 4.4, "Diesel", "no", int64(2009+i), "full"))
	}
	missing := raw("Toyota", "Corolla", 0, "sedan", 80, 1.6, "Petrol", "yes", 2010, "front")
	missing.Price = sql.NullFloat64{}
	return append(rows, missing)
}

func newTestServer(t *testing.T, withModel bool) (*Server, *staticSource) {
	t.Helper()
	src := &staticSource{rows: fixtureRows}
	var pred *predictor.Predictor
	var explainer *explain.TreeSHAP
	if withModel {
		a, err := predictor.LoadArtifact(filepath.Join("..", "predictor", "testdata", "model.json"))
		require.NoError(t, err)
		pred = predictor.New(a, utils.NewNopLogger())
		explainer = explain.NewTreeSHAP(a.Model)
	}
	cfg := config.ServerConfig{Addr: ":0", RequestTimeout: 5 * time.Second}
	if explainer == nil {
		return NewServer(cfg, src, pred, nil, utils.NewNopLogger()), src
	}
	return NewServer(cfg, src, pred, explainer, utils.NewNopLogger()), src
}

func do(t *testing.T, s *Server, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := do(t, s, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
}

func TestSummaryRerunsPipelinePerRequest(t *testing.T) {
	s, src := newTestServer(t, true)

	var first, second struct {
		RenderID    string `json:"render_id"`
		InitialRows int    `json:"initial_rows"`
		FinalRows   int    `json:"final_rows"`
		RemovedRows int    `json:"removed_rows"`
	}
	decode(t, do(t, s, http.MethodGet, "/api/v1/summary", nil, ""), &first)
	decode(t, do(t, s, http.MethodGet, "/api/v1/summary", nil, ""), &second)

	assert.Equal(t, 16, first.InitialRows)
	assert.Equal(t, 15, first.FinalRows)
	assert.Equal(t, 1, first.RemovedRows)
	assert.Equal(t, first.FinalRows, second.FinalRows)
	assert.NotEqual(t, first.RenderID, second.RenderID)
	assert.Equal(t, 2, src.loads)
}

func TestOverviewBucketsRareBrands(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(t, s, http.MethodGet, "/api/v1/overview", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var o models.Overview
	decode(t, rec, &o)
	assert.Equal(t, 15, o.Rows)
	require.Len(t, o.Brands, 2)
	assert.Equal(t, models.CategoryCount{Value: "Toyota", Count: 12}, o.Brands[0])
	assert.Equal(t, models.CategoryCount{Value: "Other", Count: 3}, o.Brands[1])
}

func TestRelationshipEndpoints(t *testing.T) {
	s, _ := newTestServer(t, false)

	rec := do(t, s, http.MethodGet, "/api/v1/scatter/year", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pts []models.Point
	decode(t, rec, &pts)
	assert.Len(t, pts, 15)

	rec = do(t, s, http.MethodGet, "/api/v1/scatter/body", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/box/drive", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var boxes []models.BoxStats
	decode(t, rec, &boxes)
	require.Len(t, boxes, 2)
	assert.Equal(t, "front", boxes[0].Category)

	rec = do(t, s, http.MethodGet, "/api/v1/correlation", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"columns"`)
}

func TestPredictEndpoint(t *testing.T) {
	s, _ := newTestServer(t, true)

	body := `{"car":"Toyota","body":"sedan","mileage":100,"engV":2.0,"engType":"Gas","registration":"yes","year":2012,"drive":"front"}`
	rec := do(t, s, http.MethodPost, "/api/v1/predict", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct{ Price float64 }
	decode(t, rec, &out)
	assert.Equal(t, 19000.0, out.Price)

	unseen := strings.Replace(body, "Toyota", "Lada", 1)
	rec = do(t, s, http.MethodPost, "/api/v1/predict", strings.NewReader(unseen), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), predictor.UnseenLabelMessage)

	invalid := strings.Replace(body, `"year":2012`, `"year":1950`, 1)
	rec = do(t, s, http.MethodPost, "/api/v1/predict", strings.NewReader(invalid), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/predict", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictWithoutModel(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(t, s, http.MethodPost, "/api/v1/predict", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/shap/global", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptionsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(t, s, http.MethodGet, "/api/v1/options", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var opts predictor.Options
	decode(t, rec, &opts)
	assert.Equal(t, []string{"Toyota", "BMW"}, opts.Car)
	assert.Equal(t, []string{"Gas", "Petrol", "Diesel"}, opts.EngType)
	assert.Equal(t, []string{"yes", "no"}, opts.Registration)
}

func TestShapEndpoints(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodGet, "/api/v1/shap/global", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var g models.GlobalExplanation
	decode(t, rec, &g)
	assert.Equal(t, 15, g.Rows)
	assert.Equal(t, 0, g.Skipped)
	assert.Len(t, g.Importance, predictor.NumFeatures)

	rec = do(t, s, http.MethodGet, "/api/v1/shap/local/0", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var l models.LocalExplanation
	decode(t, rec, &l)
	var sum float64
	for _, c := range l.Contributions {
		sum += c.Shap
	}
	assert.InDelta(t, l.Prediction, l.BaseValue+sum, 1e-6)

	for _, target := range []string{"/api/v1/shap/local/15", "/api/v1/shap/local/-1", "/api/v1/shap/local/x"} {
		rec = do(t, s, http.MethodGet, target, nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/shap/dependence?feature=year&interaction=mileage", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var d models.Dependence
	decode(t, rec, &d)
	assert.Len(t, d.Points, 15)

	rec = do(t, s, http.MethodGet, "/api/v1/shap/dependence?feature=year&interaction=year", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "interaction feature must be different")
}

func TestCharts(t *testing.T) {
	s, _ := newTestServer(t, true)
	for _, target := range []string{
		"/charts/histogram/price",
		"/charts/scatter/mileage",
		"/charts/box/body",
		"/charts/brands",
		"/charts/shap/importance",
		"/charts/shap/local/3",
		"/charts/shap/dependence?feature=mileage&interaction=engV",
	} {
		rec := do(t, s, http.MethodGet, target, nil, "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"), target)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"), target)
	}

	rec := do(t, s, http.MethodGet, "/charts/histogram/body", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPages(t *testing.T) {
	s, _ := newTestServer(t, true)
	cases := map[string]string{
		"/":               "16 complete, 15 kept",
		"/explorer":       "Top 10 most expensive cars",
		"/relationships":  "Correlation matrix",
		"/predictor":      "Predict Price",
		"/explainability": "Global feature impact",
	}
	for target, want := range cases {
		rec := do(t, s, http.MethodGet, target, nil, "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Contains(t, rec.Body.String(), want, target)
	}
}

func TestPredictorForm(t *testing.T) {
	s, _ := newTestServer(t, true)
	form := url.Values{
		"car": {"Toyota"}, "body": {"sedan"}, "mileage": {"100"}, "engV": {"2.0"},
		"engType": {"Gas"}, "registration": {"yes"}, "year": {"2012"}, "drive": {"front"},
	}
	rec := do(t, s, http.MethodPost, "/predictor", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Estimated Price: <b>$19,000.00</b>")

	form.Set("body", "limousine")
	rec = do(t, s, http.MethodPost, "/predictor", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "This car configuration includes unseen labels not present during training.")
}

func TestExplainabilitySelectionsComeFromRequest(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodGet, "/explainability?feature=engV&interaction=engV", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Interaction feature must be different from the selected feature.")

	rec = do(t, s, http.MethodGet, "/explainability?index=3&feature=year&interaction=mileage", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "/charts/shap/local/3")
	assert.Contains(t, body, "feature=year&amp;interaction=mileage")

	// A later request without parameters falls back to the defaults.
	rec = do(t, s, http.MethodGet, "/explainability", nil, "")
	assert.Contains(t, rec.Body.String(), "/charts/shap/local/0")
	assert.NotContains(t, rec.Body.String(), "dependence?feature=year")
}

func TestMalformedSourceIsServerError(t *testing.T) {
	s, src := newTestServer(t, false)
	src.err = fmt.Errorf("load: %w", storage.ErrMalformedInput)

	rec := do(t, s, http.MethodGet, "/api/v1/summary", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	rec = do(t, s, http.MethodGet, "/explorer", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, false)
	do(t, s, http.MethodGet, "/api/v1/summary", nil, "")

	rec := do(t, s, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "car_dashboard_renders_total 1")
	assert.Contains(t, body, "car_dashboard_rows_kept 15")
	assert.Contains(t, body, `route="/api/v1/summary"`)
}
