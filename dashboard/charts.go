package dashboard

import (
	"fmt"
	"image/color"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"car-dashboard/models"
	"car-dashboard/services"
)

var (
	barColor  = color.RGBA{R: 60, G: 126, B: 219, A: 255}
	posColor  = color.RGBA{R: 255, G: 0, B: 81, A: 255}
	negColor  = color.RGBA{R: 0, G: 139, B: 251, A: 255}
	chartSize = struct{ w, h vg.Length }{8 * vg.Inch, 5 * vg.Inch}
)

func (s *Server) writePNG(w http.ResponseWriter, r *http.Request, p *plot.Plot) {
	wt, err := p.WriterTo(chartSize.w, chartSize.h, "png")
	if err != nil {
		s.sendError(w, r, fmt.Errorf("chart: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := wt.WriteTo(w); err != nil {
		s.logger.Warn("[charts] write %s: %v", r.URL.Path, err)
	}
}

func (s *Server) chartHistogram(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	get, err := services.NumericAccessor(feature)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	p := plot.New()
	p.Title.Text = "Distribution of " + feature
	p.X.Label.Text = feature
	p.Y.Label.Text = "count"
	if len(rd.Result.Listings) > 0 {
		values := make(plotter.Values, len(rd.Result.Listings))
		for i, l := range rd.Result.Listings {
			values[i] = get(l)
		}
		h, err := plotter.NewHist(values, services.HistogramBins)
		if err != nil {
			s.sendError(w, r, fmt.Errorf("chart: %w", err))
			return
		}
		h.FillColor = barColor
		p.Add(h)
	}
	s.writePNG(w, r, p)
}

func (s *Server) chartScatter(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	pts, err := s.relationships.Scatter(rd.Result, feature)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	p := plot.New()
	p.Title.Text = feature + " vs price"
	p.X.Label.Text = feature
	p.Y.Label.Text = "price"
	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		s.sendError(w, r, fmt.Errorf("chart: %w", err))
		return
	}
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(1.5)
	sc.GlyphStyle.Color = color.RGBA{R: 60, G: 126, B: 219, A: 90}
	p.Add(sc, plotter.NewGrid())
	s.writePNG(w, r, p)
}

func (s *Server) chartBox(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	get, err := services.CategoricalAccessor(feature)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	groups := make(map[string]plotter.Values)
	var order []string
	for _, l := range rd.Result.Listings {
		k := get(l)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], l.Price)
	}

	p := plot.New()
	p.Title.Text = "price by " + feature
	p.Y.Label.Text = "price"
	for i, k := range order {
		b, err := plotter.NewBoxPlot(vg.Points(20), float64(i), groups[k])
		if err != nil {
			s.sendError(w, r, fmt.Errorf("chart: %w", err))
			return
		}
		b.FillColor = barColor
		p.Add(b)
	}
	p.NominalX(order...)
	s.writePNG(w, r, p)
}

func (s *Server) chartBrands(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	top := s.insights.TopBrandsByMeanPrice(rd.Result, 10)

	p := plot.New()
	p.Title.Text = "Top brands by mean price"
	p.Y.Label.Text = "mean price"
	if err := addBars(p, pricedLabels(top), pricedValues(top), false); err != nil {
		s.sendError(w, r, err)
		return
	}
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	s.writePNG(w, r, p)
}

func (s *Server) chartShapImportance(w http.ResponseWriter, r *http.Request) {
	e, err := s.explanation(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	g := s.explain.Global(e)

	// Largest at the top.
	n := len(g.Importance)
	labels := make([]string, n)
	values := make(plotter.Values, n)
	for i, imp := range g.Importance {
		labels[n-1-i] = imp.Feature
		values[n-1-i] = imp.MeanAbs
	}

	p := plot.New()
	p.Title.Text = "Mean |SHAP value|"
	if err := addBars(p, labels, values, true); err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writePNG(w, r, p)
}

func (s *Server) chartShapLocal(w http.ResponseWriter, r *http.Request) {
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

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Row %d: %.0f (base %.0f)", l.Index, l.Prediction, l.BaseValue)
	n := len(l.Contributions)
	labels := make([]string, n)
	for i, c := range l.Contributions {
		labels[n-1-i] = fmt.Sprintf("%s = %g", c.Feature, c.Value)
		values := make(plotter.Values, n)
		values[n-1-i] = c.Shap
		bars, err := plotter.NewBarChart(values, vg.Points(14))
		if err != nil {
			s.sendError(w, r, fmt.Errorf("chart: %w", err))
			return
		}
		bars.Horizontal = true
		bars.LineStyle.Width = 0
		bars.Color = posColor
		if c.Shap < 0 {
			bars.Color = negColor
		}
		p.Add(bars)
	}
	p.NominalY(labels...)
	s.writePNG(w, r, p)
}

func (s *Server) chartShapDependence(w http.ResponseWriter, r *http.Request) {
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

	p := plot.New()
	p.Title.Text = fmt.Sprintf("SHAP dependence: %s (colour: %s)", feature, interaction)
	p.X.Label.Text = feature
	p.Y.Label.Text = "SHAP value for " + feature
	xys := make(plotter.XYs, len(d.Points))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, pt := range d.Points {
		xys[i] = plotter.XY{X: pt.Value, Y: pt.Shap}
		lo, hi = math.Min(lo, pt.Interaction), math.Max(hi, pt.Interaction)
	}
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		s.sendError(w, r, fmt.Errorf("chart: %w", err))
		return
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color:  blend(negColor, posColor, normalize(d.Points[i].Interaction, lo, hi)),
			Radius: vg.Points(2),
			Shape:  draw.CircleGlyph{},
		}
	}
	p.Add(sc, plotter.NewGrid())
	s.writePNG(w, r, p)
}

func addBars(p *plot.Plot, labels []string, values plotter.Values, horizontal bool) error {
	if len(values) == 0 {
		return nil
	}
	bars, err := plotter.NewBarChart(values, vg.Points(16))
	if err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	bars.Horizontal = horizontal
	p.Add(bars)
	if horizontal {
		p.NominalY(labels...)
	} else {
		p.NominalX(labels...)
	}
	return nil
}

func pricedLabels(cars []models.PricedCar) []string {
	out := make([]string, len(cars))
	for i, c := range cars {
		out[i] = c.Label
	}
	return out
}

func pricedValues(cars []models.PricedCar) plotter.Values {
	out := make(plotter.Values, len(cars))
	for i, c := range cars {
		out[i] = c.Price
	}
	return out
}

func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

// blend mixes a and b, t=0 giving a and t=1 giving b.
func blend(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
