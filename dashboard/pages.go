package dashboard

import (
	"bytes"
	"embed"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"car-dashboard/models"
	"car-dashboard/predictor"
	"car-dashboard/services"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "explorer", "relationships", "predictor", "explainability"}

type pageSet struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"money": func(v float64) string {
		s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
		intPart, frac, _ := strings.Cut(s, ".")
		var b strings.Builder
		for i, c := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				b.WriteByte(',')
			}
			b.WriteRune(c)
		}
		sign := ""
		if v < 0 {
			sign = "-"
		}
		return sign + "$" + b.String() + "." + frac
	},
	"num":   func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
	"deref": func(p *float64) float64 { return *p },
	"corr": func(v float64) string {
		if math.IsNaN(v) {
			return "–"
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	},
	"selected": func(a, b string) template.HTMLAttr {
		if a == b {
			return "selected"
		}
		return ""
	},
}

func mustParsePages() *pageSet {
	ps := &pageSet{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t := template.Must(template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
		ps.pages[name] = t
	}
	return ps
}

type pageData struct {
	Title    string
	Active   string
	RenderID string
	Error    string
	Data     any
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data pageData) {
	t, ok := s.pages.pages[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	data.Active = name
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.logger.Error("[pages] render %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) pageError(w http.ResponseWriter, r *http.Request, name, title string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("[pages] %s: %v", r.URL.Path, err)
	}
	s.renderPage(w, status, name, pageData{Title: title, Error: msg})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.pageError(w, r, "home", "Used Car Dashboard", err)
		return
	}
	s.renderPage(w, http.StatusOK, "home", pageData{
		Title:    "Used Car Dashboard",
		RenderID: rd.ID,
		Data: struct {
			Cleaning models.CleaningSummary
			HasModel bool
			RawRows  int
		}{s.insights.CleaningSummary(rd.Result), s.predictor != nil, len(rd.Raw)},
	})
}

func (s *Server) handleExplorer(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.pageError(w, r, "explorer", "Data Explorer", err)
		return
	}
	s.renderPage(w, http.StatusOK, "explorer", pageData{
		Title:    "Data Explorer",
		RenderID: rd.ID,
		Data:     s.insights.Generate(rd.Result, rd.nullDropped()),
	})
}

type relationshipsView struct {
	ScatterFeatures []string
	BoxFeatures     []string
	Boxes           map[string][]models.BoxStats
	Correlation     *models.CorrelationMatrix
}

var boxFeatures = []string{"body", "engType", "drive"}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	rd, err := s.render(r.Context())
	if err != nil {
		s.pageError(w, r, "relationships", "Feature Relationships", err)
		return
	}
	view := relationshipsView{
		ScatterFeatures: services.ScatterFeatures,
		BoxFeatures:     boxFeatures,
		Boxes:           make(map[string][]models.BoxStats, len(boxFeatures)),
		Correlation:     s.relationships.CorrelationMatrix(rd.Result),
	}
	for _, f := range boxFeatures {
		boxes, err := s.relationships.BoxStats(rd.Result, f)
		if err != nil {
			s.pageError(w, r, "relationships", "Feature Relationships", err)
			return
		}
		view.Boxes[f] = boxes
	}
	s.renderPage(w, http.StatusOK, "relationships", pageData{
		Title:    "Feature Relationships",
		RenderID: rd.ID,
		Data:     view,
	})
}

type predictorView struct {
	Options *predictor.Options
	Input   predictor.Input
	Price   *float64
}

func (s *Server) handlePredictorForm(w http.ResponseWriter, r *http.Request) {
	s.predictorPage(w, r, predictor.DefaultInput(), nil, nil)
}

func (s *Server) handlePredictorSubmit(w http.ResponseWriter, r *http.Request) {
	in, err := parseInputForm(r)
	if err != nil {
		s.predictorPage(w, r, predictor.DefaultInput(), nil, err)
		return
	}
	price, err := s.predict(r, in)
	if err != nil {
		s.predictorPage(w, r, in, nil, err)
		return
	}
	s.predictorPage(w, r, in, &price, nil)
}

func (s *Server) predictorPage(w http.ResponseWriter, r *http.Request, in predictor.Input, price *float64, predErr error) {
	raw, err := s.source.Load(r.Context())
	if err != nil {
		s.pageError(w, r, "predictor", "Price Predictor", err)
		return
	}
	data := pageData{
		Title: "Price Predictor",
		Data:  predictorView{Options: predictor.BuildOptions(raw), Input: in, Price: price},
	}
	status := http.StatusOK
	if s.predictor == nil {
		predErr = errModelUnavailable
	}
	if predErr != nil {
		status, data.Error = statusFor(predErr)
	}
	s.renderPage(w, status, "predictor", data)
}

func parseInputForm(r *http.Request) (predictor.Input, error) {
	if err := r.ParseForm(); err != nil {
		return predictor.Input{}, badRequest("invalid form")
	}
	in := predictor.Input{
		Car:          r.PostForm.Get("car"),
		Body:         r.PostForm.Get("body"),
		EngType:      r.PostForm.Get("engType"),
		Registration: r.PostForm.Get("registration"),
		Drive:        r.PostForm.Get("drive"),
	}
	var err error
	if in.Mileage, err = strconv.ParseFloat(r.PostForm.Get("mileage"), 64); err != nil {
		return in, badRequest("mileage must be a number")
	}
	if in.EngV, err = strconv.ParseFloat(r.PostForm.Get("engV"), 64); err != nil {
		return in, badRequest("engV must be a number")
	}
	if in.Year, err = strconv.Atoi(r.PostForm.Get("year")); err != nil {
		return in, badRequest("year must be an integer")
	}
	return in, nil
}

type explainabilityView struct {
	Global             *models.GlobalExplanation
	Local              *models.LocalExplanation
	LocalError         string
	Index              int
	MaxIndex           int
	Features           []string
	Feature            string
	Interaction        string
	DependenceError    string
	DependenceSelected bool
}

func (s *Server) handleExplainability(w http.ResponseWriter, r *http.Request) {
	e, err := s.explanation(r)
	if err != nil {
		s.pageError(w, r, "explainability", "Model Explainability", err)
		return
	}

	q := r.URL.Query()
	view := explainabilityView{
		Global:             s.explain.Global(e),
		MaxIndex:           e.Rows() - 1,
		Features:           services.DependenceFeatures,
		DependenceSelected: q.Has("feature") || q.Has("interaction"),
	}
	view.Feature, view.Interaction = dependenceParams(r)

	if v := q.Get("index"); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil {
			view.LocalError = "index must be an integer"
		} else {
			view.Index = idx
		}
	}
	if view.LocalError == "" {
		if l, err := s.explain.Local(e, view.Index); err != nil {
			_, view.LocalError = statusFor(err)
		} else {
			view.Local = l
		}
	}
	if _, err := s.explain.Dependence(e, view.Feature, view.Interaction); err != nil {
		_, msg := statusFor(err)
		view.DependenceError = capitalize(msg) + "."
	}

	s.renderPage(w, http.StatusOK, "explainability", pageData{
		Title: "Model Explainability (SHAP)",
		Data:  view,
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (v explainabilityView) DependenceURL() string {
	q := url.Values{"feature": {v.Feature}, "interaction": {v.Interaction}}
	return "/charts/shap/dependence?" + q.Encode()
}
