package services

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"car-dashboard/models"
	"car-dashboard/predictor"
	"car-dashboard/utils"
)

// DependenceFeatures are the features offered in the dependence plot.
var DependenceFeatures = []string{"mileage", "engV", "year"}

// ErrNoExplainableRows is returned when no cleaned row could be encoded.
var ErrNoExplainableRows = errors.New("no rows could be encoded for explanation")

// Explainer attributes model outputs to the columns of X. It returns a
// matrix shaped like X and the expected model output.
type Explainer interface {
	Explain(X *mat.Dense) (*mat.Dense, float64, error)
}

// RowEncoder turns a cleaned listing into a model input row.
type RowEncoder interface {
	EncodeListing(l *models.Listing) (predictor.Features, error)
}

// Explanation holds the attributions for every explainable row of one
// pipeline run.
type Explanation struct {
	FeatureNames []string
	X            *mat.Dense
	Values       *mat.Dense
	BaseValue    float64
	Skipped      int
}

// Rows is the number of explained rows.
func (e *Explanation) Rows() int {
	r, _ := e.X.Dims()
	return r
}

// ExplainService builds SHAP views over the cleaned table.
type ExplainService struct {
	encoder   RowEncoder
	explainer Explainer
	logger    *utils.Logger
}

func NewExplainService(encoder RowEncoder, explainer Explainer, logger *utils.Logger) *ExplainService {
	return &ExplainService{encoder: encoder, explainer: explainer, logger: logger}
}

// FeatureMatrix encodes the cleaned listings in model column order. Model
// and price are left out; registration is 1 for the yes spellings. Rows with
// labels the encoders have not seen are skipped and counted.
func (s *ExplainService) FeatureMatrix(res *models.CleanResult) (*mat.Dense, int, error) {
	data := make([]float64, 0, len(res.Listings)*predictor.NumFeatures)
	skipped := 0
	for _, l := range res.Listings {
		f, err := s.encoder.EncodeListing(l)
		if err != nil {
			if errors.Is(err, predictor.ErrUnseenLabel) {
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("explain: encode row: %w", err)
		}
		data = append(data, f[:]...)
	}
	rows := len(data) / predictor.NumFeatures
	if rows == 0 {
		return nil, skipped, ErrNoExplainableRows
	}
	return mat.NewDense(rows, predictor.NumFeatures, data), skipped, nil
}

// Explain computes attributions for every explainable row of res.
func (s *ExplainService) Explain(res *models.CleanResult) (*Explanation, error) {
	X, skipped, err := s.FeatureMatrix(res)
	if err != nil {
		return nil, err
	}
	values, base, err := s.explainer.Explain(X)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	if s.logger != nil && skipped > 0 {
		s.logger.Warn("[explain] Skipped %d rows with unseen labels", skipped)
	}
	names := make([]string, predictor.NumFeatures)
	copy(names, predictor.FeatureNames[:])
	return &Explanation{
		FeatureNames: names,
		X:            X,
		Values:       values,
		BaseValue:    base,
		Skipped:      skipped,
	}, nil
}

// Global ranks features by mean absolute SHAP value, largest first, and
// returns one summary point per row and feature.
func (s *ExplainService) Global(e *Explanation) *models.GlobalExplanation {
	rows := e.Rows()
	g := &models.GlobalExplanation{Rows: rows, Skipped: e.Skipped, BaseValue: e.BaseValue}

	col := make([]float64, rows)
	for j, name := range e.FeatureNames {
		mat.Col(col, j, e.Values)
		var sum float64
		for _, v := range col {
			sum += math.Abs(v)
		}
		g.Importance = append(g.Importance, models.FeatureImportance{Feature: name, MeanAbs: sum / float64(rows)})
		for i := 0; i < rows; i++ {
			g.Points = append(g.Points, models.SummaryPoint{Feature: name, Value: e.X.At(i, j), Shap: col[i]})
		}
	}
	sort.SliceStable(g.Importance, func(a, b int) bool {
		return g.Importance[a].MeanAbs > g.Importance[b].MeanAbs
	})
	return g
}

// Local explains the prediction for row idx of the explained table.
func (s *ExplainService) Local(e *Explanation, idx int) (*models.LocalExplanation, error) {
	if idx < 0 || idx >= e.Rows() {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, e.Rows())
	}
	shap := mat.Row(nil, idx, e.Values)
	x := mat.Row(nil, idx, e.X)

	l := &models.LocalExplanation{
		Index:      idx,
		BaseValue:  e.BaseValue,
		Prediction: e.BaseValue + floats.Sum(shap),
	}
	for j, name := range e.FeatureNames {
		l.Contributions = append(l.Contributions, models.Contribution{Feature: name, Value: x[j], Shap: shap[j]})
	}
	sort.SliceStable(l.Contributions, func(a, b int) bool {
		return math.Abs(l.Contributions[a].Shap) > math.Abs(l.Contributions[b].Shap)
	})
	return l, nil
}

// Dependence pairs each row's value of feature with its SHAP value and the
// value of interaction.
func (s *ExplainService) Dependence(e *Explanation, feature, interaction string) (*models.Dependence, error) {
	if !contains(DependenceFeatures, feature) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	if !contains(DependenceFeatures, interaction) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, interaction)
	}
	if feature == interaction {
		return nil, ErrSameFeature
	}

	fj, ij := indexOf(e.FeatureNames, feature), indexOf(e.FeatureNames, interaction)
	d := &models.Dependence{Feature: feature, Interaction: interaction}
	for i := 0; i < e.Rows(); i++ {
		d.Points = append(d.Points, models.DependencePoint{
			Value:       e.X.At(i, fj),
			Shap:        e.Values.At(i, fj),
			Interaction: e.X.At(i, ij),
		})
	}
	return d, nil
}

func contains(xs []string, v string) bool {
	return indexOf(xs, v) >= 0
}

func indexOf(xs []string, v string) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
