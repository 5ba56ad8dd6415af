package models

import (
	"encoding/json"
	"math"
)

// Overview is the first tab of the data explorer.
type Overview struct {
	Rows         int             `json:"rows"`
	Columns      int             `json:"columns"`
	UniqueBrands int             `json:"unique_brands"`
	UniqueModels int             `json:"unique_models"`
	Head         []*Listing      `json:"head"`
	Brands       []CategoryCount `json:"brands"`
}

// Histogram is an equal-width binning of one numeric column.
type Histogram struct {
	Feature string    `json:"feature"`
	Edges   []float64 `json:"edges"`
	Counts  []int     `json:"counts"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Mean    float64   `json:"mean"`
	Median  float64   `json:"median"`
	StdDev  float64   `json:"std_dev"`
}

// CategoryDistribution holds the frequency table of one categorical column.
type CategoryDistribution struct {
	Feature string          `json:"feature"`
	Counts  []CategoryCount `json:"counts"`
}

// PricedCar is a labelled price, used by the ranking views.
type PricedCar struct {
	Label string   `json:"label"`
	Price float64  `json:"price"`
	Car   *Listing `json:"car,omitempty"`
}

// CleaningSummary reports how many rows the pipeline kept.
type CleaningSummary struct {
	InitialRows    int     `json:"initial_rows"`
	FinalRows      int     `json:"final_rows"`
	RemovedRows    int     `json:"removed_rows"`
	KeptPercent    float64 `json:"kept_percent"`
	RemovedPercent float64 `json:"removed_percent"`
}

// InsightReport bundles all data explorer views computed over one pipeline run.
type InsightReport struct {
	Overview      *Overview              `json:"overview"`
	Distributions []*Histogram           `json:"distributions"`
	Categories    []CategoryDistribution `json:"categories"`
	TopExpensive  []PricedCar            `json:"top_expensive"`
	TopBrands     []PricedCar            `json:"top_brands"`
	Cleaning      CleaningSummary        `json:"cleaning"`
}

// Point is one (x, y) pair of a scatter plot.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoxStats is the five-number summary of price within one category.
type BoxStats struct {
	Category     string    `json:"category"`
	Count        int       `json:"count"`
	LowerWhisker float64   `json:"lower_whisker"`
	Q1           float64   `json:"q1"`
	Median       float64   `json:"median"`
	Q3           float64   `json:"q3"`
	UpperWhisker float64   `json:"upper_whisker"`
	Outliers     []float64 `json:"outliers"`
}

// CorrelationMatrix is a symmetric Pearson matrix; NaN marks undefined cells.
type CorrelationMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// MarshalJSON encodes undefined (NaN) cells as null.
func (m CorrelationMatrix) MarshalJSON() ([]byte, error) {
	values := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		values[i] = make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) {
				values[i][j] = &row[j]
			}
		}
	}
	return json.Marshal(struct {
		Columns []string     `json:"columns"`
		Values  [][]*float64 `json:"values"`
	}{m.Columns, values})
}

// FeatureImportance is the mean absolute SHAP value of one feature.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	MeanAbs float64 `json:"mean_abs"`
}

// SummaryPoint is one (feature value, SHAP value) dot of the summary plot.
type SummaryPoint struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Shap    float64 `json:"shap"`
}

// GlobalExplanation ranks features by their overall impact on predictions.
type GlobalExplanation struct {
	Rows       int                 `json:"rows"`
	Skipped    int                 `json:"skipped"`
	BaseValue  float64             `json:"base_value"`
	Importance []FeatureImportance `json:"importance"`
	Points     []SummaryPoint      `json:"points"`
}

// Contribution is one feature's share of a single prediction.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Shap    float64 `json:"shap"`
}

// LocalExplanation breaks one prediction down into feature contributions,
// ordered by absolute size.
type LocalExplanation struct {
	Index         int            `json:"index"`
	BaseValue     float64        `json:"base_value"`
	Prediction    float64        `json:"prediction"`
	Contributions []Contribution `json:"contributions"`
}

// DependencePoint relates a feature's value to its SHAP value, coloured by a
// second feature.
type DependencePoint struct {
	Value       float64 `json:"value"`
	Shap        float64 `json:"shap"`
	Interaction float64 `json:"interaction"`
}

// Dependence is the data behind one dependence plot.
type Dependence struct {
	Feature     string            `json:"feature"`
	Interaction string            `json:"interaction"`
	Points      []DependencePoint `json:"points"`
}
