package services

import (
	"fmt"
	"math"
	"sort"

	"car-dashboard/models"
	"car-dashboard/utils"
)

// ScatterFeatures are the numeric columns plotted against price.
var ScatterFeatures = []string{"mileage", "engV", "year"}

// correlationColumns is the column order of the correlation matrix.
var correlationColumns = []string{"car", "price", "body", "mileage", "engV", "engType", "registration", "year", "drive"}

var registrationCodes = map[string]float64{
	"yes": 1, "YES": 1, "Yes": 1, "y": 1, "Y": 1,
	"no": 0, "No": 0, "NO": 0,
}

// RelationshipService computes feature-versus-price views.
type RelationshipService struct {
	logger *utils.Logger
}

func NewRelationshipService(logger *utils.Logger) *RelationshipService {
	return &RelationshipService{logger: logger}
}

// Scatter returns (feature, price) pairs in table order.
func (s *RelationshipService) Scatter(res *models.CleanResult, feature string) ([]models.Point, error) {
	get, err := NumericAccessor(feature)
	if err != nil {
		return nil, err
	}
	pts := make([]models.Point, len(res.Listings))
	for i, l := range res.Listings {
		pts[i] = models.Point{X: get(l), Y: l.Price}
	}
	return pts, nil
}

// BoxStats summarises price per category of feature. Whiskers reach the most
// extreme values within 1.5 IQR of the quartiles; anything beyond is an outlier.
func (s *RelationshipService) BoxStats(res *models.CleanResult, feature string) ([]models.BoxStats, error) {
	get, err := CategoricalAccessor(feature)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]float64)
	var order []string
	for _, l := range res.Listings {
		k := get(l)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], l.Price)
	}

	out := make([]models.BoxStats, 0, len(order))
	for _, k := range order {
		out = append(out, boxStats(k, groups[k]))
	}
	return out, nil
}

func boxStats(category string, prices []float64) models.BoxStats {
	sorted := sortedCopy(prices)
	b := models.BoxStats{
		Category: category,
		Count:    len(sorted),
		Q1:       quantile(0.25, sorted),
		Median:   quantile(0.5, sorted),
		Q3:       quantile(0.75, sorted),
	}
	iqr := b.Q3 - b.Q1
	loFence, hiFence := b.Q1-1.5*iqr, b.Q3+1.5*iqr

	b.LowerWhisker, b.UpperWhisker = b.Q1, b.Q3
	for _, p := range sorted {
		if p >= loFence {
			b.LowerWhisker = math.Min(p, b.Q1)
			break
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] <= hiFence {
			b.UpperWhisker = math.Max(sorted[i], b.Q3)
			break
		}
	}
	for _, p := range sorted {
		if p < loFence || p > hiFence {
			b.Outliers = append(b.Outliers, p)
		}
	}
	return b
}

// CorrelationMatrix encodes the categorical columns as integer codes and
// computes pairwise Pearson correlations. Model is left out. Registration
// values outside the known yes/no spellings are treated as missing.
func (s *RelationshipService) CorrelationMatrix(res *models.CleanResult) *models.CorrelationMatrix {
	series := make([][]float64, len(correlationColumns))
	for i, col := range correlationColumns {
		series[i] = s.encodeColumn(res.Listings, col)
	}

	n := len(correlationColumns)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r := pearson(series[i], series[j])
			if i == j && !math.IsNaN(r) {
				r = 1
			}
			values[i][j], values[j][i] = r, r
		}
	}

	cols := make([]string, n)
	copy(cols, correlationColumns)
	return &models.CorrelationMatrix{Columns: cols, Values: values}
}

func (s *RelationshipService) encodeColumn(listings []*models.Listing, col string) []float64 {
	out := make([]float64, len(listings))
	if get, err := NumericAccessor(col); err == nil {
		for i, l := range listings {
			out[i] = get(l)
		}
		return out
	}
	if col == "registration" {
		for i, l := range listings {
			if v, ok := registrationCodes[l.Registration]; ok {
				out[i] = v
			} else {
				out[i] = math.NaN()
			}
		}
		return out
	}

	get, err := CategoricalAccessor(col)
	if err != nil {
		panic(fmt.Sprintf("relationships: no accessor for %q", col))
	}
	codes := fitCodes(column(listings, get))
	for i, l := range listings {
		out[i] = float64(codes[get(l)])
	}
	return out
}

// fitCodes assigns each distinct value its index in sorted order.
func fitCodes(values []string) map[string]int {
	seen := make(map[string]struct{})
	var classes []string
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)
	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		codes[c] = i
	}
	return codes
}
