package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"car-dashboard/models"
	"car-dashboard/utils"
)

// HistogramBins is the bin count of every numeric distribution.
const HistogramBins = 35

// NumericFeatures are the numeric columns shown in the distribution views.
var NumericFeatures = []string{"price", "mileage", "engV", "year"}

// CategoricalFeatures are the low-cardinality text columns.
var CategoricalFeatures = []string{"body", "engType", "drive", "registration"}

const (
	headRows = 5
	topN     = 10
)

// InsightService computes the data explorer views over one pipeline run.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate builds every explorer view. nullDropped is the null-free table
// before bucketing and filtering, used for the per-car price ranking.
func (s *InsightService) Generate(res *models.CleanResult, nullDropped []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		Overview:     s.Overview(res),
		Categories:   s.CategoricalDistributions(res),
		TopExpensive: s.TopExpensive(nullDropped, topN),
		TopBrands:    s.TopBrandsByMeanPrice(res, topN),
		Cleaning:     s.CleaningSummary(res),
	}
	for _, f := range NumericFeatures {
		h, _ := s.Histogram(res, f, HistogramBins)
		report.Distributions = append(report.Distributions, h)
	}
	return report
}

// Overview summarises the cleaned table.
func (s *InsightService) Overview(res *models.CleanResult) *models.Overview {
	brands := ValueCounts(column(res.Listings, func(l *models.Listing) string { return l.Car }))
	modelCounts := ValueCounts(column(res.Listings, func(l *models.Listing) string { return l.Model }))

	head := res.Listings
	if len(head) > headRows {
		head = head[:headRows]
	}
	return &models.Overview{
		Rows:         res.CleanedRows,
		Columns:      len(models.ListingColumns),
		UniqueBrands: len(brands),
		UniqueModels: len(modelCounts),
		Head:         head,
		Brands:       brands,
	}
}

// Histogram bins one numeric feature into equal-width bins spanning [min, max].
// The last bin is closed on the right.
func (s *InsightService) Histogram(res *models.CleanResult, feature string, bins int) (*models.Histogram, error) {
	get, err := NumericAccessor(feature)
	if err != nil {
		return nil, err
	}
	if bins < 1 {
		bins = 1
	}
	xs := make([]float64, len(res.Listings))
	for i, l := range res.Listings {
		xs[i] = get(l)
	}

	h := &models.Histogram{Feature: feature, Counts: make([]int, bins), Edges: make([]float64, bins+1)}
	describe(h, xs)
	if len(xs) == 0 {
		return h, nil
	}

	lo, hi := h.Min, h.Max
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)
	for i := range h.Edges {
		h.Edges[i] = lo + width*float64(i)
	}
	h.Edges[bins] = hi
	for _, x := range xs {
		b := int((x - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		h.Counts[b]++
	}
	return h, nil
}

// CategoricalDistributions returns value counts for every categorical feature.
func (s *InsightService) CategoricalDistributions(res *models.CleanResult) []models.CategoryDistribution {
	out := make([]models.CategoryDistribution, 0, len(CategoricalFeatures))
	for _, f := range CategoricalFeatures {
		get, _ := CategoricalAccessor(f)
		out = append(out, models.CategoryDistribution{
			Feature: f,
			Counts:  ValueCounts(column(res.Listings, get)),
		})
	}
	return out
}

// TopExpensive ranks listings by price, keeping the first (most expensive)
// listing of each brand/model pair.
func (s *InsightService) TopExpensive(listings []*models.Listing, n int) []models.PricedCar {
	sorted := make([]*models.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price > sorted[j].Price })

	seen := make(map[[2]string]struct{})
	out := make([]models.PricedCar, 0, n)
	for _, l := range sorted {
		if len(out) == n {
			break
		}
		key := [2]string{l.Car, l.Model}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.PricedCar{Label: l.Car + " " + l.Model, Price: l.Price, Car: l})
	}
	return out
}

// TopBrandsByMeanPrice ranks bucketed brands by their mean price.
func (s *InsightService) TopBrandsByMeanPrice(res *models.CleanResult, n int) []models.PricedCar {
	type acc struct {
		sum   float64
		count int
	}
	byBrand := make(map[string]*acc)
	var order []string
	for _, l := range res.Listings {
		a, ok := byBrand[l.Car]
		if !ok {
			a = &acc{}
			byBrand[l.Car] = a
			order = append(order, l.Car)
		}
		a.sum += l.Price
		a.count++
	}

	out := make([]models.PricedCar, 0, len(order))
	for _, brand := range order {
		a := byBrand[brand]
		out = append(out, models.PricedCar{Label: brand, Price: a.sum / float64(a.count)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// CleaningSummary reports the counters of the run.
func (s *InsightService) CleaningSummary(res *models.CleanResult) models.CleaningSummary {
	kept := res.RetainedPercent()
	removed := 0.0
	if res.InitialRows > 0 {
		removed = 100 - kept
	}
	return models.CleaningSummary{
		InitialRows:    res.InitialRows,
		FinalRows:      res.CleanedRows,
		RemovedRows:    res.RemovedRows(),
		KeptPercent:    round2(kept),
		RemovedPercent: round2(removed),
	}
}

// Print renders the report for a terminal.
func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🚗 USED CAR LISTINGS OVERVIEW\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Cleaning Summary\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Initial rows : \033[1m%d\033[0m\n", r.Cleaning.InitialRows)
	fmt.Fprintf(w, "  Final rows   : \033[1m%d\033[0m\n", r.Cleaning.FinalRows)
	fmt.Fprintf(w, "  Removed rows : \033[1m%d\033[0m (%.1f%% kept)\n", r.Cleaning.RemovedRows, r.Cleaning.KeptPercent)
	fmt.Fprintln(w)

	if o := r.Overview; o != nil {
		fmt.Fprintf(w, "\033[1;33m  Dataset\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  Columns       : %d\n", o.Columns)
		fmt.Fprintf(w, "  Unique brands : %d\n", o.UniqueBrands)
		fmt.Fprintf(w, "  Unique models : %d\n", o.UniqueModels)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Numeric Distributions\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, h := range r.Distributions {
		fmt.Fprintf(w, "  %-8s min %10.1f  median %10.1f  max %10.1f\n", h.Feature, h.Min, h.Median, h.Max)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Top 10 Most Expensive Cars\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopExpensive) == 0 {
		fmt.Fprintf(w, "  No listings\n")
	}
	for i, c := range r.TopExpensive {
		fmt.Fprintf(w, "  \033[1m%2d.\033[0m %-38s \033[1;32m$%.2f\033[0m\n", i+1, truncate(c.Label, 36), c.Price)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Brands by Listings\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.Overview != nil {
		maxCount := 1
		if len(r.Overview.Brands) > 0 {
			maxCount = r.Overview.Brands[0].Count
		}
		for i, b := range r.Overview.Brands {
			if i == topN {
				break
			}
			bar := strings.Repeat("█", int(math.Ceil(float64(b.Count)/float64(maxCount)*30)))
			fmt.Fprintf(w, "  %-20s %s (%d)\n", truncate(b.Value, 18), bar, b.Count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
