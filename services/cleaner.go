package services

import (
	"car-dashboard/models"
	"car-dashboard/utils"
)

// OtherCategory replaces every brand or model seen fewer than CategoryCutoff times.
const OtherCategory = "Other"

// CategoryCutoff is the minimum frequency for a brand or model to keep its label.
const CategoryCutoff = 10

// Acceptance ranges for retained rows.
const (
	MinPrice        = 1000.0
	MaxPrice        = 100000.0
	MaxMileage      = 600.0
	MaxEngineVolume = 7.5
	MinYear         = 1975
)

// Cleaner turns raw listing rows into the analysis-ready table.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// LoadAndClean runs the preparation pipeline on raw. Frequencies for the
// brand/model buckets are taken after the null drop and before the range
// filters, so rows removed by the filters still count toward the cutoff.
// raw is not modified.
func (c *Cleaner) LoadAndClean(raw []*models.RawListing) *models.CleanResult {
	listings := DropMissing(raw)
	initialRows := len(listings)

	carMap := ShortenCategories(ValueCounts(column(listings, func(l *models.Listing) string { return l.Car })), CategoryCutoff)
	modelMap := ShortenCategories(ValueCounts(column(listings, func(l *models.Listing) string { return l.Model })), CategoryCutoff)

	kept := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		l.Car = carMap[l.Car]
		l.Model = modelMap[l.Model]
		if !InAcceptedRange(l) {
			continue
		}
		kept = append(kept, l)
	}

	res := &models.CleanResult{
		Listings:    kept,
		InitialRows: initialRows,
		CleanedRows: len(kept),
	}
	if c.logger != nil {
		c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d, %d had missing values)",
			res.InitialRows, res.CleanedRows, res.RemovedRows(), len(raw)-initialRows)
	}
	return res
}

// DropMissing returns a fresh Listing for every raw row without missing fields.
func DropMissing(raw []*models.RawListing) []*models.Listing {
	out := make([]*models.Listing, 0, len(raw))
	for _, r := range raw {
		if r == nil || r.HasMissing() {
			continue
		}
		out = append(out, &models.Listing{
			Car:          r.Car.String,
			Model:        r.Model.String,
			Price:        r.Price.Float64,
			Body:         r.Body.String,
			Mileage:      r.Mileage.Float64,
			EngV:         r.EngV.Float64,
			EngType:      r.EngType.String,
			Registration: r.Registration.String,
			Year:         int(r.Year.Int64),
			Drive:        r.Drive.String,
		})
	}
	return out
}

// InAcceptedRange reports whether l passes all four range filters.
func InAcceptedRange(l *models.Listing) bool {
	return l.Price >= MinPrice && l.Price <= MaxPrice &&
		l.Mileage <= MaxMileage &&
		l.EngV <= MaxEngineVolume &&
		l.Year >= MinYear
}

// ValueCounts builds a frequency table sorted by descending count.
// Equal counts keep first-appearance order.
func ValueCounts(values []string) []models.CategoryCount {
	index := make(map[string]int)
	counts := make([]models.CategoryCount, 0)
	for _, v := range values {
		if i, ok := index[v]; ok {
			counts[i].Count++
			continue
		}
		index[v] = len(counts)
		counts = append(counts, models.CategoryCount{Value: v, Count: 1})
	}
	sortCountsDesc(counts)
	return counts
}

// ShortenCategories maps each value with at least cutoff occurrences to itself
// and every other value to OtherCategory.
func ShortenCategories(counts []models.CategoryCount, cutoff int) map[string]string {
	mapping := make(map[string]string, len(counts))
	for _, c := range counts {
		if c.Count >= cutoff {
			mapping[c.Value] = c.Value
		} else {
			mapping[c.Value] = OtherCategory
		}
	}
	return mapping
}

func column(listings []*models.Listing, get func(*models.Listing) string) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = get(l)
	}
	return out
}
