package models

import "database/sql"

// RawListing holds one row of the listings file exactly as loaded.
// A field with Valid == false was missing in the source.
type RawListing struct {
	Car          sql.NullString
	Model        sql.NullString
	Price        sql.NullFloat64
	Body         sql.NullString
	Mileage      sql.NullFloat64
	EngV         sql.NullFloat64
	EngType      sql.NullString
	Registration sql.NullString
	Year         sql.NullInt64
	Drive        sql.NullString
}

// HasMissing reports whether any field of the row is missing.
func (r *RawListing) HasMissing() bool {
	return !r.Car.Valid || !r.Model.Valid || !r.Price.Valid || !r.Body.Valid ||
		!r.Mileage.Valid || !r.EngV.Valid || !r.EngType.Valid ||
		!r.Registration.Valid || !r.Year.Valid || !r.Drive.Valid
}

// Listing is a fully populated vehicle listing. Mileage is in thousands of km,
// EngV in liters.
type Listing struct {
	ID           int64   `json:"-"`
	Car          string  `json:"car"`
	Model        string  `json:"model"`
	Price        float64 `json:"price"`
	Body         string  `json:"body"`
	Mileage      float64 `json:"mileage"`
	EngV         float64 `json:"engV"`
	EngType      string  `json:"engType"`
	Registration string  `json:"registration"`
	Year         int     `json:"year"`
	Drive        string  `json:"drive"`
}

// ListingColumns is the column order of the cleaned table.
var ListingColumns = []string{
	"car", "price", "body", "mileage", "engV", "engType", "registration", "year", "model", "drive",
}

// CleanResult is the output of one pipeline run. Both counters come from the
// same run as Listings and must not be recomputed elsewhere.
type CleanResult struct {
	Listings    []*Listing
	InitialRows int
	CleanedRows int
}

// RemovedRows is the number of rows dropped by the range filters.
func (r *CleanResult) RemovedRows() int {
	return r.InitialRows - r.CleanedRows
}

// RetainedPercent is the share of null-free rows that survived filtering.
func (r *CleanResult) RetainedPercent() float64 {
	if r.InitialRows == 0 {
		return 0
	}
	return float64(r.CleanedRows) / float64(r.InitialRows) * 100
}

// CategoryCount is one entry of a frequency table.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
