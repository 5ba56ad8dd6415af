package storage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"car-dashboard/models"
)

// ErrMalformedInput marks a listings file whose structure cannot be read.
// It is a precondition failure and is not recovered by callers.
var ErrMalformedInput = errors.New("malformed listings file")

// naTokens are the field values treated as missing.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

var requiredColumns = []string{
	"car", "model", "price", "body", "mileage", "engV", "engType", "registration", "year", "drive",
}

// CSVReader loads the semicolon-delimited, ISO-8859-1 encoded listings file.
type CSVReader struct {
	path string
}

// NewCSVReader returns a reader for the file at path. The file is not opened
// until Load is called.
func NewCSVReader(path string) *CSVReader {
	return &CSVReader{path: path}
}

// Path returns the file the reader loads.
func (r *CSVReader) Path() string { return r.path }

// Load reads the whole file on every call.
func (r *CSVReader) Load(ctx context.Context) ([]*models.RawListing, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", r.path, err)
	}
	defer f.Close()

	return ReadListings(ctx, f)
}

// ReadListings decodes listings from Latin-1 encoded, semicolon-separated input.
// Columns are matched by header name; the unnamed index column is ignored.
func ReadListings(ctx context.Context, src io.Reader) ([]*models.RawListing, error) {
	cr := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(src))
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMalformedInput)
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var out []*models.RawListing
	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedInput, line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrMalformedInput, line, len(rec), len(header))
		}
		row, err := parseRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedInput, line, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedInput, name)
		}
	}
	return idx, nil
}

func parseRow(rec []string, idx map[string]int) (*models.RawListing, error) {
	field := func(name string) string { return rec[idx[name]] }

	row := &models.RawListing{
		Car:          nullString(field("car")),
		Model:        nullString(field("model")),
		Body:         nullString(field("body")),
		EngType:      nullString(field("engType")),
		Registration: nullString(field("registration")),
		Drive:        nullString(field("drive")),
	}

	var err error
	if row.Price, err = nullFloat("price", field("price")); err != nil {
		return nil, err
	}
	if row.Mileage, err = nullFloat("mileage", field("mileage")); err != nil {
		return nil, err
	}
	if row.EngV, err = nullFloat("engV", field("engV")); err != nil {
		return nil, err
	}
	year, err := nullFloat("year", field("year"))
	if err != nil {
		return nil, err
	}
	if year.Valid {
		if year.Float64 != float64(int64(year.Float64)) {
			return nil, fmt.Errorf("year %v is not an integer", year.Float64)
		}
		row.Year = sql.NullInt64{Int64: int64(year.Float64), Valid: true}
	}
	return row, nil
}

func isNA(s string) bool {
	_, ok := naTokens[s]
	return ok
}

func nullString(s string) sql.NullString {
	if isNA(s) {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(name, s string) (sql.NullFloat64, error) {
	s = strings.TrimSpace(s)
	if isNA(s) {
		return sql.NullFloat64{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, fmt.Errorf("column %s: %q is not numeric", name, s)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}, fmt.Errorf("column %s: %q is not a finite number", name, s)
	}
	return sql.NullFloat64{Float64: v, Valid: true}, nil
}
