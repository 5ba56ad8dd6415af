package services

import (
	"errors"
	"fmt"

	"car-dashboard/models"
)

var (
	// ErrUnknownFeature is returned for a column name the view does not support.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrSameFeature is returned when a dependence plot pairs a feature with itself.
	ErrSameFeature = errors.New("interaction feature must be different from the selected feature")
	// ErrIndexOutOfRange is returned for a row selection outside the explained table.
	ErrIndexOutOfRange = errors.New("row index out of range")
)

// NumericAccessor returns a getter for a numeric column.
func NumericAccessor(feature string) (func(*models.Listing) float64, error) {
	switch feature {
	case "price":
		return func(l *models.Listing) float64 { return l.Price }, nil
	case "mileage":
		return func(l *models.Listing) float64 { return l.Mileage }, nil
	case "engV":
		return func(l *models.Listing) float64 { return l.EngV }, nil
	case "year":
		return func(l *models.Listing) float64 { return float64(l.Year) }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
}

// CategoricalAccessor returns a getter for a text column.
func CategoricalAccessor(feature string) (func(*models.Listing) string, error) {
	switch feature {
	case "car":
		return func(l *models.Listing) string { return l.Car }, nil
	case "model":
		return func(l *models.Listing) string { return l.Model }, nil
	case "body":
		return func(l *models.Listing) string { return l.Body }, nil
	case "engType":
		return func(l *models.Listing) string { return l.EngType }, nil
	case "drive":
		return func(l *models.Listing) string { return l.Drive }, nil
	case "registration":
		return func(l *models.Listing) string { return l.Registration }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
}
