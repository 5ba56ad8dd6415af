package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"car-dashboard/models"
	"car-dashboard/utils"
)

// NumFeatures is the width of a model input row.
const NumFeatures = 8

// FeatureNames is the column order the model was trained on.
var FeatureNames = [NumFeatures]string{"car", "body", "mileage", "engV", "engType", "registration", "year", "drive"}

// EncodedColumns are the categorical features that need an encoder.
var EncodedColumns = []string{"car", "body", "engType", "drive"}

// Features is one model input row in FeatureNames order.
type Features [NumFeatures]float64

// Model predicts a price from one feature row.
type Model interface {
	Predict(f Features) float64
}

// Input is a prediction request from the form or the API.
type Input struct {
	Car          string  `json:"car" form:"car" validate:"required"`
	Body         string  `json:"body" form:"body" validate:"required"`
	Mileage      float64 `json:"mileage" form:"mileage" validate:"gte=0,lte=600"`
	EngV         float64 `json:"engV" form:"engV" validate:"gte=0.5,lte=7.5"`
	EngType      string  `json:"engType" form:"engType" validate:"required"`
	Registration string  `json:"registration" form:"registration" validate:"oneof=yes no"`
	Year         int     `json:"year" form:"year" validate:"gte=1975,lte=2023"`
	Drive        string  `json:"drive" form:"drive" validate:"required"`
}

// DefaultInput holds the form's initial values.
func DefaultInput() Input {
	return Input{Mileage: 100, EngV: 2.0, Registration: "yes", Year: 2010}
}

// Artifact is the model and its encoders as loaded from disk.
type Artifact struct {
	Model    *TreeEnsemble
	Encoders map[string]*LabelEncoder
}

type artifactFile struct {
	Model    json.RawMessage     `json:"model"`
	Encoders map[string][]string `json:"encoders"`
}

// LoadArtifact reads a model artifact JSON file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("predictor: read artifact: %w", err)
	}
	return ParseArtifact(data)
}

// ParseArtifact decodes {"model": <LightGBM dump>, "encoders": {...}}.
func ParseArtifact(data []byte) (*Artifact, error) {
	var af artifactFile
	if err := json.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("predictor: decode artifact: %w", err)
	}
	if len(af.Model) == 0 {
		return nil, fmt.Errorf("predictor: artifact has no model")
	}
	ens, err := ParseLightGBMDump(af.Model)
	if err != nil {
		return nil, fmt.Errorf("predictor: %w", err)
	}
	if ens.NumFeatures != NumFeatures {
		return nil, fmt.Errorf("predictor: model expects %d features, want %d", ens.NumFeatures, NumFeatures)
	}

	a := &Artifact{Model: ens, Encoders: make(map[string]*LabelEncoder, len(EncodedColumns))}
	for _, col := range EncodedColumns {
		classes, ok := af.Encoders[col]
		if !ok {
			return nil, fmt.Errorf("predictor: artifact has no %s encoder", col)
		}
		enc, err := NewLabelEncoder(col, classes)
		if err != nil {
			return nil, fmt.Errorf("predictor: %w", err)
		}
		a.Encoders[col] = enc
	}
	return a, nil
}

// Encoder returns the encoder for col. It panics for columns that are not
// categorical model inputs.
func (a *Artifact) Encoder(col string) Encoder {
	enc, ok := a.Encoders[col]
	if !ok {
		panic(fmt.Sprintf("predictor: no encoder for %q", col))
	}
	return enc
}

// IsRegistered maps the yes spellings to 1 and anything else to 0.
func IsRegistered(v string) bool {
	switch v {
	case "yes", "YES", "Yes", "y", "Y":
		return true
	}
	return false
}

// Encode builds a model row from labelled values. Unseen categorical labels
// return an error wrapping ErrUnseenLabel.
func (a *Artifact) Encode(car, body string, mileage, engV float64, engType, registration string, year int, drive string) (Features, error) {
	var f Features
	codes := [...]struct {
		col   string
		label string
		idx   int
	}{
		{"car", car, 0},
		{"body", body, 1},
		{"engType", engType, 4},
		{"drive", drive, 7},
	}
	for _, c := range codes {
		code, err := a.Encoder(c.col).Encode(c.label)
		if err != nil {
			return f, err
		}
		f[c.idx] = float64(code)
	}
	f[2] = mileage
	f[3] = engV
	if IsRegistered(registration) {
		f[5] = 1
	}
	f[6] = float64(year)
	return f, nil
}

// EncodeListing builds a model row from a cleaned listing. Model and price
// are not inputs.
func (a *Artifact) EncodeListing(l *models.Listing) (Features, error) {
	return a.Encode(l.Car, l.Body, l.Mileage, l.EngV, l.EngType, l.Registration, l.Year, l.Drive)
}

// Predictor validates form input and runs the model.
type Predictor struct {
	artifact *Artifact
	model    Model
	validate *validator.Validate
	logger   *utils.Logger
}

// New builds a Predictor over a loaded artifact.
func New(a *Artifact, logger *utils.Logger) *Predictor {
	return &Predictor{
		artifact: a,
		model:    a.Model,
		validate: validator.New(),
		logger:   logger,
	}
}

// Artifact returns the loaded model and encoders.
func (p *Predictor) Artifact() *Artifact { return p.artifact }

// Predict returns the estimated price for in.
func (p *Predictor) Predict(ctx context.Context, in Input) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := p.validate.Struct(in); err != nil {
		return 0, fmt.Errorf("predictor: invalid input: %w", err)
	}
	f, err := p.artifact.Encode(in.Car, in.Body, in.Mileage, in.EngV, in.EngType, in.Registration, in.Year, in.Drive)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("[predictor] %v", err)
		}
		return 0, err
	}
	price := p.model.Predict(f)
	if p.logger != nil {
		p.logger.Debug("[predictor] %s %s %d → %.2f", in.Car, in.Body, in.Year, price)
	}
	return price, nil
}

// Options lists the selectable form values.
type Options struct {
	Car          []string `json:"car"`
	Body         []string `json:"body"`
	EngType      []string `json:"engType"`
	Registration []string `json:"registration"`
	Drive        []string `json:"drive"`
}

// BuildOptions collects the distinct non-missing values of the raw table in
// order of first appearance.
func BuildOptions(raw []*models.RawListing) *Options {
	return &Options{
		Car:          distinct(raw, func(r *models.RawListing) (string, bool) { return r.Car.String, r.Car.Valid }),
		Body:         distinct(raw, func(r *models.RawListing) (string, bool) { return r.Body.String, r.Body.Valid }),
		EngType:      distinct(raw, func(r *models.RawListing) (string, bool) { return r.EngType.String, r.EngType.Valid }),
		Registration: []string{"yes", "no"},
		Drive:        distinct(raw, func(r *models.RawListing) (string, bool) { return r.Drive.String, r.Drive.Valid }),
	}
}

func distinct(raw []*models.RawListing, get func(*models.RawListing) (string, bool)) []string {
	seen := utils.NewKeySet()
	out := []string{}
	for _, r := range raw {
		v, ok := get(r)
		if ok && seen.Add(v) {
			out = append(out, v)
		}
	}
	return out
}
