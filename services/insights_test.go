package services

import (
	"bytes"
	"strings"
	"testing"

	"car-dashboard/models"
)

func sampleListings() []*models.Listing {
	return []*models.Listing{
		{Car: "Bentley", Model: "Mulsanne", Price: 99000, Body: "sedan", Mileage: 10, EngV: 6.8, EngType: "Petrol", Registration: "yes", Year: 2014, Drive: "rear"},
		{Car: "Bentley", Model: "Mulsanne", Price: 95000, Body: "sedan", Mileage: 20, EngV: 6.8, EngType: "Petrol", Registration: "yes", Year: 2013, Drive: "rear"},
		{Car: "Toyota", Model: "Camry", Price: 20000, Body: "sedan", Mileage: 80, EngV: 2.5, EngType: "Gas", Registration: "yes", Year: 2012, Drive: "front"},
		{Car: "Toyota", Model: "Land Cruiser", Price: 60000, Body: "crossover", Mileage: 40, EngV: 4.5, EngType: "Diesel", Registration: "yes", Year: 2015, Drive: "full"},
		{Car: "Other", Model: "Other", Price: 3000, Body: "hatch", Mileage: 300, EngV: 1.3, EngType: "Petrol", Registration: "no", Year: 1995, Drive: "front"},
		{Car: "Toyota", Model: "Camry", Price: 18000, Body: "sedan", Mileage: 100, EngV: 2.5, EngType: "Gas", Registration: "yes", Year: 2011, Drive: "front"},
	}
}

func sampleResult() *models.CleanResult {
	l := sampleListings()
	return &models.CleanResult{Listings: l, InitialRows: 8, CleanedRows: len(l)}
}

func TestInsightOverview(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	o := svc.Overview(sampleResult())
	if o.Rows != 6 {
		t.Errorf("Rows: got %d, want 6", o.Rows)
	}
	if o.Columns != 10 {
		t.Errorf("Columns: got %d, want 10", o.Columns)
	}
	if o.UniqueBrands != 3 {
		t.Errorf("UniqueBrands: got %d, want 3", o.UniqueBrands)
	}
	if o.UniqueModels != 4 {
		t.Errorf("UniqueModels: got %d, want 4", o.UniqueModels)
	}
	if len(o.Head) != 5 {
		t.Errorf("Head: got %d rows, want 5", len(o.Head))
	}
	if o.Brands[0].Value != "Toyota" || o.Brands[0].Count != 3 {
		t.Errorf("Brands[0]: got %+v, want Toyota×3", o.Brands[0])
	}
}

func TestInsightHistogram(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	h, err := svc.Histogram(sampleResult(), "year", 4)
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}
	total := 0
	for _, c := range h.Counts {
		total += c
	}
	if total != 6 {
		t.Errorf("histogram total: got %d, want 6", total)
	}
	if h.Min != 1995 || h.Max != 2015 {
		t.Errorf("range: got [%v, %v], want [1995, 2015]", h.Min, h.Max)
	}
	if h.Counts[3] != 5 {
		t.Errorf("last bin must include max: got %v", h.Counts)
	}
	if len(h.Edges) != 5 || h.Edges[4] != 2015 {
		t.Errorf("edges: got %v", h.Edges)
	}

	if _, err := svc.Histogram(sampleResult(), "colour", 4); err == nil {
		t.Error("expected error for unknown feature")
	}
}

func TestInsightHistogramEmpty(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	h, err := svc.Histogram(&models.CleanResult{}, "price", HistogramBins)
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}
	if len(h.Counts) != HistogramBins {
		t.Errorf("bins: got %d, want %d", len(h.Counts), HistogramBins)
	}
}

func TestInsightTopExpensiveDedupes(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	top := svc.TopExpensive(sampleListings(), 10)
	if len(top) != 4 {
		t.Fatalf("len: got %d, want 4 distinct brand/model pairs", len(top))
	}
	if top[0].Label != "Bentley Mulsanne" || top[0].Price != 99000 {
		t.Errorf("top[0]: got %+v", top[0])
	}
	if top[2].Label != "Toyota Camry" || top[2].Price != 20000 {
		t.Errorf("Camry should keep its most expensive listing: got %+v", top[2])
	}

	if got := svc.TopExpensive(sampleListings(), 2); len(got) != 2 {
		t.Errorf("limit: got %d, want 2", len(got))
	}
}

func TestInsightTopBrandsByMeanPrice(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	top := svc.TopBrandsByMeanPrice(sampleResult(), 10)
	want := []struct {
		label string
		price float64
	}{
		{"Bentley", 97000},
		{"Toyota", 32666.67},
		{"Other", 3000},
	}
	if len(top) != len(want) {
		t.Fatalf("len: got %d, want %d", len(top), len(want))
	}
	for i, w := range want {
		if top[i].Label != w.label || round2(top[i].Price) != w.price {
			t.Errorf("top[%d]: got %s %.2f; want %s %.2f", i, top[i].Label, top[i].Price, w.label, w.price)
		}
	}
}

func TestInsightCategoricalDistributions(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	dists := svc.CategoricalDistributions(sampleResult())
	if len(dists) != 4 {
		t.Fatalf("got %d distributions, want 4", len(dists))
	}
	if dists[0].Feature != "body" || dists[0].Counts[0].Value != "sedan" || dists[0].Counts[0].Count != 4 {
		t.Errorf("body: got %+v", dists[0])
	}
}

func TestInsightCleaningSummary(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	s := svc.CleaningSummary(sampleResult())
	if s.InitialRows != 8 || s.FinalRows != 6 || s.RemovedRows != 2 {
		t.Errorf("counts: got %+v", s)
	}
	if s.KeptPercent != 75 || s.RemovedPercent != 25 {
		t.Errorf("percent: got %.2f / %.2f, want 75 / 25", s.KeptPercent, s.RemovedPercent)
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	report := svc.Generate(sampleResult(), sampleListings())

	var buf bytes.Buffer
	svc.Print(&buf, report)
	out := buf.String()
	for _, want := range []string{"Initial rows", "Bentley Mulsanne", "Toyota"} {
		if !strings.Contains(out, want) {
			t.Errorf("printed report missing %q", want)
		}
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(&models.CleanResult{}, nil)
	if r.Overview.Rows != 0 {
		t.Errorf("expected 0 rows for empty input")
	}
	if len(r.TopExpensive) != 0 || len(r.TopBrands) != 0 {
		t.Errorf("expected empty rankings for empty input")
	}
}
