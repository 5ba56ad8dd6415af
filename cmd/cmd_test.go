package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-dashboard/models"
	"car-dashboard/predictor"
	"car-dashboard/storage"
	"car-dashboard/utils"
)

var fixtureModel = filepath.Join("..", "predictor", "testdata", "model.json")

// run executes the root command with args and returns what it printed to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagCSVOut, flagXLSXOut, flagPostgres = "", "", false
	predictInput = predictor.DefaultInput()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeListings(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(";car;price;body;mileage;engV;engType;registration;year;model;drive\n")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "%d;Toyota;%d;sedan;%d;2.0;Petrol;yes;2012;Camry;front\n", i, 15000+i*100, 50+i)
	}
	b.WriteString("12;Toyota;500;sedan;80;2.0;Petrol;yes;2012;Camry;front\n")
	b.WriteString("13;Toyota;;sedan;80;2.0;Petrol;yes;2012;Camry;front\n")

	path := filepath.Join(t.TempDir(), "cars.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestCleanPrintsOverviewAndWritesCSV(t *testing.T) {
	data := writeListings(t)
	csvOut := filepath.Join(t.TempDir(), "out", "clean.csv")

	out, err := run(t, "clean", "--data", data, "--model", fixtureModel, "--csv", csvOut)
	require.NoError(t, err)
	assert.Contains(t, out, "USED CAR LISTINGS OVERVIEW")
	assert.Contains(t, out, "Initial rows")

	written, err := os.ReadFile(csvOut)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(written)), "\n")
	assert.Len(t, lines, 13, "header plus 12 kept rows")
}

func TestCleanMissingFile(t *testing.T) {
	_, err := run(t, "clean", "--data", filepath.Join(t.TempDir(), "nope.csv"), "--model", fixtureModel)
	assert.Error(t, err)
}

func TestCleanPostgresRequiresHost(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "")
	_, err := run(t, "clean", "--data", writeListings(t), "--model", fixtureModel, "--postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_HOST")
}

func TestPredictPrintsPrice(t *testing.T) {
	out, err := run(t, "predict", "--data", "unused.csv", "--model", fixtureModel,
		"--car", "Toyota", "--body", "sedan", "--engtype", "Petrol", "--drive", "front",
		"--year", "2012", "--engv", "2", "--mileage", "100", "--registration", "yes")
	require.NoError(t, err)
	assert.Equal(t, "Estimated Price: $19000.00\n", out)
}

func TestPredictUnseenLabel(t *testing.T) {
	_, err := run(t, "predict", "--data", "unused.csv", "--model", fixtureModel,
		"--car", "Bentley", "--body", "sedan", "--engtype", "Petrol", "--drive", "front",
		"--year", "2012", "--engv", "2", "--mileage", "100", "--registration", "yes")
	assert.ErrorIs(t, err, predictor.ErrUnseenLabel)
}

func TestPredictWithoutModel(t *testing.T) {
	_, err := run(t, "predict", "--data", "unused.csv", "--model", filepath.Join(t.TempDir(), "missing.json"),
		"--car", "Toyota", "--body", "sedan", "--engtype", "Petrol", "--drive", "front",
		"--year", "2012", "--engv", "2", "--mileage", "100", "--registration", "yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model artifact")
}

func TestSelectPages(t *testing.T) {
	all, err := selectPages(nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	some, err := selectPages([]string{"predictor", " home"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "/predictor", some[0].Path)
	assert.Equal(t, "/", some[1].Path)

	_, err = selectPages([]string{"settings"})
	assert.ErrorContains(t, err, "unknown page")
}

type fakeWriter struct {
	writeErr error
	writes   int
	closed   bool
}

func (w *fakeWriter) Write(context.Context, *models.CleanResult) error {
	w.writes++
	return w.writeErr
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeStore struct {
	fakeWriter
	stored int
}

func (s *fakeStore) FetchAll(context.Context) ([]*models.Listing, error) {
	return make([]*models.Listing, s.stored), nil
}

func TestWriteAllClosesEveryWriterAfterFailure(t *testing.T) {
	logger = utils.NewNopLogger()
	errDisk := errors.New("disk full")
	first := &fakeWriter{writeErr: errDisk}
	second := &fakeWriter{}
	store := &fakeStore{}

	err := writeAll(context.Background(), []storage.ListingWriter{first, second, store}, &models.CleanResult{})
	assert.ErrorIs(t, err, errDisk)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
	assert.True(t, store.closed)
	assert.Equal(t, 0, second.writes)
}

func TestWriteAllVerifiesStoredRows(t *testing.T) {
	logger = utils.NewNopLogger()
	res := &models.CleanResult{Listings: make([]*models.Listing, 3)}

	ok := &fakeStore{stored: 3}
	require.NoError(t, writeAll(context.Background(), []storage.ListingWriter{ok}, res))
	assert.True(t, ok.closed)

	short := &fakeStore{stored: 2}
	err := writeAll(context.Background(), []storage.ListingWriter{short}, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds 2 listings, wrote 3")
	assert.True(t, short.closed)
}

func TestCleanRejectsInfiniteValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cars.csv")
	input := ";car;price;body;mileage;engV;engType;registration;year;model;drive\n" +
		"0;Toyota;15000;sedan;-inf;2.0;Petrol;yes;2012;Camry;front\n"
	require.NoError(t, os.WriteFile(path, []byte(input), 0o644))

	_, err := run(t, "clean", "--data", path, "--model", fixtureModel)
	assert.ErrorIs(t, err, storage.ErrMalformedInput)
}
