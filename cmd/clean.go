package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"car-dashboard/models"
	"car-dashboard/services"
	"car-dashboard/storage"
)

var (
	flagCSVOut   string
	flagXLSXOut  string
	flagPostgres bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean the listings file, print an overview and optionally export the result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reader := storage.NewCSVReader(cfg.DataPath)
		defer logger.Since("clean "+reader.Path(), time.Now())

		raw, err := reader.Load(ctx)
		if err != nil {
			return err
		}
		res := services.NewCleaner(logger).LoadAndClean(raw)

		writers, err := openWriters(cmd)
		if err != nil {
			return err
		}
		if err := writeAll(ctx, writers, res); err != nil {
			return err
		}

		insights := services.NewInsightService(logger)
		insights.Print(cmd.OutOrStdout(), insights.Generate(res, services.DropMissing(raw)))
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringVar(&flagCSVOut, "csv", "", "write the cleaned table to this CSV file")
	cleanCmd.Flags().StringVar(&flagXLSXOut, "xlsx", "", "write the cleaned table and summary to this XLSX file")
	cleanCmd.Flags().BoolVar(&flagPostgres, "postgres", false, "store the cleaned table in PostgreSQL (POSTGRES_* settings)")
	rootCmd.AddCommand(cleanCmd)
}

func openWriters(cmd *cobra.Command) ([]storage.ListingWriter, error) {
	var writers []storage.ListingWriter
	fail := func(err error) ([]storage.ListingWriter, error) {
		for _, w := range writers {
			_ = w.Close()
		}
		return nil, err
	}

	if flagCSVOut != "" {
		w, err := storage.NewCSVWriter(flagCSVOut)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	if flagXLSXOut != "" {
		w, err := storage.NewXLSXWriter(flagXLSXOut)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	if flagPostgres {
		if !cfg.Postgres.Enabled() {
			return fail(errors.New("--postgres needs POSTGRES_HOST to be set"))
		}
		w, err := storage.NewPostgresWriter(cmd.Context(), cfg.Postgres.DSN(), logger)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	return writers, nil
}

// writeAll writes res to every writer and closes all of them, also after a
// failure. It returns the first error.
func writeAll(ctx context.Context, writers []storage.ListingWriter, res *models.CleanResult) error {
	var first error
	for _, w := range writers {
		if first == nil {
			first = w.Write(ctx, res)
		}
		if first == nil {
			first = verifyStored(ctx, w, len(res.Listings))
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// verifyStored reads back a sink that supports it and checks the row count.
func verifyStored(ctx context.Context, w storage.ListingWriter, want int) error {
	store, ok := w.(storage.ListingStore)
	if !ok {
		return nil
	}
	stored, err := store.FetchAll(ctx)
	if err != nil {
		return err
	}
	if len(stored) != want {
		return fmt.Errorf("clean: store holds %d listings, wrote %d", len(stored), want)
	}
	logger.Info("Stored %d listings in PostgreSQL", len(stored))
	return nil
}
