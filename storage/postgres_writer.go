package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"car-dashboard/models"
	"car-dashboard/utils"
)

const listingColumnsPerRow = 10

// PostgresWriter persists cleaned listings to PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations and returns a ready-to-use writer.
func NewPostgresWriter(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := retry.Do(ctx, "postgres-ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id           SERIAL PRIMARY KEY,
			car          TEXT          NOT NULL,
			model        TEXT          NOT NULL,
			price        NUMERIC(12,2) NOT NULL,
			body         TEXT          NOT NULL,
			mileage      NUMERIC(8,2)  NOT NULL,
			eng_v        NUMERIC(5,2)  NOT NULL,
			eng_type     TEXT          NOT NULL,
			registration TEXT          NOT NULL,
			year         INTEGER       NOT NULL,
			drive        TEXT          NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cleaning_runs (
			id           SERIAL PRIMARY KEY,
			initial_rows INTEGER     NOT NULL,
			cleaned_rows INTEGER     NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_car   ON listings(car);
		CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_year  ON listings(year);
	`)
	return err
}

// Write replaces the stored table with res in a single transaction and
// records the run's row counters.
func (pw *PostgresWriter) Write(ctx context.Context, res *models.CleanResult) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM listings"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}

	const batchSize = 500
	for i := 0; i < len(res.Listings); i += batchSize {
		end := i + batchSize
		if end > len(res.Listings) {
			end = len(res.Listings)
		}
		if err := insertBatch(ctx, tx, res.Listings[i:end]); err != nil {
			return fmt.Errorf("postgres: insert batch at %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO cleaning_runs (initial_rows, cleaned_rows) VALUES ($1, $2)",
		res.InitialRows, res.CleanedRows); err != nil {
		return fmt.Errorf("postgres: record run: %w", err)
	}
	return tx.Commit()
}

func insertBatch(ctx context.Context, tx *sql.Tx, batch []*models.Listing) error {
	if len(batch) == 0 {
		return nil
	}
	query, args := buildInsert(batch)
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// buildInsert renders one multi-row INSERT with positional placeholders.
func buildInsert(batch []*models.Listing) (string, []any) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*listingColumnsPerRow)

	for idx, l := range batch {
		base := idx * listingColumnsPerRow
		ph := make([]string, listingColumnsPerRow)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			l.Car, l.Model, l.Price, l.Body, l.Mileage, l.EngV, l.EngType, l.Registration, l.Year, l.Drive)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (car, model, price, body, mileage, eng_v, eng_type, registration, year, drive)
		VALUES %s`, strings.Join(valueStrings, ","))
	return query, valueArgs
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves all stored listings in insertion order.
func (pw *PostgresWriter) FetchAll(ctx context.Context) ([]*models.Listing, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT id, car, model, price, body, mileage, eng_v, eng_type, registration, year, drive
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(
			&l.ID, &l.Car, &l.Model, &l.Price, &l.Body, &l.Mileage,
			&l.EngV, &l.EngType, &l.Registration, &l.Year, &l.Drive,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
