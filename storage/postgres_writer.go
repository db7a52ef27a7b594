package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/utils"
)

const insertColumns = 7

// PostgresWriter exports cleaned listings to PostgreSQL, one row per listing,
// tagged with the artifact version they were published as.
type PostgresWriter struct {
	db     *sql.DB
	source string
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a writer that tags rows with source (e.g. "clean_sample.csv:v3").
func NewPostgresWriter(ctx context.Context, dsn, source string, retry *utils.RetryConfig) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pw := newPostgresWriter(db, source)
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func newPostgresWriter(db *sql.DB, source string) *PostgresWriter {
	return &PostgresWriter{db: db, source: source}
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS clean_listings (
			id          SERIAL PRIMARY KEY,
			source      TEXT             NOT NULL,
			row_number  INTEGER          NOT NULL,
			price       NUMERIC(12,2)    NOT NULL,
			longitude   DOUBLE PRECISION NOT NULL,
			latitude    DOUBLE PRECISION NOT NULL,
			last_review DATE,
			record      JSONB            NOT NULL,
			created_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			UNIQUE (source, row_number)
		);

		CREATE INDEX IF NOT EXISTS idx_clean_listings_source ON clean_listings(source);
		CREATE INDEX IF NOT EXISTS idx_clean_listings_price  ON clean_listings(price);
	`)
	return err
}

// Write replaces any earlier export of the same source with the listings of
// ds. The delete and all insert batches share one transaction, so a failed
// batch leaves the previous export untouched.
func (pw *PostgresWriter) Write(ctx context.Context, ds *models.Dataset) error {
	if ds.Len() == 0 {
		return nil
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM clean_listings WHERE source = $1", pw.source); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}

	const batchSize = 50
	for i := 0; i < ds.Len(); i += batchSize {
		end := i + batchSize
		if end > ds.Len() {
			end = ds.Len()
		}
		query, args, err := buildInsert(pw.source, ds.Header, ds.Listings[i:end])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("postgres: insert batch at row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

func buildInsert(source string, header []string, batch []*models.Listing) (string, []interface{}, error) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*insertColumns)

	for idx, l := range batch {
		if math.IsNaN(l.Price) || math.IsNaN(l.Longitude) || math.IsNaN(l.Latitude) {
			return "", nil, fmt.Errorf("postgres: row %d has a missing numeric value", l.Row)
		}

		record := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(l.Cells) {
				record[col] = l.Cells[i]
			}
		}
		recordJSON, err := json.Marshal(record)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: encode row %d: %w", l.Row, err)
		}

		var lastReview interface{}
		if l.LastReview != nil {
			lastReview = l.LastReview.Format(time.DateOnly)
		}

		base := idx * insertColumns
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		valueArgs = append(valueArgs,
			source, l.Row, l.Price, l.Longitude, l.Latitude, lastReview, string(recordJSON))
	}

	query := fmt.Sprintf(`
		INSERT INTO clean_listings (source, row_number, price, longitude, latitude, last_review, record)
		VALUES %s
		ON CONFLICT (source, row_number) DO NOTHING
	`, strings.Join(valueStrings, ","))

	return query, valueArgs, nil
}
