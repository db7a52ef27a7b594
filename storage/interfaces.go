package storage

import (
	"context"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
)

// DatasetWriter is the interface any sink for a cleaned dataset must satisfy.
type DatasetWriter interface {
	Write(ctx context.Context, ds *models.Dataset) error
	Close() error
}

var (
	_ DatasetWriter = (*CSVWriter)(nil)
	_ DatasetWriter = (*PostgresWriter)(nil)
)
