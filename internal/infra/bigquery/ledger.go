// Package bigquery records pipeline artifacts in a BigQuery table.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/dvloznov/aperture/internal/artifacts"
)

// ArtifactLedger stores one row per artifact. It satisfies the pipeline's
// artifact writer and reader so it can mirror a FileStore.
type ArtifactLedger struct {
	client *bigquery.Client
	table  string
	now    func() time.Time
}

// NewArtifactLedger creates a ledger over projectID.datasetID.table with a
// shared BigQuery client.
func NewArtifactLedger(ctx context.Context, projectID, datasetID, table string, opts ...option.ClientOption) (*ArtifactLedger, error) {
	if projectID == "" || datasetID == "" || table == "" {
		return nil, errors.New("NewArtifactLedger: project, dataset and table are required")
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewArtifactLedger: creating client: %w", err)
	}
	return &ArtifactLedger{
		client: client,
		table:  tableRef(projectID, datasetID, table),
		now:    time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (l *ArtifactLedger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

func (l *ArtifactLedger) WriteArtifact(ctx context.Context, name string, payload []byte) error {
	row, err := newArtifactRow(name, payload, l.now())
	if err != nil {
		return err
	}
	return InsertArtifactWithClient(ctx, l.client, l.table, row)
}

func (l *ArtifactLedger) ReadArtifact(ctx context.Context, name string) ([]byte, error) {
	row, err := FindLatestArtifactWithClient(ctx, l.client, l.table, name)
	if err != nil {
		return nil, err
	}
	if row == nil || !row.Payload.Valid {
		return nil, fmt.Errorf("%s: %w", name, artifacts.ErrNotFound)
	}
	return []byte(row.Payload.JSONVal), nil
}

func newArtifactRow(name string, payload []byte, now time.Time) (*ArtifactRow, error) {
	kind, source, runID, err := artifacts.ParseName(name)
	if err != nil {
		return nil, err
	}
	return &ArtifactRow{
		ArtifactID: uuid.NewString(),
		RunID:      runID,
		Source:     source,
		Kind:       string(kind),
		Name:       name,
		Payload:    bigquery.NullJSON{JSONVal: string(payload), Valid: true},
		SizeBytes:  int64(len(payload)),
		CreatedTS:  bigquery.NullTimestamp{Timestamp: now.UTC(), Valid: true},
	}, nil
}
