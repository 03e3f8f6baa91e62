package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// tableRef renders a fully qualified, backquoted table name.
func tableRef(projectID, datasetID, table string) string {
	return "`" + projectID + "." + datasetID + "." + table + "`"
}

// insertArtifactQuery uses DML rather than the streaming inserter so that a
// row is readable as soon as the job finishes.
func insertArtifactQuery(table string) string {
	return `
		INSERT INTO ` + table + ` (
			artifact_id, run_id, source, kind, name,
			payload, size_bytes, created_ts
		)
		VALUES (
			@artifact_id, @run_id, @source, @kind, @name,
			PARSE_JSON(@payload), @size_bytes, @created_ts
		)
	`
}

func latestArtifactQuery(table string) string {
	return `
		SELECT
			artifact_id, run_id, source, kind, name,
			payload, size_bytes, created_ts
		FROM ` + table + `
		WHERE name = @name
		ORDER BY created_ts DESC
		LIMIT 1
	`
}

// InsertArtifactWithClient inserts a single ArtifactRow into table.
func InsertArtifactWithClient(ctx context.Context, client *bigquery.Client, table string, row *ArtifactRow) error {
	q := client.Query(insertArtifactQuery(table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "artifact_id", Value: row.ArtifactID},
		{Name: "run_id", Value: row.RunID},
		{Name: "source", Value: row.Source},
		{Name: "kind", Value: row.Kind},
		{Name: "name", Value: row.Name},
		{Name: "payload", Value: row.Payload.JSONVal},
		{Name: "size_bytes", Value: row.SizeBytes},
		{Name: "created_ts", Value: row.CreatedTS.Timestamp},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertArtifact: running insert query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertArtifact: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertArtifact: job error: %w", err)
	}

	return nil
}

// FindLatestArtifactWithClient returns the newest row with the given name,
// or nil if there is none.
func FindLatestArtifactWithClient(ctx context.Context, client *bigquery.Client, table, name string) (*ArtifactRow, error) {
	q := client.Query(latestArtifactQuery(table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "name", Value: name},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindLatestArtifact: reading query: %w", err)
	}

	var row ArtifactRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindLatestArtifact: iterating: %w", err)
	}
	return &row, nil
}
