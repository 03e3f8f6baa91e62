package bigquery

import "cloud.google.com/go/bigquery"

// ArtifactRow is one persisted pipeline artifact.
type ArtifactRow struct {
	ArtifactID string `bigquery:"artifact_id"` // REQUIRED
	RunID      string `bigquery:"run_id"`      // REQUIRED
	Source     string `bigquery:"source"`      // REQUIRED
	Kind       string `bigquery:"kind"`        // REQUIRED
	Name       string `bigquery:"name"`        // REQUIRED

	Payload bigquery.NullJSON `bigquery:"payload"` // REQUIRED (JSON)
	SizeBytes int64           `bigquery:"size_bytes"`

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // REQUIRED (default CURRENT_TIMESTAMP)
}
