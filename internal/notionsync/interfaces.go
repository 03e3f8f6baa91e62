package notionsync

import (
	"context"

	"github.com/jomei/notionapi"
)

// InsightPages is the part of a Notion database that PublishInsights needs.
type InsightPages interface {
	// CreateInsightPage adds a page to the database and returns its id.
	CreateInsightPage(ctx context.Context, databaseID string, properties notionapi.Properties) (string, error)

	UpdateInsightPage(ctx context.Context, pageID string, properties notionapi.Properties) error

	// RunPages returns one result page of entries whose Run ID equals runID,
	// starting at cursor.
	RunPages(ctx context.Context, databaseID, runID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error)

	ArchivePage(ctx context.Context, pageID string) error
}
