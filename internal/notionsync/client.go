package notionsync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
)

const (
	requestTimeout = 30 * time.Second
	queryPageSize  = 100
)

// NotionClient implements InsightPages with the jomei/notionapi SDK.
type NotionClient struct {
	client *notionapi.Client
}

func NewNotionClient(token string) *NotionClient {
	httpClient := &http.Client{Timeout: requestTimeout}
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token), notionapi.WithHTTPClient(httpClient)),
	}
}

func (n *NotionClient) CreateInsightPage(ctx context.Context, databaseID string, properties notionapi.Properties) (string, error) {
	page, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return "", fmt.Errorf("create insight page: %w", err)
	}
	return string(page.ID), nil
}

func (n *NotionClient) UpdateInsightPage(ctx context.Context, pageID string, properties notionapi.Properties) error {
	_, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: properties,
	})
	if err != nil {
		return fmt.Errorf("update insight page %s: %w", pageID, err)
	}
	return nil
}

func (n *NotionClient) RunPages(ctx context.Context, databaseID, runID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), runPagesQuery(runID, cursor))
	if err != nil {
		return nil, fmt.Errorf("query run pages: %w", err)
	}
	return resp, nil
}

// ArchivePage moves a page to the Notion trash.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	_, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Archived: true,
	})
	if err != nil {
		return fmt.Errorf("archive page %s: %w", pageID, err)
	}
	return nil
}

func runPagesQuery(runID string, cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
	return &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propRunID,
			RichText: &notionapi.TextFilterCondition{Equals: runID},
		},
		StartCursor: cursor,
		PageSize:    queryPageSize,
	}
}
