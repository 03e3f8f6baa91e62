// Package notionsync publishes validated insight cards to a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/aperture/internal/domain"
	"github.com/dvloznov/aperture/internal/logger"
)

// PublishSummary tallies what PublishInsights did.
type PublishSummary struct {
	Created int
	Updated int
	Deleted int
	Failed  int
}

// PublishInsights writes one page per insight of a run. Publishing the same
// run again updates its pages in place and archives pages for insights the
// response no longer has. Per-page failures are logged and counted; only a
// failed lookup of the run's existing pages is returned as an error.
func PublishInsights(ctx context.Context, notionClient InsightPages, notionDBID, runID string, resp *domain.InsightResponse, dryRun bool) (*PublishSummary, error) {
	log := logger.FromContext(ctx).With().Str("run_id", runID).Logger()

	log.Info().
		Int("insight_count", len(resp.Insights)).
		Bool("dry_run", dryRun).
		Msg("Publishing insights to Notion")

	pages, err := queryRunPages(ctx, notionClient, notionDBID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query Notion pages: %w", err)
	}

	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		if id := extractInsightID(page); id != "" {
			existing[id] = string(page.ID)
		}
	}

	summary := &PublishSummary{}
	current := make(map[string]bool, len(resp.Insights))

	for i, in := range resp.Insights {
		insightID := InsightID(runID, i+1)
		current[insightID] = true
		props := InsightToNotionProperties(runID, i+1, in, resp.AnalysisTimestamp)

		if pageID, ok := existing[insightID]; ok {
			if dryRun {
				log.Info().Str("insight_id", insightID).Msg("[DRY RUN] Would update Notion page")
				summary.Updated++
				continue
			}
			if err := notionClient.UpdateInsightPage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("insight_id", insightID).Str("page_id", pageID).Msg("Failed to update Notion page")
				summary.Failed++
				continue
			}
			summary.Updated++
			continue
		}

		if dryRun {
			log.Info().Str("insight_id", insightID).Msg("[DRY RUN] Would create Notion page")
			summary.Created++
			continue
		}
		pageID, err := notionClient.CreateInsightPage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().Err(err).Str("insight_id", insightID).Msg("Failed to create Notion page")
			summary.Failed++
			continue
		}
		log.Debug().Str("insight_id", insightID).Str("page_id", pageID).Msg("Created Notion page")
		summary.Created++
	}

	// Archive pages of insights that are gone
	for insightID, pageID := range existing {
		if current[insightID] {
			continue
		}
		if dryRun {
			log.Info().Str("insight_id", insightID).Msg("[DRY RUN] Would delete stale Notion page")
			summary.Deleted++
			continue
		}
		if err := notionClient.ArchivePage(ctx, pageID); err != nil {
			log.Warn().Err(err).Str("insight_id", insightID).Str("page_id", pageID).Msg("Failed to delete stale Notion page")
			summary.Failed++
			continue
		}
		summary.Deleted++
	}

	log.Info().
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("deleted", summary.Deleted).
		Int("failed", summary.Failed).
		Msg("Notion publication completed")

	return summary, nil
}

// queryRunPages pages through every database entry whose Run ID is runID.
func queryRunPages(ctx context.Context, notionClient InsightPages, databaseID, runID string) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		resp, err := notionClient.RunPages(ctx, databaseID, runID, cursor)
		if err != nil {
			return nil, err
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		cursor = resp.NextCursor
	}
}
