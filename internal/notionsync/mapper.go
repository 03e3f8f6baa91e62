package notionsync

import (
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/aperture/internal/domain"
)

// Notion rejects rich text objects longer than this.
const maxRichTextLength = 2000

// Property names of the insights database.
const (
	propTitle          = "Title"
	propInsightID      = "Insight ID"
	propRunID          = "Run ID"
	propType           = "Type"
	propImpact         = "Impact"
	propConfidence     = "Confidence"
	propPriority       = "Priority"
	propDescription    = "Description"
	propRecommendation = "Recommendation"
	propSupportingData = "Supporting Data"
	propAnalyzedAt     = "Analyzed At"
)

// InsightID identifies the position-th insight (1-based) of a run.
func InsightID(runID string, position int) string {
	return runID + "#" + strconv.Itoa(position)
}

// InsightToNotionProperties converts one validated insight card to Notion properties.
func InsightToNotionProperties(runID string, position int, in domain.Insight, analyzedAt time.Time) notionapi.Properties {
	props := notionapi.Properties{
		propTitle: notionapi.TitleProperty{
			Title: richText(in.Title),
		},
		propInsightID: notionapi.RichTextProperty{
			RichText: richText(InsightID(runID, position)),
		},
		propRunID: notionapi.RichTextProperty{
			RichText: richText(runID),
		},
		propType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(in.InsightType)},
		},
		propImpact: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(in.Impact)},
		},
		propConfidence: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(in.Confidence)},
		},
		propPriority: notionapi.NumberProperty{
			Number: float64(in.Priority),
		},
		propDescription: notionapi.RichTextProperty{
			RichText: richText(in.Description),
		},
	}

	if in.Recommendation != "" {
		props[propRecommendation] = notionapi.RichTextProperty{
			RichText: richText(in.Recommendation),
		}
	}

	if len(in.SupportingData) > 0 {
		props[propSupportingData] = notionapi.RichTextProperty{
			RichText: richText(strings.Join(in.SupportingData, "\n")),
		}
	}

	if !analyzedAt.IsZero() {
		d := notionapi.Date(analyzedAt)
		props[propAnalyzedAt] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	if len(content) > maxRichTextLength {
		content = truncate(content, maxRichTextLength)
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// extractInsightID extracts the insight ID from a Notion page's properties.
// Returns empty string if not found.
func extractInsightID(page notionapi.Page) string {
	if prop, ok := page.Properties[propInsightID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}
