package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/aperture/internal/domain"
	"github.com/dvloznov/aperture/internal/logger"
	"github.com/dvloznov/aperture/internal/pipeline"
)

func printResult(w io.Writer, result *pipeline.Result) {
	fmt.Fprintf(w, "\nRun %s\n", result.Key)
	if d := result.Diagnostics; d != nil {
		fmt.Fprintf(w, "Dropped: %d transaction(s), %d holding(s); defaulted fields: %d\n",
			d.DroppedTransactions, d.DroppedHoldings, d.DefaultedFields)
	}
	if result.Record != nil {
		fmt.Fprintf(w, "Record: %d account(s), %d transaction(s), %d holding(s)\n",
			len(result.Record.Accounts), len(result.Record.Transactions), len(result.Record.Holdings))
	}
	for _, f := range result.Findings {
		fmt.Fprintf(w, "  [%s] %s %s: %s\n", f.Severity, f.Type, f.Subject, f.Detail)
	}

	if resp := result.Response; resp != nil {
		fmt.Fprintf(w, "\n%s\n", resp.Summary)
		fmt.Fprintf(w, "%d insight(s), analyzed at %s\n", resp.TotalInsights, resp.AnalysisTimestamp.Format("2006-01-02 15:04:05 MST"))
		for i, in := range resp.Insights {
			fmt.Fprintf(w, "\n%d. %s (%s, impact %s, confidence %s, priority %d)\n",
				i+1, in.Title, in.InsightType, in.Impact, in.Confidence, in.Priority)
			fmt.Fprintf(w, "   %s\n", strings.ReplaceAll(in.Description, "\n", "\n   "))
			fmt.Fprintf(w, "   -> %s\n", in.Recommendation)
			for _, s := range in.SupportingData {
				fmt.Fprintf(w, "   * %s\n", s)
			}
		}
	}

	if len(result.Artifacts) > 0 {
		fmt.Fprintln(w, "\nArtifacts:")
		for _, name := range result.Artifacts {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

const comparisonSummaryLength = 100

// printComparison sets the mock and live responses of one menu session side by side.
func printComparison(w io.Writer, mock, live *pipeline.Result) {
	fmt.Fprintln(w, "\nComparison: mock vs Plaid sandbox")
	for _, side := range []struct {
		label  string
		result *pipeline.Result
	}{
		{"Mock data", mock},
		{"Plaid sandbox", live},
	} {
		fmt.Fprintf(w, "\n%s (%s)\n", side.label, side.result.Key)
		resp := side.result.Response
		if resp == nil {
			fmt.Fprintln(w, "  No insights")
			continue
		}
		fmt.Fprintf(w, "  Total: %d\n", resp.TotalInsights)
		fmt.Fprintf(w, "  By type: %s\n", typeCounts(resp.Insights))
		fmt.Fprintf(w, "  Summary: %s\n", shorten(resp.Summary, comparisonSummaryLength))
	}
}

// typeCounts renders per-type insight counts in the fixed type order.
func typeCounts(insights []domain.Insight) string {
	counts := make(map[domain.InsightType]int, len(domain.InsightTypes))
	for _, in := range insights {
		counts[in.InsightType]++
	}
	parts := make([]string, 0, len(domain.InsightTypes))
	for _, typ := range domain.InsightTypes {
		parts = append(parts, fmt.Sprintf("%s %d", typ, counts[typ]))
	}
	return strings.Join(parts, ", ")
}

func shorten(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}

// errorKind names the most specific failure in err's chain.
func errorKind(err error) string {
	var (
		genErr       *pipeline.GenerationFailure
		adapterErr   *pipeline.AdapterError
		transformErr *pipeline.TransformationError
		validateErr  *pipeline.ValidationError
	)
	switch {
	case errors.As(err, &adapterErr):
		return "adapter_error"
	case errors.As(err, &transformErr):
		return "transformation_error"
	case errors.As(err, &genErr):
		return "generation_failure"
	case errors.As(err, &validateErr):
		return "validation_error"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func reportFailure(ctx context.Context, err error) {
	log := logger.FromContext(ctx)
	event := log.Error().Err(err).Str("kind", errorKind(err))

	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		event = event.Str("stage", runErr.Stage).Str("run", runErr.RunKey.String())
		if d := runErr.Diagnostics; d != nil {
			event = event.
				Int("dropped_transactions", d.DroppedTransactions).
				Int("dropped_holdings", d.DroppedHoldings)
		}
	}

	var genErr *pipeline.GenerationFailure
	if errors.As(err, &genErr) {
		event = event.Int("attempts", genErr.Attempts).Str("last_raw_text", genErr.LastRawText)
	}

	var adapterErr *pipeline.AdapterError
	if errors.As(err, &adapterErr) {
		event = event.Str("source", adapterErr.Source)
	}

	var transformErr *pipeline.TransformationError
	if errors.As(err, &transformErr) {
		event = event.Str("path", transformErr.Path)
	}

	event.Msg("Command failed")
}
