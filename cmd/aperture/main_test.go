package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/aperture/internal/domain"
	"github.com/dvloznov/aperture/internal/pipeline"
)

const modelContent = `{
  "insights": [{
    "title": "Concentrated equity position",
    "insight_type": "risk",
    "description": "One fund dominates the brokerage account.",
    "impact": "high",
    "confidence": "medium",
    "recommendation": "Rebalance across asset classes",
    "supporting_data": ["VTI is the largest holding"],
    "priority": 1
  }],
  "summary": "The portfolio is concentrated.",
  "total_insights": 1
}`

// setupEnv points the command at a temporary output directory with every
// remote store disabled.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OUTPUT_DIR", dir)
	t.Setenv("ARTIFACTS_GCS_BUCKET", "")
	t.Setenv("BIGQUERY_PROJECT_ID", "")
	t.Setenv("NOTION_TOKEN", "")
	t.Setenv("MOCK_DATA_PATH", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func fakeOpenAI(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]interface{}{
			"id":     "c1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL+"/v1")
	return srv
}

func artifactsIn(t *testing.T, dir, prefix string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.json"))
	require.NoError(t, err)
	return matches
}

func TestReadChoice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "mock", input: "1\n", want: choiceMock},
		{name: "plaid with spaces", input: "  2  \n", want: choicePlaid},
		{name: "both without newline", input: "3", want: choiceBoth},
		{name: "out of range", input: "4\n", wantErr: true},
		{name: "word", input: "mock\n", wantErr: true},
		{name: "empty input", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readChoice(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_Help(t *testing.T) {
	setupEnv(t)
	var out bytes.Buffer

	assert.Equal(t, 0, run([]string{"help"}, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "analyze-mock")
}

func TestRun_UnknownCommand(t *testing.T) {
	setupEnv(t)
	var out bytes.Buffer

	assert.Equal(t, 1, run([]string{"frobnicate"}, strings.NewReader(""), &out))
}

func TestRun_TransformOffline(t *testing.T) {
	dir := setupEnv(t)
	in := filepath.Join(t.TempDir(), "raw.json")
	require.NoError(t, os.WriteFile(in, []byte(`{
	  "accounts": [{"account_id": "chk", "name": "Checking", "type": "depository",
	    "balances": {"current": 1200.5, "iso_currency_code": "USD"}}],
	  "transactions": [
	    {"account_id": "chk", "amount": 42.1, "date": "2025-10-30", "merchant_name": "Grocer"},
	    {"account_id": "gone", "amount": 1, "date": "2025-10-30"}
	  ]
	}`), 0o644))

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"transform", "-in", in}, strings.NewReader(""), &out))

	written := artifactsIn(t, dir, "transformed_file_")
	require.Len(t, written, 1)
	data, err := os.ReadFile(written[0])
	require.NoError(t, err)
	record, err := pipeline.DecodeRecord(data)
	require.NoError(t, err)
	assert.Len(t, record.Accounts, 1)
	assert.Len(t, record.Transactions, 1)

	assert.Contains(t, out.String(), "Dropped: 1 transaction(s), 0 holding(s)")
}

func TestRun_TransformRequiresInput(t *testing.T) {
	setupEnv(t)
	var out bytes.Buffer

	assert.Equal(t, 1, run([]string{"transform"}, strings.NewReader(""), &out))
	assert.Equal(t, 1, run([]string{"transform", "-in", "/does/not/exist.json"}, strings.NewReader(""), &out))
}

func TestRun_AnalyzeMockRequiresCredentials(t *testing.T) {
	setupEnv(t)
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GOOGLE_API_KEY", "")
	var out bytes.Buffer

	assert.Equal(t, 1, run([]string{"analyze-mock"}, strings.NewReader(""), &out))
}

func TestRun_AnalyzeMockThenInsights(t *testing.T) {
	dir := setupEnv(t)
	fakeOpenAI(t, modelContent)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"analyze-mock"}, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "Concentrated equity position")
	assert.Contains(t, out.String(), "The portfolio is concentrated.")

	transformed := artifactsIn(t, dir, "transformed_mock_")
	require.Len(t, transformed, 1)
	require.Len(t, artifactsIn(t, dir, "analysis_results_mock_"), 1)

	out.Reset()
	name := filepath.Base(transformed[0])
	require.Equal(t, 0, run([]string{"insights", "-artifact", name}, strings.NewReader(""), &out))
	assert.Len(t, artifactsIn(t, dir, "analysis_results_mock_"), 2)
}

func TestRun_MenuChoosesMock(t *testing.T) {
	dir := setupEnv(t)
	fakeOpenAI(t, modelContent)

	var out bytes.Buffer
	require.Equal(t, 0, run(nil, strings.NewReader("1\n"), &out))
	assert.Contains(t, out.String(), "Select a data source:")
	assert.Len(t, artifactsIn(t, dir, "analysis_results_mock_"), 1)
}

func TestRun_GenerationFailureKeepsRecord(t *testing.T) {
	dir := setupEnv(t)
	fakeOpenAI(t, "I would rather not.")

	var waits []time.Duration
	noWait := pipeline.WithSleeper(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})

	var out bytes.Buffer
	assert.Equal(t, 1, run([]string{"analyze-mock"}, strings.NewReader(""), &out, noWait))
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, waits)
	assert.Len(t, artifactsIn(t, dir, "transformed_mock_"), 1)
	assert.Empty(t, artifactsIn(t, dir, "analysis_results_"))
}

func TestRun_InsightsRejectsRawArtifact(t *testing.T) {
	setupEnv(t)
	fakeOpenAI(t, modelContent)
	var out bytes.Buffer

	assert.Equal(t, 1, run([]string{"insights", "-artifact", "raw_plaid_x.json"}, strings.NewReader(""), &out))
}

func TestErrorKind(t *testing.T) {
	wrap := func(err error) error {
		return &pipeline.RunError{Stage: pipeline.StageFetch, Err: err}
	}

	assert.Equal(t, "adapter_error", errorKind(wrap(&pipeline.AdapterError{Source: "plaid", Err: errors.New("boom")})))
	assert.Equal(t, "transformation_error", errorKind(wrap(&pipeline.TransformationError{Path: "accounts", Reason: "missing"})))
	assert.Equal(t, "generation_failure", errorKind(wrap(&pipeline.GenerationFailure{
		Attempts: 3,
		LastErr:  &pipeline.ValidationError{Path: "$", Reason: "not json"},
	})))
	assert.Equal(t, "validation_error", errorKind(&pipeline.ValidationError{Path: "$"}))
	assert.Equal(t, "cancelled", errorKind(fmt.Errorf("fetch: %w", context.Canceled)))
	assert.Equal(t, "error", errorKind(errors.New("plain")))
}

func TestRun_MigrateRequiresProject(t *testing.T) {
	setupEnv(t)
	var out bytes.Buffer

	assert.Equal(t, 1, run([]string{"migrate"}, strings.NewReader(""), &out))
}

func TestPrintComparison(t *testing.T) {
	mock := &pipeline.Result{
		Key: pipeline.RunKey{Source: "mock", ID: "a"},
		Response: &domain.InsightResponse{
			Insights: []domain.Insight{
				{InsightType: domain.InsightTypeRisk},
				{InsightType: domain.InsightTypeRisk},
				{InsightType: domain.InsightTypeAction},
			},
			Summary:       strings.Repeat("x", 150),
			TotalInsights: 3,
		},
	}
	live := &pipeline.Result{Key: pipeline.RunKey{Source: "plaid", ID: "b"}}

	var out bytes.Buffer
	printComparison(&out, mock, live)

	got := out.String()
	assert.Contains(t, got, "Mock data (mock/a)")
	assert.Contains(t, got, "Total: 3")
	assert.Contains(t, got, "By type: risk 2, opportunity 0, action 1, alert 0")
	assert.Contains(t, got, "Summary: "+strings.Repeat("x", 100)+"...\n")
	assert.Contains(t, got, "Plaid sandbox (plaid/b)\n  No insights")
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("  short ", 10))
	assert.Equal(t, "éé...", shorten("ééé", 2))
}
