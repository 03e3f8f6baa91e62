package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/aperture/internal/artifacts"
	"github.com/dvloznov/aperture/internal/domain"
	"github.com/dvloznov/aperture/internal/logger"
	"github.com/dvloznov/aperture/internal/rules"
)

// Stage names reported in RunError.Stage.
const (
	StageFetch            = "fetch"
	StageTransform        = "transform"
	StagePersistRecord    = "persist_record"
	StageEvaluateRules    = "evaluate_rules"
	StageGenerateInsights = "generate_insights"
	StagePersistResponse  = "persist_response"
)

// PipelineStep represents a single stage of a run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Key            RunKey
	PromptTemplate string
	Raw            RawFinancialRecord
	Record         *domain.FamilyOfficeRecord
	Diagnostics    *Diagnostics
	Findings       []rules.Finding
	Response       *domain.InsightResponse
	// Artifacts lists the names written so far, in order.
	Artifacts []string
}

// FetchStep obtains the raw record from the source.
type FetchStep struct {
	Source SourceAdapter
}

func (s *FetchStep) Name() string { return StageFetch }

func (s *FetchStep) Execute(ctx context.Context, state *PipelineState) error {
	raw, err := s.Source.Fetch(ctx)
	if err != nil {
		return &AdapterError{Source: s.Source.Name(), Err: err}
	}
	state.Raw = raw
	return nil
}

// TransformStep maps the raw record and discards it.
type TransformStep struct{}

func (s *TransformStep) Name() string { return StageTransform }

func (s *TransformStep) Execute(ctx context.Context, state *PipelineState) error {
	record, diag, err := Transform(state.Raw)
	if err != nil {
		return err
	}
	state.Raw = nil
	state.Record = record
	state.Diagnostics = diag

	log := logger.FromContext(ctx)
	log.Info().
		Int("accounts", len(record.Accounts)).
		Int("transactions", len(record.Transactions)).
		Int("holdings", len(record.Holdings)).
		Int("dropped_transactions", diag.DroppedTransactions).
		Int("dropped_holdings", diag.DroppedHoldings).
		Int("defaulted_fields", diag.DefaultedFields).
		Msg("Record transformed")
	return nil
}

// PersistRecordStep writes the transformed_* artifact.
type PersistRecordStep struct {
	Sink ArtifactWriter
}

func (s *PersistRecordStep) Name() string { return StagePersistRecord }

func (s *PersistRecordStep) Execute(ctx context.Context, state *PipelineState) error {
	name := state.Key.ArtifactName(artifacts.KindTransformed)
	if err := writeJSONArtifact(ctx, s.Sink, name, state.Record); err != nil {
		return err
	}
	state.Artifacts = append(state.Artifacts, name)
	return nil
}

// EvaluateRulesStep runs the rule checks and appends their findings to the prompt template.
type EvaluateRulesStep struct{}

func (s *EvaluateRulesStep) Name() string { return StageEvaluateRules }

func (s *EvaluateRulesStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Record == nil {
		return errors.New("no record to evaluate")
	}
	state.Findings = rules.Evaluate(state.Record)
	state.PromptTemplate = AppendFindings(state.PromptTemplate, state.Findings)

	log := logger.FromContext(ctx)
	log.Debug().Int("findings", len(state.Findings)).Msg("Rules evaluated")
	return nil
}

// GenerateInsightsStep asks the model for insights.
type GenerateInsightsStep struct {
	Generator *InsightGenerator
}

func (s *GenerateInsightsStep) Name() string { return StageGenerateInsights }

func (s *GenerateInsightsStep) Execute(ctx context.Context, state *PipelineState) error {
	resp, err := s.Generator.GenerateInsights(ctx, state.Record, state.PromptTemplate)
	if err != nil {
		return err
	}
	state.Response = resp
	return nil
}

// PersistResponseStep writes the analysis_results_* artifact.
type PersistResponseStep struct {
	Sink ArtifactWriter
}

func (s *PersistResponseStep) Name() string { return StagePersistResponse }

func (s *PersistResponseStep) Execute(ctx context.Context, state *PipelineState) error {
	name := state.Key.ArtifactName(artifacts.KindAnalysisResults)
	if err := writeJSONArtifact(ctx, s.Sink, name, state.Response); err != nil {
		return err
	}
	state.Artifacts = append(state.Artifacts, name)
	return nil
}

func writeJSONArtifact(ctx context.Context, sink ArtifactWriter, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	data = append(data, '\n')
	if err := sink.WriteArtifact(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("artifact", name).Int("bytes", len(data)).Msg("Artifact written")
	return nil
}
