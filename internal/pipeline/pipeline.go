package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/aperture/internal/artifacts"
	"github.com/dvloznov/aperture/internal/domain"
	"github.com/dvloznov/aperture/internal/logger"
	"github.com/dvloznov/aperture/internal/rules"
)

const runIDTimeFormat = "20060102T150405Z"

// RunKey identifies the artifacts of one run. Concurrent runs must use
// distinct keys; artifacts are written without locking.
type RunKey struct {
	Source string
	ID     string
}

// NewRunKey builds a key from a UTC timestamp and a random suffix.
func NewRunKey(source string, now time.Time) RunKey {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return RunKey{
		Source: source,
		ID:     now.UTC().Format(runIDTimeFormat) + "-" + suffix,
	}
}

func (k RunKey) String() string {
	return k.Source + "/" + k.ID
}

// ArtifactName returns the artifact name of the given kind for this run.
func (k RunKey) ArtifactName(kind artifacts.Kind) string {
	return artifacts.Name(kind, k.Source, k.ID)
}

// Result is the outcome of a successful run.
type Result struct {
	Key         RunKey
	Record      *domain.FamilyOfficeRecord
	Diagnostics *Diagnostics
	Findings    []rules.Finding
	Response    *domain.InsightResponse
	Artifacts   []string
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure,
// returned as a *RunError naming the failed stage.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for _, step := range p.steps {
		started := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			log.Error().Err(err).Str("stage", step.Name()).Msg("Stage failed")
			return &RunError{
				Stage:       step.Name(),
				RunKey:      state.Key,
				Diagnostics: state.Diagnostics,
				Err:         err,
			}
		}
		log.Debug().Str("stage", step.Name()).Dur("took", time.Since(started)).Msg("Stage completed")
	}
	return nil
}

// NewAnalysisPipeline creates the full fetch-to-results pipeline.
func NewAnalysisPipeline(source SourceAdapter, gen *InsightGenerator, sink ArtifactWriter) *Pipeline {
	return NewPipeline(
		&FetchStep{Source: source},
		&TransformStep{},
		&PersistRecordStep{Sink: sink},
		&EvaluateRulesStep{},
		&GenerateInsightsStep{Generator: gen},
		&PersistResponseStep{Sink: sink},
	)
}

// Run fetches, transforms and analyzes one record. The transformed_*
// artifact is written before generation starts and stays on the sink if a
// later stage fails; only a successful run writes analysis_results_*.
func Run(ctx context.Context, source SourceAdapter, gen *InsightGenerator, promptTemplate string, sink ArtifactWriter, key RunKey) (*Result, error) {
	state := &PipelineState{Key: key, PromptTemplate: promptTemplate}
	if err := NewAnalysisPipeline(source, gen, sink).Execute(ctx, state); err != nil {
		return nil, err
	}
	return resultOf(state), nil
}

// RunTransform runs the fetch and transform stages only.
func RunTransform(ctx context.Context, source SourceAdapter, sink ArtifactWriter, key RunKey) (*Result, error) {
	state := &PipelineState{Key: key}
	p := NewPipeline(
		&FetchStep{Source: source},
		&TransformStep{},
		&PersistRecordStep{Sink: sink},
	)
	if err := p.Execute(ctx, state); err != nil {
		return nil, err
	}
	return resultOf(state), nil
}

// RunInsights analyzes a record loaded from a previous transformed_* artifact.
func RunInsights(ctx context.Context, record *domain.FamilyOfficeRecord, gen *InsightGenerator, promptTemplate string, sink ArtifactWriter, key RunKey) (*Result, error) {
	state := &PipelineState{Key: key, PromptTemplate: promptTemplate, Record: record}
	p := NewPipeline(
		&EvaluateRulesStep{},
		&GenerateInsightsStep{Generator: gen},
		&PersistResponseStep{Sink: sink},
	)
	if err := p.Execute(ctx, state); err != nil {
		return nil, err
	}
	return resultOf(state), nil
}

func resultOf(state *PipelineState) *Result {
	return &Result{
		Key:         state.Key,
		Record:      state.Record,
		Diagnostics: state.Diagnostics,
		Findings:    state.Findings,
		Response:    state.Response,
		Artifacts:   state.Artifacts,
	}
}

// DecodeRecord parses a transformed_* artifact. Unknown fields, duplicate
// account ids and dangling account references are rejected.
func DecodeRecord(data []byte) (*domain.FamilyOfficeRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var record domain.FamilyOfficeRecord
	if err := dec.Decode(&record); err != nil {
		return nil, &TransformationError{Path: "$", Reason: fmt.Sprintf("decode record: %v", err)}
	}
	if record.Accounts == nil {
		return nil, &TransformationError{Path: "accounts", Reason: "missing required collection"}
	}
	if len(record.AccountIndex()) != len(record.Accounts) {
		return nil, &TransformationError{Path: "accounts", Reason: "duplicate account id"}
	}
	if dangling := record.DanglingReferences(); len(dangling) > 0 {
		return nil, &TransformationError{
			Path:   "accounts",
			Reason: fmt.Sprintf("unknown account ids referenced: %s", strings.Join(dangling, ", ")),
		}
	}
	return &record, nil
}

// LoadRecord reads and decodes a transformed_* artifact.
func LoadRecord(ctx context.Context, reader ArtifactReader, name string) (*domain.FamilyOfficeRecord, error) {
	data, err := reader.ReadArtifact(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", name, err)
	}
	record, err := DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", name, err)
	}
	return record, nil
}
