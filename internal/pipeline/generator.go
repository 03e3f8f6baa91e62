package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/aperture/internal/domain"
	"github.com/dvloznov/aperture/internal/logger"
)

// InsightGenerator turns a record into a validated InsightResponse using a
// TextGenerator, retrying on collaborator errors and invalid output.
type InsightGenerator struct {
	gen    TextGenerator
	policy RetryPolicy
	sleep  Sleeper
	now    func() time.Time
}

// GeneratorOption customizes an InsightGenerator.
type GeneratorOption func(*InsightGenerator)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) GeneratorOption {
	return func(g *InsightGenerator) { g.policy = p }
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(s Sleeper) GeneratorOption {
	return func(g *InsightGenerator) { g.sleep = s }
}

// WithClock sets the clock used for analysis_timestamp.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *InsightGenerator) { g.now = now }
}

// NewInsightGenerator creates a generator over gen.
func NewInsightGenerator(gen TextGenerator, opts ...GeneratorOption) *InsightGenerator {
	g := &InsightGenerator{
		gen:    gen,
		policy: DefaultRetryPolicy,
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BuildPayload appends the deterministic JSON serialization of record to
// promptTemplate.
func BuildPayload(promptTemplate string, record *domain.FamilyOfficeRecord) (string, error) {
	if record == nil {
		return "", errors.New("build payload: record is nil")
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("build payload: marshal record: %w", err)
	}
	return promptTemplate + "\n\n" + string(data), nil
}

// GenerateInsights sends the record to the model and validates the answer.
// On exhaustion it returns a *GenerationFailure and never a partial response.
func (g *InsightGenerator) GenerateInsights(ctx context.Context, record *domain.FamilyOfficeRecord, promptTemplate string) (*domain.InsightResponse, error) {
	log := logger.FromContext(ctx)

	payload, err := BuildPayload(promptTemplate, record)
	if err != nil {
		return nil, err
	}

	m := newAttemptMachine(g.policy)
	for {
		if err := ctx.Err(); err != nil {
			m.abort(err)
			return nil, m.failure()
		}

		attempt := m.begin()
		log.Debug().Int("attempt", attempt).Int("payload_bytes", len(payload)).Msg("Requesting insights")

		raw, err := g.gen.Complete(ctx, payload)
		if err == nil {
			var resp *domain.InsightResponse
			var reported int
			resp, reported, err = parseInsightResponse(raw)
			if err == nil {
				m.succeed()
				if reported != resp.TotalInsights {
					log.Warn().
						Int("reported", reported).
						Int("actual", resp.TotalInsights).
						Msg("Model reported a different insight count, using actual count")
				}
				resp.AnalysisTimestamp = g.now().UTC()
				log.Info().Int("attempt", attempt).Int("insights", resp.TotalInsights).Msg("Insights validated")
				return resp, nil
			}
		} else {
			err = fmt.Errorf("complete: %w", err)
		}

		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", g.policy.MaxAttempts).Msg("Insight attempt failed")

		if !m.fail(raw, err) {
			return nil, m.failure()
		}

		if err := g.sleep(ctx, g.policy.Delay); err != nil {
			m.abort(err)
			return nil, m.failure()
		}
	}
}
