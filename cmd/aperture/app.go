package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/aperture/internal/artifacts"
	"github.com/dvloznov/aperture/internal/config"
	infraBQ "github.com/dvloznov/aperture/internal/infra/bigquery"
	"github.com/dvloznov/aperture/internal/llm"
	"github.com/dvloznov/aperture/internal/logger"
	"github.com/dvloznov/aperture/internal/notionsync"
	"github.com/dvloznov/aperture/internal/pipeline"
	"github.com/dvloznov/aperture/internal/plaid"
	"github.com/dvloznov/aperture/internal/source"
	"google.golang.org/api/option"
)

// app wires configuration to collaborators. Storage is opened on first use
// so that commands which fail validation never touch the network.
type app struct {
	cfg *config.Config
	out io.Writer

	// genOpts are applied to every insight generator the app builds.
	genOpts []pipeline.GeneratorOption

	sink    pipeline.ArtifactWriter
	reader  pipeline.ArtifactReader
	closers []io.Closer
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

func (a *app) googleOptions() []option.ClientOption {
	if a.cfg.Artifacts.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(a.cfg.Artifacts.CredentialsFile)}
}

// openStorage builds the artifact sink: the local directory is authoritative,
// GCS and BigQuery are mirrors when configured. Reads try the same stores in
// the same order.
func (a *app) openStorage(ctx context.Context) error {
	if a.sink != nil {
		return nil
	}
	log := logger.FromContext(ctx)

	files, err := artifacts.NewFileStore(a.cfg.Artifacts.Dir)
	if err != nil {
		return err
	}
	var mirrors []artifacts.Writer
	readers := []artifacts.Reader{files}

	if a.cfg.Artifacts.GCSBucket != "" {
		gcs, err := artifacts.NewGCSStore(ctx, a.cfg.Artifacts.GCSBucket, a.cfg.Artifacts.GCSPrefix, a.cfg.Artifacts.CredentialsFile)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, gcs)
		mirrors = append(mirrors, gcs)
		readers = append(readers, gcs)
		log.Info().Str("bucket", a.cfg.Artifacts.GCSBucket).Msg("Mirroring artifacts to GCS")
	}

	if a.cfg.BigQuery.Enabled() {
		ledger, err := infraBQ.NewArtifactLedger(ctx, a.cfg.BigQuery.ProjectID, a.cfg.BigQuery.Dataset, a.cfg.BigQuery.Table, a.googleOptions()...)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, ledger)
		mirrors = append(mirrors, ledger)
		readers = append(readers, ledger)
		log.Info().Str("project_id", a.cfg.BigQuery.ProjectID).Msg("Recording artifacts in BigQuery")
	}

	a.sink = artifacts.NewMultiWriter(files, mirrors...)
	a.reader = artifacts.NewChainReader(readers...)
	return nil
}

func (a *app) generator(ctx context.Context) (*pipeline.InsightGenerator, error) {
	gen, err := llm.New(ctx, a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("provider", a.cfg.LLM.Provider).
		Str("model", gen.Model()).
		Msg("Using language model")
	return pipeline.NewInsightGenerator(gen, a.genOpts...), nil
}

func (a *app) plaidAdapter() *plaid.Adapter {
	return plaid.NewAdapter(plaid.NewClient(a.cfg.Plaid, nil), a.cfg.Plaid)
}

func (a *app) analyzeMock(ctx context.Context) (*pipeline.Result, error) {
	if err := a.cfg.Validate(config.ModeMock); err != nil {
		return nil, err
	}
	return a.analyze(ctx, source.NewMockAdapter(a.cfg.App.MockDataPath))
}

func (a *app) analyzePlaid(ctx context.Context) (*pipeline.Result, error) {
	if err := a.cfg.Validate(config.ModePlaid); err != nil {
		return nil, err
	}
	return a.analyze(ctx, a.plaidAdapter())
}

func (a *app) analyze(ctx context.Context, src pipeline.SourceAdapter) (*pipeline.Result, error) {
	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}
	gen, err := a.generator(ctx)
	if err != nil {
		return nil, err
	}

	key := pipeline.NewRunKey(src.Name(), time.Now())
	log := logger.ForRun(logger.FromContext(ctx), key.Source, key.ID)
	ctx = logger.WithContext(ctx, log)
	log.Info().Msg("Starting analysis")

	result, err := pipeline.Run(ctx, src, gen, pipeline.BuildPromptTemplate(src.Name()), a.sink, key)
	if err != nil {
		return nil, err
	}

	printResult(a.out, result)
	a.publish(ctx, key, result)
	return result, nil
}

// fetch saves a raw Plaid record to out, or as a raw_* artifact when out is empty.
func (a *app) fetch(ctx context.Context, out string) error {
	if err := a.cfg.Validate(config.ModeFetch); err != nil {
		return err
	}

	adapter := a.plaidAdapter()
	raw, err := adapter.Fetch(ctx)
	if err != nil {
		return &pipeline.AdapterError{Source: adapter.Name(), Err: err}
	}
	data, err := source.EncodeRaw(raw)
	if err != nil {
		return err
	}

	if out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write raw record: %w", err)
		}
		fmt.Fprintf(a.out, "Raw record saved to %s\n", out)
		return nil
	}

	if err := a.openStorage(ctx); err != nil {
		return err
	}
	name := pipeline.NewRunKey(adapter.Name(), time.Now()).ArtifactName(artifacts.KindRaw)
	if err := a.sink.WriteArtifact(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	fmt.Fprintf(a.out, "Raw record saved as %s\n", name)
	return nil
}

func (a *app) transform(ctx context.Context, in string) error {
	if err := a.cfg.Validate(config.ModeOffline); err != nil {
		return err
	}
	if err := a.openStorage(ctx); err != nil {
		return err
	}

	src := source.NewFileAdapter(in)
	key := pipeline.NewRunKey(src.Name(), time.Now())
	ctx = logger.WithContext(ctx, logger.ForRun(logger.FromContext(ctx), key.Source, key.ID))

	result, err := pipeline.RunTransform(ctx, src, a.sink, key)
	if err != nil {
		return err
	}
	printResult(a.out, result)
	return nil
}

// insights analyzes a transformed_* artifact given by name or gs:// URI.
func (a *app) insights(ctx context.Context, artifact string) error {
	if err := a.cfg.Validate(config.ModeMock); err != nil {
		return err
	}
	if err := a.openStorage(ctx); err != nil {
		return err
	}

	reader, name, err := a.artifactReader(ctx, artifact)
	if err != nil {
		return err
	}
	kind, src, _, err := artifacts.ParseName(name)
	if err != nil {
		return err
	}
	if kind != artifacts.KindTransformed {
		return fmt.Errorf("artifact %s is %s, want %s", name, kind, artifacts.KindTransformed)
	}

	record, err := pipeline.LoadRecord(ctx, reader, name)
	if err != nil {
		return err
	}
	gen, err := a.generator(ctx)
	if err != nil {
		return err
	}

	key := pipeline.NewRunKey(src, time.Now())
	ctx = logger.WithContext(ctx, logger.ForRun(logger.FromContext(ctx), key.Source, key.ID))

	result, err := pipeline.RunInsights(ctx, record, gen, pipeline.BuildPromptTemplate(src), a.sink, key)
	if err != nil {
		return err
	}
	printResult(a.out, result)
	a.publish(ctx, key, result)
	return nil
}

func (a *app) artifactReader(ctx context.Context, artifact string) (pipeline.ArtifactReader, string, error) {
	if !strings.HasPrefix(artifact, "gs://") {
		return a.reader, artifact, nil
	}
	bucket, object, err := artifacts.SplitURI(artifact)
	if err != nil {
		return nil, "", err
	}
	name, err := artifacts.NameFromURI(artifact)
	if err != nil {
		return nil, "", err
	}
	prefix := path.Dir(object)
	if prefix == "." {
		prefix = ""
	}
	store, err := artifacts.NewGCSStore(ctx, bucket, prefix, a.cfg.Artifacts.CredentialsFile)
	if err != nil {
		return nil, "", err
	}
	a.closers = append(a.closers, store)
	return store, name, nil
}

// publish mirrors validated insights to Notion. A completed run never fails here.
func (a *app) publish(ctx context.Context, key pipeline.RunKey, result *pipeline.Result) {
	if !a.cfg.Notion.Enabled() || result.Response == nil {
		return
	}
	client := notionsync.NewNotionClient(a.cfg.Notion.Token)
	if _, err := notionsync.PublishInsights(ctx, client, a.cfg.Notion.DatabaseID, key.String(), result.Response, false); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Publishing insights to Notion failed")
	}
}

// migrate applies the bundled BigQuery migrations for the artifact ledger.
func (a *app) migrate(ctx context.Context, appliedBy string) error {
	if err := a.cfg.Validate(config.ModeOffline); err != nil {
		return err
	}
	if !a.cfg.BigQuery.Enabled() {
		return errors.New("migrate: BIGQUERY_PROJECT_ID is required")
	}

	bq := a.cfg.BigQuery
	migrator, err := infraBQ.NewMigrator(ctx, bq.ProjectID, bq.Dataset, bq.Table, appliedBy, a.googleOptions()...)
	if err != nil {
		return err
	}
	defer migrator.Close()

	count, err := migrator.Migrate(ctx, infraBQ.MigrationsFS())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Applied %d migration(s) to %s.%s\n", count, bq.ProjectID, bq.Dataset)
	return nil
}
