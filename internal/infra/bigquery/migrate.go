package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/aperture/internal/logger"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS holds the bundled schema migrations.
func MigrationsFS() fs.FS {
	sub, _ := fs.Sub(embeddedMigrations, "migrations")
	return sub
}

// Migration files are named 0001_name.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// LoadMigrations reads every migration in fsys sorted by version. Each
// {{KEY}} placeholder is replaced with vars[KEY]. The checksum covers the
// file content before replacement.
func LoadMigrations(fsys fs.FS, vars map[string]string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, other, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(".", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		sql := string(content)
		for key, value := range vars {
			sql = strings.ReplaceAll(sql, "{{"+key+"}}", value)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrator applies pending migrations to a dataset and records them in its
// schema_migrations table.
type Migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	table     string
	appliedBy string
}

func NewMigrator(ctx context.Context, projectID, datasetID, table, appliedBy string, opts ...option.ClientOption) (*Migrator, error) {
	if projectID == "" || datasetID == "" || table == "" {
		return nil, errors.New("NewMigrator: project, dataset and table are required")
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewMigrator: creating client: %w", err)
	}
	return &Migrator{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		table:     table,
		appliedBy: appliedBy,
	}, nil
}

func (m *Migrator) Close() error {
	return m.client.Close()
}

// Vars returns the placeholder values used to render migrations.
func (m *Migrator) Vars() map[string]string {
	return migrationVars(m.projectID, m.datasetID, m.table)
}

func migrationVars(projectID, datasetID, table string) map[string]string {
	return map[string]string{
		"PROJECT_ID":      projectID,
		"DATASET_ID":      datasetID,
		"ARTIFACTS_TABLE": table,
	}
}

// Migrate applies every migration in fsys that is not yet recorded and
// returns how many ran.
func (m *Migrator) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	log := logger.FromContext(ctx).With().
		Str("project_id", m.projectID).
		Str("dataset", m.datasetID).
		Logger()

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := LoadMigrations(fsys, m.Vars())
	if err != nil {
		return 0, err
	}
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return 0, err
	}
	log.Info().Int("found", len(migrations)).Int("applied", len(applied)).Msg("Loaded migrations")

	checksums := make(map[int]string, len(applied))
	for _, am := range applied {
		checksums[am.Version] = am.Checksum
	}

	count := 0
	for _, migration := range migrations {
		entry := log.With().Int("version", migration.Version).Str("name", migration.Name).Logger()

		if checksum, ok := checksums[migration.Version]; ok {
			if checksum != "" && checksum != migration.Checksum {
				entry.Warn().Msg("Applied migration has changed since it ran")
			}
			entry.Debug().Msg("Skipping applied migration")
			continue
		}

		entry.Info().Msg("Applying migration")
		if err := runStatement(ctx, m.client.Query(migration.SQL)); err != nil {
			return count, fmt.Errorf("migration %04d_%s: %w", migration.Version, migration.Name, err)
		}
		if err := m.recordMigration(ctx, migration); err != nil {
			return count, fmt.Errorf("record migration %04d_%s: %w", migration.Version, migration.Name, err)
		}
		count++
	}

	log.Info().Int("count", count).Msg("Migrations complete")
	return count, nil
}

func (m *Migrator) migrationsTable() string {
	return tableRef(m.projectID, m.datasetID, "schema_migrations")
}

func ensureSchemaMigrationsQuery(projectID, datasetID, table string) string {
	return fmt.Sprintf(`
		CREATE SCHEMA IF NOT EXISTS `+"`%s.%s`"+`;
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		);
	`, projectID, datasetID, table)
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	q := m.client.Query(ensureSchemaMigrationsQuery(m.projectID, m.datasetID, m.migrationsTable()))
	return runStatement(ctx, q)
}

func (m *Migrator) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	q := m.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + m.migrationsTable() + `
		ORDER BY version ASC
	`)
	it, err := q.Read(ctx)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}
		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func (m *Migrator) recordMigration(ctx context.Context, migration Migration) error {
	q := m.client.Query(`
		INSERT INTO ` + m.migrationsTable() + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}
	return runStatement(ctx, q)
}

// runStatement runs q and waits for the job to finish.
func runStatement(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
