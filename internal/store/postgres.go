package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/groundwater-cli/internal/db"
	"github.com/sells-group/groundwater-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Sample locations are also
// kept as a PostGIS point for spatial queries.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS samples (
	id             TEXT PRIMARY KEY,
	dataset_id     TEXT NOT NULL REFERENCES datasets(id),
	ordinal        INTEGER NOT NULL,
	location       TEXT NOT NULL,
	latitude       DOUBLE PRECISION,
	longitude      DOUBLE PRECISION,
	geom           geometry(Point, 4326),
	concentrations JSONB NOT NULL,
	sampled_at     TIMESTAMPTZ,
	hmpi           DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS assessments (
	id         TEXT PRIMARY KEY,
	dataset_id TEXT NOT NULL UNIQUE REFERENCES datasets(id),
	token      BIGINT NOT NULL,
	assessment JSONB NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	decided_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS review_tokens (
	dataset_id TEXT PRIMARY KEY REFERENCES datasets(id),
	token      BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	dataset_id    TEXT NOT NULL REFERENCES datasets(id),
	assessment_id TEXT NOT NULL,
	action        TEXT NOT NULL,
	correction    JSONB NOT NULL,
	sample_id     TEXT NOT NULL DEFAULT '',
	field         TEXT NOT NULL DEFAULT '',
	old_value     TEXT NOT NULL DEFAULT '',
	new_value     TEXT NOT NULL DEFAULT '',
	old_hmpi      DOUBLE PRECISION NOT NULL DEFAULT 0,
	new_hmpi      DOUBLE PRECISION NOT NULL DEFAULT 0,
	old_risk      TEXT NOT NULL DEFAULT '',
	new_risk      TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_dataset ON samples(dataset_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_samples_geom ON samples USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_audit_dataset ON audit_log(dataset_id, seq);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDataset(ctx context.Context, name string) (*model.Dataset, error) {
	ds := &model.Dataset{ID: uuid.New().String(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO datasets (id, name, created_at) VALUES ($1, $2, $3)`,
		ds.ID, ds.Name, ds.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert dataset")
	}
	return ds, nil
}

func (s *PostgresStore) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	var ds model.Dataset
	err := s.pool.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets d WHERE d.id = $1`, id,
	).Scan(&ds.ID, &ds.Name, &ds.CreatedAt, &ds.SampleCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: dataset %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get dataset %s", id)
	}
	return &ds, nil
}

func (s *PostgresStore) ListDatasets(ctx context.Context) ([]model.Dataset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+datasetColumns+` FROM datasets d ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list datasets")
	}
	defer rows.Close()

	var out []model.Dataset
	for rows.Next() {
		var ds model.Dataset
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.CreatedAt, &ds.SampleCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dataset")
		}
		out = append(out, ds)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list datasets iterate")
}

const postgresUpsertSample = `
INSERT INTO samples (id, dataset_id, ordinal, location, latitude, longitude, geom, concentrations, sampled_at, hmpi, risk)
VALUES ($1, $2, (SELECT COALESCE(MAX(ordinal), -1) + 1 FROM samples WHERE dataset_id = $2), $3, $4, $5, ST_GeomFromEWKB($6), $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	location = EXCLUDED.location,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	geom = EXCLUDED.geom,
	concentrations = EXCLUDED.concentrations,
	sampled_at = EXCLUDED.sampled_at,
	hmpi = EXCLUDED.hmpi,
	risk = EXCLUDED.risk`

func (s *PostgresStore) SaveSamples(ctx context.Context, datasetID string, samples []model.Sample) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save samples")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := upsertSamplesTx(ctx, tx, datasetID, samples); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save samples")
}

func upsertSamplesTx(ctx context.Context, tx pgx.Tx, datasetID string, samples []model.Sample) error {
	for _, smp := range samples {
		conc, err := json.Marshal(smp.Concentrations)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal concentrations for %s", smp.ID)
		}
		geom, err := db.EncodePoint(smp.Point())
		if err != nil {
			return eris.Wrapf(err, "postgres: encode location for %s", smp.ID)
		}
		var sampledAt *time.Time
		if !smp.SampledAt.IsZero() {
			t := smp.SampledAt.UTC()
			sampledAt = &t
		}
		_, err = tx.Exec(ctx, postgresUpsertSample,
			smp.ID, datasetID, smp.Location, smp.Latitude, smp.Longitude,
			geom, conc, sampledAt, smp.HMPI, string(smp.Risk),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert sample %s", smp.ID)
		}
	}
	return nil
}

func (s *PostgresStore) ListSamples(ctx context.Context, datasetID string) ([]model.Sample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, dataset_id, location, latitude, longitude, concentrations, sampled_at, hmpi, risk
		 FROM samples WHERE dataset_id = $1 ORDER BY ordinal`,
		datasetID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list samples")
	}
	defer rows.Close()

	out := []model.Sample{}
	for rows.Next() {
		var (
			smp       model.Sample
			conc      []byte
			sampledAt *time.Time
			risk      string
		)
		if err := rows.Scan(&smp.ID, &smp.DatasetID, &smp.Location, &smp.Latitude, &smp.Longitude,
			&conc, &sampledAt, &smp.HMPI, &risk); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sample")
		}
		if err := json.Unmarshal(conc, &smp.Concentrations); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal concentrations for %s", smp.ID)
		}
		if sampledAt != nil {
			smp.SampledAt = sampledAt.UTC()
		}
		smp.Risk = model.RiskTier(risk)
		out = append(out, smp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list samples iterate")
}

func (s *PostgresStore) NextToken(ctx context.Context, datasetID string) (uint64, error) {
	var token int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO review_tokens (dataset_id, token) VALUES ($1, 1)
		 ON CONFLICT (dataset_id) DO UPDATE SET token = review_tokens.token + 1
		 RETURNING token`,
		datasetID,
	).Scan(&token)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: next review token for %s", datasetID)
	}
	return uint64(token), nil
}

// SaveAssessment upserts only while a.Token is at least the dataset's latest
// issued token.
func (s *PostgresStore) SaveAssessment(ctx context.Context, a *model.StoredAssessment) error {
	prepareAssessment(a, uuid.NewString)
	payload, err := json.Marshal(a.Assessment)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assessment")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO assessments (id, dataset_id, token, assessment, status, created_at, decided_at)
		 SELECT $1, $2, $3, $4, $5, $6, NULL
		 WHERE $3 >= COALESCE((SELECT token FROM review_tokens WHERE dataset_id = $2), 0)
		 ON CONFLICT (dataset_id) DO UPDATE SET
			id = EXCLUDED.id,
			token = EXCLUDED.token,
			assessment = EXCLUDED.assessment,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			decided_at = NULL`,
		a.ID, a.DatasetID, int64(a.Token), payload, string(a.Status), a.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save assessment for %s", a.DatasetID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStaleToken, "postgres: assessment for %s token %d", a.DatasetID, a.Token)
	}
	return nil
}

func (s *PostgresStore) GetAssessment(ctx context.Context, datasetID string) (*model.StoredAssessment, error) {
	var (
		a       model.StoredAssessment
		token   int64
		payload []byte
		status  string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, dataset_id, token, assessment, status, created_at, decided_at
		 FROM assessments WHERE dataset_id = $1`,
		datasetID,
	).Scan(&a.ID, &a.DatasetID, &token, &payload, &status, &a.CreatedAt, &a.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: assessment for %s", datasetID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get assessment for %s", datasetID)
	}
	if err := json.Unmarshal(payload, &a.Assessment); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal assessment")
	}
	a.Token = uint64(token)
	a.Status = model.BatchStatus(status)
	return &a, nil
}

// CommitDecision claims the batch, upserts the corrected samples and copies
// the audit entries in one transaction.
func (s *PostgresStore) CommitDecision(ctx context.Context, d Decision) error {
	if err := checkDecision(d.Status); err != nil {
		return err
	}
	rows, err := auditCopyRows(d.Audit)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin decision")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE assessments SET status = $1, decided_at = $2 WHERE id = $3 AND status = $4`,
		string(d.Status), d.DecidedAt.UTC(), d.AssessmentID, string(model.BatchPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: decide assessment %s", d.AssessmentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "pending assessment %s", d.AssessmentID)
	}
	if err := upsertSamplesTx(ctx, tx, d.DatasetID, d.Samples); err != nil {
		return err
	}
	if _, err := db.CopyFrom(ctx, tx, "audit_log", auditColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: append audit")
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit decision %s", d.AssessmentID)
}

// AppendAudit bulk-loads entries with COPY inside a transaction.
func (s *PostgresStore) AppendAudit(ctx context.Context, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows, err := auditCopyRows(entries)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append audit")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := db.CopyFrom(ctx, tx, "audit_log", auditColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: append audit")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit append audit")
}

func auditCopyRows(entries []model.AuditEntry) ([][]any, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		row, err := auditRow(e)
		if err != nil {
			return nil, err
		}
		// JSONB columns take raw bytes over COPY.
		row[4] = []byte(row[4].(string))
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, datasetID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auditColumnList+` FROM audit_log WHERE dataset_id = $1 ORDER BY seq`,
		datasetID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	out := []model.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}
