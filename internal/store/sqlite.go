package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/groundwater-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS samples (
	id             TEXT PRIMARY KEY,
	dataset_id     TEXT NOT NULL REFERENCES datasets(id),
	ordinal        INTEGER NOT NULL,
	location       TEXT NOT NULL,
	latitude       REAL,
	longitude      REAL,
	concentrations TEXT NOT NULL,
	sampled_at     DATETIME,
	hmpi           REAL NOT NULL DEFAULT 0,
	risk           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS assessments (
	id         TEXT PRIMARY KEY,
	dataset_id TEXT NOT NULL UNIQUE REFERENCES datasets(id),
	token      INTEGER NOT NULL,
	assessment TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	decided_at DATETIME
);

CREATE TABLE IF NOT EXISTS review_tokens (
	dataset_id TEXT PRIMARY KEY REFERENCES datasets(id),
	token      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	dataset_id    TEXT NOT NULL REFERENCES datasets(id),
	assessment_id TEXT NOT NULL,
	action        TEXT NOT NULL,
	correction    TEXT NOT NULL,
	sample_id     TEXT NOT NULL DEFAULT '',
	field         TEXT NOT NULL DEFAULT '',
	old_value     TEXT NOT NULL DEFAULT '',
	new_value     TEXT NOT NULL DEFAULT '',
	old_hmpi      REAL NOT NULL DEFAULT 0,
	new_hmpi      REAL NOT NULL DEFAULT 0,
	old_risk      TEXT NOT NULL DEFAULT '',
	new_risk      TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_dataset ON samples(dataset_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_audit_dataset ON audit_log(dataset_id, seq);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const datasetColumns = `d.id, d.name, d.created_at, (SELECT COUNT(*) FROM samples WHERE dataset_id = d.id)`

func (s *SQLiteStore) CreateDataset(ctx context.Context, name string) (*model.Dataset, error) {
	ds := &model.Dataset{ID: uuid.New().String(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, name, created_at) VALUES (?, ?, ?)`,
		ds.ID, ds.Name, ds.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert dataset")
	}
	return ds, nil
}

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets d WHERE d.id = ?`, id)
	var ds model.Dataset
	err := row.Scan(&ds.ID, &ds.Name, &ds.CreatedAt, &ds.SampleCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: dataset %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get dataset %s", id)
	}
	return &ds, nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]model.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets d ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list datasets")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Dataset
	for rows.Next() {
		var ds model.Dataset
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.CreatedAt, &ds.SampleCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dataset")
		}
		out = append(out, ds)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list datasets iterate")
}

const sqliteUpsertSample = `
INSERT INTO samples (id, dataset_id, ordinal, location, latitude, longitude, concentrations, sampled_at, hmpi, risk)
VALUES (?, ?, (SELECT COALESCE(MAX(ordinal), -1) + 1 FROM samples WHERE dataset_id = ?), ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	location = excluded.location,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	concentrations = excluded.concentrations,
	sampled_at = excluded.sampled_at,
	hmpi = excluded.hmpi,
	risk = excluded.risk`

func (s *SQLiteStore) SaveSamples(ctx context.Context, datasetID string, samples []model.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save samples")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertSamples(ctx, tx, datasetID, samples); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save samples")
}

func upsertSamples(ctx context.Context, tx *sql.Tx, datasetID string, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSample)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert sample")
	}
	defer stmt.Close() //nolint:errcheck

	for _, smp := range samples {
		conc, err := json.Marshal(smp.Concentrations)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal concentrations for %s", smp.ID)
		}
		var sampledAt sql.NullTime
		if !smp.SampledAt.IsZero() {
			sampledAt = sql.NullTime{Time: smp.SampledAt.UTC(), Valid: true}
		}
		_, err = stmt.ExecContext(ctx,
			smp.ID, datasetID, datasetID, smp.Location, smp.Latitude, smp.Longitude,
			string(conc), sampledAt, smp.HMPI, string(smp.Risk),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert sample %s", smp.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListSamples(ctx context.Context, datasetID string) ([]model.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset_id, location, latitude, longitude, concentrations, sampled_at, hmpi, risk
		 FROM samples WHERE dataset_id = ? ORDER BY ordinal`,
		datasetID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list samples")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Sample{}
	for rows.Next() {
		var (
			smp       model.Sample
			lat, lng  sql.NullFloat64
			conc      string
			sampledAt sql.NullTime
			risk      string
		)
		if err := rows.Scan(&smp.ID, &smp.DatasetID, &smp.Location, &lat, &lng, &conc, &sampledAt, &smp.HMPI, &risk); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sample")
		}
		if err := json.Unmarshal([]byte(conc), &smp.Concentrations); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal concentrations for %s", smp.ID)
		}
		if lat.Valid {
			smp.Latitude = model.Float(lat.Float64)
		}
		if lng.Valid {
			smp.Longitude = model.Float(lng.Float64)
		}
		if sampledAt.Valid {
			smp.SampledAt = sampledAt.Time.UTC()
		}
		smp.Risk = model.RiskTier(risk)
		out = append(out, smp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list samples iterate")
}

func (s *SQLiteStore) NextToken(ctx context.Context, datasetID string) (uint64, error) {
	var token int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO review_tokens (dataset_id, token) VALUES (?, 1)
		 ON CONFLICT (dataset_id) DO UPDATE SET token = token + 1
		 RETURNING token`,
		datasetID,
	).Scan(&token)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: next review token for %s", datasetID)
	}
	return uint64(token), nil
}

// SaveAssessment upserts only while a.Token is at least the dataset's latest
// issued token; the check and the write are one statement.
func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *model.StoredAssessment) error {
	prepareAssessment(a, uuid.NewString)
	payload, err := json.Marshal(a.Assessment)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal assessment")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, dataset_id, token, assessment, status, created_at, decided_at)
		 SELECT ?, ?, ?, ?, ?, ?, NULL
		 WHERE ? >= COALESCE((SELECT token FROM review_tokens WHERE dataset_id = ?), 0)
		 ON CONFLICT (dataset_id) DO UPDATE SET
			id = excluded.id,
			token = excluded.token,
			assessment = excluded.assessment,
			status = excluded.status,
			created_at = excluded.created_at,
			decided_at = NULL`,
		a.ID, a.DatasetID, int64(a.Token), string(payload), string(a.Status), a.CreatedAt,
		int64(a.Token), a.DatasetID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save assessment for %s", a.DatasetID)
	}
	if n, err := res.RowsAffected(); err != nil {
		return eris.Wrap(err, "sqlite: save assessment rows affected")
	} else if n == 0 {
		return eris.Wrapf(ErrStaleToken, "sqlite: assessment for %s token %d", a.DatasetID, a.Token)
	}
	return nil
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, datasetID string) (*model.StoredAssessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset_id, token, assessment, status, created_at, decided_at
		 FROM assessments WHERE dataset_id = ?`,
		datasetID,
	)

	var (
		a         model.StoredAssessment
		token     int64
		payload   string
		status    string
		decidedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.DatasetID, &token, &payload, &status, &a.CreatedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: assessment for %s", datasetID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get assessment for %s", datasetID)
	}
	if err := json.Unmarshal([]byte(payload), &a.Assessment); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal assessment")
	}
	a.Token = uint64(token)
	a.Status = model.BatchStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time.UTC()
		a.DecidedAt = &t
	}
	return &a, nil
}

// CommitDecision runs the claim, the sample upserts and the audit inserts in
// one transaction. The claim goes first so a losing caller writes nothing.
func (s *SQLiteStore) CommitDecision(ctx context.Context, d Decision) error {
	if err := checkDecision(d.Status); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin decision")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE assessments SET status = ?, decided_at = ? WHERE id = ? AND status = ?`,
		string(d.Status), d.DecidedAt.UTC(), d.AssessmentID, string(model.BatchPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: decide assessment %s", d.AssessmentID)
	}
	if err := checkRowsAffected(res, "pending assessment", d.AssessmentID); err != nil {
		return err
	}
	if err := upsertSamples(ctx, tx, d.DatasetID, d.Samples); err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, d.Audit); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit decision %s", d.AssessmentID)
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append audit")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertAudit(ctx, tx, entries); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append audit")
}

func insertAudit(ctx context.Context, tx *sql.Tx, entries []model.AuditEntry) error {
	for _, e := range entries {
		row, err := auditRow(e)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO audit_log (`+auditColumnList+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row...,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert audit entry %s", e.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, datasetID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditColumnList+` FROM audit_log WHERE dataset_id = ? ORDER BY seq`,
		datasetID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

// helpers

var auditColumns = []string{
	"id", "dataset_id", "assessment_id", "action", "correction", "sample_id", "field",
	"old_value", "new_value", "old_hmpi", "new_hmpi", "old_risk", "new_risk", "reason", "created_at",
}

const auditColumnList = `id, dataset_id, assessment_id, action, correction, sample_id, field,
	old_value, new_value, old_hmpi, new_hmpi, old_risk, new_risk, reason, created_at`

func auditRow(e model.AuditEntry) ([]any, error) {
	corr, err := json.Marshal(e.Correction)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal correction")
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return []any{
		e.ID, e.DatasetID, e.AssessmentID, string(e.Action), string(corr), e.SampleID, e.Field,
		e.OldValue, e.NewValue, e.OldHMPI, e.NewHMPI, string(e.OldRisk), string(e.NewRisk), e.Reason, created.UTC(),
	}, nil
}

func scanAudit(row scannable) (*model.AuditEntry, error) {
	var (
		e                model.AuditEntry
		action, corr     string
		oldRisk, newRisk string
	)
	err := row.Scan(&e.ID, &e.DatasetID, &e.AssessmentID, &action, &corr, &e.SampleID, &e.Field,
		&e.OldValue, &e.NewValue, &e.OldHMPI, &e.NewHMPI, &oldRisk, &newRisk, &e.Reason, &e.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan audit entry")
	}
	if err := json.Unmarshal([]byte(corr), &e.Correction); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal correction")
	}
	e.Action = model.AuditAction(action)
	e.OldRisk, e.NewRisk = model.RiskTier(oldRisk), model.RiskTier(newRisk)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
