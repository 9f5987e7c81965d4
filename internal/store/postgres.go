package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-import/internal/db"
	"github.com/sells-group/crm-import/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	q       queries
	now     func() time.Time
	newID   func() string
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`
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
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		closeFn: closeFn,
		q: queries{
			sb:       sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
			greatest: "GREATEST",
		},
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	phones        JSONB NOT NULL DEFAULT '[]',
	tags          TEXT[] NOT NULL DEFAULT '{}',
	position      TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	notes         JSONB NOT NULL DEFAULT '[]',
	value         DOUBLE PRECISION,
	avatar_url    TEXT NOT NULL DEFAULT '',
	nickname      TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	import_name   TEXT NOT NULL DEFAULT '',
	checked       BOOLEAN NOT NULL DEFAULT false,
	number_exists BOOLEAN NOT NULL DEFAULT false,
	deleted_at    TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_company ON contacts(company_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS tags (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	name_key   TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'manual',
	is_smart   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (company_id, name_key)
);

CREATE TABLE IF NOT EXISTS system_tags (
	id   TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

INSERT INTO system_tags (id, slug, name) VALUES
	('system-invalid-number', 'invalid_number', 'Invalid number'),
	('system-number-not-exists', 'number_not_exists', 'Number not on WhatsApp')
ON CONFLICT (slug) DO NOTHING;

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'STOPPED',
	is_default BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_sessions_company ON sessions(company_id);

CREATE TABLE IF NOT EXISTS import_jobs (
	id                 TEXT PRIMARY KEY,
	company_id         TEXT NOT NULL,
	name               TEXT NOT NULL DEFAULT '',
	total_records      INTEGER NOT NULL DEFAULT 0,
	processed_records  INTEGER NOT NULL DEFAULT 0,
	successful_records INTEGER NOT NULL DEFAULT 0,
	failed_records     INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'pending',
	error              TEXT NOT NULL DEFAULT '',
	completed_date     TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_status ON import_jobs(status, updated_at);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema and seeds the system tags.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, b sq.Sqlizer, op string) (pgx.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: build %s", op)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	return rows, nil
}

func (s *PostgresStore) exec(ctx context.Context, b sq.Sqlizer, op string) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: build %s", op)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: %s", op)
	}
	return tag.RowsAffected(), nil
}

// ListContacts implements ContactStore.
func (s *PostgresStore) ListContacts(ctx context.Context, companyID string) ([]model.Contact, error) {
	rows, err := s.query(ctx, s.q.listContacts(companyID), "list contacts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		var phones, notes []byte
		if err := rows.Scan(
			&c.ID, &c.CompanyID, &c.Name, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &phones,
			&c.Tags, &c.Position, &c.Organization, &notes, &c.Value, &c.AvatarURL, &c.Nickname,
			&c.Source, &c.ImportName, &c.Checked, &c.NumberExists, &c.DeletedAt, &c.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		if err := unmarshalContactJSON(&c, phones, notes); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

// CreateContacts implements ContactStore with a single COPY.
func (s *PostgresStore) CreateContacts(ctx context.Context, contacts []model.Contact) (int64, error) {
	rows := make([][]any, 0, len(contacts))
	for _, c := range contacts {
		phones, err := marshalJSON(nonNilPhones(c.Phones), "phones")
		if err != nil {
			return 0, err
		}
		notes, err := marshalJSON(nonNilStrings(c.Notes), "notes")
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			c.ID, c.CompanyID, c.Name, c.FirstName, c.LastName, c.Email, c.Phone, phones,
			nonNilStrings(c.Tags), c.Position, c.Organization, notes, c.Value, c.AvatarURL, c.Nickname,
			c.Source, c.ImportName, c.Checked, c.NumberExists, c.DeletedAt, c.CreatedAt,
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, "contacts", contactColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: create contacts")
	}
	return n, nil
}

// UpdateContactTags implements ContactStore.
func (s *PostgresStore) UpdateContactTags(ctx context.Context, companyID, contactID string, tagIDs []string) error {
	n, err := s.exec(ctx, s.q.updateContactTags(companyID, contactID, nonNilStrings(tagIDs)), "update contact tags")
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: contact %s", contactID)
	}
	return nil
}

// ListTags implements TagStore.
func (s *PostgresStore) ListTags(ctx context.Context, companyID string) ([]model.Tag, error) {
	return s.selectTags(ctx, s.q.listTags(companyID), "list tags")
}

// CreateTags implements TagStore. Rows that already exist are kept and
// returned as stored.
func (s *PostgresStore) CreateTags(ctx context.Context, companyID string, names []string, tagType model.TagType) ([]model.Tag, error) {
	rows, keys := tagRows(companyID, names, tagType, s.newID, s.now())
	if len(rows) == 0 {
		return nil, nil
	}

	if _, err := db.InsertMissing(ctx, s.pool, db.InsertMissingConfig{
		Table:        "tags",
		Columns:      tagInsertColumns,
		ConflictKeys: []string{"company_id", "name_key"},
	}, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: create tags")
	}
	return s.selectTags(ctx, s.q.tagsByKey(companyID, keys), "select created tags")
}

func (s *PostgresStore) selectTags(ctx context.Context, b sq.Sqlizer, op string) ([]model.Tag, error) {
	rows, err := s.query(ctx, b, op)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.Type, &t.IsSmart, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tag")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tags")
}

// SystemTagsBySlug implements SystemTagStore.
func (s *PostgresStore) SystemTagsBySlug(ctx context.Context, slugs ...string) (map[string]model.SystemTag, error) {
	out := make(map[string]model.SystemTag, len(slugs))
	if len(slugs) == 0 {
		return out, nil
	}
	rows, err := s.query(ctx, s.q.systemTags(slugs), "system tags")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t model.SystemTag
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan system tag")
		}
		out[t.Slug] = t
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate system tags")
}

// DefaultSession implements SessionStore.
func (s *PostgresStore) DefaultSession(ctx context.Context, companyID string) (*model.Session, error) {
	query, args, err := s.q.defaultSession(companyID).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build default session")
	}
	var sess model.Session
	err = s.pool.QueryRow(ctx, query, args...).Scan(&sess.ID, &sess.CompanyID, &sess.Name, &sess.Status, &sess.IsDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: default session for %s", companyID)
	}
	return &sess, nil
}

// CreateJob implements JobStore.
func (s *PostgresStore) CreateJob(ctx context.Context, companyID, name string, total int) (*model.ImportJob, error) {
	now := s.now()
	j := model.ImportJob{
		ID:        s.newID(),
		CompanyID: companyID,
		Name:      name,
		Total:     total,
		Status:    model.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.exec(ctx, s.q.insertJob(j), "create job"); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJob implements JobStore.
func (s *PostgresStore) GetJob(ctx context.Context, companyID, jobID string) (*model.ImportJob, error) {
	query, args, err := s.q.getJob(companyID, jobID).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get job")
	}
	var j model.ImportJob
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&j.ID, &j.CompanyID, &j.Name, &j.Total, &j.Processed, &j.Successful,
		&j.Failed, &j.Status, &j.Error, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return &j, nil
}

// StartJob implements JobStore.
func (s *PostgresStore) StartJob(ctx context.Context, companyID, jobID string, total int) error {
	n, err := s.exec(ctx, s.q.startJob(companyID, jobID, total, s.now()), "start job")
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", jobID)
	}
	return nil
}

// UpdateJobProgress implements JobStore. A terminal job is left as is.
func (s *PostgresStore) UpdateJobProgress(ctx context.Context, companyID, jobID string, p model.JobProgress) error {
	_, err := s.exec(ctx, s.q.updateJobProgress(companyID, jobID, p, s.now()), "update job progress")
	return err
}

// FinishJob implements JobStore.
func (s *PostgresStore) FinishJob(ctx context.Context, companyID, jobID string, p model.JobProgress) error {
	n, err := s.exec(ctx, s.q.finishJob(companyID, jobID, p, s.now()), "finish job")
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", jobID)
	}
	return nil
}

// AbortStaleJobs implements JobStore.
func (s *PostgresStore) AbortStaleJobs(ctx context.Context, before time.Time) (int64, error) {
	return s.exec(ctx, s.q.abortStaleJobs(before, s.now()), "abort stale jobs")
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilPhones(v []model.Phone) []model.Phone {
	if v == nil {
		return []model.Phone{}
	}
	return v
}
