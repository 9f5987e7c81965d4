package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crm-import/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local runs
// of the import command and the package tests.
type SQLiteStore struct {
	db    *sql.DB
	q     queries
	now   func() time.Time
	newID func() string
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{
		db: db,
		q: queries{
			sb:       sq.StatementBuilder.PlaceholderFormat(sq.Question),
			greatest: "MAX",
		},
		// Timestamps are stored as text, so they only order correctly in a
		// single zone at a fixed precision.
		now:   func() time.Time { return sqliteTime(time.Now()) },
		newID: func() string { return uuid.New().String() },
	}, nil
}

func sqliteTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	phones        TEXT NOT NULL DEFAULT '[]',
	tags          TEXT NOT NULL DEFAULT '[]',
	position      TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '[]',
	value         REAL,
	avatar_url    TEXT NOT NULL DEFAULT '',
	nickname      TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	import_name   TEXT NOT NULL DEFAULT '',
	checked       INTEGER NOT NULL DEFAULT 0,
	number_exists INTEGER NOT NULL DEFAULT 0,
	deleted_at    DATETIME,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contacts_company ON contacts(company_id);

CREATE TABLE IF NOT EXISTS tags (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	name_key   TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'manual',
	is_smart   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
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
	is_default INTEGER NOT NULL DEFAULT 0
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
	completed_date     DATETIME,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_status ON import_jobs(status, updated_at);
`

// Ping checks connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates the schema and seeds the system tags.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddSession inserts a session row. Sessions are owned by the channel
// service; this exists for local setups and tests.
func (s *SQLiteStore) AddSession(ctx context.Context, sess model.Session) error {
	_, err := s.exec(ctx, s.db, s.q.sb.Insert("sessions").
		Columns(sessionColumns...).
		Values(sess.ID, sess.CompanyID, sess.Name, sess.Status, sess.IsDefault), "add session")
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) exec(ctx context.Context, e execer, b sq.Sqlizer, op string) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: build %s", op)
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s", op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s rows affected", op)
	}
	return n, nil
}

func (s *SQLiteStore) query(ctx context.Context, b sq.Sqlizer, op string) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: build %s", op)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	return rows, nil
}

// ListContacts implements ContactStore.
func (s *SQLiteStore) ListContacts(ctx context.Context, companyID string) ([]model.Contact, error) {
	rows, err := s.query(ctx, s.q.listContacts(companyID), "list contacts")
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		var phones, tags, notes string
		if err := rows.Scan(
			&c.ID, &c.CompanyID, &c.Name, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &phones,
			&tags, &c.Position, &c.Organization, &notes, &c.Value, &c.AvatarURL, &c.Nickname,
			&c.Source, &c.ImportName, &c.Checked, &c.NumberExists, &c.DeletedAt, &c.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal tags")
		}
		if err := unmarshalContactJSON(&c, []byte(phones), []byte(notes)); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

// CreateContacts implements ContactStore. The rows are written in one
// statement, so either all of them are stored or none.
func (s *SQLiteStore) CreateContacts(ctx context.Context, contacts []model.Contact) (int64, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	ins := s.q.sb.Insert("contacts").Columns(contactColumns...)
	for _, c := range contacts {
		phones, err := marshalJSON(nonNilPhones(c.Phones), "phones")
		if err != nil {
			return 0, err
		}
		tags, err := marshalJSON(nonNilStrings(c.Tags), "tags")
		if err != nil {
			return 0, err
		}
		notes, err := marshalJSON(nonNilStrings(c.Notes), "notes")
		if err != nil {
			return 0, err
		}
		var value, deletedAt any
		if c.Value != nil {
			value = *c.Value
		}
		if c.DeletedAt != nil {
			deletedAt = sqliteTime(*c.DeletedAt)
		}
		ins = ins.Values(
			c.ID, c.CompanyID, c.Name, c.FirstName, c.LastName, c.Email, c.Phone, string(phones),
			string(tags), c.Position, c.Organization, string(notes), value, c.AvatarURL, c.Nickname,
			c.Source, c.ImportName, c.Checked, c.NumberExists, deletedAt, sqliteTime(c.CreatedAt),
		)
	}
	return s.exec(ctx, s.db, ins, "create contacts")
}

// UpdateContactTags implements ContactStore.
func (s *SQLiteStore) UpdateContactTags(ctx context.Context, companyID, contactID string, tagIDs []string) error {
	tags, err := marshalJSON(nonNilStrings(tagIDs), "tags")
	if err != nil {
		return err
	}
	n, err := s.exec(ctx, s.db, s.q.updateContactTags(companyID, contactID, string(tags)), "update contact tags")
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: contact %s", contactID)
	}
	return nil
}

// ListTags implements TagStore.
func (s *SQLiteStore) ListTags(ctx context.Context, companyID string) ([]model.Tag, error) {
	return s.selectTags(ctx, s.q.listTags(companyID), "list tags")
}

// CreateTags implements TagStore. Names whose key already exists are left
// as stored and returned.
func (s *SQLiteStore) CreateTags(ctx context.Context, companyID string, names []string, tagType model.TagType) ([]model.Tag, error) {
	rows, keys := tagRows(companyID, names, tagType, s.newID, s.now())
	if len(rows) == 0 {
		return nil, nil
	}
	ins := s.q.sb.Insert("tags").
		Columns(tagInsertColumns...).
		Suffix("ON CONFLICT (company_id, name_key) DO NOTHING")
	for _, r := range rows {
		ins = ins.Values(r...)
	}
	if _, err := s.exec(ctx, s.db, ins, "create tags"); err != nil {
		return nil, err
	}
	return s.selectTags(ctx, s.q.tagsByKey(companyID, keys), "select created tags")
}

func (s *SQLiteStore) selectTags(ctx context.Context, b sq.Sqlizer, op string) ([]model.Tag, error) {
	rows, err := s.query(ctx, b, op)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.Type, &t.IsSmart, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tag")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate tags")
}

// SystemTagsBySlug implements SystemTagStore.
func (s *SQLiteStore) SystemTagsBySlug(ctx context.Context, slugs ...string) (map[string]model.SystemTag, error) {
	out := make(map[string]model.SystemTag, len(slugs))
	if len(slugs) == 0 {
		return out, nil
	}
	rows, err := s.query(ctx, s.q.systemTags(slugs), "system tags")
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var t model.SystemTag
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan system tag")
		}
		out[t.Slug] = t
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate system tags")
}

// DefaultSession implements SessionStore.
func (s *SQLiteStore) DefaultSession(ctx context.Context, companyID string) (*model.Session, error) {
	query, args, err := s.q.defaultSession(companyID).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build default session")
	}
	var sess model.Session
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&sess.ID, &sess.CompanyID, &sess.Name, &sess.Status, &sess.IsDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: default session for %s", companyID)
	}
	return &sess, nil
}

// CreateJob implements JobStore.
func (s *SQLiteStore) CreateJob(ctx context.Context, companyID, name string, total int) (*model.ImportJob, error) {
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
	if _, err := s.exec(ctx, s.db, s.q.insertJob(j), "create job"); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJob implements JobStore.
func (s *SQLiteStore) GetJob(ctx context.Context, companyID, jobID string) (*model.ImportJob, error) {
	query, args, err := s.q.getJob(companyID, jobID).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get job")
	}
	var j model.ImportJob
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&j.ID, &j.CompanyID, &j.Name, &j.Total, &j.Processed, &j.Successful,
		&j.Failed, &j.Status, &j.Error, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return &j, nil
}

// StartJob implements JobStore.
func (s *SQLiteStore) StartJob(ctx context.Context, companyID, jobID string, total int) error {
	n, err := s.exec(ctx, s.db, s.q.startJob(companyID, jobID, total, s.now()), "start job")
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: job %s", jobID)
	}
	return nil
}

// UpdateJobProgress implements JobStore. A terminal job is left as is.
func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, companyID, jobID string, p model.JobProgress) error {
	_, err := s.exec(ctx, s.db, s.q.updateJobProgress(companyID, jobID, p, s.now()), "update job progress")
	return err
}

// FinishJob implements JobStore.
func (s *SQLiteStore) FinishJob(ctx context.Context, companyID, jobID string, p model.JobProgress) error {
	n, err := s.exec(ctx, s.db, s.q.finishJob(companyID, jobID, p, s.now()), "finish job")
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: job %s", jobID)
	}
	return nil
}

// AbortStaleJobs implements JobStore.
func (s *SQLiteStore) AbortStaleJobs(ctx context.Context, before time.Time) (int64, error) {
	return s.exec(ctx, s.db, s.q.abortStaleJobs(sqliteTime(before), s.now()), "abort stale jobs")
}
