// Package store persists contacts, tags, sessions and import jobs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-import/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// TagStore reads and creates company tags.
type TagStore interface {
	ListTags(ctx context.Context, companyID string) ([]model.Tag, error)
	// CreateTags creates the named tags that do not exist yet and returns the
	// stored row for every name, whether created now or earlier.
	CreateTags(ctx context.Context, companyID string, names []string, tagType model.TagType) ([]model.Tag, error)
}

// ContactStore reads and writes company contacts.
type ContactStore interface {
	// ListContacts returns the contacts of a company that are not soft deleted.
	ListContacts(ctx context.Context, companyID string) ([]model.Contact, error)
	CreateContacts(ctx context.Context, contacts []model.Contact) (int64, error)
	UpdateContactTags(ctx context.Context, companyID, contactID string, tagIDs []string) error
}

// SystemTagStore looks up global system tags.
type SystemTagStore interface {
	// SystemTagsBySlug returns the tags found for slugs, keyed by slug.
	SystemTagsBySlug(ctx context.Context, slugs ...string) (map[string]model.SystemTag, error)
}

// SessionStore looks up messaging channels.
type SessionStore interface {
	// DefaultSession returns the default channel of a company, falling back
	// to any working channel. It returns ErrNotFound when none exists.
	DefaultSession(ctx context.Context, companyID string) (*model.Session, error)
}

// JobStore tracks import job progress.
type JobStore interface {
	CreateJob(ctx context.Context, companyID, name string, total int) (*model.ImportJob, error)
	GetJob(ctx context.Context, companyID, jobID string) (*model.ImportJob, error)
	// StartJob moves a job of companyID to processing with its record total
	// and zeroed counters. It returns ErrNotFound when the company has no such
	// job.
	StartJob(ctx context.Context, companyID, jobID string, total int) error
	UpdateJobProgress(ctx context.Context, companyID, jobID string, p model.JobProgress) error
	// FinishJob writes final counters and a terminal status with its
	// completion time. It returns ErrNotFound when the company has no such
	// job.
	FinishJob(ctx context.Context, companyID, jobID string, p model.JobProgress) error
	// AbortStaleJobs marks processing jobs not updated since before as
	// aborted and returns how many were changed.
	AbortStaleJobs(ctx context.Context, before time.Time) (int64, error)
}

// Store is the full persistence interface of the importer.
type Store interface {
	TagStore
	ContactStore
	SystemTagStore
	SessionStore
	JobStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
