// Package importer runs bulk contact imports: prepare, then fixed-size
// batches of validate, classify and persist, reporting progress after each.
package importer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/directory"
	"github.com/sells-group/crm-import/internal/enrich"
	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/progress"
	"github.com/sells-group/crm-import/internal/store"
)

// Input errors. The job is never started for these.
var (
	ErrNoCompany = eris.New("importer: company is required")
	ErrNoRecords = eris.New("importer: no contacts to import")
)

// IsInputError reports whether err is a caller error.
func IsInputError(err error) bool {
	return eris.Is(err, ErrNoCompany) || eris.Is(err, ErrNoRecords)
}

// Policy paces the batch loop.
type Policy struct {
	BatchSize int
	// Pause follows every batch so observers see each transition.
	Pause time.Duration
}

// DefaultPolicy is the production pacing.
func DefaultPolicy() Policy {
	return Policy{BatchSize: 5, Pause: 500 * time.Millisecond}
}

// NumberResolver resolves a raw phone against the directory.
type NumberResolver interface {
	Resolve(ctx context.Context, raw, session string) directory.Resolution
}

// ContactEnricher merges directory profile data into a contact.
type ContactEnricher interface {
	Enrich(ctx context.Context, c *model.PreparedContact, req enrich.Request) enrich.Outcome
}

// ProgressReporter delivers progress snapshots.
type ProgressReporter interface {
	Report(ctx context.Context, jobID, companyID string, snap model.Snapshot) progress.Delivery
}

// Deps are the collaborators of an Orchestrator. Resolver, Enricher and
// Sessions may be nil, which disables directory validation.
type Deps struct {
	Contacts   store.ContactStore
	Tags       store.TagStore
	SystemTags store.SystemTagStore
	Jobs       store.JobStore
	Sessions   store.SessionStore

	Resolver NumberResolver
	Enricher ContactEnricher
	Reporter ProgressReporter

	Policy Policy
	// VerboseIndex logs every duplicate index collision.
	VerboseIndex bool

	Now   func() time.Time
	NewID func() string
}

// Job is one import request of a company.
type Job struct {
	// ID is the durable job id. A job is created when it is empty.
	ID        string
	CompanyID string
	Request   model.ImportRequest
}

// Orchestrator runs imports. It is safe for concurrent use by independent
// jobs.
type Orchestrator struct {
	deps Deps
}

// New creates an Orchestrator, defaulting the policy, clock and id source.
func New(deps Deps) *Orchestrator {
	if deps.Policy.BatchSize <= 0 {
		deps.Policy.BatchSize = DefaultPolicy().BatchSize
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.New().String() }
	}
	return &Orchestrator{deps: deps}
}

// Run imports job. Per-record and per-batch failures are counted in the
// summary; only a prepare failure or cancellation returns an error, after
// marking the job aborted.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*model.Summary, error) {
	if job.CompanyID == "" {
		return nil, ErrNoCompany
	}
	total := len(job.Request.Contacts)
	if total == 0 {
		return nil, ErrNoRecords
	}

	started := o.deps.Now()
	jobID, err := o.startJob(ctx, job, total)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("company_id", job.CompanyID),
		zap.String("job_id", jobID),
		zap.Int("total", total),
	)
	log.Info("importer: starting import", zap.String("name", job.Request.ImportName))

	r := &run{
		o:       o,
		jobID:   jobID,
		company: job.CompanyID,
		name:    job.Request.ImportName,
		log:     log,
		counts:  model.Snapshot{Total: total, Status: model.JobStatusProcessing},
		errors:  []string{},
	}

	if err := r.prepare(ctx, job.Request); err != nil {
		r.abort(ctx, err)
		return nil, eris.Wrap(err, "importer: prepare")
	}

	size := o.deps.Policy.BatchSize
	for start, batchNo := 0, 1; start < len(r.records); start, batchNo = start+size, batchNo+1 {
		end := min(start+size, len(r.records))
		if err := r.processBatch(ctx, batchNo, r.records[start:end]); err != nil {
			r.abort(ctx, err)
			return nil, eris.Wrapf(err, "importer: batch %d", batchNo)
		}
		r.report(ctx)

		if end < len(r.records) {
			if err := o.pause(ctx); err != nil {
				r.abort(ctx, err)
				return nil, eris.Wrap(err, "importer: pause")
			}
		}
	}

	r.counts.Status = model.JobStatusCompleted
	r.report(ctx)

	elapsed := o.deps.Now().Sub(started)
	summary := &model.Summary{
		JobID:            jobID,
		Total:            total,
		Successful:       r.counts.Successful,
		Updated:          r.counts.Updated,
		Failed:           r.counts.Failed,
		Duplicates:       r.counts.Duplicates,
		NoDirectory:      r.counts.NoDirectory,
		Errors:           r.errors,
		ProgressFailures: r.progressFailures,
		Duration:         elapsed,
		DurationMS:       elapsed.Milliseconds(),
	}
	log.Info("importer: import completed",
		zap.Int("successful", summary.Successful),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("no_directory", summary.NoDirectory),
		zap.Duration("duration", elapsed),
	)
	return summary, nil
}

// startJob creates the durable job or restarts a caller-created one. An id
// the company does not own gets a fresh job instead, so a run is always
// tracked under a record of its own tenant.
func (o *Orchestrator) startJob(ctx context.Context, job Job, total int) (string, error) {
	if o.deps.Jobs == nil {
		if job.ID != "" {
			return job.ID, nil
		}
		return o.deps.NewID(), nil
	}
	if job.ID != "" {
		err := o.deps.Jobs.StartJob(ctx, job.CompanyID, job.ID, total)
		if err == nil {
			return job.ID, nil
		}
		if !eris.Is(err, store.ErrNotFound) {
			return "", eris.Wrap(err, "importer: start job")
		}
		zap.L().Warn("importer: unknown import id, creating a new job",
			zap.String("company_id", job.CompanyID),
			zap.String("import_id", job.ID),
		)
	}
	created, err := o.deps.Jobs.CreateJob(ctx, job.CompanyID, job.Request.ImportName, total)
	if err != nil {
		return "", eris.Wrap(err, "importer: create job")
	}
	return created.ID, nil
}

func (o *Orchestrator) pause(ctx context.Context) error {
	if o.deps.Policy.Pause <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.deps.Policy.Pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
