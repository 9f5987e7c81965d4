// Package progress reports import progress to the durable job record and to
// a best-effort push channel. Neither sink affects the other or the import.
package progress

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/store"
)

// Data is the push payload of one snapshot.
type Data struct {
	ImportID string `json:"import_id"`
	model.Snapshot
}

// Delivery is the outcome of one Report call.
type Delivery struct {
	// DurableErr is the job store failure, if any. It is informational.
	DurableErr error
	Push       PushResult
}

// Failures counts the sinks that failed.
func (d Delivery) Failures() int {
	n := 0
	if d.DurableErr != nil {
		n++
	}
	if d.Push.Failed() {
		n++
	}
	return n
}

// Stats counts sink failures across every report.
type Stats struct {
	Reports         atomic.Int64
	DurableFailures atomic.Int64
	PushFailures    atomic.Int64
}

// Reporter fans a snapshot out to both sinks.
type Reporter struct {
	jobs   store.JobStore
	pusher *Pusher
	stats  Stats
	now    func() time.Time
}

// NewReporter creates a Reporter. Either sink may be nil.
func NewReporter(jobs store.JobStore, pusher *Pusher) *Reporter {
	return &Reporter{jobs: jobs, pusher: pusher, now: time.Now}
}

// Stats returns the running failure counters.
func (r *Reporter) Stats() *Stats {
	return &r.stats
}

// Report writes snap to the job record, then pushes it. Terminal statuses
// finish the job.
func (r *Reporter) Report(ctx context.Context, jobID, companyID string, snap model.Snapshot) Delivery {
	r.stats.Reports.Add(1)
	var d Delivery

	if r.jobs != nil && jobID != "" {
		d.DurableErr = r.writeDurable(ctx, jobID, companyID, snap)
		if d.DurableErr != nil {
			r.stats.DurableFailures.Add(1)
			zap.L().Warn("progress: durable update failed",
				zap.String("job_id", jobID),
				zap.String("status", string(snap.Status)),
				zap.Error(d.DurableErr),
			)
		}
	}

	d.Push = r.pusher.Push(ctx, Event{
		Type:      EventTypeImportProgress,
		CompanyID: companyID,
		Data:      Data{ImportID: jobID, Snapshot: snap},
		Timestamp: r.now().UTC(),
	})
	if d.Push.Failed() {
		r.stats.PushFailures.Add(1)
	}
	return d
}

func (r *Reporter) writeDurable(ctx context.Context, jobID, companyID string, snap model.Snapshot) error {
	p := snap.Progress()
	if snap.Status.Terminal() {
		return r.jobs.FinishJob(ctx, companyID, jobID, p)
	}
	return r.jobs.UpdateJobProgress(ctx, companyID, jobID, p)
}
