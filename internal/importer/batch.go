package importer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/dedup"
	"github.com/sells-group/crm-import/internal/enrich"
	"github.com/sells-group/crm-import/internal/model"
)

// abortTimeout bounds the final durable write of an aborted job.
const abortTimeout = 10 * time.Second

// processBatch validates, classifies and persists one batch. It returns an
// error only when ctx is done.
func (r *run) processBatch(ctx context.Context, batchNo int, batch []*record) error {
	pending := dedup.Build(nil, dedup.Options{Logger: zap.NewNop()})
	var inserts []*model.Contact
	mergedPending := 0

	for _, rec := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.validate(ctx, rec)

		phones := rec.contact.PhoneNumbers()
		if existing := r.index.Lookup(phones...); existing != nil {
			r.update(ctx, existing, &rec.contact)
			continue
		}
		if queued := pending.Lookup(phones...); queued != nil {
			queued.Tags, _ = unionTags(queued.Tags, rec.contact.TagIDs)
			mergedPending++
			continue
		}

		c := rec.contact.ToContact(r.o.deps.NewID(), r.company, r.name, r.o.deps.Now().UTC())
		inserts = append(inserts, &c)
		pending.Claim(&c)
	}

	r.insert(ctx, batchNo, inserts, mergedPending)
	r.counts.Processed += len(batch)
	return nil
}

// validate resolves the contact phone when a session is configured and
// enriches confirmed numbers. Unconfirmed numbers get a system tag.
func (r *run) validate(ctx context.Context, rec *record) {
	c := &rec.contact
	if c.Phone == "" && !rec.invalidPhone {
		r.counts.NoDirectory++
		return
	}
	if r.session == nil || r.o.deps.Resolver == nil {
		if rec.invalidPhone {
			r.counts.NoDirectory++
		}
		return
	}

	if rec.invalidPhone {
		r.tagSystem(c, model.SystemTagInvalidNumber)
		r.counts.NoDirectory++
		return
	}

	res := r.o.deps.Resolver.Resolve(ctx, c.Phone, r.session.Name)
	c.Checked = res.Verified
	if !res.Exists {
		slug := model.SystemTagNumberNotExists
		if res.Invalid {
			slug = model.SystemTagInvalidNumber
		}
		r.tagSystem(c, slug)
		r.counts.NoDirectory++
		r.log.Debug("importer: number not in directory",
			zap.String("phone", c.Phone),
			zap.String("reason", res.Reason),
		)
		return
	}

	c.NumberExists = true
	c.SetPrimaryPhone(res.PhoneChecked)
	if r.o.deps.Enricher == nil {
		return
	}
	out := r.o.deps.Enricher.Enrich(ctx, c, enrich.Request{
		ChatID:    res.DirectoryID,
		Session:   r.session.Name,
		CompanyID: r.company,
		PushName:  c.Name,
	})
	if out.Source == enrich.SourceNone && len(out.Reasons) > 0 {
		r.log.Debug("importer: enrichment failed",
			zap.String("phone", c.Phone),
			zap.Strings("reasons", out.Reasons),
		)
	}
}

func (r *run) tagSystem(c *model.PreparedContact, slug string) {
	if st, ok := r.systemTags[slug]; ok {
		c.AddTag(st.ID)
	}
}

// update merges the contact tags into existing and writes only when the tag
// set grew. A failed write counts as an unchanged duplicate.
func (r *run) update(ctx context.Context, existing *model.Contact, c *model.PreparedContact) {
	merged, grew := unionTags(existing.Tags, c.TagIDs)
	if !grew {
		r.counts.Duplicates++
		return
	}
	if err := r.o.deps.Contacts.UpdateContactTags(ctx, r.company, existing.ID, merged); err != nil {
		r.counts.Duplicates++
		r.errors = append(r.errors, fmt.Sprintf("contact %s: update failed: %v", existing.ID, err))
		r.log.Warn("importer: update contact failed", zap.String("contact_id", existing.ID), zap.Error(err))
		return
	}
	existing.Tags = merged
	r.counts.Updated++
}

// insert creates the batch's new contacts in one call. Records merged into a
// pending insert share its fate.
func (r *run) insert(ctx context.Context, batchNo int, inserts []*model.Contact, mergedPending int) {
	if len(inserts) == 0 {
		return
	}
	rows := make([]model.Contact, len(inserts))
	for i, c := range inserts {
		rows[i] = *c
	}

	if _, err := r.o.deps.Contacts.CreateContacts(ctx, rows); err != nil {
		r.counts.Failed += len(inserts) + mergedPending
		r.errors = append(r.errors, fmt.Sprintf("batch %d: %v", batchNo, err))
		r.log.Error("importer: batch insert failed",
			zap.Int("batch", batchNo),
			zap.Int("contacts", len(inserts)),
			zap.Error(err),
		)
		return
	}

	r.counts.Successful += len(inserts)
	r.counts.Duplicates += mergedPending
	for _, c := range inserts {
		r.index.Claim(c)
	}
}

func (r *run) report(ctx context.Context) {
	if r.o.deps.Reporter == nil {
		return
	}
	d := r.o.deps.Reporter.Report(ctx, r.jobID, r.company, r.counts)
	r.progressFailures += d.Failures()
}

// abort marks the job aborted. The write outlives a cancelled ctx.
func (r *run) abort(ctx context.Context, cause error) {
	r.log.Error("importer: import aborted", zap.Error(cause))
	if r.o.deps.Reporter == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	snap := r.counts
	snap.Status = model.JobStatusAborted
	snap.Error = cause.Error()
	r.o.deps.Reporter.Report(actx, r.jobID, r.company, snap)
}

// unionTags appends the ids of add missing from base. It reports whether any
// were added.
func unionTags(base, add []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, id := range base {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	grew := false
	for _, id := range add {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
			grew = true
		}
	}
	return out, grew
}
