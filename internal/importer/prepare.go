package importer

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-import/internal/dedup"
	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/phone"
	"github.com/sells-group/crm-import/internal/store"
	"github.com/sells-group/crm-import/internal/tags"
)

// record is one prepared contact and its per-job state.
type record struct {
	contact model.PreparedContact
	// invalidPhone is set when a phone was given but has no digits.
	invalidPhone bool
}

// run is the state of one import job. It is owned by a single goroutine.
type run struct {
	o       *Orchestrator
	jobID   string
	company string
	name    string
	log     *zap.Logger

	session    *model.Session
	systemTags map[string]model.SystemTag
	index      *dedup.Index
	records    []*record

	counts           model.Snapshot
	errors           []string
	progressFailures int
}

// prepare loads the session, system tags and existing contacts
// concurrently, resolves tags, builds the duplicate index and maps every raw
// record.
func (r *run) prepare(ctx context.Context, req model.ImportRequest) error {
	var existing []model.Contact
	d := r.o.deps

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if d.Sessions == nil || d.Resolver == nil {
			return nil
		}
		sess, err := d.Sessions.DefaultSession(gctx, r.company)
		if errors.Is(err, store.ErrNotFound) {
			r.log.Info("importer: no messaging session, directory validation disabled")
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "load session")
		}
		r.session = sess
		return nil
	})
	g.Go(func() error {
		if d.SystemTags == nil {
			return nil
		}
		st, err := d.SystemTags.SystemTagsBySlug(gctx, model.SystemTagInvalidNumber, model.SystemTagNumberNotExists)
		if err != nil {
			return eris.Wrap(err, "load system tags")
		}
		r.systemTags = st
		return nil
	})
	g.Go(func() error {
		contacts, err := d.Contacts.ListContacts(gctx, r.company)
		if err != nil {
			return eris.Wrap(err, "load contacts")
		}
		existing = contacts
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	tagMap, err := tags.NewResolver(d.Tags).Resolve(ctx, r.company, tagRequest(req))
	if err != nil {
		return err
	}

	r.index = dedup.Build(existing, dedup.Options{Verbose: d.VerboseIndex, Logger: r.log})

	r.records = make([]*record, 0, len(req.Contacts))
	for _, raw := range req.Contacts {
		r.records = append(r.records, prepareRecord(raw, req, tagMap))
	}
	return nil
}

// tagRequest collects the global, per-contact and free-text tag names of req.
func tagRequest(req model.ImportRequest) tags.Request {
	tr := tags.Request{Global: tags.ParseNames(req.GlobalTags...)}
	for _, a := range req.IndividualAssignments {
		tr.Individual = append(tr.Individual, tags.ParseNames(a.Tags...)...)
	}
	for _, raw := range req.Contacts {
		tr.FreeText = append(tr.FreeText, tags.ParseNames(raw.Tags...)...)
	}
	return tr
}

func prepareRecord(raw model.RawContactRecord, req model.ImportRequest, tagMap tags.Map) *record {
	rec := &record{}
	c := &rec.contact

	c.LocalID = raw.ID.String()
	c.FirstName = raw.FirstName.String()
	c.LastName = raw.LastName.String()
	c.Name = raw.Name.String()
	if c.Name == "" {
		c.Name = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	c.Email = strings.ToLower(raw.Email.String())
	c.Position = raw.Position.String()
	c.Organization = raw.Organization.String()
	c.Value = raw.Value.Value
	c.Notes = []string{}

	if rawPhone := raw.Phone.String(); rawPhone != "" {
		if canonical, ok := phone.Normalize(rawPhone); ok {
			c.SetPrimaryPhone(canonical)
		} else {
			rec.invalidPhone = true
		}
	}
	if c.Name == "" {
		c.Name = c.Phone
	}

	names := tags.ParseNames(req.GlobalTags...)
	if a, ok := req.IndividualAssignments[c.LocalID]; ok && c.LocalID != "" {
		names = append(names, tags.ParseNames(a.Tags...)...)
	}
	names = append(names, tags.ParseNames(raw.Tags...)...)
	for _, id := range tagMap.IDs(names) {
		c.AddTag(id)
	}
	return rec
}
