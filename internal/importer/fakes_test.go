package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/crm-import/internal/directory"
	"github.com/sells-group/crm-import/internal/enrich"
	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/progress"
	"github.com/sells-group/crm-import/internal/store"
)

// memStore is an in-memory store for orchestrator tests.
type memStore struct {
	mu sync.Mutex

	contacts   []model.Contact
	tags       []model.Tag
	systemTags map[string]model.SystemTag
	session    *model.Session
	jobs       map[string]*model.ImportJob
	jobSeq     int

	createCalls  int
	tagCreates   int
	updates      map[string][]string
	failCreateOn map[int]error
	failUpdate   error
	listErr      error
	startErr     error
}

func newMemStore() *memStore {
	return &memStore{
		systemTags: map[string]model.SystemTag{},
		jobs:       map[string]*model.ImportJob{},
		updates:    map[string][]string{},
	}
}

func (s *memStore) ListContacts(_ context.Context, companyID string) ([]model.Contact, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Contact
	for _, c := range s.contacts {
		if c.CompanyID == companyID && c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) CreateContacts(_ context.Context, contacts []model.Contact) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if err := s.failCreateOn[s.createCalls]; err != nil {
		return 0, err
	}
	s.contacts = append(s.contacts, contacts...)
	return int64(len(contacts)), nil
}

func (s *memStore) UpdateContactTags(_ context.Context, _, contactID string, tagIDs []string) error {
	if s.failUpdate != nil {
		return s.failUpdate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[contactID] = tagIDs
	for i := range s.contacts {
		if s.contacts[i].ID == contactID {
			s.contacts[i].Tags = tagIDs
		}
	}
	return nil
}

func (s *memStore) ListTags(_ context.Context, companyID string) ([]model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Tag
	for _, t := range s.tags {
		if t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) CreateTags(_ context.Context, companyID string, names []string, tagType model.TagType) ([]model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Tag
	for _, n := range names {
		s.tagCreates++
		t := model.Tag{ID: "tag-" + model.TagKey(n), CompanyID: companyID, Name: n, Type: tagType}
		s.tags = append(s.tags, t)
		out = append(out, t)
	}
	return out, nil
}

func (s *memStore) SystemTagsBySlug(_ context.Context, slugs ...string) (map[string]model.SystemTag, error) {
	out := map[string]model.SystemTag{}
	for _, slug := range slugs {
		if st, ok := s.systemTags[slug]; ok {
			out[slug] = st
		}
	}
	return out, nil
}

func (s *memStore) DefaultSession(_ context.Context, _ string) (*model.Session, error) {
	if s.session == nil {
		return nil, store.ErrNotFound
	}
	return s.session, nil
}

func (s *memStore) CreateJob(_ context.Context, companyID, name string, total int) (*model.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobSeq++
	j := &model.ImportJob{ID: fmt.Sprintf("job-%d", s.jobSeq), CompanyID: companyID, Name: name, Total: total, Status: model.JobStatusProcessing}
	s.jobs[j.ID] = j
	return j, nil
}

// addJob seeds a processing job.
func (s *memStore) addJob(id, companyID string, total int) *model.ImportJob {
	j := &model.ImportJob{ID: id, CompanyID: companyID, Total: total, Status: model.JobStatusProcessing}
	s.jobs[id] = j
	return j
}

// job returns the job with id owned by companyID. Callers hold mu.
func (s *memStore) job(companyID, jobID string) (*model.ImportJob, bool) {
	j, ok := s.jobs[jobID]
	if !ok || j.CompanyID != companyID {
		return nil, false
	}
	return j, true
}

func (s *memStore) GetJob(_ context.Context, companyID, jobID string) (*model.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.job(companyID, jobID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return j, nil
}

func (s *memStore) StartJob(_ context.Context, companyID, jobID string, total int) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.job(companyID, jobID)
	if !ok {
		return store.ErrNotFound
	}
	j.Total, j.Processed, j.Successful, j.Failed = total, 0, 0, 0
	j.Status, j.Error, j.CompletedAt = model.JobStatusProcessing, "", nil
	return nil
}

func (s *memStore) UpdateJobProgress(_ context.Context, companyID, jobID string, p model.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.job(companyID, jobID); ok && !j.Status.Terminal() {
		j.Processed, j.Successful, j.Failed, j.Status = p.Processed, p.Successful, p.Failed, p.Status
	}
	return nil
}

func (s *memStore) FinishJob(_ context.Context, companyID, jobID string, p model.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.job(companyID, jobID)
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	j.Processed, j.Successful, j.Failed, j.Status = p.Processed, p.Successful, p.Failed, p.Status
	j.CompletedAt = &now
	j.Error = p.Error
	return nil
}

func (s *memStore) AbortStaleJobs(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *memStore) contactByPhone(phone string) *model.Contact {
	for i := range s.contacts {
		if s.contacts[i].Phone == phone {
			return &s.contacts[i]
		}
	}
	return nil
}

// fakeResolver answers from a table keyed by raw phone. Unknown phones are
// not found.
type fakeResolver struct {
	results map[string]directory.Resolution
	calls   []string
}

func (f *fakeResolver) Resolve(_ context.Context, raw, _ string) directory.Resolution {
	f.calls = append(f.calls, raw)
	if res, ok := f.results[raw]; ok {
		return res
	}
	return directory.Resolution{Verified: true, PhoneChecked: raw, Reason: directory.ReasonNotFound}
}

type fakeEnricher struct {
	requests []enrich.Request
	apply    func(c *model.PreparedContact)
}

func (f *fakeEnricher) Enrich(_ context.Context, c *model.PreparedContact, req enrich.Request) enrich.Outcome {
	f.requests = append(f.requests, req)
	if f.apply == nil {
		return enrich.Outcome{Source: enrich.SourceNone, Reasons: []string{"profile sync: boom"}}
	}
	f.apply(c)
	return enrich.Outcome{Source: enrich.SourceProfile}
}

// recordingReporter keeps every snapshot it is given.
type recordingReporter struct {
	snaps    []model.Snapshot
	jobIDs   []string
	onReport func(model.Snapshot)
	failures int
}

func (r *recordingReporter) Report(_ context.Context, jobID, _ string, snap model.Snapshot) progress.Delivery {
	r.snaps = append(r.snaps, snap)
	r.jobIDs = append(r.jobIDs, jobID)
	if r.onReport != nil {
		r.onReport(snap)
	}
	if r.failures > 0 {
		return progress.Delivery{Push: progress.PushResult{Reason: "push down"}}
	}
	return progress.Delivery{Push: progress.PushResult{Skipped: true}}
}

func (r *recordingReporter) last() model.Snapshot {
	return r.snaps[len(r.snaps)-1]
}

func raw(id, name, phone string, tagNames ...string) model.RawContactRecord {
	return model.RawContactRecord{
		ID:    model.LooseString(id),
		Name:  model.LooseString(name),
		Phone: model.LooseString(phone),
		Tags:  model.TagList(tagNames),
		Notes: model.LooseString("ignored"),
	}
}

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func hasTag(c *model.Contact, id string) bool {
	return strings.Contains(","+strings.Join(c.Tags, ",")+",", ","+id+",")
}
