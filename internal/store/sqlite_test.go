package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-import/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_SystemTagsSeeded(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.SystemTagsBySlug(context.Background(), model.SystemTagInvalidNumber, model.SystemTagNumberNotExists, "unknown")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, model.SystemTagInvalidNumber, got[model.SystemTagInvalidNumber].Slug)
}

func TestSQLite_Contacts_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	value := 12.5
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	n, err := st.CreateContacts(ctx, []model.Contact{
		{
			ID: "c1", CompanyID: "co1", Name: "Ana", Phone: "5511987654321",
			Phones: []model.Phone{
				{Number: "5511987654321", Role: model.PhoneRolePrimary},
				{Number: "123@lid", Role: model.PhoneRoleLID},
			},
			Tags: []string{"t1"}, Value: &value, Checked: true, NumberExists: true,
			Source: "import", ImportName: "march", CreatedAt: created,
		},
		{ID: "c2", CompanyID: "co1", Name: "Bia", CreatedAt: created.Add(time.Second)},
		{ID: "c3", CompanyID: "co2", Name: "Other", CreatedAt: created},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := st.ListContacts(ctx, "co1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, []string{"t1"}, got[0].Tags)
	assert.Len(t, got[0].Phones, 2)
	assert.Equal(t, model.PhoneRoleLID, got[0].Phones[1].Role)
	require.NotNil(t, got[0].Value)
	assert.InDelta(t, 12.5, *got[0].Value, 0.001)
	assert.True(t, got[0].Checked)
	assert.True(t, got[0].NumberExists)
	assert.Equal(t, []string{}, got[0].Notes)
	assert.True(t, created.Equal(got[0].CreatedAt))
	assert.Nil(t, got[1].Value)
	assert.Empty(t, got[1].Tags)
}

func TestSQLite_ListContacts_SkipsDeleted(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	deleted := time.Now()

	_, err := st.CreateContacts(ctx, []model.Contact{
		{ID: "c1", CompanyID: "co1", Name: "Live", CreatedAt: time.Now()},
		{ID: "c2", CompanyID: "co1", Name: "Gone", DeletedAt: &deleted, CreatedAt: time.Now()},
	})
	require.NoError(t, err)

	got, err := st.ListContacts(ctx, "co1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Live", got[0].Name)
}

func TestSQLite_CreateContacts_AllOrNothing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateContacts(ctx, []model.Contact{{ID: "c1", CompanyID: "co1", CreatedAt: time.Now()}})
	require.NoError(t, err)

	_, err = st.CreateContacts(ctx, []model.Contact{
		{ID: "c2", CompanyID: "co1", CreatedAt: time.Now()},
		{ID: "c1", CompanyID: "co1", CreatedAt: time.Now()},
	})
	require.Error(t, err)

	got, err := st.ListContacts(ctx, "co1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLite_UpdateContactTags(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateContacts(ctx, []model.Contact{{ID: "c1", CompanyID: "co1", Tags: []string{"t1"}, CreatedAt: time.Now()}})
	require.NoError(t, err)

	require.NoError(t, st.UpdateContactTags(ctx, "co1", "c1", []string{"t1", "t2"}))

	got, err := st.ListContacts(ctx, "co1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"t1", "t2"}, got[0].Tags)

	err = st.UpdateContactTags(ctx, "co2", "c1", []string{"t3"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CreateTags_InsertsMissingOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateTags(ctx, "co1", []string{"VIP"}, model.TagTypeManual)
	require.NoError(t, err)
	require.Len(t, first, 1)

	got, err := st.CreateTags(ctx, "co1", []string{"vip", "Lead", "  lead "}, model.TagTypeImport)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byName := map[string]model.Tag{}
	for _, tg := range got {
		byName[tg.Name] = tg
	}
	assert.Equal(t, first[0].ID, byName["VIP"].ID)
	assert.Equal(t, model.TagTypeManual, byName["VIP"].Type)
	assert.Equal(t, model.TagTypeImport, byName["Lead"].Type)

	all, err := st.ListTags(ctx, "co1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := st.ListTags(ctx, "co2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLite_DefaultSession(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.DefaultSession(ctx, "co1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, st.AddSession(ctx, model.Session{ID: "s1", CompanyID: "co1", Name: "b-stopped", Status: "STOPPED"}))
	require.NoError(t, st.AddSession(ctx, model.Session{ID: "s2", CompanyID: "co1", Name: "c-working", Status: model.SessionStatusWorking}))

	sess, err := st.DefaultSession(ctx, "co1")
	require.NoError(t, err)
	assert.Equal(t, "s2", sess.ID)

	require.NoError(t, st.AddSession(ctx, model.Session{ID: "s3", CompanyID: "co1", Name: "z-default", Status: "STOPPED", IsDefault: true}))

	sess, err = st.DefaultSession(ctx, "co1")
	require.NoError(t, err)
	assert.Equal(t, "s3", sess.ID)
	assert.True(t, sess.IsDefault)
}

func TestSQLite_JobLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	j, err := st.CreateJob(ctx, "co1", "march", 0)
	require.NoError(t, err)
	require.NoError(t, st.StartJob(ctx, "co1", j.ID, 10))

	require.NoError(t, st.UpdateJobProgress(ctx, "co1", j.ID, model.JobProgress{
		Processed: 5, Successful: 4, Failed: 1, Status: model.JobStatusProcessing,
	}))
	// A late, smaller update never lowers processed_records.
	require.NoError(t, st.UpdateJobProgress(ctx, "co1", j.ID, model.JobProgress{
		Processed: 3, Successful: 4, Failed: 1, Status: model.JobStatusProcessing,
	}))

	got, err := st.GetJob(ctx, "co1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Total)
	assert.Equal(t, 5, got.Processed)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, st.FinishJob(ctx, "co1", j.ID, model.JobProgress{
		Processed: 10, Successful: 9, Failed: 1, Status: model.JobStatusCompleted,
	}))
	require.NoError(t, st.UpdateJobProgress(ctx, "co1", j.ID, model.JobProgress{
		Processed: 10, Successful: 0, Failed: 0, Status: model.JobStatusProcessing,
	}))

	got, err = st.GetJob(ctx, "co1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, 9, got.Successful)
	assert.NotNil(t, got.CompletedAt)

	_, err = st.GetJob(ctx, "co2", j.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_StartJob_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.StartJob(context.Background(), "co1", "missing", 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_JobWritesScopedToCompany(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	j, err := st.CreateJob(ctx, "co1", "march", 100)
	require.NoError(t, err)

	err = st.StartJob(ctx, "co2", j.ID, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, st.UpdateJobProgress(ctx, "co2", j.ID, model.JobProgress{
		Processed: 1, Successful: 1, Status: model.JobStatusProcessing,
	}))
	err = st.FinishJob(ctx, "co2", j.ID, model.JobProgress{
		Processed: 1, Successful: 1, Status: model.JobStatusCompleted,
	})
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := st.GetJob(ctx, "co1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Total)
	assert.Equal(t, 0, got.Processed)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestSQLite_StartJob_ResetsFinishedJob(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	j, err := st.CreateJob(ctx, "co1", "march", 3)
	require.NoError(t, err)
	require.NoError(t, st.FinishJob(ctx, "co1", j.ID, model.JobProgress{
		Processed: 3, Successful: 2, Failed: 1, Status: model.JobStatusAborted, Error: "boom",
	}))

	require.NoError(t, st.StartJob(ctx, "co1", j.ID, 1))
	got, err := st.GetJob(ctx, "co1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, 0, got.Processed)
	assert.Equal(t, 0, got.Successful)
	assert.Equal(t, 0, got.Failed)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, model.JobStatusProcessing, got.Status)

	require.NoError(t, st.FinishJob(ctx, "co1", j.ID, model.JobProgress{
		Processed: 1, Successful: 1, Status: model.JobStatusCompleted,
	}))
	got, err = st.GetJob(ctx, "co1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Total, got.Processed)
}

func TestSQLite_AbortStaleJobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }

	stale, err := st.CreateJob(ctx, "co1", "stale", 5)
	require.NoError(t, err)
	done, err := st.CreateJob(ctx, "co1", "done", 5)
	require.NoError(t, err)
	require.NoError(t, st.FinishJob(ctx, "co1", done.ID, model.JobProgress{Processed: 5, Successful: 5, Status: model.JobStatusCompleted}))

	st.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh, err := st.CreateJob(ctx, "co1", "fresh", 5)
	require.NoError(t, err)

	n, err := st.AbortStaleJobs(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.GetJob(ctx, "co1", stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAborted, got.Status)
	assert.Equal(t, staleJobError, got.Error)

	got, err = st.GetJob(ctx, "co1", fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, got.Status)

	got, err = st.GetJob(ctx, "co1", done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}
