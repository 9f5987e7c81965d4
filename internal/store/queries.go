package store

import (
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-import/internal/model"
)

var contactColumns = []string{
	"id", "company_id", "name", "first_name", "last_name", "email", "phone", "phones",
	"tags", "position", "organization", "notes", "value", "avatar_url", "nickname",
	"source", "import_name", "checked", "number_exists", "deleted_at", "created_at",
}

var tagColumns = []string{"id", "company_id", "name", "type", "is_smart", "created_at"}

var tagInsertColumns = []string{"id", "company_id", "name", "name_key", "type", "is_smart", "created_at"}

var jobColumns = []string{
	"id", "company_id", "name", "total_records", "processed_records", "successful_records",
	"failed_records", "status", "error", "completed_date", "created_at", "updated_at",
}

var sessionColumns = []string{"id", "company_id", "name", "status", "is_default"}

// activeJobStatuses are the statuses the reaper may abort.
var activeJobStatuses = []string{string(model.JobStatusPending), string(model.JobStatusProcessing)}

// staleJobError is recorded on jobs aborted by the reaper.
const staleJobError = "aborted: no progress reported"

// queries builds the statements shared by both backends. Only the
// placeholder format and the max() spelling differ.
type queries struct {
	sb sq.StatementBuilderType
	// greatest is the two-argument max function of the dialect.
	greatest string
}

func (q queries) listContacts(companyID string) sq.SelectBuilder {
	return q.sb.Select(contactColumns...).
		From("contacts").
		Where(sq.Eq{"company_id": companyID}).
		Where("deleted_at IS NULL").
		OrderBy("created_at")
}

func (q queries) updateContactTags(companyID, contactID string, tags any) sq.UpdateBuilder {
	return q.sb.Update("contacts").
		Set("tags", tags).
		Where(sq.Eq{"id": contactID, "company_id": companyID})
}

func (q queries) listTags(companyID string) sq.SelectBuilder {
	return q.sb.Select(tagColumns...).
		From("tags").
		Where(sq.Eq{"company_id": companyID}).
		OrderBy("created_at")
}

func (q queries) tagsByKey(companyID string, keys []string) sq.SelectBuilder {
	return q.sb.Select(tagColumns...).
		From("tags").
		Where(sq.Eq{"company_id": companyID, "name_key": keys})
}

func (q queries) systemTags(slugs []string) sq.SelectBuilder {
	return q.sb.Select("id", "slug", "name").
		From("system_tags").
		Where(sq.Eq{"slug": slugs})
}

func (q queries) defaultSession(companyID string) sq.SelectBuilder {
	return q.sb.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"company_id": companyID}).
		OrderBy("is_default DESC", "CASE WHEN status = 'WORKING' THEN 0 ELSE 1 END", "name").
		Limit(1)
}

func (q queries) insertJob(j model.ImportJob) sq.InsertBuilder {
	return q.sb.Insert("import_jobs").
		Columns("id", "company_id", "name", "total_records", "status", "created_at", "updated_at").
		Values(j.ID, j.CompanyID, j.Name, j.Total, string(j.Status), j.CreatedAt, j.UpdatedAt)
}

func (q queries) getJob(companyID, jobID string) sq.SelectBuilder {
	return q.sb.Select(jobColumns...).
		From("import_jobs").
		Where(sq.Eq{"id": jobID, "company_id": companyID})
}

// startJob restarts a job of companyID from zero, so a reused id never
// carries counters of an earlier run.
func (q queries) startJob(companyID, jobID string, total int, now time.Time) sq.UpdateBuilder {
	return q.sb.Update("import_jobs").
		Set("status", string(model.JobStatusProcessing)).
		Set("total_records", total).
		Set("processed_records", 0).
		Set("successful_records", 0).
		Set("failed_records", 0).
		Set("error", "").
		Set("completed_date", nil).
		Set("updated_at", now).
		Where(sq.Eq{"id": jobID, "company_id": companyID})
}

// updateJobProgress never lowers processed_records and leaves terminal jobs
// untouched.
func (q queries) updateJobProgress(companyID, jobID string, p model.JobProgress, now time.Time) sq.UpdateBuilder {
	return q.sb.Update("import_jobs").
		Set("processed_records", sq.Expr(q.greatest+"(processed_records, ?)", p.Processed)).
		Set("successful_records", p.Successful).
		Set("failed_records", p.Failed).
		Set("status", string(p.Status)).
		Set("updated_at", now).
		Where(sq.Eq{"id": jobID, "company_id": companyID}).
		Where(sq.NotEq{"status": []string{string(model.JobStatusCompleted), string(model.JobStatusAborted)}})
}

func (q queries) finishJob(companyID, jobID string, p model.JobProgress, now time.Time) sq.UpdateBuilder {
	return q.sb.Update("import_jobs").
		Set("processed_records", sq.Expr(q.greatest+"(processed_records, ?)", p.Processed)).
		Set("successful_records", p.Successful).
		Set("failed_records", p.Failed).
		Set("status", string(p.Status)).
		Set("error", p.Error).
		Set("completed_date", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": jobID, "company_id": companyID})
}

func (q queries) abortStaleJobs(before, now time.Time) sq.UpdateBuilder {
	return q.sb.Update("import_jobs").
		Set("status", string(model.JobStatusAborted)).
		Set("error", staleJobError).
		Set("completed_date", now).
		Set("updated_at", now).
		Where(sq.Eq{"status": activeJobStatuses}).
		Where(sq.Lt{"updated_at": before})
}

func tagRows(companyID string, names []string, tagType model.TagType, newID func() string, now time.Time) ([][]any, []string) {
	rows := make([][]any, 0, len(names))
	keys := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		k := model.TagKey(n)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
		rows = append(rows, []any{newID(), companyID, n, k, string(tagType), false, now})
	}
	return rows, keys
}

func marshalJSON(v any, what string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal %s", what)
	}
	return b, nil
}

func unmarshalContactJSON(c *model.Contact, phones, notes []byte) error {
	if len(phones) > 0 {
		if err := json.Unmarshal(phones, &c.Phones); err != nil {
			return eris.Wrap(err, "store: unmarshal phones")
		}
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &c.Notes); err != nil {
			return eris.Wrap(err, "store: unmarshal notes")
		}
	}
	if c.Notes == nil {
		c.Notes = []string{}
	}
	return nil
}
