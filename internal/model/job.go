package model

import "time"

// JobStatus represents the lifecycle state of an import job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	// JobStatusAborted marks a job that stopped on an unrecoverable error or
	// was found stale by the reaper.
	JobStatusAborted JobStatus = "aborted"
)

// Terminal reports whether no further progress is expected for the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusAborted
}

// ImportJob is the durable progress record of an import.
type ImportJob struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	Name        string     `json:"name"`
	Total       int        `json:"total_records"`
	Processed   int        `json:"processed_records"`
	Successful  int        `json:"successful_records"`
	Failed      int        `json:"failed_records"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobProgress is the counter set written to the durable job record.
type JobProgress struct {
	Processed  int       `json:"processed_records"`
	Successful int       `json:"successful_records"`
	Failed     int       `json:"failed_records"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// Snapshot is one progress observation of a running import.
type Snapshot struct {
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	Duplicates  int       `json:"duplicates"`
	Updated     int       `json:"updated"`
	NoDirectory int       `json:"noWhatsApp"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// Progress derives the durable counters from the snapshot. Updated contacts
// count as successful records.
func (s Snapshot) Progress() JobProgress {
	return JobProgress{
		Processed:  s.Processed,
		Successful: s.Successful + s.Updated,
		Failed:     s.Failed,
		Status:     s.Status,
		Error:      s.Error,
	}
}

// Summary is the structured result of a finished import.
type Summary struct {
	JobID            string        `json:"import_id"`
	Total            int           `json:"total_records"`
	Successful       int           `json:"successful_records"`
	Updated          int           `json:"updated_records"`
	Failed           int           `json:"failed_records"`
	Duplicates       int           `json:"duplicates"`
	NoDirectory      int           `json:"noWhatsApp"`
	Errors           []string      `json:"errors"`
	ProgressFailures int           `json:"progress_failures"`
	Duration         time.Duration `json:"-"`
	DurationMS       int64         `json:"duration_ms"`
}
