package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Export job statuses. A failed job stays in the ledger with its
// recorded reason and is retried only on explicit request.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobDone      = "done"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// ExportJob is the durable record of one render request. Rendering
// consumes only boundaries, transcript slice and style, so re-running
// a job with identical inputs reproduces the artifact without any
// model inference.
type ExportJob struct {
	JobID        string          `json:"job_id"`
	VideoID      string          `json:"video_id"`
	ClipID       string          `json:"clip_id"`
	CaptionStyle json.RawMessage `json:"caption_style,omitempty"`
	Status       string          `json:"status"`
	OutputPath   string          `json:"output_path,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ExportJobStore persists export jobs.
type ExportJobStore struct {
	db *DB
}

// NewExportJobStore creates an ExportJobStore backed by the given database.
func NewExportJobStore(db *DB) *ExportJobStore {
	return &ExportJobStore{db: db}
}

// Insert persists a new job in queued state. If JobID is empty, a UUID
// is generated.
func (s *ExportJobStore) Insert(job *ExportJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = JobQueued
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	var styleStr interface{}
	if len(job.CaptionStyle) > 0 {
		styleStr = string(job.CaptionStyle)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO export_jobs (job_id, video_id, clip_id, caption_style_json, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.JobID, job.VideoID, job.ClipID, styleStr, job.Status,
			job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(),
		)
		return err
	})
}

// UpdateStatus records a job's outcome. outputPath is set on success,
// errMsg on failure; both may be empty for intermediate states.
func (s *ExportJobStore) UpdateStatus(jobID, status, outputPath, errMsg string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`
			UPDATE export_jobs
			SET status = ?, output_path = ?, error = ?, updated_at = ?
			WHERE job_id = ?`,
			status, nullString(outputPath), nullString(errMsg), nowNanos(), jobID,
		)
		if err != nil {
			return fmt.Errorf("update export job: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("export job %s not found", jobID)
		}
		return nil
	})
}

// Get returns a single job by ID.
func (s *ExportJobStore) Get(jobID string) (*ExportJob, error) {
	row := s.db.QueryRow(`
		SELECT job_id, video_id, clip_id, caption_style_json, status, output_path, error, created_at, updated_at
		FROM export_jobs WHERE job_id = ?`, jobID)

	job, err := scanExportJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("export job %s not found", jobID)
	}
	return job, err
}

// ListByVideo returns all jobs for a video, newest first.
func (s *ExportJobStore) ListByVideo(videoID string) ([]*ExportJob, error) {
	rows, err := s.db.Query(`
		SELECT job_id, video_id, clip_id, caption_style_json, status, output_path, error, created_at, updated_at
		FROM export_jobs WHERE video_id = ?
		ORDER BY created_at DESC`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ExportJob
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanExportJob(row rowScanner) (*ExportJob, error) {
	var job ExportJob
	var style, outputPath, errMsg sql.NullString
	var createdNs, updatedNs int64
	err := row.Scan(&job.JobID, &job.VideoID, &job.ClipID, &style, &job.Status,
		&outputPath, &errMsg, &createdNs, &updatedNs)
	if err != nil {
		return nil, err
	}
	if style.Valid {
		job.CaptionStyle = json.RawMessage(style.String)
	}
	job.OutputPath = outputPath.String
	job.Error = errMsg.String
	job.CreatedAt = time.Unix(0, createdNs)
	job.UpdatedAt = time.Unix(0, updatedNs)
	return &job, nil
}
