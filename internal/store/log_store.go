package store

import (
	"database/sql"
	"fmt"
	"time"
)

// LogStatus is the recorded outcome of a pipeline step.
type LogStatus string

const (
	LogOK   LogStatus = "ok"
	LogFail LogStatus = "fail"
)

// LogEntry is one append-only audit record for a video's pipeline.
// Entries are never edited or deleted; crash recovery reads the tail
// to decide which step to retry.
type LogEntry struct {
	ID        int64     `json:"id"`
	VideoID   string    `json:"video_id"`
	Step      string    `json:"step"`
	Status    LogStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LogStore persists the processing log.
type LogStore struct {
	db *DB

	// Notify, when set, observes every appended entry after the insert
	// commits. It runs on the appending goroutine and must not block;
	// mirroring is best effort and never part of the durability path.
	Notify func(e LogEntry)
}

// NewLogStore creates a LogStore backed by the given database.
func NewLogStore(db *DB) *LogStore {
	return &LogStore{db: db}
}

// Append writes one log entry. The log is the durability anchor for
// resumability, so appends go through the busy-retry path like every
// other write.
func (s *LogStore) Append(videoID, step string, status LogStatus, message string) error {
	createdNs := nowNanos()
	var id int64
	err := retryOnBusy(func() error {
		result, err := s.db.Exec(`
			INSERT INTO processing_log (video_id, step, status, message, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			videoID, step, string(status), nullString(message), createdNs,
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return err
	}
	if s.Notify != nil {
		s.Notify(LogEntry{
			ID:        id,
			VideoID:   videoID,
			Step:      step,
			Status:    status,
			Message:   message,
			CreatedAt: time.Unix(0, createdNs),
		})
	}
	return nil
}

// Last returns the most recent entry for a video and step, or nil when
// the step has never been logged.
func (s *LogStore) Last(videoID, step string) (*LogEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, video_id, step, status, message, created_at
		FROM processing_log
		WHERE video_id = ? AND step = ?
		ORDER BY id DESC LIMIT 1`, videoID, step)

	entry, err := scanLogEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

// ListByVideo returns a video's full log in append order.
func (s *LogStore) ListByVideo(videoID string) ([]LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, video_id, step, status, message, created_at
		FROM processing_log
		WHERE video_id = ?
		ORDER BY id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query processing log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanLogEntry(row rowScanner) (*LogEntry, error) {
	var entry LogEntry
	var status string
	var message sql.NullString
	var createdNs int64
	if err := row.Scan(&entry.ID, &entry.VideoID, &entry.Step, &status, &message, &createdNs); err != nil {
		return nil, err
	}
	entry.Status = LogStatus(status)
	entry.Message = message.String
	entry.CreatedAt = time.Unix(0, createdNs)
	return &entry, nil
}
