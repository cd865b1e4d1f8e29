package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// VideoStore provides persistence for video records. Lifecycle status
// is only mutated through TransitionStatus so the status update and its
// log entry are durable together.
type VideoStore struct {
	db *DB
}

// NewVideoStore creates a VideoStore backed by the given database.
func NewVideoStore(db *DB) *VideoStore {
	return &VideoStore{db: db}
}

// Insert persists a new video. If ID is empty, a UUID is generated.
func (s *VideoStore) Insert(v *clip.Video) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO videos (id, file_path, title, source_type, status, user_id, watch_directory_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.FilePath, v.Title, v.SourceType, v.Status, v.UserID,
			nullInt64(v.WatchDirectoryID), v.CreatedAt.UnixNano(),
		)
		return err
	})
}

// Get returns a single video by ID.
func (s *VideoStore) Get(id string) (*clip.Video, error) {
	row := s.db.QueryRow(`
		SELECT id, file_path, title, source_type, status, user_id, watch_directory_id, created_at
		FROM videos WHERE id = ?`, id)

	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video %s not found", id)
	}
	return v, err
}

// GetByPath returns the video registered for a source file path, or
// nil if the path has not been seen.
func (s *VideoStore) GetByPath(filePath string) (*clip.Video, error) {
	row := s.db.QueryRow(`
		SELECT id, file_path, title, source_type, status, user_id, watch_directory_id, created_at
		FROM videos WHERE file_path = ?`, filePath)

	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// List returns every video, newest first.
func (s *VideoStore) List() ([]*clip.Video, error) {
	return s.list(`
		SELECT id, file_path, title, source_type, status, user_id, watch_directory_id, created_at
		FROM videos ORDER BY created_at DESC`)
}

// ListByUser returns all videos for a user, newest first.
func (s *VideoStore) ListByUser(userID string) ([]*clip.Video, error) {
	return s.list(`
		SELECT id, file_path, title, source_type, status, user_id, watch_directory_id, created_at
		FROM videos WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListByStatus returns all videos currently in the given lifecycle
// state, oldest first so resumed work preserves arrival order.
func (s *VideoStore) ListByStatus(status string) ([]*clip.Video, error) {
	return s.list(`
		SELECT id, file_path, title, source_type, status, user_id, watch_directory_id, created_at
		FROM videos WHERE status = ? ORDER BY created_at ASC`, status)
}

// TransitionStatus atomically updates a video's lifecycle status and
// appends the matching ok entry to the processing log. Either both are
// durable or neither is.
func (s *VideoStore) TransitionStatus(ctx context.Context, videoID, status, step, message string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		result, err := tx.ExecContext(ctx, `UPDATE videos SET status = ? WHERE id = ?`, status, videoID)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("video %s not found", videoID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO processing_log (video_id, step, status, message, created_at)
			VALUES (?, ?, 'ok', ?, ?)`,
			videoID, step, nullString(message), nowNanos(),
		)
		if err != nil {
			return fmt.Errorf("append log: %w", err)
		}

		return tx.Commit()
	})
}

func (s *VideoStore) list(query string, args ...interface{}) ([]*clip.Video, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []*clip.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (*clip.Video, error) {
	var v clip.Video
	var title, sourceType sql.NullString
	var watchDir sql.NullInt64
	var createdNs int64
	err := row.Scan(&v.ID, &v.FilePath, &title, &sourceType, &v.Status, &v.UserID, &watchDir, &createdNs)
	if err != nil {
		return nil, err
	}
	v.Title = title.String
	v.SourceType = sourceType.String
	v.WatchDirectoryID = watchDir.Int64
	v.CreatedAt = time.Unix(0, createdNs)
	return &v, nil
}

func nullInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
