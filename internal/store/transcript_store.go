package store

import (
	"fmt"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// TranscriptStore persists transcript segments. A video's transcript
// is write-once: segments are inserted in a single batch and never
// regenerated, since every downstream stage treats them as ground
// truth.
type TranscriptStore struct {
	db *DB
}

// NewTranscriptStore creates a TranscriptStore backed by the given database.
func NewTranscriptStore(db *DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// InsertSegments stores the full transcript for a video. It fails if
// the video already has transcript segments.
func (s *TranscriptStore) InsertSegments(videoID string, segments []clip.TranscriptSegment) error {
	var existing int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transcript_segments WHERE video_id = ?`, videoID).Scan(&existing); err != nil {
		return fmt.Errorf("check existing transcript: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("video %s already has a transcript (%d segments)", videoID, existing)
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO transcript_segments (video_id, start_time, end_time, text)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, seg := range segments {
			if _, err := stmt.Exec(videoID, seg.Start, seg.End, seg.Text); err != nil {
				return fmt.Errorf("insert segment [%f,%f]: %w", seg.Start, seg.End, err)
			}
		}
		return tx.Commit()
	})
}

// ListByVideo returns a video's transcript ordered by start time.
func (s *TranscriptStore) ListByVideo(videoID string) ([]clip.TranscriptSegment, error) {
	return s.query(`
		SELECT id, video_id, start_time, end_time, text
		FROM transcript_segments WHERE video_id = ?
		ORDER BY start_time`, videoID)
}

// Slice returns the transcript segments overlapping [start, end],
// ordered by start time. Used for caption rendering and cloud
// arbitration payloads.
func (s *TranscriptStore) Slice(videoID string, start, end float64) ([]clip.TranscriptSegment, error) {
	return s.query(`
		SELECT id, video_id, start_time, end_time, text
		FROM transcript_segments
		WHERE video_id = ? AND end_time > ? AND start_time < ?
		ORDER BY start_time`, videoID, start, end)
}

func (s *TranscriptStore) query(query string, args ...interface{}) ([]clip.TranscriptSegment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var segments []clip.TranscriptSegment
	for rows.Next() {
		var seg clip.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.VideoID, &seg.Start, &seg.End, &seg.Text); err != nil {
			return nil, fmt.Errorf("scan transcript segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
