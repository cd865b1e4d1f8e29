package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// CandidateStore persists clip candidates.
type CandidateStore struct {
	db *DB
}

// NewCandidateStore creates a CandidateStore backed by the given database.
func NewCandidateStore(db *DB) *CandidateStore {
	return &CandidateStore{db: db}
}

// Insert persists a new candidate. If ClipID is empty, a UUID is generated.
func (s *CandidateStore) Insert(c *clip.Candidate) error {
	if c.ClipID == "" {
		c.ClipID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.End <= c.Start {
		return fmt.Errorf("candidate span invalid: start=%f end=%f", c.Start, c.End)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO clip_candidates (clip_id, video_id, start_time, end_time, source_tag, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.ClipID, c.VideoID, c.Start, c.End, string(c.Source), c.CreatedAt.UnixNano(),
		)
		return err
	})
}

// Get returns a single candidate by clip ID.
func (s *CandidateStore) Get(clipID string) (*clip.Candidate, error) {
	row := s.db.QueryRow(`
		SELECT clip_id, video_id, start_time, end_time, source_tag, created_at
		FROM clip_candidates WHERE clip_id = ?`, clipID)

	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("clip %s not found", clipID)
	}
	return c, err
}

// ListByVideo returns all candidates for a video ordered by start time.
func (s *CandidateStore) ListByVideo(videoID string) ([]clip.Candidate, error) {
	rows, err := s.db.Query(`
		SELECT clip_id, video_id, start_time, end_time, source_tag, created_at
		FROM clip_candidates WHERE video_id = ?
		ORDER BY start_time`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []clip.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

// DeleteByVideo removes all candidates (and their scores, via cascade)
// for a video. Used when segmentation is re-run from scratch.
func (s *CandidateStore) DeleteByVideo(videoID string) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`DELETE FROM clip_candidates WHERE video_id = ?`, videoID)
		return err
	})
}

func scanCandidate(row rowScanner) (*clip.Candidate, error) {
	var c clip.Candidate
	var source string
	var createdNs int64
	if err := row.Scan(&c.ClipID, &c.VideoID, &c.Start, &c.End, &source, &createdNs); err != nil {
		return nil, err
	}
	c.Source = clip.SourceTag(source)
	c.CreatedAt = time.Unix(0, createdNs)
	return &c, nil
}
