package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// ScoreStore persists the one-per-clip score records. Updates are a
// transactional read-modify-write: concurrent pipelines for different
// videos can write freely, but at most one writer touches a given
// clip's record at a time.
type ScoreStore struct {
	db *DB
}

// NewScoreStore creates a ScoreStore backed by the given database.
func NewScoreStore(db *DB) *ScoreStore {
	return &ScoreStore{db: db}
}

// Upsert merges the given record into the stored one. Non-nil axes
// overwrite, nil axes leave the stored value untouched, and the
// escalated flag is sticky: once set it never reverts, even when a
// repeated cloud call overwrites the cloud score.
func (s *ScoreStore) Upsert(ctx context.Context, rec *clip.ScoreRecord) error {
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		existing, err := getScoreTx(tx, rec.ClipID)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("read score record: %w", err)
		}

		merged := mergeScores(existing, rec)
		merged.UpdatedAt = nowNanos()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO segment_scores (
				clip_id, text_score, vision_score_local, audio_emphasis_score,
				facial_emphasis_score, vision_score_cloud, combined_score,
				escalated_to_cloud, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(clip_id) DO UPDATE SET
				text_score = excluded.text_score,
				vision_score_local = excluded.vision_score_local,
				audio_emphasis_score = excluded.audio_emphasis_score,
				facial_emphasis_score = excluded.facial_emphasis_score,
				vision_score_cloud = excluded.vision_score_cloud,
				combined_score = excluded.combined_score,
				escalated_to_cloud = excluded.escalated_to_cloud,
				updated_at = excluded.updated_at`,
			merged.ClipID, nullFloat(merged.Text), nullFloat(merged.VisionLocal),
			nullFloat(merged.AudioEmphasis), nullFloat(merged.FacialEmphasis),
			nullFloat(merged.VisionCloud), merged.Combined,
			merged.Escalated, merged.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("write score record: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		*rec = *merged
		return nil
	})
}

// Get returns the score record for a clip, or nil when the clip has
// not been scored yet.
func (s *ScoreStore) Get(clipID string) (*clip.ScoreRecord, error) {
	rec, err := getScoreTx(s.db, clipID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get score record: %w", err)
	}
	return rec, nil
}

// MapByVideo returns all score records for a video's candidates,
// keyed by clip ID.
func (s *ScoreStore) MapByVideo(videoID string) (map[string]*clip.ScoreRecord, error) {
	rows, err := s.db.Query(`
		SELECT ss.clip_id, ss.text_score, ss.vision_score_local, ss.audio_emphasis_score,
		       ss.facial_emphasis_score, ss.vision_score_cloud, ss.combined_score,
		       ss.escalated_to_cloud, ss.updated_at
		FROM segment_scores ss
		JOIN clip_candidates cc ON cc.clip_id = ss.clip_id
		WHERE cc.video_id = ?`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query score records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]*clip.ScoreRecord)
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		records[rec.ClipID] = rec
	}
	return records, rows.Err()
}

type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func getScoreTx(q querier, clipID string) (*clip.ScoreRecord, error) {
	row := q.QueryRow(`
		SELECT clip_id, text_score, vision_score_local, audio_emphasis_score,
		       facial_emphasis_score, vision_score_cloud, combined_score,
		       escalated_to_cloud, updated_at
		FROM segment_scores WHERE clip_id = ?`, clipID)
	return scanScore(row)
}

func scanScore(row rowScanner) (*clip.ScoreRecord, error) {
	var rec clip.ScoreRecord
	var text, visionLocal, audio, facial, visionCloud sql.NullFloat64
	err := row.Scan(&rec.ClipID, &text, &visionLocal, &audio, &facial,
		&visionCloud, &rec.Combined, &rec.Escalated, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Text = fromNull(text)
	rec.VisionLocal = fromNull(visionLocal)
	rec.AudioEmphasis = fromNull(audio)
	rec.FacialEmphasis = fromNull(facial)
	rec.VisionCloud = fromNull(visionCloud)
	return &rec, nil
}

func mergeScores(existing, update *clip.ScoreRecord) *clip.ScoreRecord {
	if existing == nil {
		out := *update
		return &out
	}
	merged := *existing
	if update.Text != nil {
		merged.Text = update.Text
	}
	if update.VisionLocal != nil {
		merged.VisionLocal = update.VisionLocal
	}
	if update.AudioEmphasis != nil {
		merged.AudioEmphasis = update.AudioEmphasis
	}
	if update.FacialEmphasis != nil {
		merged.FacialEmphasis = update.FacialEmphasis
	}
	if update.VisionCloud != nil {
		merged.VisionCloud = update.VisionCloud
	}
	merged.Combined = update.Combined
	merged.Escalated = merged.Escalated || update.Escalated
	return &merged
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
