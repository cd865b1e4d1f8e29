package store

import (
	"fmt"
	"time"
)

// WatchDirectory is a user directory monitored for new video files.
type WatchDirectory struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	DirectoryPath string    `json:"directory_path"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// WatchDirectoryStore persists watch directories.
type WatchDirectoryStore struct {
	db *DB
}

// NewWatchDirectoryStore creates a WatchDirectoryStore backed by the given database.
func NewWatchDirectoryStore(db *DB) *WatchDirectoryStore {
	return &WatchDirectoryStore{db: db}
}

// Insert registers a directory for a user. New registrations start
// active. Re-registering an existing (user, path) pair returns the
// existing record unchanged.
func (s *WatchDirectoryStore) Insert(wd *WatchDirectory) error {
	existing, err := s.find(wd.UserID, wd.DirectoryPath)
	if err != nil {
		return err
	}
	if existing != nil {
		*wd = *existing
		return nil
	}

	wd.IsActive = true
	if wd.CreatedAt.IsZero() {
		wd.CreatedAt = time.Now()
	}
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`
			INSERT INTO watch_directories (user_id, directory_path, is_active, created_at)
			VALUES (?, ?, ?, ?)`,
			wd.UserID, wd.DirectoryPath, wd.IsActive, wd.CreatedAt.UnixNano(),
		)
		if err != nil {
			return err
		}
		wd.ID, err = result.LastInsertId()
		return err
	})
}

// ListActive returns all directories currently being watched.
func (s *WatchDirectoryStore) ListActive() ([]WatchDirectory, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, directory_path, is_active, created_at
		FROM watch_directories WHERE is_active = 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query watch directories: %w", err)
	}
	defer rows.Close()

	var dirs []WatchDirectory
	for rows.Next() {
		var wd WatchDirectory
		var createdNs int64
		if err := rows.Scan(&wd.ID, &wd.UserID, &wd.DirectoryPath, &wd.IsActive, &createdNs); err != nil {
			return nil, fmt.Errorf("scan watch directory: %w", err)
		}
		wd.CreatedAt = time.Unix(0, createdNs)
		dirs = append(dirs, wd)
	}
	return dirs, rows.Err()
}

// SetActive enables or disables watching for a directory.
func (s *WatchDirectoryStore) SetActive(id int64, active bool) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`UPDATE watch_directories SET is_active = ? WHERE id = ?`, active, id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("watch directory %d not found", id)
		}
		return nil
	})
}

func (s *WatchDirectoryStore) find(userID, path string) (*WatchDirectory, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, directory_path, is_active, created_at
		FROM watch_directories WHERE user_id = ? AND directory_path = ?
		LIMIT 1`, userID, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var wd WatchDirectory
	var createdNs int64
	if err := rows.Scan(&wd.ID, &wd.UserID, &wd.DirectoryPath, &wd.IsActive, &createdNs); err != nil {
		return nil, err
	}
	wd.CreatedAt = time.Unix(0, createdNs)
	return &wd, nil
}
