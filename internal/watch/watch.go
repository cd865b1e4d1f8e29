// Package watch polls registered directories for new video files and
// feeds them into the processing pipeline.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipforge-media/clipforge/internal/clip"
	"github.com/clipforge-media/clipforge/internal/monitoring"
	"github.com/clipforge-media/clipforge/internal/store"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = 30 * time.Second

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// Registrar admits a discovered file into the pipeline. Registration
// is idempotent per path, so re-scanning a directory is harmless.
type Registrar interface {
	Ingest(filePath, title, userID string, watchDirID int64) (*clip.Video, error)
}

// Scanner polls active watch directories on a fixed interval. A file
// is only ingested once its size has held steady across two scans, so
// half-copied uploads are left alone.
type Scanner struct {
	dirs      *store.WatchDirectoryStore
	registrar Registrar
	interval  time.Duration
	log       zerolog.Logger

	// OnIngest, when set, is called for each newly registered video.
	// It runs on the scanner goroutine; long work belongs elsewhere.
	OnIngest func(video *clip.Video)

	sizes    map[string]int64
	ingested map[string]bool
}

// NewScanner creates a Scanner over the given directory store.
func NewScanner(dirs *store.WatchDirectoryStore, registrar Registrar, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scanner{
		dirs:      dirs,
		registrar: registrar,
		interval:  interval,
		log:       monitoring.Logger.With().Str("component", "watch").Logger(),
		sizes:     make(map[string]int64),
		ingested:  make(map[string]bool),
	}
}

// Run polls until the context is cancelled. The first scan happens
// immediately rather than one interval in.
func (s *Scanner) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("directory scanner started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Scan()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("directory scanner stopped")
			return
		case <-ticker.C:
			s.Scan()
		}
	}
}

// Scan walks every active directory once. Errors are logged per
// directory so one bad mount does not stall the rest.
func (s *Scanner) Scan() {
	dirs, err := s.dirs.ListActive()
	if err != nil {
		s.log.Error().Err(err).Msg("list watch directories")
		return
	}

	current := make(map[string]int64)
	for _, dir := range dirs {
		s.scanDir(dir, current)
	}
	s.sizes = current
}

func (s *Scanner) scanDir(dir store.WatchDirectory, current map[string]int64) {
	entries, err := os.ReadDir(dir.DirectoryPath)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", dir.DirectoryPath).Msg("read watch directory")
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir.DirectoryPath, entry.Name())
		current[path] = info.Size()

		if s.ingested[path] {
			continue
		}
		prev, seen := s.sizes[path]
		if !seen || prev != info.Size() {
			// New or still growing; pick it up next pass.
			continue
		}

		title := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		video, err := s.registrar.Ingest(path, title, dir.UserID, dir.ID)
		if err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("ingest discovered file")
			continue
		}
		s.ingested[path] = true
		s.log.Info().Str("video_id", video.ID).Str("path", path).Msg("discovered video")
		if s.OnIngest != nil {
			s.OnIngest(video)
		}
	}
}
