// Package api exposes the pipeline over HTTP: video listings, the
// processing log, clip rankings, and the export and re-score controls.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipforge-media/clipforge/internal/clip"
	"github.com/clipforge-media/clipforge/internal/export"
	"github.com/clipforge-media/clipforge/internal/httputil"
	"github.com/clipforge-media/clipforge/internal/monitoring"
	"github.com/clipforge-media/clipforge/internal/pipeline"
	"github.com/clipforge-media/clipforge/internal/store"
	"github.com/clipforge-media/clipforge/internal/version"
)

// Stores groups the read-side stores the API serves from.
type Stores struct {
	Videos     *store.VideoStore
	Logs       *store.LogStore
	Candidates *store.CandidateStore
	Scores     *store.ScoreStore
	Jobs       *store.ExportJobStore
	WatchDirs  *store.WatchDirectoryStore
}

type Server struct {
	pipe    *pipeline.Pipeline
	sched   *export.Scheduler
	st      Stores
	metrics *monitoring.Metrics
	log     zerolog.Logger
}

func NewServer(pipe *pipeline.Pipeline, sched *export.Scheduler, st Stores, metrics *monitoring.Metrics) *Server {
	return &Server{
		pipe:    pipe,
		sched:   sched,
		st:      st,
		metrics: metrics,
		log:     monitoring.Logger.With().Str("component", "api").Logger(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		s.log.Info().
			Int("status", lrw.statusCode).
			Str("method", r.Method).
			Str("path", r.RequestURI).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/videos", s.listVideos)
	mux.HandleFunc("/api/video", s.showVideo)
	mux.HandleFunc("/api/rankings", s.showRankings)
	mux.HandleFunc("/api/process", s.startProcess)
	mux.HandleFunc("/api/rescore", s.startRescore)
	mux.HandleFunc("/api/export", s.startExport)
	mux.HandleFunc("/api/exports", s.listExports)
	mux.HandleFunc("/api/exports/retry", s.retryExport)
	mux.HandleFunc("/api/exports/cancel", s.cancelExport)
	mux.HandleFunc("/api/watchdirs", s.watchDirs)
	mux.HandleFunc("/healthz", s.health)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var videos []*clip.Video
	var err error
	switch {
	case r.URL.Query().Get("user") != "":
		videos, err = s.st.Videos.ListByUser(r.URL.Query().Get("user"))
	case r.URL.Query().Get("status") != "":
		videos, err = s.st.Videos.ListByStatus(r.URL.Query().Get("status"))
	default:
		videos, err = s.st.Videos.List()
	}
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list videos: %v", err))
		return
	}
	if videos == nil {
		videos = []*clip.Video{}
	}
	httputil.WriteJSONOK(w, videos)
}

// videoDetail is the composite response for one video: its record, the
// full processing log and the current candidate set with scores.
type videoDetail struct {
	Video      *clip.Video                  `json:"video"`
	Log        []store.LogEntry             `json:"log"`
	Candidates []clip.Candidate             `json:"candidates"`
	Scores     map[string]*clip.ScoreRecord `json:"scores"`
}

func (s *Server) showVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	video, ok := s.lookupVideo(w, r)
	if !ok {
		return
	}

	entries, err := s.st.Logs.ListByVideo(video.ID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read log: %v", err))
		return
	}
	candidates, err := s.st.Candidates.ListByVideo(video.ID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read candidates: %v", err))
		return
	}
	scores, err := s.st.Scores.MapByVideo(video.ID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read scores: %v", err))
		return
	}

	httputil.WriteJSONOK(w, videoDetail{Video: video, Log: entries, Candidates: candidates, Scores: scores})
}

func (s *Server) showRankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	video, ok := s.lookupVideo(w, r)
	if !ok {
		return
	}

	ranked, err := s.pipe.Rankings(video.ID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to rank clips: %v", err))
		return
	}
	if ranked == nil {
		ranked = []clip.RankedClip{}
	}
	httputil.WriteJSONOK(w, ranked)
}

// startProcess kicks the pipeline for a video in the background and
// returns 202. Progress is visible through the processing log.
func (s *Server) startProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	video, ok := s.lookupVideo(w, r)
	if !ok {
		return
	}

	go func() {
		if err := s.pipe.Process(context.WithoutCancel(r.Context()), video.ID); err != nil {
			s.log.Error().Err(err).Str("video_id", video.ID).Msg("process failed")
		}
	}()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"video_id": video.ID, "state": "processing"})
}

func (s *Server) startRescore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	video, ok := s.lookupVideo(w, r)
	if !ok {
		return
	}

	go func() {
		if err := s.pipe.Rescore(context.WithoutCancel(r.Context()), video.ID); err != nil {
			s.log.Error().Err(err).Str("video_id", video.ID).Msg("rescore failed")
		}
	}()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"video_id": video.ID, "state": "rescoring"})
}

// startExport re-queues export jobs for a ready video. The optional
// request body is a caption style JSON object applied to every job.
func (s *Server) startExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	video, ok := s.lookupVideo(w, r)
	if !ok {
		return
	}

	style, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64*1024))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Failed to read caption style")
		return
	}
	if len(style) == 0 {
		style = nil
	}

	if err := s.pipe.ReExport(r.Context(), video.ID, style); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, fmt.Sprintf("Failed to export: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"video_id": video.ID, "state": "exporting"})
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	video, ok := s.lookupVideo(w, r)
	if !ok {
		return
	}

	jobs, err := s.st.Jobs.ListByVideo(video.ID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list export jobs: %v", err))
		return
	}
	if jobs == nil {
		jobs = []*store.ExportJob{}
	}
	httputil.WriteJSONOK(w, jobs)
}

func (s *Server) retryExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	jobID := r.URL.Query().Get("job")
	if jobID == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Missing 'job' parameter")
		return
	}
	if err := s.sched.Retry(jobID); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, fmt.Sprintf("Failed to retry job: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "state": "queued"})
}

func (s *Server) cancelExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	jobID := r.URL.Query().Get("job")
	if jobID == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Missing 'job' parameter")
		return
	}
	if err := s.sched.Cancel(jobID); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, fmt.Sprintf("Failed to cancel job: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"job_id": jobID, "state": "cancelled"})
}

// watchDirs registers, lists and toggles watch directories.
func (s *Server) watchDirs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		dirs, err := s.st.WatchDirs.ListActive()
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list watch directories: %v", err))
			return
		}
		if dirs == nil {
			dirs = []store.WatchDirectory{}
		}
		httputil.WriteJSONOK(w, dirs)

	case http.MethodPost:
		if id := r.URL.Query().Get("id"); id != "" {
			s.toggleWatchDir(w, r, id)
			return
		}
		var wd store.WatchDirectory
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&wd); err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid watch directory body")
			return
		}
		if wd.UserID == "" || wd.DirectoryPath == "" {
			httputil.WriteJSONError(w, http.StatusBadRequest, "user_id and directory_path are required")
			return
		}
		if err := s.st.WatchDirs.Insert(&wd); err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to register watch directory: %v", err))
			return
		}
		httputil.WriteJSONOK(w, wd)

	default:
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) toggleWatchDir(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid 'id' parameter")
		return
	}
	active := r.URL.Query().Get("active") != "false"
	if err := s.st.WatchDirs.SetActive(id, active); err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("Failed to update watch directory: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"id": id, "is_active": active})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"git_sha": version.GitSHA,
	})
}

// lookupVideo resolves the 'id' query parameter to a video record,
// writing the error response itself when the lookup fails.
func (s *Server) lookupVideo(w http.ResponseWriter, r *http.Request) (*clip.Video, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Missing 'id' parameter")
		return nil, false
	}
	video, err := s.st.Videos.Get(id)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("Unknown video: %v", err))
		return nil, false
	}
	return video, true
}
