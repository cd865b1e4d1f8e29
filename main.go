package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipforge-media/clipforge/internal/adapters"
	"github.com/clipforge-media/clipforge/internal/api"
	"github.com/clipforge-media/clipforge/internal/clip"
	"github.com/clipforge-media/clipforge/internal/config"
	"github.com/clipforge-media/clipforge/internal/events"
	"github.com/clipforge-media/clipforge/internal/export"
	"github.com/clipforge-media/clipforge/internal/lifecycle"
	"github.com/clipforge-media/clipforge/internal/monitoring"
	"github.com/clipforge-media/clipforge/internal/pipeline"
	"github.com/clipforge-media/clipforge/internal/store"
	"github.com/clipforge-media/clipforge/internal/version"
	"github.com/clipforge-media/clipforge/internal/watch"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db-path", "", "Path to database file (overrides config)")
)

func main() {
	flag.Parse()

	cfg := config.Empty()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			monitoring.Logger.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg = loaded
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *listen != "" {
		cfg.ListenAddr = listen
	}

	monitoring.SetLogger(monitoring.NewLogger(cfg.GetLogLevel(), cfg.GetLogConsole()))
	log := monitoring.Logger.With().Str("component", "main").Logger()
	log.Info().Str("version", version.Version).Str("git_sha", version.GitSHA).Msg("clipforge starting")

	// Subcommands run and exit before the daemon wiring starts.
	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "migrate":
			runMigrateCommand(args[1:], cfg.GetDBPath())
			return
		default:
			log.Fatal().Str("command", args[0]).Msg("unknown command")
		}
	}

	db, err := store.Open(cfg.GetDBPath())
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.MigrateUp(store.MigrationsFS()); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	videos := store.NewVideoStore(db)
	transcripts := store.NewTranscriptStore(db)
	candidates := store.NewCandidateStore(db)
	scores := store.NewScoreStore(db)
	jobs := store.NewExportJobStore(db)
	logs := store.NewLogStore(db)
	watchDirs := store.NewWatchDirectoryStore(db)

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.GetKafkaTopic())
	defer publisher.Close()
	logs.Notify = publisher.LogAppended

	metrics := monitoring.NewMetrics()
	tracker := export.NewEscalationTracker()

	ff := adapters.NewFFmpeg(cfg.GetFFmpegPath(), cfg.GetFFprobePath())
	localVision := adapters.NewLocalVLM(cfg.GetLocalVLMURL(), cfg.GetLocalVLMKey(), cfg.GetLocalVLMModel(), cfg.GetLocalVLMFrames(), ff)
	var cloudVision adapters.CloudVisionAdapter
	if cfg.GetCloudVLMKey() != "" {
		cloudVision = adapters.NewCloudVLM(cfg.GetCloudVLMURL(), cfg.GetCloudVLMKey(), cfg.GetCloudVLMModel(), cfg.GetCloudVLMFrames(), cfg.GetCloudTimeout(), ff)
	} else {
		log.Warn().Msg("no cloud API key configured, ambiguous clips will not escalate")
	}

	sched := export.NewScheduler(cfg.GetExportCapacity(), cfg.GetExportDir(), adapters.NewFFmpegRenderer(ff), export.Stores{
		Videos:      videos,
		Candidates:  candidates,
		Transcripts: transcripts,
		Jobs:        jobs,
		Logs:        logs,
	}, tracker, metrics, monitoring.Logger.With().Str("component", "export").Logger())

	ctrl := lifecycle.NewController(videos, logs, monitoring.Logger.With().Str("component", "lifecycle").Logger())
	pipe := pipeline.New(pipeline.Config{
		Gate:             cfg.GateConfig(),
		Weights:          cfg.CombineWeights(),
		TopN:             cfg.GetTopN(),
		CloudDurationCap: cfg.GetCloudDurationCap(),
		AdapterTimeout:   cfg.GetAdapterTimeout(),
	}, pipeline.Adapters{
		Transcriber: adapters.NewWhisperTranscriber(cfg.GetWhisperBin(), cfg.GetWhisperModel(), ff),
		Segmenter:   adapters.NewPauseSegmenter(0, 0, 0),
		LocalVision: localVision,
		CloudVision: cloudVision,
	}, pipeline.Stores{
		Videos:      videos,
		Transcripts: transcripts,
		Candidates:  candidates,
		Scores:      scores,
		Logs:        logs,
	}, ctrl, sched, tracker, metrics, monitoring.Logger.With().Str("component", "pipeline").Logger())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Export scheduler dispatch loop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
		log.Info().Msg("export scheduler stopped")
	}()

	// Directory scanner. Discovered videos run the full pipeline in
	// their own goroutine; failed steps stay in the log for resume.
	scanner := watch.NewScanner(watchDirs, pipe, cfg.GetWatchInterval())
	scanner.OnIngest = func(v *clip.Video) {
		go func() {
			if err := pipe.Process(ctx, v.ID); err != nil {
				log.Error().Err(err).Str("video_id", v.ID).Msg("process discovered video")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner.Run(ctx)
	}()

	// Resume videos interrupted by a previous shutdown.
	wg.Add(1)
	go func() {
		defer wg.Done()
		resumeInterrupted(ctx, pipe, videos, log)
	}()

	// HTTP server.
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(pipe, sched, api.Stores{
			Videos:     videos,
			Logs:       logs,
			Candidates: candidates,
			Scores:     scores,
			Jobs:       jobs,
			WatchDirs:  watchDirs,
		}, metrics)

		server := &http.Server{
			Addr:    cfg.GetListenAddr(),
			Handler: srv.LoggingMiddleware(srv.ServeMux()),
		}

		go func() {
			log.Info().Str("addr", cfg.GetListenAddr()).Msg("http server listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server failed")
				stop()
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown")
		}
		log.Info().Msg("http server stopped")
	}()

	wg.Wait()
	log.Info().Msg("graceful shutdown complete")
}

// resumeInterrupted re-runs the pipeline for videos left mid-flight by
// a crash or shutdown. Completed steps are skipped by the resume scan,
// so this only redoes work whose log entry is missing or failed.
func resumeInterrupted(ctx context.Context, pipe *pipeline.Pipeline, videos *store.VideoStore, log zerolog.Logger) {
	for _, status := range []lifecycle.State{
		lifecycle.StateIngested,
		lifecycle.StateTranscribed,
		lifecycle.StateSegmented,
		lifecycle.StateScored,
	} {
		stuck, err := videos.ListByStatus(string(status))
		if err != nil {
			log.Error().Err(err).Str("status", string(status)).Msg("list interrupted videos")
			continue
		}
		for _, v := range stuck {
			if ctx.Err() != nil {
				return
			}
			log.Info().Str("video_id", v.ID).Str("status", v.Status).Msg("resuming interrupted video")
			if err := pipe.Process(ctx, v.ID); err != nil {
				log.Error().Err(err).Str("video_id", v.ID).Msg("resume failed")
			}
		}
	}
}
