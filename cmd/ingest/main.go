package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/vidledger/internal/comments"
	"github.com/timmy/vidledger/internal/config"
	"github.com/timmy/vidledger/internal/credential"
	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/journal"
	"github.com/timmy/vidledger/internal/logger"
	"github.com/timmy/vidledger/internal/master"
	"github.com/timmy/vidledger/internal/pipeline"
	"github.com/timmy/vidledger/internal/repository"
	"github.com/timmy/vidledger/internal/retrieval"
	"github.com/timmy/vidledger/internal/service"
	"github.com/timmy/vidledger/internal/source/linefile"
	"github.com/timmy/vidledger/internal/storage"
	"github.com/timmy/vidledger/internal/transcribe"
)

const exitInterrupted = 130

func main() {
	os.Exit(run())
}

func run() int {
	logCfg := logger.ConfigFromEnv()
	logCfg.ServiceName = "vidledger-ingest"
	appLogger := logger.New(logCfg)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", "", "Path to config file")
	input := flag.String("input", "", "File with one URL per line (overrides paths.input)")
	limit := flag.Int("limit", 0, "Only consider the first N URLs of the input (0 = all)")
	force := flag.Bool("force", false, "Re-download URLs already in the master database")
	clean := flag.Bool("clean", false, "Clear the progress journal before starting")
	retryFailed := flag.Bool("retry-failed", false, "Retry URLs that failed in earlier runs")
	msToken := flag.String("ms-token", "", "TikTok msToken for comment extraction")
	noTranscribe := flag.Bool("no-transcribe", false, "Skip model transcription")
	maxComments := flag.Int("max-comments", -1, "Comments per video (overrides comments.max_comments)")
	batchSize := flag.Int("batch-size", 0, "Checkpoint every N successes (overrides ingest.batch_size)")
	delay := flag.Duration("delay", -1, "Pause between items (overrides ingest.item_delay)")
	status := flag.Bool("status", false, "Print master database and journal status, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Error("Failed to load config")
		return 1
	}
	applyFlags(cfg, *input, *batchSize, *delay, *maxComments, *retryFailed, *noTranscribe)

	runID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.SetRunID(appLogger.WithContext(ctx), runID)

	progress := journal.New(cfg.Paths.Journal, runID)
	store := master.New(cfg.Paths.Master, master.WithReplace(*force))
	runRepo := openRunHistory(ctx, cfg)

	if *status {
		return printStatus(ctx, store, progress, runRepo)
	}

	commentClient := comments.New(comments.Config{
		BaseURL:   cfg.Comments.BaseURL,
		UserAgent: cfg.Comments.UserAgent,
		PageSize:  cfg.Comments.PageSize,
		Timeout:   cfg.Comments.Timeout,
	})
	creds := credential.New(commentClient, credential.Config{
		EnvVar:     cfg.Token.EnvVar,
		MinLength:  cfg.Token.MinLength,
		MaxPrompts: cfg.Token.Prompts,
	}, credential.WithEnvLookup(envLookup(cfg.Token)))
	if cfg.Comments.MaxComments > 0 {
		acquireToken(ctx, creds, *msToken)
	}

	opts := []pipeline.Option{pipeline.WithComments(commentClient)}
	if cfg.Transcription.Enabled {
		opts = append(opts, pipeline.WithTranscriber(newTranscriber(cfg.Transcription)))
	}
	if cfg.Storage.Enabled {
		archiver, err := newArchiver(ctx, cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Error("Failed to initialize storage")
			return 1
		}
		opts = append(opts, pipeline.WithArchiver(archiver))
	}
	retriever := retrieval.NewYtDlp(cfg.Retrieval.Binary, cfg.Retrieval.Quality, cfg.Retrieval.Timeout)
	proc := pipeline.New(retriever, opts...)

	var runs service.RunRecorder
	if runRepo != nil {
		runs = runRepo
	}
	ingestService := service.NewIngestService(progress, store, proc, creds, runs, appLogger)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Warn("Received shutdown signal, finishing the current item (press Ctrl+C again to force quit)")
		cancel()
		<-sigChan
		appLogger.Error("Forced quit; the current item will be retried on the next run")
		os.Exit(exitInterrupted)
	}()

	batchCfg := domain.BatchConfig{
		OutputDir:     cfg.Paths.OutputDir,
		BatchSize:     cfg.Ingest.BatchSize,
		ItemDelay:     cfg.Ingest.ItemDelay,
		MaxComments:   cfg.Comments.MaxComments,
		Transcribe:    cfg.Transcription.Enabled,
		Quality:       cfg.Retrieval.Quality,
		Force:         *force,
		CleanStart:    *clean,
		RetryFailed:   cfg.Ingest.RetryFailed,
		MaxAttempts:   cfg.Ingest.MaxAttempts,
		RetryPause:    cfg.Ingest.RetryPause,
		Limit:         *limit,
		OnTokenExpiry: domain.ExpiryPolicy(cfg.Token.OnExpiry),
	}

	src := linefile.NewAdapter(cfg.Paths.Input, cfg.Ingest.URLFilter)
	stats, err := ingestService.IngestFromSource(ctx, src, batchCfg)
	if stats != nil && !stats.StartTime.IsZero() {
		fmt.Println(renderSummary(stats))
	}
	if err != nil {
		printResumeHelp(err, cfg)
		return 1
	}
	if stats.Interrupted {
		fmt.Fprintln(os.Stderr, "Run interrupted. Progress is saved; re-run the same command to continue.")
		return exitInterrupted
	}
	return 0
}

func applyFlags(cfg *config.Config, input string, batchSize int, delay time.Duration, maxComments int, retryFailed, noTranscribe bool) {
	if input != "" {
		cfg.Paths.Input = input
	}
	if batchSize > 0 {
		cfg.Ingest.BatchSize = batchSize
	}
	if delay >= 0 {
		cfg.Ingest.ItemDelay = delay
	}
	if maxComments >= 0 {
		cfg.Comments.MaxComments = maxComments
	}
	if retryFailed {
		cfg.Ingest.RetryFailed = true
	}
	if noTranscribe {
		cfg.Transcription.Enabled = false
	}
}

// envLookup resolves the token variable through viper first, so a value
// from .env or the config file counts as coming from the environment.
func envLookup(tc config.TokenConfig) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if key == tc.EnvVar && strings.TrimSpace(tc.Value) != "" {
			return tc.Value, true
		}
		return os.LookupEnv(key)
	}
}

func acquireToken(ctx context.Context, creds *credential.Manager, explicit string) {
	tok, err := creds.Acquire(ctx, explicit)
	switch {
	case errors.Is(err, domain.ErrNoToken):
		logger.CtxInfo(ctx, "No token provided, continuing in video-only mode")
		return
	case err != nil:
		logger.CtxWarn(ctx, "Token acquisition failed, continuing in video-only mode: error=%v", err)
		return
	}
	// Validate logs the rejection itself.
	creds.Validate(ctx, tok)
}

func newTranscriber(tc config.TranscriptionConfig) transcribe.Transcriber {
	if tc.Provider == "openai" {
		return transcribe.NewOpenAI(transcribe.OpenAIConfig{
			BaseURL:  tc.BaseURL,
			APIKey:   tc.APIKey,
			Model:    tc.Model,
			Language: tc.Language,
			Timeout:  tc.Timeout,
		})
	}
	return transcribe.NewWhisperCLI(tc.Binary, tc.Model, tc.Language, tc.Timeout)
}

func newArchiver(ctx context.Context, sc config.StorageConfig) (*storage.Archiver, error) {
	objectStorage, err := storage.NewS3Storage(ctx, storage.Config{
		Type:      storage.Type(sc.Type),
		Endpoint:  sc.Endpoint,
		Region:    sc.Region,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
		UseSSL:    sc.UseSSL,
		Bucket:    sc.Bucket,
		PublicURL: sc.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return storage.NewArchiver(objectStorage, sc.Prefix, sc.RemoveLocal), nil
}

// openRunHistory returns nil when run history is disabled or unavailable.
func openRunHistory(ctx context.Context, cfg *config.Config) *repository.RunRepository {
	if !cfg.Database.Enabled {
		return nil
	}
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.CtxWarn(ctx, "Run history unavailable: error=%v", err)
		return nil
	}
	return repository.NewRunRepository(db)
}

func printStatus(ctx context.Context, store *master.Store, progress *journal.Journal, runRepo *repository.RunRepository) int {
	var runs service.RunLister
	if runRepo != nil {
		runs = runRepo
	}
	ledger := service.NewLedgerService(store, progress, runs, logger.FromContext(ctx))
	stats, err := ledger.Stats(ctx)
	if err != nil {
		logger.CtxError(ctx, "Failed to read ledger: error=%v", err)
		return 1
	}
	recent, err := ledger.Runs(ctx, 10)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to read run history: error=%v", err)
	}
	fmt.Println(renderStatus(stats, recent))
	return 0
}

func printResumeHelp(err error, cfg *config.Config) {
	fmt.Fprintf(os.Stderr, "\nIngestion stopped: %v\n", err)
	var se *domain.StorageError
	if errors.As(err, &se) {
		fmt.Fprintf(os.Stderr, "A write to %s failed. Check free disk space and permissions.\n", se.Path)
	}
	if errors.Is(err, master.ErrCorrupt) {
		fmt.Fprintf(os.Stderr, "Fix or move %s before running again; it will not be overwritten.\n", cfg.Paths.Master)
		return
	}
	fmt.Fprintln(os.Stderr, "Everything up to the last checkpoint is saved. Re-run the same command to resume.")
}
