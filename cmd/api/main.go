package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"call-insights/internal/analysis"
	"call-insights/internal/audit"
	"call-insights/internal/auth"
	"call-insights/internal/calls"
	"call-insights/internal/config"
	"call-insights/internal/httpapi"
	"call-insights/internal/pipeline"
	"call-insights/internal/recording"
	"call-insights/internal/reporting"
	"call-insights/internal/transcription"
	"call-insights/pkg/logger"
	"call-insights/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := newLogger(os.Stdout, cfg.App)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()
	fatal := func(msg string, err error) {
		log.Error(msg, "err", err)
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		os.Exit(1)
	}

	callRepo, auditRepo, err := openStores(rootCtx, cfg, &closers)
	if err != nil {
		fatal("store init failed", err)
	}
	log.Info("store ready", "driver", cfg.Store.Driver)

	var locker pipeline.Locker = pipeline.NewLocalLocker()
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			fatal("redis init failed", err)
		}
		closers = append(closers, rdb.Close)
		locker = pipeline.NewRedisLocker(rdb, cfg.Pipeline.LockTTL, log)
	}

	var objects recording.ObjectReader
	if cfg.Google.StorageEnabled {
		sc, err := storage.NewClient(rootCtx)
		if err != nil {
			fatal("cloud storage init failed", err)
		}
		closers = append(closers, sc.Close)
		objects = recording.GCSReader{Client: sc}
	}
	acquirer := recording.NewAcquirer(recording.Config{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		Timeout:    cfg.Pipeline.FetchTimeout,
	}, nil, objects)

	whisper := transcription.NewWhisperClient(transcription.Config{
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		Model:    cfg.OpenAI.TranscriptionModel,
		Language: cfg.OpenAI.Language,
		Timeout:  cfg.OpenAI.RequestTimeout,
	})

	analyzer, err := openAnalyzer(rootCtx, cfg, &closers)
	if err != nil {
		fatal("analysis init failed", err)
	}

	sup := pipeline.NewSupervisor(rootCtx, log)
	orch := pipeline.NewOrchestrator(callRepo, acquirer, whisper, analyzer, locker, sup, pipeline.Config{
		Retry: utils.RetryConfig{
			MaxAttempts:  cfg.Pipeline.MaxAttempts,
			InitialDelay: cfg.Pipeline.InitialDelay,
		},
		StartDelay: cfg.Pipeline.StartDelay,
	}, log)
	callSvc := calls.NewService(callRepo, orch)

	authMW := auth.StaticIdentity("local", "admin")
	var authManager *auth.Manager
	if cfg.AuthEnabled() {
		authManager, err = auth.NewManager(cfg.Auth)
		if err != nil {
			fatal("auth init failed", err)
		}
		authMW = auth.RequireAccessToken(authManager)
	} else {
		log.Warn("JWT_SECRET not set, protected routes run as local admin")
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:    cfg,
		authMW: authMW,
		handlers: httpapi.Handlers{
			Auth:     authManager,
			Calls:    callSvc,
			Analysis: orch,
			Reports:  reporting.NewService(callRepo),
			Audit:    audit.NewService(auditRepo),
			Upload: httpapi.UploadConfig{
				Dir:      cfg.Upload.Dir,
				MaxBytes: cfg.Upload.MaxBytes,
				To:       cfg.Twilio.PhoneNumber,
			},
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Zero keeps websocket status streams open; handlers bound their own writes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		log.Error("pipeline shutdown incomplete", "err", err)
	}
}

// openStores builds the call and audit repositories for the configured driver.
func openStores(ctx context.Context, cfg config.Config, closers *[]func() error) (calls.Repository, audit.Repository, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, db.Close)
		return postgresStores(ctx, db)
	case "firestore":
		fs, err := firestore.NewClient(ctx, cfg.Google.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, fs.Close)
		return calls.NewFirestoreRepo(fs), audit.NewFirestoreRepo(fs), nil
	default:
		return calls.NewMemoryRepo(), audit.NewMemoryRepo(), nil
	}
}

func postgresStores(ctx context.Context, db *sql.DB) (calls.Repository, audit.Repository, error) {
	callRepo := calls.NewPostgresRepo(db)
	if err := callRepo.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	auditRepo := audit.NewPostgresRepo(db)
	if err := auditRepo.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	return callRepo, auditRepo, nil
}

func openAnalyzer(ctx context.Context, cfg config.Config, closers *[]func() error) (analysis.Client, error) {
	if cfg.Analysis.Provider == "vertex" {
		vc, err := analysis.NewVertexClient(ctx, cfg.Google.ProjectID, cfg.Google.Region, cfg.Analysis.VertexModel)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, vc.Close)
		return vc, nil
	}
	return analysis.NewOpenAIClient(analysis.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.AnalysisModel,
		Timeout: cfg.OpenAI.RequestTimeout,
	}), nil
}

// newLogger honors LOG_LEVEL and falls back to the env default.
func newLogger(w io.Writer, app config.AppConfig) *slog.Logger {
	return logger.NewWithWriter(w, app.Env, app.LogLevel)
}
