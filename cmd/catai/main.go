package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/config"
	"github.com/CerberoGS/CATAI-sub000/internal/db"
	"github.com/CerberoGS/CATAI-sub000/internal/filestore"
	"github.com/CerberoGS/CATAI-sub000/internal/handler"
	"github.com/CerberoGS/CATAI-sub000/internal/job"
	"github.com/CerberoGS/CATAI-sub000/internal/middleware"
	"github.com/CerberoGS/CATAI-sub000/internal/pipeline"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/secretbox"
	"github.com/CerberoGS/CATAI-sub000/internal/repo"
	"github.com/CerberoGS/CATAI-sub000/internal/schedule"
	"github.com/CerberoGS/CATAI-sub000/internal/service"
)

const extractRateWindow = 3 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "catai",
		Short: "catai document analysis backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run catai server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(cfg, conn)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			logutil.GetLogger(context.Background()).Info("migrations applied")
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func bootstrap(configPath string) (*config.Config, *sqlx.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

func buildReaders(ctx context.Context, entries []config.DirectEntry) []ai.ReaderEntry {
	items := make([]ai.ReaderEntry, 0, len(entries))
	for _, entry := range entries {
		reader, err := ai.NewReader(entry.Provider, entry.Data)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip direct reader", zap.String("provider", entry.Provider), zap.Error(err))
			continue
		}
		items = append(items, ai.ReaderEntry{Name: entry.Provider, Model: entry.Model, Reader: reader})
	}
	return items
}

func runServer(cfg *config.Config, conn *sqlx.DB) error {
	ctx := context.Background()
	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	userRepo := repo.NewUserRepo(conn)
	docRepo := repo.NewDocumentRepo(conn)
	indexRepo := repo.NewIndexRepo(conn, service.NewID)
	knowledgeRepo := repo.NewKnowledgeRepo(conn)
	settingsRepo := repo.NewSettingsRepo(conn)
	usageRepo := repo.NewUsageRepo(conn)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	box, err := secretbox.New(cfg.SecretKey)
	if err != nil {
		return fmt.Errorf("init secretbox: %w", err)
	}

	providerArgs := cfg.AI.ProviderArgs()
	serverClient, err := ai.NewAssistantClient(cfg.AI.Provider, providerArgs)
	if err != nil {
		logutil.GetLogger(ctx).Warn("server ai client unavailable, only user keys will work", zap.Error(err))
		serverClient = nil
	}

	settingsService := service.NewSettingsService(settingsRepo, box)
	resolver := service.NewClientResolver(settingsService, cfg.AI.Provider, providerArgs, serverClient)
	documentService := service.NewDocumentService(docRepo, knowledgeRepo, indexRepo, store, cfg.Upload)
	driver := pipeline.NewDriver(pipeline.ConfigFrom(cfg.AI, cfg.Extraction), pipeline.Deps{
		Documents: docRepo,
		Indexes:   indexRepo,
		Results:   knowledgeRepo,
		Usage:     usageRepo,
		Source:    documentService,
		Clients:   resolver,
		NewID:     service.NewID,
	})
	extractionService := service.NewExtractionService(docRepo, knowledgeRepo, settingsService, driver)
	var directService *service.DirectService
	if group := ai.NewGroupReader(buildReaders(ctx, cfg.Direct.Entries)); group != nil {
		directService = service.NewDirectService(docRepo, knowledgeRepo, usageRepo, settingsService, documentService, group,
			cfg.Direct.Prompt, cfg.Upload.MaxBytes, cfg.Extraction.MaxAnswerBytes)
	}
	usageService := service.NewUsageService(usageRepo)

	scheduler := schedule.NewCronScheduler()
	resumeJob := job.NewExtractionResumeJob(docRepo, extractionService,
		time.Duration(cfg.Schedule.ResumeDelaySeconds)*time.Second,
		uint(cfg.Schedule.ResumeBatch),
		cfg.Schedule.ResumeConcurrency,
	)
	if err := scheduler.AddJob(resumeJob, cfg.Schedule.ResumeSpec); err != nil {
		return fmt.Errorf("schedule resume job: %w", err)
	}
	cleanupJob := job.NewUsageCleanupJob(usageService, time.Duration(cfg.Schedule.UsageKeepDays)*24*time.Hour)
	if err := scheduler.AddJob(cleanupJob, cfg.Schedule.UsageCleanupSpec); err != nil {
		return fmt.Errorf("schedule usage cleanup job: %w", err)
	}

	deps := handler.RouterDeps{
		Auth:          handler.NewAuthHandler(service.NewAuthService(userRepo, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))),
		Documents:     handler.NewDocumentHandler(documentService),
		Extraction:    handler.NewExtractionHandler(extractionService, directService),
		Knowledge:     handler.NewKnowledgeHandler(service.NewKnowledgeService(knowledgeRepo)),
		Settings:      handler.NewSettingsHandler(settingsService),
		Usage:         handler.NewUsageHandler(usageService),
		JWTSecret:     []byte(cfg.JWTSecret),
		ExtractWindow: extractRateWindow,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	scheduler.Start(sigCtx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-sigCtx.Done()
	logutil.GetLogger(ctx).Info("server stopping...")
	return nil
}
