package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/propcheck/inspections/internal/application"
	appassistant "github.com/propcheck/inspections/internal/application/assistant"
	appcomponents "github.com/propcheck/inspections/internal/application/components"
	appinspections "github.com/propcheck/inspections/internal/application/inspections"
	appissues "github.com/propcheck/inspections/internal/application/issues"
	appjobs "github.com/propcheck/inspections/internal/application/jobs"
	appmedia "github.com/propcheck/inspections/internal/application/media"
	"github.com/propcheck/inspections/internal/config"
	"github.com/propcheck/inspections/internal/domain/authz"
	dominsp "github.com/propcheck/inspections/internal/domain/inspections"
	domissues "github.com/propcheck/inspections/internal/domain/issues"
	domjobs "github.com/propcheck/inspections/internal/domain/jobs"
	openaiclient "github.com/propcheck/inspections/internal/infra/ai/openai"
	mysqldb "github.com/propcheck/inspections/internal/infra/db/mysql"
	postgresdb "github.com/propcheck/inspections/internal/infra/db/postgres"
	"github.com/propcheck/inspections/internal/infra/httpserver"
	"github.com/propcheck/inspections/internal/infra/memstore"
	minioStore "github.com/propcheck/inspections/internal/infra/storage"
	"github.com/propcheck/inspections/internal/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("config load error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// pick the store by configured driver
	var (
		inspRepo  dominsp.Repository
		issueRepo domissues.Repository
		jobRepo   domjobs.Repository
		checkers  = map[string]middleware.HealthChecker{}
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqldb.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			logger.Error("mysql connect error", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		inspRepo = mysqldb.NewInspectionRepository(db)
		issueRepo = mysqldb.NewIssueRepository(db)
		jobRepo = mysqldb.NewJobRepository(db)
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	case "postgres":
		db, err := postgresdb.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			logger.Error("postgres connect error", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		inspRepo = postgresdb.NewInspectionRepository(db)
		issueRepo = postgresdb.NewIssueRepository(db)
		jobRepo = postgresdb.NewJobRepository(db)
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	case "memory":
		store := memstore.New()
		inspRepo = store.Inspections()
		issueRepo = store.Issues()
		jobRepo = store.Jobs()
	default:
		logger.Error("unknown database driver", "driver", cfg.Database.Driver)
		os.Exit(1)
	}

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		logger.Error("minio init error", "error", err)
		os.Exit(1)
	}

	// analysis provider and chat assistant share one client
	aiClient := openaiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)

	clock := application.SystemClock{}

	inspSvc := &appinspections.Service{Repo: inspRepo, Clock: clock, Logger: logger}
	compSvc := &appcomponents.Service{Repo: inspRepo, Clock: clock, Logger: logger}
	issueSvc := &appissues.Service{Repo: issueRepo, Inspections: inspRepo, Clock: clock, Logger: logger}
	jobSvc := appjobs.NewService(jobRepo, inspRepo, issueRepo, aiClient, clock, logger)
	mediaSvc := &appmedia.Service{Store: store, Inspections: inspRepo, Logger: logger}
	chatSvc := appassistant.NewService(aiClient)

	// start the job worker
	jobSvc.Start(ctx)

	bindings := make([]middleware.KeyBinding, 0, len(cfg.Auth.Keys))
	for _, k := range cfg.Auth.Keys {
		if !authz.ValidRole(authz.Role(k.Role)) {
			logger.Error("invalid role in auth config", "role", k.Role, "user", k.UserID)
			os.Exit(1)
		}
		bindings = append(bindings, middleware.KeyBinding{
			Key:      k.Key,
			UserID:   k.UserID,
			TenantID: k.TenantID,
			Role:     authz.Role(k.Role),
			Email:    k.Email,
		})
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Inspections: inspSvc,
		Components:  compSvc,
		Issues:      issueSvc,
		Jobs:        jobSvc,
		Media:       mediaSvc,
		Assistant:   chatSvc,
		Logger:      logger,
	}, bindings, cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate, checkers)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	cancel() // stops the job worker
	ctx2, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
