package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"laser-repair/internal/auth"
	"laser-repair/internal/config"
	"laser-repair/internal/database"
	"laser-repair/internal/events"
	httpapi "laser-repair/internal/http"
	"laser-repair/internal/logger"
	"laser-repair/internal/report"
	"laser-repair/internal/repository"
	"laser-repair/internal/service"
	"laser-repair/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "laser-repair")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("laser-repair stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 工单存储
	var (
		repo repository.RecordsRepository
		db   *sql.DB
	)
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		d, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		db = d
		defer db.Close()
		pg := repository.NewPostgresRecordsRepo(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		repo = pg
		log.Info("record store: postgres", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Database))
	default:
		jr, err := openJSONStore(ctx, cfg.Storage, log)
		if err != nil {
			return err
		}
		repo = jr
	}

	// 会话存储
	var kv store.KV
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		kv = store.NewRedisKV(redisClient)
		log.Info("session store: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		kv = store.NewMemoryKV()
	}

	cred, err := auth.NewCredential(cfg.Admin.Username, cfg.Admin.PasswordHash, cfg.Admin.Password)
	if err != nil {
		return err
	}
	if cfg.Admin.UsesLegacyDefault() {
		log.Warn("admin credential is the built-in default, set ADMIN_USERNAME and ADMIN_PASSWORD_HASH")
	}
	sessions := auth.NewSessionManager(kv, cred, cfg.Session.TTL, log)

	// 事件通知（可选）
	var pubs []events.Publisher
	if cfg.MQTT.Enabled {
		mp, err := events.NewMQTTPublisher(&cfg.MQTT, log)
		if err != nil {
			log.Warn("MQTT disabled, connect failed", zap.Error(err))
		} else {
			defer mp.Close()
			pubs = append(pubs, mp)
		}
	}
	if cfg.Webhook.URL != "" {
		pubs = append(pubs, events.NewWebhookPublisher(cfg.Webhook.URL, cfg.Webhook.Timeout, log))
	}
	publisher := events.Combine(pubs...)

	records := service.NewRecordService(repo, publisher, log)
	reports := service.NewReportService(records, report.NewDocxRenderer(), cfg.Report.TemplateFile, log)
	exports := service.NewExportService(records, log)

	if rep, err := reports.ValidateTemplate(ctx); err != nil {
		log.Warn("report template not usable, report download disabled until it is fixed",
			zap.String("template", cfg.Report.TemplateFile),
			zap.Error(err),
		)
	} else if rep.OK() {
		log.Info("report template matches schema", zap.String("schema", report.SchemaV1.Version))
	}

	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterRecordRoutes(
		httpapi.NewRecordsHandler(records, reports, exports, log),
		httpapi.NewSessionMiddleware(sessions),
	)
	router.RegisterAdminRoutes(httpapi.NewAdminHandler(sessions, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-sigCh:
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	records.Drain()
	return serveErr
}

// openJSONStore 打开 JSON 文件存储；文件损坏时只有开启恢复开关才备份并以空集合启动
func openJSONStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*repository.JSONRecordsRepo, error) {
	repo := repository.NewJSONRecordsRepo(cfg.DBFile, log)
	err := repo.Open(ctx)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, repository.ErrCorruptStore) {
		return nil, err
	}
	if !cfg.RecoverCorrupt {
		return nil, fmt.Errorf("%w (set STORE_RECOVER_CORRUPT=true to back it up and start empty)", err)
	}

	backup, rerr := repo.RecoverCorrupt()
	if rerr != nil {
		return nil, rerr
	}
	log.Warn("starting with empty record store", zap.String("backup", backup))
	if err := repo.Open(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}
