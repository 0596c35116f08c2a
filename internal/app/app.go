package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"invofox/internal/clients"
	"invofox/internal/config"
	"invofox/internal/render"
	"invofox/internal/repository"
	"invofox/internal/repository/firestore"
	"invofox/internal/repository/memory"
	pgstore "invofox/internal/repository/postgres"
	"invofox/internal/service"
	"invofox/internal/transport/websocket"
	"invofox/pkg/database/postgres"
)

// App holds every long-lived dependency of the process.
type App struct {
	Config config.AppConfig
	Log    zerolog.Logger

	DB     *sql.DB
	Store  repository.Store
	Tokens repository.TokenRepository
	Redis  *clients.RedisClient
	Files  *clients.StorageClient
	Hub    *websocket.Hub

	Counters   *service.CounterService
	Settlement *service.SettlementService
	Documents  *service.DocumentPipeline
	Ledger     *service.Ledger

	closers []func() error
}

// Options derives the engine options from configuration.
func Options(cfg config.SettlementConfig, log zerolog.Logger) service.Options {
	return service.Options{
		Retry: service.RetryPolicy{
			MaxAttempts:   cfg.MaxAttempts,
			BaseDelay:     cfg.BaseDelay,
			MaxDelay:      cfg.MaxDelay,
			JitterPercent: cfg.JitterPercent,
		},
		TxTimeout: cfg.TxTimeout,
		Location:  cfg.Location(),
		Now:       time.Now,
		Logger:    log,
	}
}

// New connects the configured backends. Optional backends (Redis, S3,
// Kafka) are skipped when disabled.
func New(ctx context.Context, cfg config.AppConfig, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		rc, err := clients.NewRedisClient(clients.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: time.Duration(cfg.Redis.DialTimeout) * time.Second,
			Timeout:     time.Duration(cfg.Redis.Timeout) * time.Second,
			Prefix:      cfg.Redis.Prefix,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis init: %w", err)
		}
		a.Redis = rc
		a.closers = append(a.closers, func() error { rc.Close(); return nil })
	}

	var events service.EventPublisher
	if cfg.Kafka.Enabled {
		kp, err := clients.NewKafkaPublisher(cfg.Kafka.Brokers, nil)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("kafka init: %w", err)
		}
		events = kp
		a.closers = append(a.closers, kp.Close)
	}

	opts := Options(cfg.Settlement, log)
	a.Counters = service.NewCounterService(a.Store, opts)
	a.Settlement = service.NewSettlementService(a.Store, a.Counters, events, opts)
	a.Hub = websocket.NewHub(log)

	if cfg.Documents.Enabled {
		uploader, err := a.uploader(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Documents = service.NewDocumentPipeline(
			a.Store,
			render.NewXLSXRenderer("invofox"),
			uploader,
			a.Redis,
			clients.NewWebSocketClient(a.Hub),
			cfg.Documents.StatusTTL,
			log,
		)
	}

	a.Ledger = &service.Ledger{
		Settlement:  a.Settlement,
		Counters:    a.Counters,
		Documents:   a.Documents,
		Idempotency: service.NewIdempotency(a.Redis, cfg.Idempotency.TTL, log),
		Log:         log,
	}
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Username: cfg.Postgres.User,
			DBName:   cfg.Postgres.DBName,
			SSLMode:  cfg.Postgres.SSLMode,
			Password: cfg.Postgres.Password,
		})
		if err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
		a.DB = db
		a.Store = pgstore.NewStore(db, a.Log.With().Str("component", "postgres").Logger())
		a.Tokens = pgstore.NewTokenRepository(db, a.Log.With().Str("component", "tokens").Logger())
		a.closers = append(a.closers, func() error { return postgres.Close(db) })

	case config.BackendFirestore:
		fs, err := firestore.NewStore(ctx, firestore.Config{
			ProjectID:           cfg.Firestore.ProjectID,
			DatabaseID:          cfg.Firestore.DatabaseID,
			CredentialsFile:     cfg.Firestore.CredentialsFile,
			DocumentsCollection: cfg.Firestore.DocumentsCollection,
			CountersCollection:  cfg.Firestore.CountersCollection,
		}, a.Log.With().Str("component", "firestore").Logger())
		if err != nil {
			return fmt.Errorf("firestore init: %w", err)
		}
		a.Store = fs
		a.closers = append(a.closers, fs.Close)

	case config.BackendMemory:
		a.Store = memory.New()

	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}

func (a *App) uploader(ctx context.Context) (service.Uploader, error) {
	cfg := a.Config
	if cfg.S3.Enabled {
		s3, err := clients.NewS3Client(ctx, clients.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			URLTTL:          cfg.S3.URLTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init: %w", err)
		}
		return s3, nil
	}

	files, err := clients.NewLocalStorage(cfg.LocalFiles.Dir, cfg.LocalFiles.PublicPrefix, cfg.LocalFiles.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}
	a.Files = files
	return files, nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
