// Package app assembles the service from configuration: provider backend,
// profile store, optional profile cache, metrics and the two use cases.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/proctor/internal/config"
	"github.com/example/proctor/internal/identity"
	"github.com/example/proctor/internal/identity/dynamo"
	"github.com/example/proctor/internal/identity/mongo"
	pgstore "github.com/example/proctor/internal/identity/postgres"
	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/provider"
	"github.com/example/proctor/internal/provider/grpcprovider"
	"github.com/example/proctor/internal/provider/rekognition"
	"github.com/example/proctor/internal/retry"
	"github.com/example/proctor/internal/verification"
)

const connectTimeout = 10 * time.Second

// App is the assembled service.
type App struct {
	Orchestrator *verification.Orchestrator
	Enroller     *verification.Enroller
	Registry     *prometheus.Registry

	closers []func() error
	logger  *zap.Logger
}

// New wires the use cases on top of already constructed collaborators.
func New(cfg config.Config, client provider.Client, store identity.Store, logger *zap.Logger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := verification.NewMetrics(reg)

	return &App{
		Orchestrator: verification.NewOrchestrator(
			verification.NewChecks(client, store, cfg, logger),
			cfg.CheckTimeout,
			logger,
			verification.WithMetrics(metrics),
		),
		Enroller: verification.NewEnroller(client, store, cfg.CollectionID, logger,
			verification.WithEnrollmentMetrics(metrics),
		),
		Registry: reg,
		logger:   logger,
	}
}

// Build connects every backend named by cfg. On error, anything already
// opened is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			closeAll(closers, logger)
		}
	}()

	policy := retry.DefaultPolicy(cfg.MaxAttempts)

	var awsCfg aws.Config
	if cfg.ProviderBackend == config.ProviderRekognition || cfg.StoreBackend == config.StoreDynamoDB {
		awsCfg, err = loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, logging.NewOperationError("app.load_aws_config", "", err)
		}
	}

	var client provider.Client
	switch cfg.ProviderBackend {
	case config.ProviderRekognition:
		client = rekognition.NewFromConfig(awsCfg, logger)
	case config.ProviderGRPC:
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		grpcClient, conn, dialErr := grpcprovider.Dial(dialCtx, cfg.ProviderGRPCAddr, policy, logger)
		cancel()
		if dialErr != nil {
			return nil, dialErr
		}
		closers = append(closers, conn.Close)
		client = grpcClient
	default:
		return nil, fmt.Errorf("unknown provider backend %q", cfg.ProviderBackend)
	}

	var store identity.Store
	switch cfg.StoreBackend {
	case config.StoreDynamoDB:
		store = dynamo.NewFromConfig(awsCfg, cfg.ProfilesTable)
	case config.StorePostgres:
		pg, closeDB, openErr := openPostgres(ctx, cfg, policy, logger)
		if openErr != nil {
			return nil, openErr
		}
		closers = append(closers, closeDB)
		store = pg
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		mc, connErr := mongo.Connect(connectCtx, cfg.MongoURI)
		cancel()
		if connErr != nil {
			return nil, logging.NewOperationError("app.connect_mongo", "", connErr)
		}
		closers = append(closers, func() error { return mc.Disconnect(context.Background()) })
		store = mongo.New(mc, cfg.MongoDatabase, cfg.ProfilesTable, policy, logger)
	default:
		return nil, fmt.Errorf("unknown identity store backend %q", cfg.StoreBackend)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := rdb.Ping(pingCtx).Err()
		cancel()
		if pingErr != nil {
			_ = rdb.Close()
			return nil, logging.NewOperationError("app.connect_redis", "", pingErr)
		}
		closers = append(closers, rdb.Close)
		store = identity.NewCachedStore(store, identity.NewRedisCache(rdb), cfg.ProfileCacheTTL, policy, logger)
	}

	a := New(cfg, client, store, logger)
	a.closers = closers
	logger.Info("service assembled",
		zap.String("provider", cfg.ProviderBackend),
		zap.String("store", cfg.StoreBackend),
		zap.Bool("profile_cache", cfg.RedisAddr != ""),
	)
	return a, nil
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() {
	closeAll(a.closers, a.logger)
	a.closers = nil
}

func closeAll(closers []func() error, logger *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && logger != nil {
			logger.Warn("failed to close backend", zap.Error(err))
		}
	}
}

func loadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}
	return awsCfg, nil
}

func openPostgres(ctx context.Context, cfg config.Config, policy retry.Policy, logger *zap.Logger) (*pgstore.Store, func() error, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, nil, logging.NewOperationError("app.open_database", "", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, logging.NewOperationError("app.open_database", "", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, logging.NewOperationError("app.ping_database", "", err)
	}

	store := pgstore.New(db, cfg.ProfilesTable, policy, logger)
	if err := store.AutoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, errors.Join(errors.New("auto migrate profiles"), err)
	}
	return store, sqlDB.Close, nil
}
