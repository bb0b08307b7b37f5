package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/proctor/internal/app"
	"github.com/example/proctor/internal/auth"
	"github.com/example/proctor/internal/config"
	"github.com/example/proctor/internal/handlers"
	"github.com/example/proctor/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	service, err := app.Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to assemble service", zap.Error(err))
	}
	defer service.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(service, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("proctor API listening",
		zap.String("addr", cfg.Addr),
		zap.String("collection", cfg.CollectionID),
		zap.Bool("auth", cfg.JWTSecret != ""),
	)
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newRouter(service *app.App, cfg config.Config, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = handlers.MaxUploadSize

	opts := handlers.Options{
		MaxBodyBytes: cfg.MaxBodyBytes,
		Metrics:      promhttp.HandlerFor(service.Registry, promhttp.HandlerOpts{}),
		Logger:       logger,
	}
	if cfg.JWTSecret != "" {
		opts.Auth = auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	}
	handlers.RegisterRoutes(r, service.Orchestrator, service.Enroller, opts)
	return r
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
