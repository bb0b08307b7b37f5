package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/proctor/internal/app"
	"github.com/example/proctor/internal/config"
	"github.com/example/proctor/internal/handlers"
	"github.com/example/proctor/internal/logging"
)

var Version = "dev"

// errReportFailed is returned when a verification report has a failing
// record. The report itself has already been printed.
var errReportFailed = errors.New("verification failed")

type globalFlags struct {
	configFile string
	jsonOutput bool
	logLevel   string
	timeout    time.Duration
}

type service struct {
	verifier handlers.Verifier
	enroller handlers.Enroller
	close    func()
}

type buildFunc func(ctx context.Context, flags globalFlags) (*service, error)

func buildService(ctx context.Context, flags globalFlags) (*service, error) {
	if flags.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", flags.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logger, err := logging.NewLogger(level)
	if err != nil {
		return nil, err
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &service{
		verifier: a.Orchestrator,
		enroller: a.Enroller,
		close: func() {
			a.Close()
			_ = logger.Sync()
		},
	}, nil
}

func newRootCmd(build buildFunc) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "proctorctl",
		Short:         "Enroll and verify exam candidates from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	root.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "print raw JSON instead of a table")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (defaults to LOG_LEVEL)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", time.Minute, "overall deadline for the command")

	root.AddCommand(newVerifyCmd(flags, build), newEnrollCmd(flags, build))
	return root
}

// withService builds the service, runs fn and releases the service again.
func withService(cmd *cobra.Command, flags *globalFlags, build buildFunc, fn func(ctx context.Context, svc *service) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	svc, err := build(ctx, *flags)
	if err != nil {
		return err
	}
	defer svc.close()
	return fn(ctx, svc)
}

func readImage(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > handlers.MaxUploadSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, handlers.MaxUploadSize)
	}
	return os.ReadFile(path)
}
