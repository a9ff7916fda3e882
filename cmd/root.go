// Package cmd implements the kiln command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kiln/internal/bootstrap"
	"github.com/zjrosen/kiln/internal/config"
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/presentation"
	"github.com/zjrosen/kiln/internal/tracing"
)

var version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool
	json       bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "kiln",
		Short: "Plugin-assembled application bootstrap",
		Long: `kiln discovers plugins, composes their manifests into one authoritative
manifest and resolves components from the registry it declares.

Derived state (plugins, manifest, hooks) is cached and rebuilt together
whenever plugins are added or removed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default: .kiln/config.yaml, then ~/.config/kiln/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false,
		"write debug logs (also KILN_DEBUG=1; path from KILN_LOG, default debug.log)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newPluginsCmd(opts),
		newManifestCmd(opts),
		newHooksCmd(opts),
		newCacheCmd(opts),
		newComponentCmd(opts),
		newFlagsCmd(opts),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
}

// session is one command's view of kiln: loaded config, tracing and a
// ready bootstrap.
type session struct {
	facade   *config.Facade
	boot     *bootstrap.Bootstrap
	provider *tracing.Provider
	closeLog func()
}

func (o *rootOptions) formatter(cmd *cobra.Command) *presentation.Formatter {
	return presentation.NewFormatter(cmd.OutOrStdout())
}

// loadConfig resolves the config file, writing the default template when
// no file exists anywhere and no --config was given.
func (o *rootOptions) loadConfig() (*config.Facade, error) {
	path := config.ResolvePath(o.configPath)
	if o.configPath == "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := config.WriteDefaultConfig(path); err != nil {
				log.ErrorErr(log.CatConfig, "Failed to write default config", err, "path", path)
			}
		}
	}
	return config.Load(path)
}

func (o *rootOptions) open(ctx context.Context) (*session, error) {
	s := &session{closeLog: func() {}}

	if o.debug || os.Getenv("KILN_DEBUG") != "" {
		logPath := os.Getenv("KILN_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return nil, fmt.Errorf("initializing logging: %w", err)
		}
		s.closeLog = cleanup
	}

	facade, err := o.loadConfig()
	if err != nil {
		s.closeLog()
		return nil, err
	}
	s.facade = facade

	cfg, err := facade.Config()
	if err != nil {
		s.closeLog()
		return nil, err
	}
	traceFile := cfg.Tracing.FilePath
	if traceFile == "" {
		traceFile = config.DefaultTracesFilePath()
	}
	s.provider, err = tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     traceFile,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		s.closeLog()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	s.boot, err = bootstrap.New(ctx, facade, bootstrap.WithTracer(s.provider.Tracer()))
	if err != nil {
		_ = s.provider.Shutdown(ctx)
		s.closeLog()
		return nil, err
	}
	return s, nil
}

func (s *session) Close(ctx context.Context) {
	if err := s.boot.Close(); err != nil {
		log.ErrorErr(log.CatBootstrap, "Failed to close bootstrap", err)
	}
	if err := s.provider.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatBootstrap, "Failed to flush traces", err)
	}
	s.closeLog()
}

// withSession opens a session for the duration of fn.
func (o *rootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := commandContext(cmd)
	s, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)
	return fn(ctx, s)
}
