package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daviddao/txtclock/pkg/agent"
	"github.com/daviddao/txtclock/pkg/clock"
	"github.com/daviddao/txtclock/pkg/config"
	"github.com/daviddao/txtclock/pkg/journal"
	"github.com/daviddao/txtclock/pkg/logger"
	"github.com/daviddao/txtclock/pkg/metrics"
	"github.com/daviddao/txtclock/pkg/notifier"
	"github.com/daviddao/txtclock/pkg/recordstore"
	"github.com/daviddao/txtclock/pkg/resolver"
)

var errJournalDisabled = errors.New("journal disabled: set journal to a file path")

// app holds shared state for all CLI subcommands.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	logFile *os.File
	journal *journal.Journal
	out     io.Writer
}

// newApp loads configuration and builds the logger. Commands that only
// read the local journal pass partial to skip validation of the remote
// settings.
func newApp(cmd *cobra.Command, ro *rootOptions, partial bool) (*app, error) {
	opts := []config.LoaderOption{config.WithViper(ro.v)}
	if ro.configFile != "" {
		opts = append(opts, config.WithConfigFile(ro.configFile))
	}
	if partial {
		opts = append(opts, config.WithPartial())
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, out: cmd.OutOrStdout()}
	logOpts := []logger.Option{
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithConsole(cmd.ErrOrStderr()),
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file %q: %w", cfg.LogFile, err)
		}
		a.logFile = f
		logOpts = append(logOpts, logger.WithWriter(f))
	}
	a.log = logger.NewLogger(logOpts...)
	return a, nil
}

// Close releases the journal and the log file.
func (a *app) Close() {
	if a.journal != nil {
		a.journal.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// context attaches the app logger to ctx.
func (a *app) context(ctx context.Context) context.Context {
	return logger.WithLogger(ctx, a.log)
}

// openJournal opens the configured journal once, creating its directory.
func (a *app) openJournal() (*journal.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	if a.cfg.Journal == "" {
		return nil, errJournalDisabled
	}
	if dir := filepath.Dir(a.cfg.Journal); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	j, err := journal.New(a.cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("cannot open journal %q: %w", a.cfg.Journal, err)
	}
	a.journal = j
	return j, nil
}

// newSession wires the remote clients and the journal into a Session.
func (a *app) newSession(collector metrics.Collector) (*agent.Session, error) {
	var rec journal.Recorder = journal.Nop{}
	if a.cfg.Journal != "" {
		j, err := a.openJournal()
		if err != nil {
			return nil, err
		}
		rec = j
	}

	return agent.NewSession(
		agent.Options{
			Subdomain:      a.cfg.Subdomain,
			Domain:         a.cfg.Domain,
			BypassResolver: !a.cfg.UseDNSResolver,
			TTL:            a.cfg.TTL,
		},
		agent.Deps{
			Store: recordstore.NewCloudflare(recordstore.CloudflareOptions{
				BaseURL: a.cfg.CloudflareAPI,
				Token:   a.cfg.CloudflareToken,
				Timeout: a.cfg.RequestTimeout,
			}),
			Resolver: resolver.New(a.cfg.Nameserver, a.cfg.RequestTimeout),
			Notifier: notifier.NewHTTP(a.cfg.URL, a.cfg.RequestTimeout),
			Journal:  rec,
			Metrics:  collector,
			Jitter:   clock.RandomJitter{Max: a.cfg.MaxJitter},
			Identity: clock.UUIDIdentity{},
		},
	)
}

// printJSON writes v to the command output as indented JSON.
func (a *app) printJSON(v any) {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// withApp builds an app for a RunE and closes it afterwards.
func withApp(ro *rootOptions, partial bool, fn func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, ro, partial)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a)
	}
}
