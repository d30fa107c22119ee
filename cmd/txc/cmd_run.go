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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/daviddao/txtclock/pkg/clock"
	"github.com/daviddao/txtclock/pkg/config"
	"github.com/daviddao/txtclock/pkg/logger"
	"github.com/daviddao/txtclock/pkg/metrics"
	"github.com/daviddao/txtclock/pkg/scheduler"
)

type runOptions struct {
	retention time.Duration
	immediate bool
}

func newRunCmd(ro *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		Long: `Run the agent until SIGINT or SIGTERM.

After a random startup delay the agent reconciles the shared record on a
fixed interval drawn once per process. The process exits non-zero when
the zone cannot be resolved.`,
		Args: cobra.NoArgs,
		RunE: withApp(ro, false, func(cmd *cobra.Command, a *app) error {
			return a.run(cmd.Context(), opts)
		}),
	}
	cmd.Flags().DurationVar(&opts.retention, "journal-retention", 7*24*time.Hour,
		"drop journal invocations older than this at startup (0 keeps all)")
	cmd.Flags().BoolVar(&opts.immediate, "immediate", false, "run the first invocation right after the startup delay")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	_ = ro.v.BindPFlag(config.KeyMetricsAddr, cmd.Flags().Lookup("metrics-addr"))
	cmd.Flags().Duration("startup-delay-max", 0, "upper bound of the random startup delay")
	_ = ro.v.BindPFlag(config.KeyStartupDelayMax, cmd.Flags().Lookup("startup-delay-max"))
	return cmd
}

func (a *app) run(ctx context.Context, opts *runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = a.context(ctx)

	var collector metrics.Collector = metrics.Nop{}
	if a.cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheus(reg, "")
		shutdown, err := serveMetrics(ctx, a.cfg.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	session, err := a.newSession(collector)
	if err != nil {
		return err
	}
	if a.journal != nil && opts.retention > 0 {
		if n, err := a.journal.PruneInvocations(ctx, time.Now().Add(-opts.retention)); err != nil {
			logger.Warn(ctx, "Journal prune failed", logger.Err(err))
		} else if n > 0 {
			logger.Info(ctx, "Journal pruned", "removed", n)
		}
	}

	logger.Info(ctx, "Agent starting",
		logger.AgentID(session.AgentID()),
		logger.FQDN(session.FQDN()),
		"use-dns-resolver", a.cfg.UseDNSResolver,
	)

	sched := scheduler.New(scheduler.Options{
		IntervalMin:     a.cfg.IntervalMin,
		IntervalMax:     a.cfg.IntervalMax,
		StartupDelayMax: a.cfg.StartupDelayMax,
		Immediate:       opts.immediate,
	}, func(ctx context.Context) error {
		rep := session.Invoke(ctx, clock.Now())
		if rep.Fatal() {
			return rep.Err
		}
		return nil
	}, a.log)

	if err := sched.Run(ctx); err != nil {
		logger.Error(ctx, "Agent stopped", logger.Err(err))
		return err
	}
	logger.Info(ctx, "Agent stopped")
	return nil
}

// serveMetrics exposes reg on addr/metrics. The returned func shuts the
// server down.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Metrics server failed", logger.Err(err))
		}
	}()
	logger.Info(ctx, "Serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
