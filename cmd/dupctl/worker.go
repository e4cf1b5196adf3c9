package main

import (
	"context"
	"database/sql"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/observability"
	"morphocore/internal/tasks"
)

func (a *app) workerCmd() *cobra.Command {
	var (
		watch       bool
		interval    time.Duration
		metricsAddr string
		traceFile   string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process approved duplication and publishing requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reg := prometheus.NewRegistry()
			prom, err := observability.NewPrometheusRecorder(reg)
			if err != nil {
				return err
			}
			metrics := observability.Multi{prom, observability.NewRunCounters("")}
			if metricsAddr != "" {
				stop, err := serveMetrics(metricsAddr, reg, a.logger)
				if err != nil {
					return err
				}
				defer stop()
			}
			return a.withDB(ctx, func(db *sql.DB, d sqldb.Dialect) error {
				store, err := openObjectStore(ctx, a.v)
				if err != nil {
					return err
				}
				opts := []tasks.HandlerOption{
					tasks.WithObjectStore(store),
					tasks.WithLogger(a.logger),
					tasks.WithMetricsRecorder(metrics),
				}
				if traceFile != "" {
					f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
					if err != nil {
						return fmt.Errorf("open trace file: %w", err)
					}
					defer func() { _ = f.Close() }()
					opts = append(opts, tasks.WithTracer(observability.NewSpanLog(f)))
				}
				if local := localMedia(a.v); local != nil {
					opts = append(opts, tasks.WithLocalMedia(*local))
				}
				w := tasks.NewWorker(tasks.NewHandler(tasks.NewStore(db, d), a.registry, opts...), a.v.GetInt(keyConcurrency))
				return drain(ctx, w, watch, interval, a.logger)
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep polling for new requests until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "poll interval with --watch")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /debug/vars on this address")
	cmd.Flags().StringVar(&traceFile, "trace-file", "", "append finished spans as JSON lines to this file")
	cmd.Flags().Int("concurrency", 0, "requests processed concurrently")
	return cmd
}

func drain(ctx context.Context, w *tasks.Worker, watch bool, interval time.Duration, logger observability.Logger) error {
	for {
		summary, err := w.Drain(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if summary.Failed > 0 && !watch {
			logger.Warn("some requests failed", "failed", summary.Failed)
		}
		if !watch {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// serveMetrics exposes the prometheus registry and expvar until stop is
// called.
func serveMetrics(addr string, reg *prometheus.Registry, logger observability.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
