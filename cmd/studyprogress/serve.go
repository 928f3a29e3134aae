package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dusk-indust/studyprogress/internal/logging"
	"github.com/dusk-indust/studyprogress/internal/sse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// errDone ends an errgroup without reporting a failure.
var errDone = errors.New("done")

func newServeCmd(s *settings) *cobra.Command {
	var listenAddr, metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SSE relay that carries workspace channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listenAddr == "" {
				listenAddr = s.cfg.ListenAddr
			}
			if metricsAddr == "" {
				metricsAddr = s.cfg.MetricsAddr
			}
			return runServe(cmd.Context(), listenAddr, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "relay listen address (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", `metrics listen address, "-" to disable (default from config)`)
	return cmd
}

func runServe(ctx context.Context, listenAddr, metricsAddr string) error {
	relay := sse.NewRelay(sse.WithRelayLogger(logging.Component("relay")))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.ListenAndServe(gctx, listenAddr)
	})

	if metricsAddr != "-" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		g.Go(func() error {
			return serveMetrics(gctx, metricsAddr, reg)
		})
	}

	return g.Wait()
}

// serveMetrics exposes reg on addr/metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log := logging.Component("metrics")
	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
