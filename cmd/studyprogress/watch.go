package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dusk-indust/studyprogress/internal/diag"
	"github.com/dusk-indust/studyprogress/internal/logging"
	"github.com/dusk-indust/studyprogress/internal/observer"
	"github.com/dusk-indust/studyprogress/internal/render"
	"github.com/dusk-indust/studyprogress/internal/sse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd(s *settings) *cobra.Command {
	var (
		once        bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch <workspace>",
		Short: "Print a workspace's progress on every update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), s, args[0], once, metricsAddr)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "exit when the run completes or fails")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while watching")
	return cmd
}

func runWatch(ctx context.Context, out io.Writer, s *settings, workspace string, once bool, metricsAddr string) error {
	cfg := s.cfg
	log := logging.Component("watch")

	reg := prometheus.NewRegistry()
	metrics := diag.NewMetrics(reg)

	client := sse.NewClient(cfg.RelayURL, sse.WithLogger(logging.Component("sse")))
	obs := observer.New(client,
		observer.WithSink(diag.NewLogSink(log)),
		observer.WithMetrics(metrics),
		observer.WithChannelPrefix(cfg.ChannelPrefix),
		observer.WithUpdateBuffer(cfg.UpdateBuffer),
		observer.WithLogger(log),
	)
	defer obs.Close()

	if _, err := obs.Observe(ctx, workspace); err != nil {
		return fmt.Errorf("watch %s: %w", workspace, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, metricsAddr, reg)
		})
	}

	g.Go(func() error {
		// Observe queued the initial view; the loop prints it first. Each
		// update is rendered from one snapshot so the header and steps agree.
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-obs.Updates():
				v, run := obs.SnapshotWithRun()
				if err := render.View(out, v, run); err != nil {
					return err
				}
				fmt.Fprintln(out)
				if once && run.Status.IsTerminal() {
					return errDone
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errDone) {
		return err
	}
	return nil
}
