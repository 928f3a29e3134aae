package main

import (
	"context"
	"fmt"

	"github.com/dusk-indust/studyprogress/internal/diag"
	"github.com/dusk-indust/studyprogress/internal/logging"
	"github.com/dusk-indust/studyprogress/internal/mcptools"
	"github.com/dusk-indust/studyprogress/internal/observer"
	"github.com/dusk-indust/studyprogress/internal/sse"
	"github.com/spf13/cobra"
)

func newServeMCPCmd(s *settings) *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run as an MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeMCP(cmd.Context(), s, workspace)
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace to observe at startup")
	return cmd
}

func runServeMCP(ctx context.Context, s *settings, workspace string) error {
	log := logging.Component("mcp")
	client := sse.NewClient(s.cfg.RelayURL, sse.WithLogger(logging.Component("sse")))
	obs := observer.New(client,
		observer.WithSink(diag.NewLogSink(log)),
		observer.WithChannelPrefix(s.cfg.ChannelPrefix),
		observer.WithUpdateBuffer(s.cfg.UpdateBuffer),
		observer.WithLogger(log),
	)
	defer obs.Close()

	if workspace != "" {
		if _, err := obs.Observe(ctx, workspace); err != nil {
			return fmt.Errorf("observe %s: %w", workspace, err)
		}
	}

	server := mcptools.NewProgressMCPServer(mcptools.NewProgressService(obs))
	return mcptools.RunProgressMCPServerStdio(ctx, server)
}
