package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dusk-indust/studyprogress/internal/channel"
	"github.com/dusk-indust/studyprogress/internal/progress"
	"github.com/dusk-indust/studyprogress/internal/sse"
	"github.com/spf13/cobra"
)

func newPublishCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <workspace> <event> [json]",
		Short: "Publish one progress event to a workspace channel",
		Long: `Publish validates the event locally and posts it to the relay.

Events: stage-update, overall-update, artifact-ready, run-error, reset.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := "{}"
			if len(args) == 3 {
				data = args[2]
			}
			return runPublish(cmd.Context(), cmd.OutOrStdout(), s, args[0], args[1], data)
		},
	}
}

func runPublish(ctx context.Context, out io.Writer, s *settings, workspace, event, data string) error {
	ev, err := progress.Decode(event, []byte(data))
	if err != nil {
		return fmt.Errorf("invalid %s event: %w", event, err)
	}
	payload, err := progress.Encode(ev)
	if err != nil {
		return err
	}

	name := channel.ChannelName(s.cfg.ChannelPrefix, workspace)
	client := sse.NewClient(s.cfg.RelayURL)
	res, err := client.Publish(ctx, name, channel.Message{Name: ev.Name(), Data: payload})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "published %s to %s (%d subscriber(s))\n", ev.Name(), name, res.Delivered)
	return nil
}
