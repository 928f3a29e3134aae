package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/studyprogress/internal/config"
	"github.com/dusk-indust/studyprogress/internal/logging"
	"github.com/spf13/cobra"
)

// version is set by goreleaser at build time.
var version = "dev"

// settings is the resolved configuration shared by every subcommand.
type settings struct {
	configPath string
	logLevel   string
	relayURL   string

	cfg *config.Config
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	s := &settings{}

	root := &cobra.Command{
		Use:   "studyprogress",
		Short: "Follow study-material generation runs over workspace channels",
		Long: `studyprogress relays pipeline progress events for study-material runs and
reduces them into a loading state: which stages are done, the current step,
errors, and completed artifacts.

Examples:
  studyprogress serve
  studyprogress watch ws-42 --once
  studyprogress publish ws-42 stage-update '{"stage":"fileUpload","status":"completed"}'`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.configPath, "config", "", "path to studyprogress.yml (default: ./studyprogress.yml if present)")
	pf.StringVar(&s.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&s.relayURL, "relay", "", "relay base URL")

	root.AddCommand(
		newWatchCmd(s),
		newServeCmd(s),
		newPublishCmd(s),
		newServeMCPCmd(s),
		newInitCmd(),
	)
	return root
}

// load reads the config file, then applies environment and flag overrides in
// that order.
func (s *settings) load() error {
	var (
		cfg *config.Config
		err error
	)
	if s.configPath != "" {
		cfg, err = config.LoadFile(s.configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return err
	}

	lookup, err := config.Environ(".")
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return err
	}

	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}
	if s.relayURL != "" {
		cfg.RelayURL = s.relayURL
	}
	s.cfg = cfg

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	return nil
}
