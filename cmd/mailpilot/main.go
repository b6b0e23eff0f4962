// Package main provides the mailpilot binary entry point.
// mailpilot is a terminal client for the email agent workflow: it keeps a
// request draft in sync with the server and shows the email the agent writes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/csheth/mailpilot/internal/config"
	"github.com/csheth/mailpilot/internal/fakeserver"
	"github.com/csheth/mailpilot/internal/logging"
	"github.com/csheth/mailpilot/internal/metrics"
	"github.com/csheth/mailpilot/internal/resume"
	"github.com/csheth/mailpilot/internal/tui"
	"github.com/csheth/mailpilot/internal/workflow"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "mailpilot"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds flag values. Only flags the user actually set override the
// loaded configuration.
type options struct {
	configPath  string
	endpoint    string
	workflowID  string
	logFile     string
	logLevel    string
	metricsAddr string
	noAltScreen bool
	noResume    bool
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Draft email with the agent workflow from your terminal",
		Long: `mailpilot attaches to an email agent workflow, shows the email it has
drafted, and keeps your next request saved on the server while you type.

Without --workflow-id the last workflow used against the same endpoint is
resumed; press ctrl+n inside the UI to start a new one.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&opts.endpoint, "endpoint", "", "Workflow service base URL")
	pf.StringVar(&opts.logFile, "log-file", "", "Write JSON logs to this file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	f := cmd.Flags()
	f.StringVar(&opts.workflowID, "workflow-id", "", "Attach to an existing workflow")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	f.BoolVar(&opts.noAltScreen, "no-alt-screen", false, "Disable the alternate screen buffer")
	f.BoolVar(&opts.noResume, "no-resume", false, "Do not resume or remember the last workflow")

	cmd.AddCommand(
		describeCmd(opts),
		fakeServerCmd(),
		newIDCmd(),
		initConfigCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// loadConfig layers files and environment, then applies explicitly set flags.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, *config.Loader, error) {
	bootstrap := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	loader := config.NewLoader(bootstrap)
	cfg, err := loader.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Server.Endpoint = opts.endpoint
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if flags.Changed("no-alt-screen") {
		cfg.UI.NoAltScreen = opts.noAltScreen
	}
	if flags.Changed("no-resume") {
		cfg.Resume.Disabled = opts.noResume
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

func newClient(cfg *config.Config) (*workflow.HTTPClient, error) {
	client, err := workflow.NewFromEnv(workflow.Config{
		Endpoint: cfg.Server.Endpoint,
		Timeout:  cfg.Server.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow client: %w", err)
	}
	return client, nil
}

func runTUI(cmd *cobra.Command, opts *options) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("mailpilot needs an interactive terminal; use `mailpilot describe` for scripted access")
	}

	cfg, loader, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	fileLogger, err := logging.NewFileLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = fileLogger.Close() }()
	logger := fileLogger.Logger
	slog.SetDefault(logger)

	httpClient, err := newClient(cfg)
	if err != nil {
		return err
	}
	var client workflow.Client = httpClient

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var observer tui.Observer
	if cfg.Metrics.Addr != "" {
		recorder := metrics.New()
		addr, err := recorder.Serve(ctx, cfg.Metrics.Addr, logger)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		logger.Info("serving metrics", slog.String("addr", addr.String()))
		client = metrics.Instrument(client, recorder)
		observer = recorder
	}

	var store *resume.Store
	if !cfg.Resume.Disabled {
		path := cfg.Resume.Path
		if path == "" {
			if dir := loader.UserDataDir(); dir != "" {
				path = filepath.Join(dir, resume.DefaultFile)
			}
		}
		store = resume.New(path)
	}

	workflowID, err := pickWorkflowID(opts.workflowID, store, httpClient.Endpoint(), logger)
	if err != nil {
		return err
	}

	logger.Info("starting mailpilot",
		slog.String("endpoint", httpClient.Endpoint()),
		slog.String("workflow_id", workflowID),
		slog.String("version", Version),
	)

	programOpts := []tea.ProgramOption{}
	if !cfg.UI.NoAltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			Client:     client,
			WorkflowID: workflowID,
			Endpoint:   httpClient.Endpoint(),
			Timing:     cfg.SessionTiming(),
			Logger:     logger,
			Resume:     store,
			Observer:   observer,
		}),
		programOpts...,
	)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}

// pickWorkflowID prefers an explicit id, then the remembered one.
func pickWorkflowID(explicit string, store *resume.Store, endpoint string, logger *slog.Logger) (string, error) {
	if explicit != "" {
		id, err := workflow.NormalizeID(explicit)
		if err != nil {
			return "", fmt.Errorf("--workflow-id: %w", err)
		}
		if !workflow.LooksGenerated(id) {
			logger.Info("attaching to a workflow id not generated by mailpilot", slog.String("workflow_id", id))
		}
		return id, nil
	}
	entry, ok, err := store.Load(endpoint)
	if err != nil {
		logger.Warn("resume store unreadable", slog.String("path", store.Path()), slog.String("error", err.Error()))
		return "", nil
	}
	if ok {
		logger.Info("resuming workflow", slog.String("workflow_id", entry.WorkflowID), slog.Time("started_at", entry.StartedAt))
		return entry.WorkflowID, nil
	}
	return "", nil
}

func describeCmd(opts *options) *cobra.Command {
	var workflowID string
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the current workflow snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := workflow.NormalizeID(workflowID)
			if err != nil {
				return fmt.Errorf("--workflow-id: %w", err)
			}
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			snapshot, err := client.Describe(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("describe workflow: %w", err)
			}
			data, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow to describe")
	_ = cmd.MarkFlagRequired("workflow-id")
	return cmd
}

func fakeServerCmd() *cobra.Command {
	var (
		addr         string
		processDelay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fake-server",
		Short: "Run an in-memory workflow server for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := fakeserver.New(
				fakeserver.WithLogger(logger),
				fakeserver.WithProcessDelay(processDelay),
			)
			return srv.ListenAndServe(ctx, addr, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().DurationVar(&processDelay, "process-delay", fakeserver.DefaultProcessDelay, "How long requests stay in processing")
	return cmd
}

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-id",
		Short: "Print a fresh workflow id",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), workflow.NewID())
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the default user config if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(logging.Nop())
			path, err := loader.EnsureUserConfig()
			if err != nil {
				return fmt.Errorf("init config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
