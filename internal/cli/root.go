// Package cli implements the jobpilot command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/JohnPlummer/jobpilot/chat"
	"github.com/JohnPlummer/jobpilot/config"
	"github.com/JohnPlummer/jobpilot/internal/logging"
	"github.com/JohnPlummer/jobpilot/internal/metrics"
	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

type rootOptions struct {
	envFile     string
	configPath  string
	debug       bool
	strict      bool
	metricsAddr string
}

// app holds everything a command needs after startup.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *chat.Client
	executor *resilience.Executor
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// NewRootCommand builds the jobpilot command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "jobpilot",
		Short:         "Send prompts to the configured model with retry and timeouts",
		Long:          `jobpilot sends prompts to an OpenAI-compatible chat endpoint through the resilient client used by the job application pipeline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file with BASE_URL, API_KEY and MODEL")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML tuning file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.strict, "strict", false, "report failures instead of printing the fallback reply")
	rootCmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")

	rootCmd.AddCommand(newAskCommand(opts), newBatchCommand(opts))
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func setup(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.envFile, opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, opts.debug)
	if err != nil {
		logger.Warn("failed to open log file, logging to console", "error", err)
	}
	slog.SetDefault(logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		executor: resilience.NewExecutor(resilience.WithLogger(logger)),
		closers:  []func(){func() { _ = logCloser.Close() }},
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	chatOpts := append(cfg.ChatOptions(),
		chat.WithLogger(logger),
		chat.WithObserver(collector),
		chat.WithUsageRecorder(collector),
	)
	a.client, err = chat.NewClient(cfg.Chat, chatOpts...)
	if err != nil {
		a.close()
		return nil, err
	}

	addr := opts.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := metrics.NewServer(addr, registry, a.client.Health)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", addr)
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("failed to stop metrics server", "error", err)
			}
		})
	}

	return a, nil
}

// reply sends prompt and writes the answer to out. In strict mode a failed call is
// returned as an error instead of printing the fallback.
func (a *app) reply(ctx context.Context, out io.Writer, prompt string, strict bool) error {
	if !strict {
		_, err := fmt.Fprintln(out, a.client.SendChatRequest(ctx, prompt))
		return err
	}

	resp, err := a.client.SendChatRequestOutcome(ctx, prompt).Get()
	if err != nil {
		var f *resilience.Failure
		if errors.As(err, &f) {
			return fmt.Errorf("chat request failed (%s, %d attempts): %w", f.Kind, f.Attempt, err)
		}
		return err
	}
	_, err = fmt.Fprintln(out, resp.Content)
	return err
}
