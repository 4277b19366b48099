package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mail2site/mail2site/config"
	"github.com/mail2site/mail2site/gitsync"
	"github.com/mail2site/mail2site/mailbox"
	"github.com/mail2site/mail2site/markup"
	"github.com/mail2site/mail2site/monitor"
	"github.com/mail2site/mail2site/parser"
	"github.com/mail2site/mail2site/pipeline"
	"github.com/mail2site/mail2site/protocol"
	"github.com/mail2site/mail2site/publish"
	"github.com/mail2site/mail2site/state"
	"github.com/mail2site/mail2site/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mail2site",
		Short: "Publish emails from a monitored mailbox as static site pages",
	}
	config.RegisterFlags(rootCmd)

	rootCmd.AddCommand(monitorCmd(), runCmd(), processCmd(), deleteCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Watch the mailbox continuously and publish as mail arrives",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := cfg.ValidateMailbox(); err != nil {
				return err
			}

			env, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting mailbox monitor",
				"host", cfg.IMAPHost, "folder", cfg.Folder,
				"sender", cfg.AuthorizedSender, "poll", cfg.PollInterval)

			m := monitor.New(monitorOptions(cfg), env.processor, env.tracker, env.collector, logger)
			err = m.Run(ctx)
			if ctx.Err() != nil {
				logger.Info("monitor stopped")
				return nil
			}
			return err
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan the mailbox once, publish new messages, and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := cfg.ValidateMailbox(); err != nil {
				return err
			}

			env, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			m := monitor.New(monitorOptions(cfg), env.processor, env.tracker, env.collector, logger)
			return m.RunOnce(cmd.Context())
		},
	}
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <message.eml>",
		Short: "Publish a single raw message file without touching the mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := cfg.ValidateSite(); err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read message file: %w", err)
			}

			env, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			parsed := env.parser.Parse(raw)
			savedPaths, savedFiles := env.publisher.SaveMedia(parsed)
			contentHTML := env.transformer.Render(parsed.Content, parsed.Attachments, savedPaths)

			result, err := env.publisher.Publish(parsed, contentHTML, savedFiles)
			if err != nil {
				return err
			}
			if err := env.syncer.PublishPage(result.PageWritten, parsed.Title, result.MediaSaved); err != nil {
				logger.Warn("page created but not pushed", "err", err)
			}
			logger.Info("page published", "filename", result.PageWritten, "media", len(result.MediaSaved))
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <page>",
		Short: "Delete a published page and its homepage tile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := cfg.ValidateSite(); err != nil {
				return err
			}

			env, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			filename, tileRemoved, err := env.publisher.Delete(args[0])
			if err != nil {
				return err
			}
			if !tileRemoved {
				logger.Warn("page deleted but tile not removed", "filename", filename)
			}
			if err := env.syncer.PublishDeletion(filename, args[0]); err != nil {
				logger.Warn("deletion not pushed", "err", err)
			}
			logger.Info("page deleted", "filename", filename)
			return nil
		},
	}
}

// environment bundles the constructed pipeline stages for a command.
type environment struct {
	parser      *parser.Parser
	transformer *markup.Transformer
	publisher   *publish.Publisher
	syncer      *gitsync.Syncer
	tracker     state.Tracker
	collector   *stats.Collector
	processor   *pipeline.Processor
}

func buildPipeline(cfg config.Config, logger *slog.Logger) (*environment, error) {
	tracker, err := state.NewFileTracker(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	publisher, err := publish.New(publish.Options{
		PagesDir:            cfg.PagesDir,
		ImagesDir:           cfg.ImagesDir,
		IndexPath:           cfg.IndexPath,
		DefaultImage:        cfg.DefaultImage,
		DescriptionTemplate: cfg.DescriptionTemplate,
		MaxTitlePrefixLen:   cfg.MaxTitlePrefixLen,
		MaxSlugLen:          cfg.MaxSlugLen,
	}, logger)
	if err != nil {
		return nil, err
	}

	env := &environment{
		parser:      parser.New(logger),
		transformer: markup.New(),
		publisher:   publisher,
		syncer:      gitsync.New(cfg.SiteDir, cfg.CommitAuthor, cfg.CommitEmail, cfg.GitEnabled, logger),
		tracker:     tracker,
		collector:   stats.NewCollector(logger),
	}
	env.processor = pipeline.New(
		cfg.AuthorizedSender,
		protocol.NewClassifier(logger),
		env.parser,
		env.transformer,
		env.publisher,
		env.syncer,
		env.tracker,
		env.collector,
		logger,
	)
	return env, nil
}

func monitorOptions(cfg config.Config) monitor.Options {
	return monitor.Options{
		Mailbox: mailbox.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Folder:             cfg.Folder,
		},
		AuthorizedSender: cfg.AuthorizedSender,
		IdleRefresh:      cfg.IdleRefresh,
		ReconnectBackoff: cfg.ReconnectBackoff,
		PollInterval:     cfg.PollInterval,
		SearchWindow:     cfg.SearchWindow,
	}
}

func setup(cmd *cobra.Command) (config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, cleanup, nil
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mail2site-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
