package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatproof/internal/bootstrap"
	"chatproof/internal/config"
	"chatproof/internal/engine"
	"chatproof/internal/health"
	"chatproof/internal/logging"
	"chatproof/internal/metrics"
	"chatproof/internal/present"
	"chatproof/internal/prover"
	"chatproof/internal/publish"
	"chatproof/internal/server"
	"chatproof/internal/store"
	"chatproof/internal/telegram"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot",
		Long: `Run the bot until interrupted.

A bot token and link base URL missing from config and environment are read
from stdin, one line each, after a prompt.

Example:
  chatproofd run --config /etc/chatproofd/config.toml
  CHATPROOF_BOT_TOKEN=123:abc chatproofd run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := loadConfig(rootOpts, true)
			if err != nil {
				return err
			}
			defer loader.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runDaemon(ctx, cfg, loader, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// daemon holds everything runDaemon opens, for orderly shutdown.
type daemon struct {
	log       *logging.Logger
	audit     *logging.AuditLogger
	metrics   *metrics.Metrics
	checker   *health.Checker
	heartbeat *health.Heartbeat
	publisher publish.Publisher
	journal   *store.Journal
	closers   []func() error
}

func (d *daemon) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.log.Warn("close failed", "error", err)
		}
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, loader *config.Loader, in io.Reader, out io.Writer) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return WrapExitError(ExitCommandError, "prepare directories", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "setup logging", err)
	}
	logging.SetDefault(log)
	d := &daemon{log: log, heartbeat: &health.Heartbeat{}, checker: health.NewChecker()}
	d.closers = append(d.closers, log.Close)
	defer d.close()

	d.audit, err = logging.NewAuditLogger(&logging.AuditLoggerConfig{
		FilePath:   cfg.Logging.AuditPath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		Component:  "chatproofd",
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "setup audit log", err)
	}
	d.closers = append(d.closers, d.audit.Close)

	if cfg.Metrics.Enabled {
		d.metrics = metrics.New()
	}

	creds, err := bootstrap.Handshake(bootstrap.NewLineSource(in),
		bootstrap.Credentials{Token: cfg.Bot.Token, BaseURL: cfg.Links.BaseURL},
		func(prompt string) {
			log.Info("waiting for credentials", "prompt", prompt)
			fmt.Fprintln(out, prompt)
		})
	if err != nil {
		return WrapExitError(ExitCommandError, "bootstrap", err)
	}

	tg := telegram.NewClient(telegram.ClientConfig{
		Token:       creds.Token,
		APIURL:      cfg.Bot.APIURL,
		PollTimeout: cfg.PollTimeout(),
	})
	me, err := tg.GetMe(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "validate bot token", err)
	}
	log.Info("connected to telegram", "bot", me.Username, "bot_id", me.ID)

	if err := d.openPublisher(ctx, cfg); err != nil {
		return WrapExitError(ExitCommandError, "open publisher", err)
	}

	var journal engine.Journal
	if cfg.Journal.Enabled {
		d.journal, err = store.Open(cfg.Journal.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		d.closers = append(d.closers, d.journal.Close)
		d.checker.RegisterFunc("journal", false, health.PingCheck("journal", d.journal.Ping))
		journal = d.journal
		log.Info("journal opened", "path", cfg.Journal.Path)
	}

	d.checker.RegisterFunc("telegram", true,
		health.HeartbeatCheck(d.heartbeat, 2*cfg.PollTimeout()+time.Minute))

	var feed engine.Feed
	if cfg.Server.Enabled {
		hub := server.NewHub(cfg.Server.AllowedOrigins, d.metrics, log)
		feed = hub
		go hub.Run(ctx)

		srv := server.New(server.Config{
			ListenAddr:     cfg.Server.ListenAddr,
			Identity:       cfg.Links.Identity,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, server.Deps{
			Publisher: d.publisher,
			Health:    d.checker,
			Metrics:   d.metrics,
			Hub:       hub,
			Logger:    log,
		})
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				log.Error("http server failed", "error", err)
			}
		}()
	}

	watchConfig(ctx, loader, log, d.audit)

	eng := engine.New(engine.Config{
		CommandPrefix: cfg.Checkpoint.CommandPrefix,
		Gap:           cfg.Gap(),
		RetryDelay:    cfg.RetryDelay(),
		IsFatal: func(err error) bool {
			return errors.Is(err, telegram.ErrUnauthorized)
		},
	}, engine.Deps{
		Normalize:   telegram.Normalize,
		Coordinator: prover.NewCoordinator(newProver(cfg), cfg.Prover.ValidateOutput),
		Presenter: &present.Presenter{
			Notifier:  tg,
			Publisher: d.publisher,
			BaseURL:   creds.BaseURL,
			Identity:  cfg.Links.Identity,
		},
		Notifier:  tg,
		Journal:   journal,
		Feed:      feed,
		Metrics:   d.metrics,
		Logger:    log,
		Audit:     d.audit,
		Heartbeat: d.heartbeat,
	})

	d.audit.LogStartup(ctx, version, map[string]any{
		"bot":       me.Username,
		"gap":       cfg.Gap(),
		"publisher": cfg.Publish.Backend,
		"prover":    cfg.Prover.Mode,
	})
	d.checker.SetReady(true)

	runErr := eng.Run(ctx, tg)
	d.checker.SetReady(false)

	reason := "signal"
	if runErr != nil {
		reason = runErr.Error()
	}
	d.audit.LogShutdown(context.Background(), reason)
	log.Info("chatproofd stopped", "reason", reason)

	if runErr != nil {
		return WrapExitError(ExitFailure, "engine stopped", runErr)
	}
	return nil
}

func (d *daemon) openPublisher(ctx context.Context, cfg *config.Config) error {
	switch cfg.Publish.Backend {
	case "redis":
		rp, err := publish.NewRedisPublisher(ctx, publish.RedisConfig{
			Addr:             cfg.Publish.Redis.Addr,
			Password:         cfg.Publish.Redis.Password,
			DB:               cfg.Publish.Redis.DB,
			KeyPrefix:        cfg.Publish.Redis.KeyPrefix,
			TTL:              cfg.ArtifactTTL(),
			MaxArtifactBytes: cfg.Publish.MaxArtifactBytes,
			DialTimeout:      cfg.RedisDialTimeout(),
		})
		if err != nil {
			return err
		}
		d.closers = append(d.closers, rp.Close)
		d.checker.RegisterFunc("redis", true, health.PingCheck("redis", rp.Ping))
		d.publisher = rp
	default:
		mp, err := publish.NewMemoryPublisher(ctx, publish.MemoryConfig{
			TTL:              cfg.ArtifactTTL(),
			MaxArtifactBytes: cfg.Publish.MaxArtifactBytes,
			MaxCacheMB:       cfg.Publish.MaxCacheMB,
		})
		if err != nil {
			return err
		}
		d.closers = append(d.closers, mp.Close)
		d.publisher = mp
	}
	d.log.Info("publisher ready", "backend", cfg.Publish.Backend)
	return nil
}

// newProver builds the configured backend. A positive prover.timeout_sec
// bounds each request; otherwise only ctx cancellation stops a proof.
func newProver(cfg *config.Config) prover.Prover {
	timeout := cfg.ProverTimeout()
	if cfg.Prover.Mode == "http" {
		return prover.NewHTTPProver(cfg.Prover.URL, timeout)
	}

	p := &prover.ExecProver{Command: cfg.Prover.Command, Args: cfg.Prover.Args}
	if timeout <= 0 {
		return p
	}
	return prover.ProverFunc(func(ctx context.Context, input []byte) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return p.Prove(ctx, input)
	})
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		Component:  "chatproofd",
	})
}

// watchConfig applies logging.level changes live. Nothing else is
// reloaded; a restart picks up the rest.
func watchConfig(ctx context.Context, loader *config.Loader, log *logging.Logger, audit *logging.AuditLogger) {
	loader.OnChange(func(old, new *config.Config) {
		if old == nil || old.Logging.Level == new.Logging.Level {
			log.Info("config changed; restart to apply")
			return
		}
		level, err := logging.ParseLevel(new.Logging.Level)
		if err != nil {
			log.Warn("ignoring log level change", "error", err)
			return
		}
		log.SetLevel(level)
		audit.LogConfigChange(ctx, "logging.level", old.Logging.Level, new.Logging.Level)
		log.Info("log level changed", "from", old.Logging.Level, "to", new.Logging.Level)
	})

	if err := loader.Watch(); err != nil {
		log.Warn("config hot reload disabled", "error", err)
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				log.Warn("config reload rejected", "error", err)
			}
		}
	}()
}
