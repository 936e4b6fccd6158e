package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/datallboy/nntpgate/internal/api"
	"github.com/datallboy/nntpgate/internal/app"
	"github.com/datallboy/nntpgate/internal/infra/config"
	"github.com/datallboy/nntpgate/internal/infra/logger"
	"github.com/datallboy/nntpgate/internal/nntp"
	"github.com/datallboy/nntpgate/internal/store"
)

// positionalFlags maps `serve <listen_ip> <listen_port> <nntp_host> <nntp_port>`
// onto flags so positional values follow the same precedence rules.
var positionalFlags = []string{"listen-host", "listen-port", "nntp-host", "nntp-port"}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [listen_ip listen_port nntp_host nntp_port]",
		Short: "Run the HTTP gateway",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != len(positionalFlags) {
				return fmt.Errorf("expected 0 or %d arguments, got %d", len(positionalFlags), len(args))
			}
			return nil
		},
		RunE: runServe,
	}

	f := cmd.Flags()
	f.String("listen-host", "0.0.0.0", "HTTP listen address")
	f.Int("listen-port", 8000, "HTTP listen port")
	f.String("journal", "", "sqlite path for the post journal (disabled when empty)")
	f.String("group", "", "default newsgroup for the read endpoints")
	addNNTPFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	for i, a := range args {
		if err := cmd.Flags().Set(positionalFlags[i], a); err != nil {
			return fmt.Errorf("argument %d (%s): %w", i+1, positionalFlags[i], err)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}

	poster := nntp.NewPoster(cfg.Server(), nntp.WithLogger(log.Named("nntp")))
	reader := nntp.NewReader(cfg.Server(),
		nntp.WithReaderLogger(log.Named("reader")),
		nntp.WithMaxArticleBytes(cfg.Reader.MaxArticleBytes),
	)
	appCtx := app.NewContext(cfg, log, poster, reader)

	if cfg.Store.SQLitePath != "" {
		journal, err := store.Open(cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer journal.Close()
		appCtx.Journal = journal
		log.Info("Post journal at %s", cfg.Store.SQLitePath)
	}

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(log.Named("http"), "", 0),
	}

	// Setup Signal Handling for Graceful Shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	log.Info("Listening on %s, relaying to %s", cfg.ListenAddr(), poster.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path, cmd.Flags())
}

func newLogger(cfg config.Config) (*logger.Logger, error) {
	level := logger.ParseLevel(cfg.Log.Level)
	if cfg.Log.Path == "" {
		return logger.NewWithWriter(os.Stdout, level, false), nil
	}
	return logger.New(cfg.Log.Path, level, cfg.Log.IncludeStdout)
}
