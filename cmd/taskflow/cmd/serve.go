package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"taskflow/backend"
	"taskflow/backend/memory"
	"taskflow/backend/postgres"
	"taskflow/backend/sqlite"
	"taskflow/internal/api"
	"taskflow/internal/config"
	"taskflow/internal/embedding"
	"taskflow/internal/shutdown"
	"taskflow/internal/utils"
)

// newServeCmd creates the 'serve' subcommand
func newServeCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task API server",
		Long:  "Run the HTTP task API with semantic search. Stops gracefully on SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.app.Server.Addr = addr
			}
			if driver, _ := cmd.Flags().GetString("storage"); driver != "" {
				cfg.app.Storage.Driver = driver
			}
			if provider, _ := cmd.Flags().GetString("embedder"); provider != "" {
				cfg.app.Embedding.Provider = provider
			}
			return runServe(cmd.Context(), cfg.app, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().String("storage", "", "Storage driver (memory, sqlite, postgres)")
	cmd.Flags().String("embedder", "", "Embedding provider (subprocess, ollama, hash)")
	return cmd
}

// openRepository opens the repository selected by the storage driver.
func openRepository(ctx context.Context, app *config.Config) (backend.Repository, error) {
	switch app.Storage.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlite.New(app.Storage.SQLite.Path)
	case config.DriverPostgres:
		return postgres.New(ctx, app.Storage.Postgres.URL, app.Embedding.Dimensions)
	}
	return nil, fmt.Errorf("unknown storage driver %q", app.Storage.Driver)
}

func runServe(ctx context.Context, app *config.Config, stdout io.Writer) error {
	logger := utils.Component("serve")

	emb, err := embedding.New(embedding.Options{
		Provider:   app.Embedding.Provider,
		Command:    app.Embedding.Command,
		Args:       app.Embedding.Args,
		URL:        app.Embedding.URL,
		Model:      app.Embedding.Model,
		Dimensions: app.Embedding.Dimensions,
		Timeout:    app.GetEmbeddingTimeout(),
	})
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx, app)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", app.Storage.Driver, err)
	}

	server := api.NewServer(repo, emb, api.Config{
		AuthToken: app.Server.AuthToken,
		Storage:   app.Storage.Driver,
		Embedder:  app.Embedding.Provider,
		Logger:    utils.Component("api"),
	})
	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", app.Server.Addr)
	if err != nil {
		_ = repo.Close()
		return fmt.Errorf("listen on %s: %w", app.Server.Addr, err)
	}

	sm := shutdown.NewManager(utils.Component("shutdown"))
	stopSignals := sm.ListenForSignals()
	defer stopSignals()

	// Cleanups run in reverse: stop accepting requests, then close storage.
	sm.RegisterCleanup("storage", func(ctx context.Context) error {
		return repo.Close()
	})
	sm.RegisterCleanup("http", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			sm.Shutdown("server error")
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			sm.Shutdown("context cancelled")
		case <-sm.Context().Done():
		}
	}()

	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("storage", app.Storage.Driver).
		Str("embedder", app.Embedding.Provider).
		Msg("server started")
	_, _ = fmt.Fprintf(stdout, "Listening on %s\n", ln.Addr())

	err = sm.Wait(app.GetShutdownTimeout())
	logger.Info().Str("reason", sm.Reason()).Msg("server stopped")

	select {
	case serr := <-serveErr:
		return errors.Join(serr, err)
	default:
	}
	return err
}
