package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dbkompare-functions/internal/config"
	transport "dbkompare-functions/internal/transport/http"
)

// NewServeCmd runs every function behind one local HTTP server.
func NewServeCmd(configPath *string) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve all functions over HTTP for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (overrides config)")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	rt, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	app := transport.NewApp(rt.handlers.Routes(), cfg.Log.Level == "debug")
	errc := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting local function server")
		errc <- app.Listen(":" + cfg.Server.Port)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errc:
		return err
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}
	return app.ShutdownWithTimeout(5 * time.Second)
}
