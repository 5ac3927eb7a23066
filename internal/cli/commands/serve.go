package commands

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-jsonapi/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(load func() (*app, error)) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON:API server",
		Long: `Start the HTTP server. It drains in-flight requests on SIGINT or
SIGTERM, then closes the database and the response cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Override server.host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	responses, err := a.openCache(ctx)
	if err != nil {
		store.Close()
		return err
	}

	sc := a.cfg.Server
	srv, err := server.New(&server.Config{
		Address:           sc.Address(),
		Handler:           a.handler(store, responses),
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
		ReadHeaderTimeout: sc.ReadTimeout,
		MaxHeaderBytes:    1 << 20,
	})
	if err != nil {
		store.Close()
		return err
	}

	gs := server.NewGracefulShutdown(srv, &server.ShutdownConfig{
		Timeout: sc.ShutdownTimeout,
		Logger:  a.logger,
	})
	gs.RegisterHook("database", func(ctx context.Context) error { return store.Close() })
	if responses != nil {
		gs.RegisterHook("cache", func(ctx context.Context) error { return responses.Close() })
	}

	a.logger.Info("starting server",
		zap.String("addr", sc.Address()),
		zap.String("prefix", sc.APIPrefix),
		zap.String("driver", a.cfg.Database.Driver),
		zap.String("cache", a.cfg.Cache.Backend),
		zap.Int("types", len(a.catalog.Types())),
	)
	return gs.Run(ctx)
}
