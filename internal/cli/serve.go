package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tfomics/tfomics/internal/api"
	"github.com/tfomics/tfomics/internal/config"
	"github.com/tfomics/tfomics/pkg/cache"
	"github.com/tfomics/tfomics/pkg/pipeline"
	"github.com/tfomics/tfomics/pkg/store"
)

// serveCommand creates the HTTP API server command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tfomics HTTP API server",
		Long: `Serve the analyses over HTTP. The server exposes endpoints for
dinucleotide shuffling, allele-specific binding analysis, Mendelian
randomisation, genome region lookup, and completed runs.

Cache and store backends are chosen in the config file: the cache can
be file-based or Redis, completed runs live in memory or MongoDB.`,
		Example: `  tfomics serve
  tfomics serve --config /etc/tfomics/config.toml --listen :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			return c.serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the config file")

	return cmd
}

// serve assembles the backends and runs the server until ctx is done.
func (c *CLI) serve(ctx context.Context, cfg config.Config) error {
	cch, err := c.serveCache(ctx, cfg)
	if err != nil {
		return err
	}

	st, err := c.serveStore(ctx, cfg)
	if err != nil {
		_ = cch.Close()
		return err
	}
	defer func() { _ = st.Close(context.Background()) }()

	runner := pipeline.NewRunner(cch, nil, c.Logger)
	defer runner.Close()

	server := api.NewServer(cfg, runner, st, c.Logger)
	return server.Start(ctx)
}

func (c *CLI) serveCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		c.Logger.Info("using redis cache", "addr", cfg.Cache.RedisAddr)
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
	case "none":
		return cache.NewNullCache(), nil
	default:
		c.Logger.Info("using file cache", "dir", cfg.Cache.Dir)
		return cache.NewFileCache(cfg.Cache.Dir)
	}
}

func (c *CLI) serveStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.Store.Backend == "mongo" {
		c.Logger.Info("using mongo store", "database", cfg.Store.MongoDatabase)
		st, err := store.NewMongoStore(ctx, store.MongoConfig{
			URI:        cfg.Store.MongoURI,
			Database:   cfg.Store.MongoDatabase,
			Collection: cfg.Store.MongoCollection,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		return st, nil
	}
	return store.NewMemoryStore(), nil
}
