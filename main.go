package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChaseHampton/lapida/internal/api"
	"github.com/ChaseHampton/lapida/internal/client"
	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/discovery"
	"github.com/ChaseHampton/lapida/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile  string
	logLevel string
	origin   string
)

var rootCmd = &cobra.Command{
	Use:   "lapida",
	Short: "Client tooling for the Lapida memorial platform",
	Long: `Talks to a Lapida API the way the web client does: finds the API
base, resolves public memorial and company paths, runs searches and
normalizes asset URLs. The archive command snapshots search results into
SQL Server.`,
	SilenceUsage: true,
}

// app holds everything a command needs to reach the API.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	http       *client.Client
	discoverer *discovery.Discoverer
	api        *api.Client
	redis      *redis.Client
}

func newApp(ctx context.Context) (*app, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	cfg := config.NewConfig()
	if logLevel != "" {
		cfg.LogConfig.Level = logLevel
	}
	if origin != "" {
		cfg.DiscoveryConfig.Origin = origin
	}

	logger, err := logging.New(cfg.LogConfig.Level, cfg.LogConfig.Development)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.http = client.NewClient(&cfg.HTTPConfig, logger)

	var store discovery.Store = discovery.NewMemoryStore()
	if addr := cfg.DiscoveryConfig.RedisAddr; addr != nil {
		rdb, err := discovery.ConnectRedis(ctx, *addr, cfg.DiscoveryConfig.RedisPassword, cfg.DiscoveryConfig.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, caching api base in memory", zap.String("addr", *addr), zap.Error(err))
		} else {
			a.redis = rdb
			store = discovery.NewRedisStore(rdb, cfg.DiscoveryConfig.RedisKey, cfg.DiscoveryConfig.RedisTTL)
		}
	}

	a.discoverer, err = discovery.New(a.http, &cfg.DiscoveryConfig, store, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.api = api.New(a.http, a.discoverer, logger)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// runWithApp wraps a command body with signal handling and app setup.
func runWithApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd, args)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&origin, "origin", "", "Override LAPIDA_ORIGIN, the page origin used for discovery")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(candlesCmd)
	rootCmd.AddCommand(archiveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
