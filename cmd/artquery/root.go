package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	querycache "github.com/huykn/query-cache"
	"github.com/huykn/query-cache/artworks"
	"github.com/huykn/query-cache/cache"
)

var (
	// Global flags
	configPath  string
	debug       bool
	delay       time.Duration
	successRate float64
	retention   string
)

var rootCmd = &cobra.Command{
	Use:   "artquery",
	Short: "Browse the Art Institute of Chicago collection through the query cache",
	Long: `artquery fetches artworks from the Art Institute of Chicago API through a
deduplicating, stale-time aware query cache.

A simulated network delay and failure rate can be configured to watch how
the cache behaves on a slow or flaky connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog reads its flags from the standard flag set
		return flag.CommandLine.Parse(nil)
	},
}

// Execute runs the root command.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Run 'artquery -h' for help")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+defaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log cache and synchronizer internals")
	rootCmd.PersistentFlags().DurationVar(&delay, "delay", 0, "simulated network delay per request")
	rootCmd.PersistentFlags().Float64Var(&successRate, "success-rate", -1, "simulated request success rate in [0, 1]")
	rootCmd.PersistentFlags().StringVar(&retention, "retention", "", "store for inactive queries: map, lru or lfu")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.Version = querycache.Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newRelatedCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newInvalidateCmd())
}

// env is what every command works with.
type env struct {
	cfg    Config
	client *querycache.Client
	api    *artworks.Simulated
}

func (e *env) Close() {
	e.client.Close()
}

// loadConfig merges the config file with the flags set on cmd.
func loadConfig(cmd *cobra.Command) (Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("delay") {
		cfg.Delay = delay
	}
	if flags.Changed("success-rate") {
		cfg.SuccessRate = successRate
	}
	if flags.Changed("retention") {
		cfg.Retention = retention
	}
	return cfg, cfg.Validate()
}

func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	qcfg := querycache.DefaultConfig()
	qcfg.StaleTime = cfg.StaleTime
	qcfg.DebugMode = cfg.Debug
	qcfg.Logger = newLogger(cfg.Log)
	qcfg.LocalCacheFactory = retentionFactory(cfg)
	qcfg.RedisAddr = cfg.RedisAddr
	qcfg.RedisPassword = cfg.RedisPassword
	qcfg.RedisDB = cfg.RedisDB
	qcfg.InvalidationChannel = cfg.Channel
	qcfg.OnError = func(err error) {
		qcfg.Logger.Warn("Background error", "error", err)
	}

	client, err := querycache.New(cmd.Context(), qcfg)
	if err != nil {
		return nil, err
	}

	api := artworks.NewSimulated(artworks.NewClient(artworks.ClientOptions{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
	}))
	api.SetDelay(cfg.Delay)
	api.SetSuccessRate(cfg.SuccessRate)

	return &env{cfg: cfg, client: client, api: api}, nil
}

func newLogger(kind string) cache.Logger {
	switch kind {
	case "glog":
		return cache.NewGlogLogger("artquery")
	case "none":
		return cache.NewNoOpLogger()
	default:
		return cache.NewConsoleLogger("artquery")
	}
}

func retentionFactory(cfg Config) cache.LocalCacheFactory {
	switch cfg.Retention {
	case "lru":
		return cache.NewLRUCacheFactory(cfg.MaxSize)
	case "lfu":
		lc := cache.DefaultLocalCacheConfig()
		lc.MaxCost = int64(cfg.MaxSize)
		lc.NumCounters = 10 * int64(cfg.MaxSize)
		return cache.NewLFUCacheFactory(lc)
	default:
		return nil
	}
}

// waitFor waits for q to settle and reports how long it took.
func waitFor[T any](ctx context.Context, q *cache.Query[T]) (T, time.Duration, error) {
	start := time.Now()
	v, err := q.Wait(ctx)
	return v, time.Since(start), err
}
