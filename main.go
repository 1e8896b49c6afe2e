package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/teetimeworker/config"
	"sjsage522/teetimeworker/helpers"
	"sjsage522/teetimeworker/internal/crawler"
	"sjsage522/teetimeworker/logger"
	"sjsage522/teetimeworker/services/cache"
	"sjsage522/teetimeworker/services/notifier"
	"sjsage522/teetimeworker/services/proxy"
	"sjsage522/teetimeworker/services/publisher"
	"sjsage522/teetimeworker/services/worker"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagSingle  bool
	flagEnvFile string
	flagDryRun  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teetimeworker",
		Short: "Watch a golf booking calendar and notify when tee times open",
		Long: `Polls the reservation calendar of a golf club, confirms the time slots of
every bookable date and sends a Telegram message when the target month has any.`,
		SilenceUsage: true,
		RunE:         run,
	}

	cmd.Flags().BoolVar(&flagSingle, "single", false, "Run one check cycle and exit")
	cmd.Flags().StringVar(&flagEnvFile, "env-file", ".env", "Environment file to load")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Print messages instead of sending them")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	// A missing env file is fine; the environment may already be set
	_ = godotenv.Load(flagEnvFile)

	logger.Init()
	log := logger.Default

	cfg := config.LoadConfig()
	if ok, err := checkConfig(cfg, flagSingle); !ok {
		return err
	}

	rc := cfg.RunContext()
	log.Info().
		Str("environment", cfg.Environment).
		Str("target", rc.String()).
		Dur("check_interval", rc.Interval).
		Str("fetch_strategy", cfg.FetchStrategy).
		Str("slot_policy", cfg.SlotPolicy().String()).
		Bool("single", flagSingle).
		Msg("Starting application")

	// Set up context cancelled by SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := initializeServices(ctx, cfg)
	defer services.Cleanup()

	opts := cfg.FetcherOptions()
	if services.Proxy != nil {
		opts.Proxy = services.Proxy.Proxy
	}
	fetcher, err := crawler.NewFetcher(opts, services.Cache)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create fetcher")
		return err
	}

	w := worker.NewWorker(
		ctx,
		fetcher,
		crawler.NewExtractor(cfg.SlotPolicy()),
		services.Notifier,
		services.Publisher,
		services.Logger,
		rc,
		worker.Options{
			SiteName:    cfg.SiteName,
			BookingURL:  cfg.ReservationURL,
			DetailFetch: cfg.DetailFetch,
		},
	)

	if flagSingle {
		// The outcome of a single run is reported through the logs only
		if _, err := w.RunOnce(); err != nil {
			log.Warn().Err(err).Msg("Check cycle failed")
		}
		return nil
	}

	w.Start()
	log.Info().Msg("Shutting down gracefully...")
	return nil
}

// checkConfig validates cfg and logs any problem. In single mode the run then ends
// with a zero exit status; the scheduler returns the error.
func checkConfig(cfg *config.Config, single bool) (bool, error) {
	err := cfg.Validate()
	if err == nil {
		return true, nil
	}

	logger.Error("Invalid configuration: %v", err)
	if single {
		return false, nil
	}
	return false, err
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Notifier  notifier.Notifier
	Proxy     *proxy.StaticProxyManager
	Logger    *helpers.Logger
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Logger != nil {
		s.Logger.Close()
	}
}

// initializeServices sets up the optional backing services; an unreachable one is skipped, not fatal
func initializeServices(ctx context.Context, cfg *config.Config) *Services {
	log := logger.Default
	services := &Services{Logger: helpers.NewLogger(cfg.ErrorLogFile)}

	if cfg.MemcacheAddr == "" {
		logger.Debug("Memcache not configured, rate-limit blocks are process local")
	} else {
		memcache := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcache.Ping(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unavailable, rate-limit blocks are not shared")
		} else {
			services.Cache = memcache
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}

	if cfg.RedisAddr == "" {
		logger.Debug("Redis not configured, reports are not published")
	} else {
		redisPublisher := publisher.NewRedisPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		if err := redisPublisher.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, reports are not published")
			redisPublisher.Close()
		} else {
			services.Publisher = redisPublisher
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	if len(cfg.ProxyList) > 0 {
		pm, err := proxy.NewStaticProxyManager(cfg.ProxyList)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid proxy list, connecting directly")
		} else {
			if err := pm.UpdateProxies(); err != nil {
				log.Warn().Err(err).Msg("Failed to initialize proxy manager")
			}
			log.Info().Interface("proxy_stats", pm.GetProxyStats()).Msg("Proxy stats")
			services.Proxy = pm
		}
	}

	if flagDryRun {
		services.Notifier = notifier.NewDryRunNotifier()
	} else {
		services.Notifier = notifier.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramAPIURL)
	}

	return services
}
