// Command server runs the billing and session sync HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/saasbilling/internal/api"
	"github.com/dmitrymomot/saasbilling/internal/db/migrations"
	"github.com/dmitrymomot/saasbilling/internal/userstore"
	"github.com/dmitrymomot/saasbilling/pkg/billing"
	"github.com/dmitrymomot/saasbilling/pkg/clientip"
	"github.com/dmitrymomot/saasbilling/pkg/config"
	"github.com/dmitrymomot/saasbilling/pkg/email"
	"github.com/dmitrymomot/saasbilling/pkg/environment"
	"github.com/dmitrymomot/saasbilling/pkg/httpserver"
	"github.com/dmitrymomot/saasbilling/pkg/logger"
	"github.com/dmitrymomot/saasbilling/pkg/mysql"
	"github.com/dmitrymomot/saasbilling/pkg/pg"
	"github.com/dmitrymomot/saasbilling/pkg/ratelimiter"
	"github.com/dmitrymomot/saasbilling/pkg/redis"
	"github.com/dmitrymomot/saasbilling/pkg/requestid"
	"github.com/dmitrymomot/saasbilling/pkg/session"
	"github.com/dmitrymomot/saasbilling/pkg/sessionsync"
)

type appConfig struct {
	Env             string        `env:"APP_ENV" envDefault:"development"`
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"saasbilling"`
	LogLevel        string        `env:"LOG_LEVEL"`
	DBDriver        string        `env:"DB_DRIVER" envDefault:"mysql"`
	PortalReturnURL string        `env:"BILLING_PORTAL_RETURN_URL"`
	SyncRedisPrefix string        `env:"SESSION_SYNC_REDIS_PREFIX" envDefault:"session-sync:"`
	SyncStorageTTL  time.Duration `env:"SESSION_SYNC_STORAGE_TTL" envDefault:"1m"`

	// TrustedIPHeaders lists proxy headers carrying the client address, in
	// priority order. Leave empty when the service is reachable directly.
	TrustedIPHeaders []string `env:"TRUSTED_IP_HEADERS" envSeparator:","`

	RateLimitEnabled bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPrefix  string        `env:"RATE_LIMIT_REDIS_PREFIX" envDefault:"ratelimit:"`
	MutationCapacity int           `env:"BILLING_RATE_LIMIT_CAPACITY" envDefault:"5"`
	MutationRefill   int           `env:"BILLING_RATE_LIMIT_REFILL_RATE" envDefault:"1"`
	MutationInterval time.Duration `env:"BILLING_RATE_LIMIT_INTERVAL" envDefault:"10s"`
	WebhookCapacity  int           `env:"WEBHOOK_RATE_LIMIT_CAPACITY" envDefault:"200"`
	WebhookRefill    int           `env:"WEBHOOK_RATE_LIMIT_REFILL_RATE" envDefault:"50"`
	WebhookInterval  time.Duration `env:"WEBHOOK_RATE_LIMIT_INTERVAL" envDefault:"1s"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return fmt.Errorf("load app config: %w", err)
	}
	env := environment.Parse(app.Env)

	log := logger.New(
		logger.WithEnvironment(env, app.ServiceName),
		logger.WithLevelName(app.LogLevel),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
			session.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	checks := map[string]httpserver.Check{}
	var stopHooks []httpserver.Hook

	store, closeStore, err := openStore(ctx, app.DBDriver, log, checks)
	if err != nil {
		return err
	}
	stopHooks = append(stopHooks, func(context.Context) error { return closeStore() })

	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return fmt.Errorf("load redis config: %w", err)
	}
	var redisClient *goredis.Client
	if redisCfg.Enabled() {
		redisClient, err = redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		checks["redis"] = redis.Healthcheck(redisClient)
		stopHooks = append(stopHooks, func(context.Context) error { return redisClient.Close() })
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := newBillingService(store, app, reg, log)
	if err != nil {
		return err
	}

	var sessCfg session.Config
	if err := config.Load(&sessCfg); err != nil {
		return fmt.Errorf("load session config: %w", err)
	}
	var sessStore session.Store = session.NewMemoryStore()
	if redisClient != nil {
		sessStore = session.NewRedisStore(redisClient, sessCfg.RedisPrefix)
	}
	sessions := session.NewManager(sessStore, sessCfg, session.WithUnauthorizedHandler(api.Unauthorized()))

	var apiCfg api.Config
	if err := config.Load(&apiCfg); err != nil {
		return fmt.Errorf("load api config: %w", err)
	}

	// Without Redis, tabs served by this process still sync through the
	// in-memory hub; there is no storage fallback to fall back to.
	var (
		primary  = sessionsync.MemoryTransports(16)
		fallback sessionsync.Storage
	)
	if redisClient != nil {
		primary = sessionsync.RedisTransports(redisClient, app.SyncRedisPrefix, log)
		fallback = sessionsync.NewRedisStorage(redisClient, app.SyncRedisPrefix+"kv:", app.SyncStorageTTL)
	}

	apiOpts := []api.Option{
		api.WithConfig(apiCfg),
		api.WithLogger(log),
		api.WithSessionSync(primary, fallback),
		api.WithHealthCheck(httpserver.HealthCheckHandler(log, checks)),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		api.WithClientIP(clientip.New(app.TrustedIPHeaders...)),
	}
	if app.RateLimitEnabled {
		mutations, webhooks, err := newRateLimiters(app, redisClient)
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, api.WithRateLimits(mutations, webhooks))
	}
	srv := api.New(svc, sessions, apiOpts...)

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return fmt.Errorf("load http config: %w", err)
	}
	opts := []httpserver.Option{httpserver.WithLogger(log)}
	for _, h := range stopHooks {
		opts = append(opts, httpserver.WithStopHook(h))
	}

	return httpserver.NewFromConfig(httpCfg, opts...).Run(ctx, srv.Routes())
}

// openStore connects the user store selected by driver and applies migrations.
func openStore(ctx context.Context, driver string, log *slog.Logger, checks map[string]httpserver.Check) (billing.UserStore, func() error, error) {
	switch driver {
	case "mysql":
		var cfg mysql.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, fmt.Errorf("load mysql config: %w", err)
		}
		db, err := mysql.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := mysql.Migrate(ctx, db, migrations.MySQL(), cfg, log); err != nil {
			_ = mysql.Close(db)
			return nil, nil, err
		}
		checks["mysql"] = mysql.Healthcheck(db)
		return userstore.NewMySQLStore(db), func() error { return mysql.Close(db) }, nil

	case "postgres":
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, nil, fmt.Errorf("load postgres config: %w", err)
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx, pool, migrations.Postgres(), cfg, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		checks["postgres"] = pg.Healthcheck(pool)
		return userstore.NewPostgresStore(pool), func() error { pool.Close(); return nil }, nil

	case "memory":
		log.Warn("using in-memory user store, data is lost on restart")
		return userstore.NewMemoryStore(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q: want mysql, postgres or memory", driver)
	}
}

// newRateLimiters shares buckets through Redis when it is configured so that
// limits hold across replicas.
func newRateLimiters(app appConfig, client *goredis.Client) (*ratelimiter.Bucket, *ratelimiter.Bucket, error) {
	store := func(scope string) ratelimiter.Store {
		if client != nil {
			return ratelimiter.NewRedisStore(client, app.RateLimitPrefix+scope+":")
		}
		return ratelimiter.NewMemoryStore()
	}

	mutations, err := ratelimiter.NewBucket(store("billing"), ratelimiter.Config{
		Capacity:       app.MutationCapacity,
		RefillRate:     app.MutationRefill,
		RefillInterval: app.MutationInterval,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("billing rate limit: %w", err)
	}
	webhooks, err := ratelimiter.NewBucket(store("webhook"), ratelimiter.Config{
		Capacity:       app.WebhookCapacity,
		RefillRate:     app.WebhookRefill,
		RefillInterval: app.WebhookInterval,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("webhook rate limit: %w", err)
	}
	return mutations, webhooks, nil
}

// newBillingService registers each provider whose credentials are set.
// Unconfigured providers answer 503 for users bound to them.
func newBillingService(store billing.UserStore, app appConfig, reg prometheus.Registerer, log *slog.Logger) (*billing.Service, error) {
	var stripeCfg billing.StripeConfig
	if err := config.Load(&stripeCfg); err != nil {
		return nil, fmt.Errorf("load stripe config: %w", err)
	}
	var lsCfg billing.LemonSqueezyConfig
	if err := config.Load(&lsCfg); err != nil {
		return nil, fmt.Errorf("load lemonsqueezy config: %w", err)
	}
	var mailCfg email.Config
	if err := config.Load(&mailCfg); err != nil {
		return nil, fmt.Errorf("load email config: %w", err)
	}

	opts := []billing.Option{
		billing.WithLogger(log),
		billing.WithMetrics(billing.NewMetrics(reg)),
		billing.WithPortalReturnURL(app.PortalReturnURL),
	}

	if stripeCfg.Enabled() {
		p, err := billing.NewStripeProvider(stripeCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, billing.WithProvider(p))
	} else {
		log.Warn("stripe is not configured", logger.Provider(string(billing.ProviderStripe)))
	}

	if lsCfg.Enabled() {
		p, err := billing.NewLemonSqueezyProvider(lsCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, billing.WithProvider(p))
	} else {
		log.Warn("lemonsqueezy is not configured", logger.Provider(string(billing.ProviderLemonSqueezy)))
	}

	var sender email.EmailSender
	if mailCfg.UsePostmark() {
		s, err := email.NewPostmarkClient(mailCfg)
		if err != nil {
			return nil, err
		}
		sender = s
	} else {
		sender = email.NewDevSender(mailCfg.DevOutputDir, log)
	}
	opts = append(opts, billing.WithNotifier(email.NewCancellationNotifier(sender, mailCfg.AppName)))

	return billing.NewService(store, opts...), nil
}
