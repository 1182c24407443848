package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/api"
	"github.com/JakeFAU/social-harvester/internal/clock/system"
	"github.com/JakeFAU/social-harvester/internal/config"
	"github.com/JakeFAU/social-harvester/internal/crawler"
	memorydedup "github.com/JakeFAU/social-harvester/internal/dedup/memory"
	redisdedup "github.com/JakeFAU/social-harvester/internal/dedup/redis"
	"github.com/JakeFAU/social-harvester/internal/dispatcher"
	memorygate "github.com/JakeFAU/social-harvester/internal/gate/memory"
	redisgate "github.com/JakeFAU/social-harvester/internal/gate/redis"
	"github.com/JakeFAU/social-harvester/internal/hash/sha256"
	"github.com/JakeFAU/social-harvester/internal/id/uuid"
	"github.com/JakeFAU/social-harvester/internal/notifier/logsink"
	pubsubnotifier "github.com/JakeFAU/social-harvester/internal/notifier/pubsub"
	"github.com/JakeFAU/social-harvester/internal/notifier/telegram"
	chromedpsource "github.com/JakeFAU/social-harvester/internal/pagesource/chromedp"
	collysource "github.com/JakeFAU/social-harvester/internal/pagesource/colly"
	"github.com/JakeFAU/social-harvester/internal/pagesource/ratelimit"
	kafkaqueue "github.com/JakeFAU/social-harvester/internal/queue/kafka"
	memoryqueue "github.com/JakeFAU/social-harvester/internal/queue/memory"
	"github.com/JakeFAU/social-harvester/internal/scheduler"
	"github.com/JakeFAU/social-harvester/internal/storage/blob"
	gcsstorage "github.com/JakeFAU/social-harvester/internal/storage/gcs"
	"github.com/JakeFAU/social-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/social-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/social-harvester/internal/storage/postgres"
	"github.com/JakeFAU/social-harvester/internal/worker"
)

// infra holds the shared clients several components draw from.
type infra struct {
	redis goredis.UniversalClient
	pool  pgstore.Pool
	clock *system.Clock
	ids   crawler.IDGenerator
}

// Build creates the application's dependencies. On error every client opened so far is closed.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{
		cfg:       cfg,
		logger:    logger,
		readiness: map[string]api.ReadinessCheck{},
	}
	built := app
	defer func() {
		if err != nil {
			_ = built.Close(context.Background())
			app = nil
		}
	}()
	logger.Info("building application dependencies",
		zap.String("queue", cfg.Queue.Backend),
		zap.String("gate", cfg.Gate.Backend),
		zap.String("dedup", cfg.Dedup.Backend),
		zap.String("targets", cfg.TargetsStore.Backend),
		zap.String("records", cfg.Records.Backend),
		zap.String("notifier", cfg.Notifier.Backend),
	)

	in := &infra{clock: system.New(), ids: uuid.New()}
	app.ids = in.ids
	if err = setupRedis(ctx, app, in); err != nil {
		return nil, err
	}
	if err = setupDatabase(ctx, app, in); err != nil {
		return nil, err
	}

	if app.targets, err = setupTargets(ctx, app, in); err != nil {
		return nil, err
	}
	records, err := setupRecords(ctx, app, in)
	if err != nil {
		return nil, err
	}
	notifier, err := setupNotifier(ctx, app, in)
	if err != nil {
		return nil, err
	}
	if app.queue, err = setupQueue(app); err != nil {
		return nil, err
	}
	sources, err := setupSources(app)
	if err != nil {
		return nil, err
	}

	deps := worker.Dependencies{
		Queue:    app.queue,
		Targets:  app.targets,
		Sources:  sources,
		Dedup:    setupDedup(app, in),
		Gate:     setupGate(app, in),
		Records:  records,
		Notifier: notifier,
		Clock:    in.clock,
		IDs:      uuid.WithPrefix("task"),
	}
	workerCfg := workerConfig(cfg)
	runners := make([]dispatcher.Runner, 0, cfg.Workers.Count)
	for i := 0; i < cfg.Workers.Count; i++ {
		w := worker.New(deps, workerCfg, logger.Named("worker").With(zap.Int("index", i)))
		app.workers = append(app.workers, w)
		runners = append(runners, w)
	}
	app.dispatch = dispatcher.New(app.queue, runners, logger)
	app.scheduler = scheduler.New(
		platformIntervals(cfg),
		app.targets,
		app.dispatch,
		in.clock,
		uuid.WithPrefix("task"),
		logger,
	)
	app.apiServer = api.NewServer(app.targets, app.scheduler, api.Options{
		APIKey:         apiKey(cfg.Auth),
		RequestTimeout: cfg.Server.RequestTimeout,
		Readiness:      app.readiness,
	}, logger)
	return app, nil
}

func apiKey(auth config.AuthConfig) string {
	if !auth.Enabled {
		return ""
	}
	return auth.APIKey
}

func setupRedis(ctx context.Context, app *App, in *infra) error {
	if !app.cfg.UsesRedis() {
		return nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     app.cfg.Redis.Addr,
		Password: app.cfg.Redis.Password,
		DB:       app.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping %s: %w", app.cfg.Redis.Addr, err)
	}
	in.redis = client
	app.onClose("redis", func(context.Context) error { return client.Close() })
	app.readiness["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	app.logger.Info("redis connected", zap.String("addr", app.cfg.Redis.Addr))
	return nil
}

func setupDatabase(ctx context.Context, app *App, in *infra) error {
	if !app.cfg.UsesPostgres() {
		return nil
	}
	db := app.cfg.Database
	pool, err := pgstore.NewPool(ctx, pgstore.Config{
		DSN:             db.DSN,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres pool init failed: %w", err)
	}
	in.pool = pool
	app.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	app.readiness["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	if db.EnsureSchema {
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	app.logger.Info("postgres pool initialized", zap.Int32("max_conns", db.MaxConns))
	return nil
}

func setupTargets(ctx context.Context, app *App, in *infra) (crawler.TargetStore, error) {
	var (
		store interface {
			crawler.TargetStore
			crawler.TargetSeeder
		}
		err error
	)
	switch app.cfg.TargetsStore.Backend {
	case config.BackendPostgres:
		store, err = pgstore.NewTargetStore(in.pool)
		if err != nil {
			return nil, fmt.Errorf("postgres target store init failed: %w", err)
		}
	default:
		store = memorystorage.NewTargetStore()
	}
	if app.cfg.TargetsStore.SeedOnStart {
		if err := seedTargets(ctx, store, app.cfg.Targets); err != nil {
			return nil, err
		}
		app.logger.Info("targets seeded", zap.Int("count", len(app.cfg.Targets)))
	}
	return store, nil
}

func seedTargets(ctx context.Context, seeder crawler.TargetSeeder, targets []crawler.CrawlTarget) error {
	for _, t := range targets {
		if err := seeder.UpsertTarget(ctx, t); err != nil {
			return fmt.Errorf("seed target %s: %w", t.ID, err)
		}
	}
	return nil
}

func setupRecords(ctx context.Context, app *App, in *infra) (crawler.RecordStore, error) {
	rc := app.cfg.Records
	switch rc.Backend {
	case config.BackendPostgres:
		store, err := pgstore.NewRecordStore(in.pool)
		if err != nil {
			return nil, fmt.Errorf("postgres record store init failed: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.onClose("gcs", func(context.Context) error { return client.Close() })
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: rc.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		store, err := blob.NewRecordStore(blobs, sha256.New(), rc.Prefix)
		if err != nil {
			return nil, fmt.Errorf("blob record store init failed: %w", err)
		}
		app.logger.Info("using GCS record store", zap.String("bucket", rc.GCSBucket), zap.String("prefix", rc.Prefix))
		return store, nil
	case config.BackendLocal:
		blobs, err := local.New(local.Config{BaseDir: rc.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		store, err := blob.NewRecordStore(blobs, sha256.New(), rc.Prefix)
		if err != nil {
			return nil, fmt.Errorf("blob record store init failed: %w", err)
		}
		app.logger.Info("using local record store", zap.String("dir", rc.LocalDir))
		return store, nil
	default:
		app.logger.Info("using in-memory record store")
		return memorystorage.NewRecordStore(), nil
	}
}

func setupNotifier(ctx context.Context, app *App, in *infra) (crawler.Notifier, error) {
	nc := app.cfg.Notifier
	switch nc.Backend {
	case config.BackendTelegram:
		n, err := telegram.New(telegram.Config{
			BaseURL:   nc.Telegram.BaseURL,
			Token:     nc.Telegram.Token,
			ParseMode: nc.Telegram.ParseMode,
			Timeout:   nc.Telegram.Timeout,
		}, &http.Client{})
		if err != nil {
			return nil, fmt.Errorf("telegram notifier init failed: %w", err)
		}
		app.logger.Info("telegram notifier initialized")
		return n, nil
	case config.BackendPubSub:
		client, err := pubsub.NewClient(ctx, nc.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.onClose("pubsub client", func(context.Context) error { return client.Close() })
		n, err := pubsubnotifier.New(client, nc.PubSub.TopicName, in.clock)
		if err != nil {
			return nil, fmt.Errorf("pubsub notifier init failed: %w", err)
		}
		app.onClose("pubsub topic", func(context.Context) error {
			n.Stop()
			return nil
		})
		app.logger.Info("Pub/Sub notifier initialized",
			zap.String("project", nc.PubSub.ProjectID),
			zap.String("topic", nc.PubSub.TopicName),
		)
		return n, nil
	default:
		app.logger.Warn("no delivery channel configured, notifications are logged only")
		return logsink.New(app.logger), nil
	}
}

func setupQueue(app *App) (crawler.Queue, error) {
	qc := app.cfg.Queue
	if qc.Backend == config.BackendKafka {
		q, err := kafkaqueue.New(kafkaqueue.Config{
			Brokers: qc.Kafka.Brokers,
			Topic:   qc.Kafka.Topic,
			GroupID: qc.Kafka.GroupID,
		}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("kafka queue init failed: %w", err)
		}
		app.onClose("kafka", func(context.Context) error { return q.Close() })
		return q, nil
	}
	q := memoryqueue.NewQueue(qc.Depth)
	app.onClose("queue", func(context.Context) error {
		q.Close()
		return nil
	})
	return q, nil
}

func setupGate(app *App, in *infra) crawler.Gate {
	if app.cfg.Gate.Backend == config.BackendRedis {
		return redisgate.New(in.redis, app.cfg.Gate.KeyPrefix)
	}
	return memorygate.New(in.clock)
}

func setupDedup(app *App, in *infra) crawler.DedupCache {
	if app.cfg.Dedup.Backend == config.BackendRedis {
		return redisdedup.New(in.redis, app.cfg.Dedup.KeyPrefix)
	}
	return memorydedup.New(in.clock)
}

func setupSources(app *App) (map[string]crawler.PageSource, error) {
	sources := make(map[string]crawler.PageSource, len(app.cfg.Platforms))
	for name, p := range app.cfg.Platforms {
		source, err := newSource(app, name, p.Source)
		if err != nil {
			return nil, fmt.Errorf("platform %s page source: %w", name, err)
		}
		sources[name] = ratelimit.Wrap(source, ratelimit.Config{
			RPS:   p.Source.RateLimitRPS,
			Burst: p.Source.RateLimitBurst,
		})
		app.logger.Info("page source ready",
			zap.String("platform", name),
			zap.String("backend", p.Source.Backend),
			zap.Float64("rate_limit_rps", p.Source.RateLimitRPS),
		)
	}
	return sources, nil
}

func newSource(app *App, platform string, sc config.SourceConfig) (crawler.PageSource, error) {
	sel := sc.Selectors
	if sc.Backend == config.BackendColly {
		cookies := make(map[string]string, len(sc.Cookies))
		for _, c := range sc.Cookies {
			cookies[c.Name] = c.Value
		}
		return collysource.New(collysource.Config{
			UserAgent: sc.UserAgent,
			Timeout:   sc.NavigationTimeout,
			Headers:   sc.Headers,
			Cookies:   cookies,
			Selectors: collysource.Selectors{
				Item:           sel.Item,
				Identifier:     sel.Identifier,
				IdentifierAttr: sel.IdentifierAttr,
				Fields:         sel.Fields,
			},
		})
	}
	cookies := make([]chromedpsource.Cookie, 0, len(sc.Cookies))
	for _, c := range sc.Cookies {
		cookies = append(cookies, chromedpsource.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	source, err := chromedpsource.New(chromedpsource.Config{
		MaxParallel:       sc.MaxParallel,
		UserAgent:         sc.UserAgent,
		NavigationTimeout: sc.NavigationTimeout,
		SettleDelay:       sc.SettleDelay,
		Headers:           sc.Headers,
		Cookies:           cookies,
		Selectors: chromedpsource.Selectors{
			Item:           sel.Item,
			Ready:          sel.Ready,
			Identifier:     sel.Identifier,
			IdentifierAttr: sel.IdentifierAttr,
			Fields:         sel.Fields,
		},
	})
	if err != nil {
		return nil, err
	}
	app.onClose("browser "+platform, func(context.Context) error {
		source.Close()
		return nil
	})
	return source, nil
}

func workerConfig(cfg config.Config) worker.Config {
	platforms := make(map[string]worker.PlatformConfig, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		platforms[name] = worker.PlatformConfig{
			PageSize:    p.PageSize,
			GateKey:     p.GateKey,
			GateTimeout: p.GateTimeout,
			OffsetParam: p.OffsetParam,
			Fields:      p.Fields,
		}
	}
	return worker.Config{
		Platforms:       platforms,
		DedupTTL:        cfg.Dedup.TTL,
		BlockedKeywords: cfg.Eligibility.BlockedKeywords,
		EnqueueTimeout:  cfg.Workers.EnqueueTimeout,
	}
}

func platformIntervals(cfg config.Config) map[string]time.Duration {
	out := make(map[string]time.Duration, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		out[name] = p.Interval
	}
	return out
}
