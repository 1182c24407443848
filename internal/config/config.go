// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Backend names accepted by the selectable components.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendKafka    = "kafka"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
	BackendLocal    = "local"
	BackendLog      = "log"
	BackendTelegram = "telegram"
	BackendPubSub   = "pubsub"
	BackendChromedp = "chromedp"
	BackendColly    = "colly"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig              `mapstructure:"server"`
	Auth         AuthConfig                `mapstructure:"auth"`
	Logging      LoggingConfig             `mapstructure:"logging"`
	Workers      WorkersConfig             `mapstructure:"workers"`
	Queue        QueueConfig               `mapstructure:"queue"`
	Redis        RedisConfig               `mapstructure:"redis"`
	Dedup        DedupConfig               `mapstructure:"dedup"`
	Gate         GateConfig                `mapstructure:"gate"`
	TargetsStore TargetsStoreConfig        `mapstructure:"targets_store"`
	Records      RecordsConfig             `mapstructure:"records"`
	Database     DatabaseConfig            `mapstructure:"database"`
	Notifier     NotifierConfig            `mapstructure:"notifier"`
	Eligibility  EligibilityConfig         `mapstructure:"eligibility"`
	Platforms    map[string]PlatformConfig `mapstructure:"platforms"`
	Targets      []crawler.CrawlTarget     `mapstructure:"targets"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// WorkersConfig sizes the worker pool. Keep Count at 1 per shared browser; the gate
// serializes a platform anyway.
type WorkersConfig struct {
	Count          int           `mapstructure:"count"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
}

// QueueConfig selects the task queue.
type QueueConfig struct {
	Backend string      `mapstructure:"backend"`
	Depth   int         `mapstructure:"depth"`
	Kafka   KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig locates the task topic.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// RedisConfig is shared by the redis gate and dedup cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DedupConfig controls the seen-identifier cache.
type DedupConfig struct {
	Backend   string        `mapstructure:"backend"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// GateConfig controls the concurrency gate.
type GateConfig struct {
	Backend   string `mapstructure:"backend"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// TargetsStoreConfig selects where crawl targets live.
type TargetsStoreConfig struct {
	Backend string `mapstructure:"backend"`
	// SeedOnStart upserts the configured targets list into the store at boot.
	SeedOnStart bool `mapstructure:"seed_on_start"`
}

// RecordsConfig selects the record store.
type RecordsConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DatabaseConfig controls the pgx pool.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// NotifierConfig selects the delivery channel.
type NotifierConfig struct {
	Backend  string         `mapstructure:"backend"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	ParseMode string        `mapstructure:"parse_mode"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PubSubConfig holds the publish target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// EligibilityConfig holds rules applied to every target.
type EligibilityConfig struct {
	BlockedKeywords []string `mapstructure:"blocked_keywords"`
}

// PlatformConfig describes one platform family.
type PlatformConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	PageSize    int           `mapstructure:"page_size"`
	GateKey     string        `mapstructure:"gate_key"`
	GateTimeout time.Duration `mapstructure:"gate_timeout"`
	OffsetParam string        `mapstructure:"offset_param"`
	Fields      []string      `mapstructure:"fields"`
	Source      SourceConfig  `mapstructure:"source"`
}

// SourceConfig configures the platform's page source.
type SourceConfig struct {
	Backend           string            `mapstructure:"backend"`
	UserAgent         string            `mapstructure:"user_agent"`
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration     `mapstructure:"settle_delay"`
	MaxParallel       int               `mapstructure:"max_parallel"`
	RateLimitRPS      float64           `mapstructure:"rate_limit_rps"`
	RateLimitBurst    int               `mapstructure:"rate_limit_burst"`
	Headers           map[string]string `mapstructure:"headers"`
	Cookies           []CookieConfig    `mapstructure:"cookies"`
	Selectors         SelectorsConfig   `mapstructure:"selectors"`
}

// CookieConfig is a session cookie, typically the platform's login token.
type CookieConfig struct {
	Name   string `mapstructure:"name"`
	Value  string `mapstructure:"value"`
	Domain string `mapstructure:"domain"`
}

// SelectorsConfig locates candidates on a results page.
type SelectorsConfig struct {
	Item           string            `mapstructure:"item"`
	Ready          string            `mapstructure:"ready"`
	Identifier     string            `mapstructure:"identifier"`
	IdentifierAttr string            `mapstructure:"identifier_attr"`
	Fields         map[string]string `mapstructure:"fields"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("logging.development", true)
	v.SetDefault("workers.count", 1)
	v.SetDefault("workers.enqueue_timeout", "5s")
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.depth", 256)
	v.SetDefault("queue.kafka.group_id", "harvester-workers")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("dedup.backend", BackendMemory)
	v.SetDefault("dedup.ttl", "720h")
	v.SetDefault("dedup.key_prefix", "harvester:seen:")
	v.SetDefault("gate.backend", BackendMemory)
	v.SetDefault("gate.key_prefix", "harvester:gate:")
	v.SetDefault("targets_store.backend", BackendMemory)
	v.SetDefault("targets_store.seed_on_start", true)
	v.SetDefault("records.backend", BackendMemory)
	v.SetDefault("records.prefix", "harvester")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)
	v.SetDefault("notifier.backend", BackendLog)
	v.SetDefault("notifier.telegram.base_url", "https://api.telegram.org")
	v.SetDefault("notifier.telegram.parse_mode", "Markdown")
	v.SetDefault("notifier.telegram.timeout", "10s")

	// Secrets default to empty so AutomaticEnv can supply them during Unmarshal.
	for _, key := range []string{
		"auth.api_key",
		"redis.password",
		"database.dsn",
		"records.gcs_bucket",
		"records.local_dir",
		"notifier.telegram.token",
		"notifier.pubsub.project_id",
		"notifier.pubsub.topic_name",
	} {
		v.SetDefault(key, "")
	}
}

// applyPlatformDefaults fills per-platform zero values; viper defaults cannot reach map entries.
func (c *Config) applyPlatformDefaults() {
	for name, p := range c.Platforms {
		if p.PageSize == 0 {
			p.PageSize = crawler.DefaultPageSize
		}
		if p.GateKey == "" {
			p.GateKey = name
		}
		if p.GateTimeout == 0 {
			p.GateTimeout = 10 * time.Minute
		}
		if p.OffsetParam == "" {
			p.OffsetParam = "start"
		}
		if p.Source.Backend == "" {
			p.Source.Backend = BackendChromedp
		}
		c.Platforms[name] = p
	}
}

// Validate enforces required values and reasonable limits.
//
//nolint:gocyclo // flat list of independent checks
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if err := oneOf("queue.backend", c.Queue.Backend, BackendMemory, BackendKafka); err != nil {
		return err
	}
	if c.Queue.Backend == BackendKafka && (len(c.Queue.Kafka.Brokers) == 0 || c.Queue.Kafka.Topic == "") {
		return fmt.Errorf("queue.kafka.brokers and queue.kafka.topic are required for the kafka queue")
	}
	if err := oneOf("dedup.backend", c.Dedup.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if c.Dedup.TTL <= 0 {
		return fmt.Errorf("dedup.ttl must be > 0")
	}
	if err := oneOf("gate.backend", c.Gate.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if (c.Dedup.Backend == BackendRedis || c.Gate.Backend == BackendRedis) && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for redis backends")
	}
	if err := oneOf("targets_store.backend", c.TargetsStore.Backend, BackendMemory, BackendPostgres); err != nil {
		return err
	}
	if err := oneOf("records.backend", c.Records.Backend, BackendMemory, BackendPostgres, BackendGCS, BackendLocal); err != nil {
		return err
	}
	if c.Records.Backend == BackendGCS && c.Records.GCSBucket == "" {
		return fmt.Errorf("records.gcs_bucket is required for the gcs record store")
	}
	if c.Records.Backend == BackendLocal && c.Records.LocalDir == "" {
		return fmt.Errorf("records.local_dir is required for the local record store")
	}
	if c.UsesPostgres() && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres backends")
	}
	if err := c.validateNotifier(); err != nil {
		return err
	}
	for name, p := range c.Platforms {
		if err := p.validate(name); err != nil {
			return err
		}
	}
	for _, t := range c.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		if _, ok := c.Platforms[t.Platform]; !ok {
			return fmt.Errorf("targets: %s references unknown platform %q", t.ID, t.Platform)
		}
	}
	return nil
}

// UsesPostgres reports whether any component needs the database pool.
func (c Config) UsesPostgres() bool {
	return c.TargetsStore.Backend == BackendPostgres || c.Records.Backend == BackendPostgres
}

// UsesRedis reports whether any component needs the redis client.
func (c Config) UsesRedis() bool {
	return c.Dedup.Backend == BackendRedis || c.Gate.Backend == BackendRedis
}

func (c Config) validateNotifier() error {
	n := c.Notifier
	if err := oneOf("notifier.backend", n.Backend, BackendLog, BackendTelegram, BackendPubSub); err != nil {
		return err
	}
	switch n.Backend {
	case BackendTelegram:
		if n.Telegram.Token == "" {
			return fmt.Errorf("notifier.telegram.token is required for the telegram notifier")
		}
	case BackendPubSub:
		if n.PubSub.ProjectID == "" || n.PubSub.TopicName == "" {
			return fmt.Errorf("notifier.pubsub.project_id and topic_name are required for the pubsub notifier")
		}
	}
	return nil
}

func (p PlatformConfig) validate(name string) error {
	if p.PageSize <= 0 {
		return fmt.Errorf("platforms.%s.page_size must be > 0", name)
	}
	if p.Interval < 0 {
		return fmt.Errorf("platforms.%s.interval must be >= 0", name)
	}
	if p.GateTimeout <= 0 {
		return fmt.Errorf("platforms.%s.gate_timeout must be > 0", name)
	}
	if err := oneOf("platforms."+name+".source.backend", p.Source.Backend, BackendChromedp, BackendColly); err != nil {
		return err
	}
	if p.Source.Selectors.Item == "" {
		return fmt.Errorf("platforms.%s.source.selectors.item is required", name)
	}
	if p.Source.Selectors.Identifier == "" && p.Source.Selectors.IdentifierAttr == "" {
		return fmt.Errorf("platforms.%s.source.selectors needs identifier or identifier_attr", name)
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}
