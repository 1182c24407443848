package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

const fullYAML = `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
workers:
  count: 2
queue:
  backend: kafka
  kafka:
    brokers: ["kafka:9092"]
    topic: crawl-tasks
dedup:
  backend: redis
  ttl: 48h
gate:
  backend: redis
targets_store:
  backend: postgres
records:
  backend: gcs
  gcs_bucket: harvest
database:
  dsn: postgres://localhost/harvester
notifier:
  backend: telegram
  telegram:
    token: bot-token
eligibility:
  blocked_keywords: ["crypto"]
platforms:
  linkedin:
    interval: 30m
    gate_timeout: 5m
    fields: [title, company, location, language]
    source:
      backend: chromedp
      rate_limit_rps: 0.5
      cookies:
        - name: li_at
          value: session
          domain: .linkedin.com
      selectors:
        item: li.jobs-search-results__list-item
        identifier_attr: data-occludable-job-id
        fields:
          title: .job-card-list__title
          company: .job-card-container__company-name
targets:
  - id: go-remote
    platform: linkedin
    url: https://www.linkedin.com/jobs/search/?keywords=golang
    message_template: "{title} @ {company}"
    page_count: 3
    priority: 5
    enabled: true
    crawl_interval: 1h
    output_destination: "-1001"
    rules:
      - field: title
        keyword: intern
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, fullYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.RequestTimeout != 60*time.Second {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Queue.Backend != BackendKafka || cfg.Queue.Kafka.GroupID != "harvester-workers" {
		t.Fatalf("unexpected queue config: %+v", cfg.Queue)
	}
	if cfg.Dedup.TTL != 48*time.Hour || !cfg.UsesRedis() || !cfg.UsesPostgres() {
		t.Fatalf("unexpected backend selection: %+v", cfg)
	}

	p, ok := cfg.Platforms["linkedin"]
	if !ok {
		t.Fatal("expected linkedin platform")
	}
	if p.Interval != 30*time.Minute || p.GateTimeout != 5*time.Minute {
		t.Fatalf("unexpected platform timing: %+v", p)
	}
	if p.PageSize != crawler.DefaultPageSize || p.GateKey != "linkedin" || p.OffsetParam != "start" {
		t.Fatalf("expected platform defaults, got %+v", p)
	}
	if len(p.Source.Cookies) != 1 || p.Source.Cookies[0].Name != "li_at" {
		t.Fatalf("unexpected cookies: %+v", p.Source.Cookies)
	}
	if p.Source.Selectors.Fields["title"] != ".job-card-list__title" {
		t.Fatalf("unexpected selectors: %+v", p.Source.Selectors)
	}

	if len(cfg.Targets) != 1 {
		t.Fatalf("expected one target, got %d", len(cfg.Targets))
	}
	target := cfg.Targets[0]
	if target.CrawlInterval != time.Hour || target.PageCount != 3 || !target.Enabled {
		t.Fatalf("unexpected target: %+v", target)
	}
	if len(target.Rules) != 1 || target.Rules[0].Field != crawler.FieldTitle {
		t.Fatalf("unexpected rules: %+v", target.Rules)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Queue.Backend != BackendMemory || cfg.Notifier.Backend != BackendLog {
		t.Fatalf("expected in-process backends by default: %+v", cfg)
	}
	if cfg.Dedup.TTL != 30*24*time.Hour {
		t.Fatalf("expected 30 day dedup ttl, got %v", cfg.Dedup.TTL)
	}
	if cfg.Notifier.Telegram.ParseMode != "Markdown" {
		t.Fatalf("expected Markdown parse mode, got %q", cfg.Notifier.Telegram.ParseMode)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CRAWLER_SERVER_PORT", "7070")
	t.Setenv("CRAWLER_NOTIFIER_BACKEND", "pubsub")
	t.Setenv("CRAWLER_NOTIFIER_PUBSUB_PROJECT_ID", "proj")
	t.Setenv("CRAWLER_NOTIFIER_PUBSUB_TOPIC_NAME", "jobs")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Notifier.PubSub.TopicName != "jobs" {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		replace [2]string
		want    string
	}{
		{"bad queue", [2]string{"backend: kafka", "backend: rabbit"}, "queue.backend"},
		{"missing bucket", [2]string{"gcs_bucket: harvest", "gcs_bucket: \"\""}, "records.gcs_bucket"},
		{"missing token", [2]string{"token: bot-token", "token: \"\""}, "telegram.token"},
		{"missing item selector", [2]string{"item: li.jobs-search-results__list-item", "item: \"\""}, "selectors.item"},
		{"unknown platform", [2]string{"platform: linkedin", "platform: myspace"}, "unknown platform"},
		{"bad rule field", [2]string{"field: title", "field: salary"}, "unknown field"},
		{"bad source", [2]string{"backend: chromedp", "backend: selenium"}, "source.backend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			body := strings.Replace(fullYAML, tc.replace[0], tc.replace[1], 1)
			_, err := Load(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:       ServerConfig{Port: 1},
		Auth:         AuthConfig{Enabled: true},
		Workers:      WorkersConfig{Count: 1},
		Queue:        QueueConfig{Backend: BackendMemory},
		Dedup:        DedupConfig{Backend: BackendMemory, TTL: time.Hour},
		Gate:         GateConfig{Backend: BackendMemory},
		TargetsStore: TargetsStoreConfig{Backend: BackendMemory},
		Records:      RecordsConfig{Backend: BackendMemory},
		Notifier:     NotifierConfig{Backend: BackendLog},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "auth.api_key") {
		t.Fatalf("expected api key error, got %v", err)
	}
	cfg.Auth.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
