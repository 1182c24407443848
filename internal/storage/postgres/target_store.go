package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

const targetColumns = `id, platform, name, url, message_template, priority, page_count,
	apply_flag_required, language, rules, output_destination, enabled,
	crawl_interval_secs, last_crawl_at, last_crawl_count, deleted_at`

// TargetStore reads and updates crawl_targets rows.
type TargetStore struct {
	pool Pool
}

var (
	_ crawler.TargetStore  = (*TargetStore)(nil)
	_ crawler.TargetSeeder = (*TargetStore)(nil)
)

// NewTargetStore wraps an open pool.
func NewTargetStore(pool Pool) (*TargetStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TargetStore{pool: pool}, nil
}

// GetTarget fetches a non-deleted target by ID.
func (s *TargetStore) GetTarget(ctx context.Context, id string) (crawler.CrawlTarget, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+targetColumns+` FROM crawl_targets WHERE id = $1 AND deleted_at IS NULL`, id)
	target, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CrawlTarget{}, fmt.Errorf("target %s: %w", id, crawler.ErrTargetNotFound)
	}
	if err != nil {
		return crawler.CrawlTarget{}, fmt.Errorf("select target %s: %w", id, err)
	}
	return target, nil
}

// ListTargets returns all non-deleted targets by descending priority.
func (s *TargetStore) ListTargets(ctx context.Context) ([]crawler.CrawlTarget, error) {
	return s.query(ctx,
		`SELECT `+targetColumns+` FROM crawl_targets WHERE deleted_at IS NULL ORDER BY priority DESC, id`)
}

// ListEnabled returns enabled targets of platform by descending priority.
func (s *TargetStore) ListEnabled(ctx context.Context, platform string) ([]crawler.CrawlTarget, error) {
	return s.query(ctx,
		`SELECT `+targetColumns+` FROM crawl_targets
	WHERE platform = $1 AND enabled AND deleted_at IS NULL
	ORDER BY priority DESC, id`, platform)
}

// RecordCrawl stores the last run's timestamp and success count.
func (s *TargetStore) RecordCrawl(ctx context.Context, id string, at time.Time, count int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_targets SET last_crawl_at = $2, last_crawl_count = $3 WHERE id = $1`,
		id, at, count)
	if err != nil {
		return fmt.Errorf("update crawl stats %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("target %s: %w", id, crawler.ErrTargetNotFound)
	}
	return nil
}

// UpsertTarget inserts or replaces the operator-managed columns of a target.
func (s *TargetStore) UpsertTarget(ctx context.Context, t crawler.CrawlTarget) error {
	if err := t.Validate(); err != nil {
		return err
	}
	rules, err := json.Marshal(rulesOrEmpty(t.Rules))
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	query := `
INSERT INTO crawl_targets (
	id, platform, name, url, message_template, priority, page_count,
	apply_flag_required, language, rules, output_destination, enabled, crawl_interval_secs
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (id) DO UPDATE SET
	platform = EXCLUDED.platform,
	name = EXCLUDED.name,
	url = EXCLUDED.url,
	message_template = EXCLUDED.message_template,
	priority = EXCLUDED.priority,
	page_count = EXCLUDED.page_count,
	apply_flag_required = EXCLUDED.apply_flag_required,
	language = EXCLUDED.language,
	rules = EXCLUDED.rules,
	output_destination = EXCLUDED.output_destination,
	enabled = EXCLUDED.enabled,
	crawl_interval_secs = EXCLUDED.crawl_interval_secs`
	args := []any{
		t.ID,
		t.Platform,
		t.Name,
		t.URL,
		t.MessageTemplate,
		t.Priority,
		t.PageCount,
		t.ApplyFlagRequired,
		t.Language,
		rules,
		t.OutputDestination,
		t.Enabled,
		int64(t.CrawlInterval / time.Second),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert target %s: %w", t.ID, err)
	}
	return nil
}

// SoftDelete hides a target from every read; the row is kept.
func (s *TargetStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_targets SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("target %s: %w", id, crawler.ErrTargetNotFound)
	}
	return nil
}

func (s *TargetStore) query(ctx context.Context, sql string, args ...any) ([]crawler.CrawlTarget, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select targets: %w", err)
	}
	defer rows.Close()

	var out []crawler.CrawlTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return out, nil
}

func scanTarget(row pgx.Row) (crawler.CrawlTarget, error) {
	var (
		t            crawler.CrawlTarget
		rules        []byte
		intervalSecs int64
	)
	err := row.Scan(
		&t.ID,
		&t.Platform,
		&t.Name,
		&t.URL,
		&t.MessageTemplate,
		&t.Priority,
		&t.PageCount,
		&t.ApplyFlagRequired,
		&t.Language,
		&rules,
		&t.OutputDestination,
		&t.Enabled,
		&intervalSecs,
		&t.LastCrawlAt,
		&t.LastCrawlCount,
		&t.DeletedAt,
	)
	if err != nil {
		return crawler.CrawlTarget{}, err
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &t.Rules); err != nil {
			return crawler.CrawlTarget{}, fmt.Errorf("decode rules for %s: %w", t.ID, err)
		}
	}
	t.CrawlInterval = time.Duration(intervalSecs) * time.Second
	return t, nil
}

func rulesOrEmpty(rules []crawler.EligibilityRule) []crawler.EligibilityRule {
	if rules == nil {
		return []crawler.EligibilityRule{}
	}
	return rules
}
