package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

var targetCols = []string{
	"id", "platform", "name", "url", "message_template", "priority", "page_count",
	"apply_flag_required", "language", "rules", "output_destination", "enabled",
	"crawl_interval_secs", "last_crawl_at", "last_crawl_count", "deleted_at",
}

func newMockTargets(t *testing.T) (*TargetStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewTargetStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestTargetStoreGetTarget(t *testing.T) {
	t.Parallel()

	store, mock := newMockTargets(t)
	last := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(`SELECT .+ FROM crawl_targets WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs("target-1").
		WillReturnRows(pgxmock.NewRows(targetCols).AddRow(
			"target-1", "linkedin", "Go jobs", "https://l/jobs", "{title}", 7, 3,
			true, "en", []byte(`[{"field":"title","keyword":"intern"}]`), "@gojobs", true,
			int64(3600), &last, 12, (*time.Time)(nil),
		))

	got, err := store.GetTarget(context.Background(), "target-1")
	require.NoError(t, err)
	require.Equal(t, "linkedin", got.Platform)
	require.Equal(t, 7, got.Priority)
	require.Equal(t, 3, got.PageCount)
	require.True(t, got.ApplyFlagRequired)
	require.Equal(t, []crawler.EligibilityRule{{Field: crawler.FieldTitle, Keyword: "intern"}}, got.Rules)
	require.Equal(t, time.Hour, got.CrawlInterval)
	require.NotNil(t, got.LastCrawlAt)
	require.True(t, got.LastCrawlAt.Equal(last))
	require.Equal(t, 12, got.LastCrawlCount)
	require.Nil(t, got.DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetStoreGetTargetNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockTargets(t)
	mock.ExpectQuery(`SELECT .+ FROM crawl_targets WHERE id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetTarget(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrTargetNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetStoreListEnabled(t *testing.T) {
	t.Parallel()

	store, mock := newMockTargets(t)
	mock.ExpectQuery(`WHERE platform = \$1 AND enabled AND deleted_at IS NULL\s+ORDER BY priority DESC`).
		WithArgs("linkedin").
		WillReturnRows(pgxmock.NewRows(targetCols).
			AddRow("a", "linkedin", "", "https://l/a", "", 9, 1, false, "", []byte(`[]`), "", true,
				int64(0), (*time.Time)(nil), 0, (*time.Time)(nil)).
			AddRow("b", "linkedin", "", "https://l/b", "", 1, 1, false, "", []byte(`[]`), "", true,
				int64(0), (*time.Time)(nil), 0, (*time.Time)(nil)))

	got, err := store.ListEnabled(context.Background(), "linkedin")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "b", got[1].ID)
	require.Empty(t, got[0].Rules)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetStoreRecordCrawl(t *testing.T) {
	t.Parallel()

	store, mock := newMockTargets(t)
	at := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectExec(`UPDATE crawl_targets SET last_crawl_at`).
		WithArgs("a", at, 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE crawl_targets SET last_crawl_at`).
		WithArgs("gone", at, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.RecordCrawl(context.Background(), "a", at, 4))
	require.ErrorIs(t, store.RecordCrawl(context.Background(), "gone", at, 1), crawler.ErrTargetNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetStoreUpsertAndSoftDelete(t *testing.T) {
	t.Parallel()

	store, mock := newMockTargets(t)
	target := crawler.CrawlTarget{
		ID:            "a",
		Platform:      "twitter",
		URL:           "https://t/search?q=golang",
		Priority:      2,
		PageCount:     1,
		Enabled:       true,
		CrawlInterval: 15 * time.Minute,
	}
	mock.ExpectExec(`INSERT INTO crawl_targets`).
		WithArgs("a", "twitter", "", target.URL, "", 2, 1, false, "", []byte(`[]`), "", true, int64(900)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	at := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectExec(`UPDATE crawl_targets SET deleted_at`).
		WithArgs("a", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpsertTarget(context.Background(), target))
	require.NoError(t, store.SoftDelete(context.Background(), "a", at))
	require.ErrorIs(t, store.UpsertTarget(context.Background(), crawler.CrawlTarget{}), crawler.ErrInvalidTarget)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS crawl_targets`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPoolRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewPool(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewTargetStore(nil)
	require.Error(t, err)
}
