package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// brokenQueue fails every Dequeue with a non-terminal error.
type brokenQueue struct {
	calls atomic.Int32
}

func (q *brokenQueue) Enqueue(context.Context, crawler.TaskRequest) error {
	return nil
}

func (q *brokenQueue) Dequeue(context.Context) (crawler.TaskRequest, error) {
	q.calls.Add(1)
	return crawler.TaskRequest{}, errors.New("connection reset")
}

// recordingTracer keeps the spans it starts.
type recordingTracer struct {
	noop.Tracer
	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	span := &recordingSpan{name: name}
	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, span), span
}

func (t *recordingTracer) started() []*recordingSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*recordingSpan(nil), t.spans...)
}

type recordingSpan struct {
	noop.Span
	name   string
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }

type fakeQueue struct {
	ch chan crawler.TaskRequest
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{ch: make(chan crawler.TaskRequest, 16)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, req crawler.TaskRequest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- req:
		return nil
	}
}

func (q *fakeQueue) Dequeue(ctx context.Context) (crawler.TaskRequest, error) {
	select {
	case <-ctx.Done():
		return crawler.TaskRequest{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
	case req := <-q.ch:
		return req, nil
	}
}

type crawlUpdate struct {
	id    string
	at    time.Time
	count int
}

type fakeTargetStore struct {
	mu      sync.Mutex
	targets map[string]crawler.CrawlTarget
	updates []crawlUpdate
}

func newFakeTargetStore(targets ...crawler.CrawlTarget) *fakeTargetStore {
	s := &fakeTargetStore{targets: make(map[string]crawler.CrawlTarget)}
	for _, t := range targets {
		s.targets[t.ID] = t
	}
	return s
}

func (s *fakeTargetStore) GetTarget(_ context.Context, id string) (crawler.CrawlTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return crawler.CrawlTarget{}, crawler.ErrTargetNotFound
	}
	return t, nil
}

func (s *fakeTargetStore) ListTargets(context.Context) ([]crawler.CrawlTarget, error) {
	return nil, nil
}

func (s *fakeTargetStore) ListEnabled(context.Context, string) ([]crawler.CrawlTarget, error) {
	return nil, nil
}

func (s *fakeTargetStore) RecordCrawl(_ context.Context, id string, at time.Time, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.targets[id]
	t.LastCrawlAt = &at
	t.LastCrawlCount = count
	s.targets[id] = t
	s.updates = append(s.updates, crawlUpdate{id: id, at: at, count: count})
	return nil
}

func (s *fakeTargetStore) lastUpdate() (crawlUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return crawlUpdate{}, false
	}
	return s.updates[len(s.updates)-1], true
}

type fakeHandle struct {
	id        string
	idErr     error
	fields    map[string]string
	fieldErrs map[string]error
}

func (h fakeHandle) Identifier(context.Context) (string, error) {
	return h.id, h.idErr
}

func (h fakeHandle) Field(_ context.Context, name string) (string, error) {
	if err, ok := h.fieldErrs[name]; ok {
		return "", err
	}
	v, ok := h.fields[name]
	if !ok {
		return "", crawler.ErrElementNotFound
	}
	return v, nil
}

func job(id, title string) fakeHandle {
	return fakeHandle{
		id: id,
		fields: map[string]string{
			"title":    title,
			"company":  "Acme",
			"location": "Remote",
		},
	}
}

type fakeSession struct {
	handles []crawler.ItemHandle
	err     error
	closed  *atomic.Int32
}

func (s fakeSession) Items(context.Context) ([]crawler.ItemHandle, error) {
	return s.handles, s.err
}

func (s fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	pages    map[string][]crawler.ItemHandle
	itemsErr error
	openErr  error
	panicMsg string
	started  chan struct{}
	block    chan struct{}
	opened   []string
	closed   atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: make(map[string][]crawler.ItemHandle)}
}

func (s *fakeSource) page(url string, handles ...fakeHandle) {
	items := make([]crawler.ItemHandle, 0, len(handles))
	for _, h := range handles {
		items = append(items, h)
	}
	s.pages[url] = items
}

func (s *fakeSource) Open(ctx context.Context, url string) (crawler.Session, error) {
	s.mu.Lock()
	s.opened = append(s.opened, url)
	started, block := s.started, s.block
	s.mu.Unlock()

	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if started != nil {
		close(started)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, crawler.ErrTimeout
		}
	}
	if s.openErr != nil {
		return nil, s.openErr
	}
	return fakeSession{handles: s.pages[url], err: s.itemsErr, closed: &s.closed}, nil
}

func (s *fakeSource) openedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

type fakeDedup struct {
	mu    sync.Mutex
	seen  map[string]bool
	marks int
}

func newFakeDedup(seen ...string) *fakeDedup {
	d := &fakeDedup{seen: make(map[string]bool)}
	for _, id := range seen {
		d.seen[id] = true
	}
	return d
}

func (d *fakeDedup) Exists(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[id], nil
}

func (d *fakeDedup) Mark(_ context.Context, id string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = true
	d.marks++
	return nil
}

func (d *fakeDedup) markCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.marks
}

type fakeRecords struct {
	mu      sync.Mutex
	records []crawler.Record
	ignored []crawler.IgnoredRecord
}

func (r *fakeRecords) Create(_ context.Context, rec crawler.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecords) CreateIgnored(_ context.Context, rec crawler.IgnoredRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignored = append(r.ignored, rec)
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time {
	return c.now
}

type fakeIDs struct {
	n atomic.Int64
}

func (g *fakeIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%d", g.n.Add(1)), nil
}
