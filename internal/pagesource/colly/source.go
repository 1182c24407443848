// Package collysource implements crawler.PageSource for server-rendered result pages using gocolly.
package collysource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Selectors locate candidates and their fields in the fetched document.
type Selectors struct {
	Item string
	// Identifier is relative to the item; empty reads IdentifierAttr from the item itself.
	Identifier     string
	IdentifierAttr string
	Fields         map[string]string
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
	// Cookies are sent verbatim as the Cookie header (session token).
	Cookies   map[string]string
	Selectors Selectors
}

// Source fetches one document per Open and snapshots its items.
type Source struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ crawler.PageSource = (*Source)(nil)

// New builds a Source.
func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.Selectors.Item) == "" {
		return nil, fmt.Errorf("item selector is required")
	}
	if cfg.Selectors.Identifier == "" && cfg.Selectors.IdentifierAttr == "" {
		return nil, fmt.Errorf("identifier selector or attribute is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Source{cfg: cfg, baseCollector: c}, nil
}

// Open fetches url and returns a session over the items found in it.
func (s *Source) Open(ctx context.Context, url string) (crawler.Session, error) {
	var (
		items    []crawler.ItemHandle
		fetchErr error
	)
	collector := s.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range s.cfg.Headers {
			r.Headers.Set(key, value)
		}
		if cookie := s.cookieHeader(); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
	})
	collector.OnHTML(s.cfg.Selectors.Item, func(e *colly.HTMLElement) {
		items = append(items, s.snapshot(e))
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return &session{items: items}, nil
}

func (s *Source) cookieHeader() string {
	if len(s.cfg.Cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.cfg.Cookies))
	for name, value := range s.cfg.Cookies {
		parts = append(parts, (&http.Cookie{Name: name, Value: value}).String())
	}
	return strings.Join(parts, "; ")
}

// snapshot copies everything the worker may ask for out of the element while the document is alive.
func (s *Source) snapshot(e *colly.HTMLElement) *item {
	sel := s.cfg.Selectors
	it := &item{fields: make(map[string]string, len(sel.Fields))}

	idNode := e.DOM
	if sel.Identifier != "" {
		idNode = e.DOM.Find(sel.Identifier).First()
	}
	switch {
	case idNode.Length() == 0:
		it.idErr = fmt.Errorf("identifier %s: %w", sel.Identifier, crawler.ErrElementNotFound)
	case sel.IdentifierAttr != "":
		value, ok := idNode.Attr(sel.IdentifierAttr)
		if !ok {
			it.idErr = fmt.Errorf("identifier attribute %s: %w", sel.IdentifierAttr, crawler.ErrElementNotFound)
		}
		it.identifier = strings.TrimSpace(value)
	default:
		it.identifier = strings.TrimSpace(idNode.Text())
	}

	for name, fieldSel := range sel.Fields {
		node := e.DOM
		if fieldSel != "" {
			node = e.DOM.Find(fieldSel).First()
		}
		if node.Length() == 0 {
			continue
		}
		it.fields[name] = text(node)
	}
	return it
}

func text(node *goquery.Selection) string {
	return strings.Join(strings.Fields(node.Text()), " ")
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err != nil {
			return classify(err)
		}
		return nil
	}
}

// classify maps transport failures onto the page source taxonomy.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", crawler.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", crawler.ErrSessionLost, err)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

type session struct {
	items  []crawler.ItemHandle
	closed atomic.Bool
}

func (s *session) Items(ctx context.Context) ([]crawler.ItemHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, fmt.Errorf("items after close: %w", crawler.ErrSessionLost)
	}
	return s.items, nil
}

func (s *session) Close() error {
	s.closed.Store(true)
	return nil
}

type item struct {
	identifier string
	idErr      error
	fields     map[string]string
}

func (i *item) Identifier(context.Context) (string, error) {
	if i.idErr != nil {
		return "", i.idErr
	}
	return i.identifier, nil
}

func (i *item) Field(_ context.Context, name string) (string, error) {
	value, ok := i.fields[name]
	if !ok {
		return "", fmt.Errorf("field %s: %w", name, crawler.ErrElementNotFound)
	}
	return value, nil
}
