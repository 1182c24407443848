// Package chromedpsource implements crawler.PageSource with a shared headless Chrome.
//
// One allocator (browser process) serves every session; each Open creates a tab.
// Item handles are DOM node references that die with the tab or a re-render, which
// surfaces as crawler.ErrStaleHandle.
package chromedpsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Selectors locate candidates and their fields on a results page.
type Selectors struct {
	// Item matches every candidate element on the page.
	Item string
	// Ready is awaited after navigation; defaults to "body".
	Ready string
	// Identifier is relative to the item; empty reads IdentifierAttr from the item itself.
	Identifier     string
	IdentifierAttr string
	// Fields maps field names to selectors relative to the item.
	Fields map[string]string
}

// Cookie is a session cookie injected before navigation.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Config controls the headless page source.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Headers           map[string]string
	Cookies           []Cookie
	Selectors         Selectors
}

// Source opens result pages in tabs of a shared browser.
type Source struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

var _ crawler.PageSource = (*Source)(nil)

// New starts the browser allocator. The browser itself launches lazily on first Open.
func New(cfg Config) (*Source, error) {
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Source{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func normalize(cfg Config) (Config, error) {
	if cfg.MaxParallel < 0 {
		return cfg, fmt.Errorf("max parallel must be >= 0")
	}
	if strings.TrimSpace(cfg.Selectors.Item) == "" {
		return cfg, fmt.Errorf("item selector is required")
	}
	if cfg.Selectors.Identifier == "" && cfg.Selectors.IdentifierAttr == "" {
		return cfg, fmt.Errorf("identifier selector or attribute is required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.Selectors.Ready == "" {
		cfg.Selectors.Ready = "body"
	}
	return cfg, nil
}

// Close shuts the browser down.
func (s *Source) Close() {
	s.allocCancel()
}

// Open navigates a fresh tab to url and waits for the page to settle.
func (s *Source) Open(ctx context.Context, url string) (crawler.Session, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(s.allocator)
	stop := context.AfterFunc(ctx, tabCancel)

	// The first Run allocates the tab and must not carry the navigation deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		stop()
		tabCancel()
		s.release()
		return nil, fmt.Errorf("open tab: %w", mapError(ctx, err))
	}

	navCtx, navCancel := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer navCancel()

	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(s.cfg.Selectors.Ready, chromedp.ByQuery),
	}
	if s.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.SettleDelay))
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		stop()
		tabCancel()
		s.release()
		return nil, fmt.Errorf("open %s: %w", url, mapError(navCtx, err))
	}

	return &session{
		source: s,
		ctx:    tabCtx,
		cancel: tabCancel,
		stop:   stop,
	}, nil
}

func (s *Source) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(s.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		for _, c := range s.cfg.Cookies {
			if err := network.SetCookie(c.Name, c.Value).WithDomain(c.Domain).WithSecure(true).Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (s *Source) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (s *Source) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

func toNetworkHeaders(h map[string]string) network.Headers {
	headers := network.Headers{}
	for key, value := range h {
		headers[key] = value
	}
	return headers
}

// mapError translates chromedp and CDP failures into the page source taxonomy.
func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", crawler.ErrTimeout, err)
	case errors.Is(err, chromedp.ErrChannelClosed),
		errors.Is(err, chromedp.ErrInvalidTarget),
		errors.Is(err, chromedp.ErrInvalidContext):
		return fmt.Errorf("%w: %w", crawler.ErrSessionLost, err)
	case strings.Contains(err.Error(), "Could not find node"),
		strings.Contains(err.Error(), "No node with given id"):
		return fmt.Errorf("%w: %w", crawler.ErrStaleHandle, err)
	case errors.Is(err, context.Canceled):
		if ctx != nil && ctx.Err() == nil {
			// The tab died underneath a live caller.
			return fmt.Errorf("%w: %w", crawler.ErrSessionLost, err)
		}
		return err
	default:
		return err
	}
}

type session struct {
	source *Source
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	once   sync.Once
}

// Items returns a handle per node matching the item selector. Zero matches is not an error.
func (s *session) Items(ctx context.Context) ([]crawler.ItemHandle, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(s.source.cfg.Selectors.Item, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	handles := make([]crawler.ItemHandle, 0, len(nodes))
	for _, node := range nodes {
		handles = append(handles, &item{session: s, node: node})
	}
	return handles, nil
}

func (s *session) Close() error {
	s.once.Do(func() {
		s.stop()
		s.cancel()
		s.source.release()
	})
	return nil
}

// run executes actions in the tab, bounded by the caller's context as well.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return mapError(nil, fmt.Errorf("%w: %w", ctxErr, err))
		}
		return mapError(s.ctx, err)
	}
	return nil
}

type item struct {
	session *session
	node    *cdp.Node
}

func (i *item) Identifier(ctx context.Context) (string, error) {
	sel := i.session.source.cfg.Selectors
	target := i.node
	if sel.Identifier != "" {
		child, err := i.child(ctx, sel.Identifier)
		if err != nil {
			return "", fmt.Errorf("identifier: %w", err)
		}
		target = child
	}
	if sel.IdentifierAttr != "" {
		var (
			value string
			ok    bool
		)
		err := i.session.run(ctx, chromedp.AttributeValue([]cdp.NodeID{target.NodeID}, sel.IdentifierAttr, &value, &ok, chromedp.ByNodeID))
		if err != nil {
			return "", fmt.Errorf("identifier: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("identifier attribute %s: %w", sel.IdentifierAttr, crawler.ErrElementNotFound)
		}
		return strings.TrimSpace(value), nil
	}
	return i.text(ctx, target)
}

func (i *item) Field(ctx context.Context, name string) (string, error) {
	selector, ok := i.session.source.cfg.Selectors.Fields[name]
	if !ok {
		return "", fmt.Errorf("field %s has no selector: %w", name, crawler.ErrElementNotFound)
	}
	target := i.node
	if selector != "" {
		child, err := i.child(ctx, selector)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
		target = child
	}
	value, err := i.text(ctx, target)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", name, err)
	}
	return value, nil
}

func (i *item) child(ctx context.Context, selector string) (*cdp.Node, error) {
	var nodes []*cdp.Node
	err := i.session.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(i.node)))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", selector, crawler.ErrElementNotFound)
	}
	return nodes[0], nil
}

func (i *item) text(ctx context.Context, node *cdp.Node) (string, error) {
	var value string
	if err := i.session.run(ctx, chromedp.Text([]cdp.NodeID{node.NodeID}, &value, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}
