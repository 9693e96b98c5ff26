// Package headless renders script-driven pages with a headless browser.
package headless

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

// DefaultExpandXPath matches "read more" style buttons.
const DefaultExpandXPath = `//button[contains(., 'Read More')]`

const (
	defaultNavTimeout     = 45 * time.Second
	defaultScrollAttempts = 3
	defaultScrollPause    = 2 * time.Second
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ScrollAttempts    int
	ScrollPause       time.Duration
	ExpandXPath       string
	DomainQPS         float64
}

// Fetcher renders pages in a fresh browser session per call.
type Fetcher struct {
	cfg            Config
	limiter        chan struct{}
	allocator      context.Context
	allocCancel    context.CancelFunc
	domainLimiters sync.Map
	logger         *zap.Logger
	open           func(ctx context.Context) (session, context.CancelFunc)
}

// NewChromedp creates a headless fetcher backed by chromedp. Chrome itself is
// only launched when a page is rendered.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.ScrollAttempts < 0 {
		return nil, fmt.Errorf("scroll attempts must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = defaultScrollPause
	}
	if strings.TrimSpace(cfg.ExpandXPath) == "" {
		cfg.ExpandXPath = DefaultExpandXPath
	}
	if logger == nil {
		logger = zap.NewNop()
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

	f := &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
	f.open = f.openChrome
	return f, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch loads url in a new browser session, expands and scrolls the page, and
// returns the rendered DOM. The session is torn down before Fetch returns.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (harvest.Page, error) {
	if err := f.acquire(ctx); err != nil {
		return harvest.Page{}, err
	}
	defer f.release()

	if err := f.waitDomainBudget(ctx, rawURL); err != nil {
		return harvest.Page{}, fmt.Errorf("render rate limit: %w", err)
	}

	s, closeSession := f.open(ctx)
	defer closeSession()

	start := time.Now()
	html, err := f.render(s, rawURL)
	if err != nil {
		return harvest.Page{}, fmt.Errorf("render %s: %w: %w", rawURL, harvest.ErrRender, err)
	}
	return harvest.Page{
		URL:        rawURL,
		StatusCode: 200,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}, nil
}

func (f *Fetcher) render(s session, rawURL string) (string, error) {
	pause := f.cfg.ScrollPause
	if err := s.Navigate(rawURL); err != nil {
		return "", err
	}
	if err := s.Sleep(pause); err != nil {
		return "", err
	}

	f.expand(s, pause)

	if err := f.scroll(s, pause); err != nil {
		return "", err
	}
	return s.OuterHTML()
}

// expand clicks every control matching the expand XPath. Missing controls or
// script failures are not errors.
func (f *Fetcher) expand(s session, pause time.Duration) {
	var clicked int
	if err := s.Evaluate(expandScript(f.cfg.ExpandXPath), &clicked); err != nil {
		f.logger.Debug("expand controls unavailable", zap.Error(err))
		return
	}
	if clicked == 0 {
		f.logger.Debug("no expand controls found")
		return
	}
	f.logger.Debug("expanded content", zap.Int("clicked", clicked))
	if err := s.Sleep(pause); err != nil {
		f.logger.Debug("pause after expand interrupted", zap.Error(err))
	}
}

// scroll runs up to ScrollAttempts scroll-and-wait cycles, stopping once the
// document height stops growing.
func (f *Fetcher) scroll(s session, pause time.Duration) error {
	var last float64
	if err := s.Evaluate(heightScript, &last); err != nil {
		return fmt.Errorf("read scroll height: %w", err)
	}
	for i := 0; i < f.cfg.ScrollAttempts; i++ {
		if err := s.Evaluate(scrollScript, nil); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		if err := s.Sleep(pause); err != nil {
			return err
		}
		var height float64
		if err := s.Evaluate(heightScript, &height); err != nil {
			return fmt.Errorf("read scroll height: %w", err)
		}
		if height == last {
			return nil
		}
		last = height
	}
	return nil
}

func (f *Fetcher) openChrome(ctx context.Context) (session, context.CancelFunc) {
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	taskCtx, taskCancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	stop := context.AfterFunc(ctx, taskCancel)
	return &chromeSession{ctx: taskCtx, userAgent: f.cfg.UserAgent}, func() {
		stop()
		taskCancel()
		tabCancel()
	}
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) waitDomainBudget(ctx context.Context, rawURL string) error {
	if f.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := f.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(f.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

const (
	heightScript = `document.body ? document.body.scrollHeight : 0`
	scrollScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`
)

func expandScript(xpath string) string {
	quoted := strings.ReplaceAll(xpath, "`", "\\`")
	return fmt.Sprintf("(() => {"+
		"const found = document.evaluate(`%s`, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);"+
		"let clicked = 0;"+
		"for (let i = 0; i < found.snapshotLength; i++) {"+
		"const el = found.snapshotItem(i);"+
		"if (el && typeof el.click === 'function') { el.click(); clicked++; }"+
		"}"+
		"return clicked;"+
		"})()", quoted)
}

// session is the subset of browser control the render loop needs.
type session interface {
	Navigate(url string) error
	Evaluate(expr string, out any) error
	Sleep(d time.Duration) error
	OuterHTML() (string, error)
}

type chromeSession struct {
	ctx       context.Context
	userAgent string
}

func (c *chromeSession) Navigate(rawURL string) error {
	actions := []chromedp.Action{}
	if c.userAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(c.userAgent))
	}
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := chromedp.Run(c.ctx, actions...); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

func (c *chromeSession) Evaluate(expr string, out any) error {
	if err := chromedp.Run(c.ctx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (c *chromeSession) Sleep(d time.Duration) error {
	if err := chromedp.Run(c.ctx, chromedp.Sleep(d)); err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	return nil
}

func (c *chromeSession) OuterHTML() (string, error) {
	var html string
	if err := chromedp.Run(c.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}
