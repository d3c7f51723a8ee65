package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/harvest"
	"github.com/xaenox/engagebot/internal/models"
	"github.com/xaenox/engagebot/internal/scheduler"
)

type Config struct {
	BaseURL           string
	Bin               string
	Headless          bool
	NoSandbox         bool
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	ScrollSettle      time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://x.com"
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 20 * time.Second
	}
	if c.ScrollSettle <= 0 {
		c.ScrollSettle = 2 * time.Second
	}
	return c
}

// Connector launches one browser per account.
type Connector struct {
	cfg    Config
	logger *zap.Logger
}

func NewConnector(cfg Config, logger *zap.Logger) *Connector {
	return &Connector{cfg: cfg.withDefaults(), logger: logger}
}

func (c *Connector) Connect(ctx context.Context, p *models.AccountPolicy) (scheduler.Session, error) {
	l := launcher.New().Headless(c.cfg.Headless)
	if c.cfg.Bin != "" {
		l = l.Bin(c.cfg.Bin)
	}
	if c.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if p.Proxy != "" {
		l = l.Proxy(p.Proxy)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	s := &Session{
		cfg:      c.cfg,
		browser:  b,
		launcher: l,
		logger:   c.logger.With(zap.String("account_id", p.AccountID)),
	}

	if p.CookiesFile != "" {
		cookies, err := LoadCookies(p.CookiesFile, c.cfg.BaseURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := b.SetCookies(cookies); err != nil {
			s.Close()
			return nil, fmt.Errorf("set cookies: %w", err)
		}
		s.logger.Debug("Cookies applied", zap.Int("count", len(cookies)))
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page
	if err := s.navigate(ctx, c.cfg.BaseURL+"/home"); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

var _ scheduler.Session = (*Session)(nil)

// Session drives a single page. It is used by one account goroutine.
type Session struct {
	cfg      Config
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	logger   *zap.Logger
}

func (s *Session) navigate(ctx context.Context, target string) error {
	if err := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout).Navigate(target); err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}
	if err := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout).WaitLoad(); err != nil {
		s.logger.Warn("Page did not finish loading", zap.String("url", target), zap.Error(err))
	}
	return nil
}

func (s *Session) Profile(ctx context.Context, profileURL string) (harvest.Source, error) {
	if err := s.navigate(ctx, profileURL); err != nil {
		return nil, err
	}
	return s.source(ctx), nil
}

func (s *Session) Search(ctx context.Context, keyword string) (harvest.Source, error) {
	q := url.Values{"q": {keyword}, "src": {"typed_query"}, "f": {"live"}}
	if err := s.navigate(ctx, s.cfg.BaseURL+"/search?"+q.Encode()); err != nil {
		return nil, err
	}
	return s.source(ctx), nil
}

func (s *Session) source(ctx context.Context) *PageSource {
	// Search and profile timelines render cards after load.
	if _, err := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout).Element(selTweetArticle); err != nil {
		s.logger.Debug("No post cards rendered yet", zap.Error(err))
	}
	return &PageSource{page: s.page, settle: s.cfg.ScrollSettle, logger: s.logger}
}

func (s *Session) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
	}
	return err
}
