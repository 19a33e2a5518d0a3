// Package browser drives a stealth Chrome session through Rod: launch or
// connect, open one page, and expose it as a surface.Session.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/slotwatch/internal/scrape"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

// Config configures a session.
type Config struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	Remote string

	// Bin overrides the Chrome binary. Empty lets the launcher find or
	// download one.
	Bin string

	// Headful runs a visible browser on XvfbDisplay. Some booking sites
	// serve a different flow to headless Chrome.
	Headful     bool
	XvfbDisplay string

	NoSandbox bool

	WindowWidth  int
	WindowHeight int
	UserAgent    string

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// NavTimeout bounds a navigation. Default: 45s.
	NavTimeout time.Duration

	// ActionTimeout bounds a single click or hover. Default: 5s.
	ActionTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is one browser with one page. It implements surface.Session.
type Session struct {
	cfg     Config
	browser *rod.Browser
	page    *rod.Page
	router  *rod.HijackRouter
	lnch    *launcher.Launcher

	xvfb       *exec.Cmd
	xvfbExited chan error

	closeOnce sync.Once
}

var _ surface.Session = (*Session)(nil)

// Launch starts Chrome (or connects to Remote) and opens a stealth page.
func Launch(ctx context.Context, cfg Config) (*Session, error) {
	cfg.defaults()
	log := cfg.Logger
	s := &Session{cfg: cfg}

	if cfg.Headful && cfg.Remote == "" {
		if err := s.startXvfb(ctx); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if cfg.Remote != "" {
		wsURL = cfg.Remote
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.Headful {
			l = l.Headless(false).Env("DISPLAY="+cfg.XvfbDisplay)
		} else {
			l = l.Headless(true)
		}
		l = l.NoSandbox(cfg.NoSandbox).
			Set("disable-blink-features", "AutomationControlled").
			Set("window-size", strconv.Itoa(cfg.WindowWidth)+","+strconv.Itoa(cfg.WindowHeight))

		u, err := l.Launch()
		if err != nil {
			s.stopXvfb()
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headful", cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	// stealth.Page also masks navigator.webdriver.
	page, err := stealth.Page(b)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	s.page = page

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.WindowWidth,
		Height:            cfg.WindowHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		log.Warn("browser: set viewport failed", "error", err)
	}
	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			log.Warn("browser: set user agent failed", "error", err)
		}
	}
	if len(cfg.ResourceBlocking) > 0 {
		s.router = applyResourceBlocking(page, cfg.ResourceBlocking)
	}
	return s, nil
}

// Opener adapts Launch for the run orchestrator: every run gets a fresh
// browser.
func Opener(cfg Config) scrape.OpenerFunc {
	return func(ctx context.Context) (surface.Session, error) {
		return Launch(ctx, cfg)
	}
}

// Top is the page's main document. It follows navigations.
func (s *Session) Top() surface.Document {
	return &document{page: s.page, name: "top", timeout: s.cfg.ActionTimeout}
}

// Navigate loads url and waits for the load event. A load timeout is
// logged, not returned: single-page apps often keep loading.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	if err := s.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := s.page.Context(navCtx).WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot() ([]byte, error) {
	data, err := s.page.Timeout(s.cfg.NavTimeout).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// Close shuts down the page, Chrome and Xvfb.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			s.router.Stop()
		}
		if s.page != nil {
			s.page.Close()
		}
		if s.browser != nil {
			s.browser.Close()
		}
		if s.lnch != nil {
			s.lnch.Cleanup()
		}
		s.stopXvfb()
		s.cfg.Logger.Debug("browser: session closed")
	})
	return nil
}
