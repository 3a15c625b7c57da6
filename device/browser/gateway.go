// Package browser implements device.Gateway on an emulated mobile browser,
// so a task can be rehearsed against a web-mail client without a phone.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/playwright-community/playwright-go"

	"mobilepilot/device"
)

// Settings configures the emulated device.
type Settings struct {
	// BrowserType is chromium, firefox or webkit.
	BrowserType string
	Headless    bool
	// Endpoint connects to a remote browser server instead of launching one.
	Endpoint string
	// Apps maps bundle ids to the URLs that stand in for them.
	Apps     map[string]string
	Viewport device.Size
	Scale    float64
}

// Gateway drives a single playwright page.
type Gateway struct {
	settings Settings
	logger   hclog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	current string
}

var _ device.Gateway = (*Gateway)(nil)

func New(settings Settings, logger hclog.Logger) *Gateway {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if settings.Viewport.Width <= 0 || settings.Viewport.Height <= 0 {
		settings.Viewport = device.DefaultWindowSize
	}
	if settings.Scale <= 0 {
		settings.Scale = 3
	}
	return &Gateway{settings: settings, logger: logger}
}

// ensurePage starts playwright and opens the page on first use.
func (g *Gateway) ensurePage() (playwright.Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.page != nil {
		return g.page, nil
	}

	if g.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("could not start playwright: %w", err)
		}
		g.pw = pw
	}

	var (
		browser playwright.Browser
		err     error
	)
	if g.settings.Endpoint != "" {
		browser, err = g.pw.Chromium.Connect(g.settings.Endpoint)
	} else {
		launchOpts := playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(g.settings.Headless),
		}
		switch g.settings.BrowserType {
		case "firefox":
			browser, err = g.pw.Firefox.Launch(launchOpts)
		case "webkit":
			browser, err = g.pw.WebKit.Launch(launchOpts)
		default:
			browser, err = g.pw.Chromium.Launch(launchOpts)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  g.settings.Viewport.Width,
			Height: g.settings.Viewport.Height,
		},
		DeviceScaleFactor: playwright.Float(g.settings.Scale),
		IsMobile:          playwright.Bool(g.settings.BrowserType != "firefox"),
		HasTouch:          playwright.Bool(true),
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	g.browser = browser
	g.page = page
	g.logger.Debug("browser gateway ready", "browser", g.settings.BrowserType, "headless", g.settings.Headless)
	return page, nil
}

func (g *Gateway) Probe(ctx context.Context) (*device.Status, error) {
	page, err := g.ensurePage()
	if err != nil {
		return nil, err
	}
	return &device.Status{Ready: true, Message: "browser page at " + page.URL()}, nil
}

func (g *Gateway) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := g.ensurePage()
	if err != nil {
		return nil, err
	}
	return page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
}

func (g *Gateway) Source(ctx context.Context) (string, error) {
	page, err := g.ensurePage()
	if err != nil {
		return "", err
	}
	result, err := page.Evaluate(hierarchyScript)
	if err != nil {
		return "", fmt.Errorf("evaluate hierarchy: %w", err)
	}
	src, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("evaluate hierarchy: unexpected result %T", result)
	}
	return src, nil
}

// ActiveApp maps the page's URL back to the bundle id it stands in for.
func (g *Gateway) ActiveApp(ctx context.Context) (string, error) {
	page, err := g.ensurePage()
	if err != nil {
		return "", err
	}
	return g.bundleFor(page.URL()), nil
}

func (g *Gateway) bundleFor(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "com.apple.springboard"
	}
	for bundle, appURL := range g.settings.Apps {
		au, err := url.Parse(appURL)
		if err == nil && strings.EqualFold(au.Host, u.Host) {
			return bundle
		}
	}
	return u.Host
}

func (g *Gateway) WindowSize(ctx context.Context) (device.Size, error) {
	page, err := g.ensurePage()
	if err != nil {
		return g.settings.Viewport, err
	}
	if vp := page.ViewportSize(); vp != nil {
		return device.Size{Width: vp.Width, Height: vp.Height}, nil
	}
	return g.settings.Viewport, nil
}

func (g *Gateway) Tap(ctx context.Context, p device.Point) error {
	page, err := g.ensurePage()
	if err != nil {
		return err
	}
	return page.Mouse().Click(float64(p.X), float64(p.Y))
}

func (g *Gateway) LongPress(ctx context.Context, p device.Point, d time.Duration) error {
	page, err := g.ensurePage()
	if err != nil {
		return err
	}
	return page.Mouse().Click(float64(p.X), float64(p.Y), playwright.MouseClickOptions{
		Delay: playwright.Float(float64(d.Milliseconds())),
	})
}

func (g *Gateway) Swipe(ctx context.Context, from, to device.Point, d time.Duration) error {
	page, err := g.ensurePage()
	if err != nil {
		return err
	}
	mouse := page.Mouse()
	if err := mouse.Move(float64(from.X), float64(from.Y)); err != nil {
		return err
	}
	if err := mouse.Down(); err != nil {
		return err
	}
	steps := max(int(d/(16*time.Millisecond)), 5)
	if err := mouse.Move(float64(to.X), float64(to.Y), playwright.MouseMoveOptions{Steps: playwright.Int(steps)}); err != nil {
		return err
	}
	return mouse.Up()
}

func (g *Gateway) TypeText(ctx context.Context, text string) error {
	page, err := g.ensurePage()
	if err != nil {
		return err
	}
	return page.Keyboard().Type(text)
}

// Back uses history navigation; edge swipes mean nothing to a web page.
func (g *Gateway) Back(ctx context.Context) error {
	page, err := g.ensurePage()
	if err != nil {
		return err
	}
	_, err = page.GoBack()
	return err
}

func (g *Gateway) Home(ctx context.Context) error {
	page, err := g.ensurePage()
	if err != nil {
		return err
	}
	_, err = page.Goto("about:blank")
	return err
}

func (g *Gateway) Launch(ctx context.Context, bundleID string) error {
	target, ok := g.settings.Apps[bundleID]
	if !ok {
		return fmt.Errorf("no URL configured for app %s", bundleID)
	}
	page, err := g.ensurePage()
	if err != nil {
		return err
	}
	_, err = page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.page != nil {
		g.page.Close()
		g.page = nil
	}
	if g.browser != nil {
		g.browser.Close()
		g.browser = nil
	}
	if g.pw != nil {
		err := g.pw.Stop()
		g.pw = nil
		return err
	}
	return nil
}
