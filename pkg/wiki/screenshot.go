package wiki

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

const (
	// screenshotTimeout bounds the whole render; page-load and element
	// waits below have their own shorter sub-timeouts.
	screenshotTimeout = 60 * time.Second
	pageLoadTimeout   = 45 * time.Second
	elementTimeout    = 20 * time.Second
	settleDelay       = time.Second
)

// browserHandle is the slice of *rod.Browser the screenshot path needs,
// separated so tests can run without a real Chrome.
type browserHandle interface {
	Page(opts proto.TargetCreateTarget) (*rod.Page, error)
	Close() error
}

// Screenshot renders the entry page's infobox to a PNG under the
// screenshot directory and returns the file path. Pages are emulated as
// a mobile device: the wiki's mobile layout keeps the infobox compact.
func (c *Client) Screenshot(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()

	c.log.Info("Rendering infobox screenshot", "url", pageURL)

	browser, err := c.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.Emulate(devices.IPhoneX); err != nil {
		return "", fmt.Errorf("emulate device: %w", err)
	}

	if err := page.Timeout(pageLoadTimeout).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.Timeout(pageLoadTimeout).WaitLoad(); err != nil {
		// Heavy pages routinely miss the load event; the infobox wait
		// below decides whether the render is usable.
		c.log.Warn("Page load wait ended early", "url", pageURL, "error", err)
	}
	time.Sleep(settleDelay)

	element, err := page.Timeout(elementTimeout).Element("#infoboxborder")
	if err != nil {
		return "", fmt.Errorf("infobox element not found: %w", err)
	}
	if err := element.WaitVisible(); err != nil {
		return "", fmt.Errorf("infobox never became visible: %w", err)
	}

	image, err := element.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}

	if err := os.MkdirAll(c.shotDir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	path := filepath.Join(c.shotDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	c.log.Info("Screenshot saved", "url", pageURL, "path", absPath)
	return absPath, nil
}

// ensureBrowser lazily launches one headless browser and reuses it for
// later screenshots.
func (c *Client) ensureBrowser() (browserHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return c.browser, nil
	}

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	c.browser = browser
	return c.browser, nil
}

// Shutdown closes the screenshot browser if one was started.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser == nil {
		return nil
	}

	err := c.browser.Close()
	c.browser = nil
	return err
}
