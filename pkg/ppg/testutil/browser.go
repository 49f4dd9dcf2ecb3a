// browser.go drives headless Chrome for end-to-end tests of the interop page.
package testutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig configures Chrome launch options.
type BrowserConfig struct {
	Headless bool          // Run in headless mode (default: true)
	Timeout  time.Duration // Default operation timeout (default: 30s)
}

// DefaultBrowserConfig returns defaults for E2E testing.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless: true,
		Timeout:  30 * time.Second,
	}
}

// BrowserClient wraps Rod with a Chrome configured for WebRTC data channels.
type BrowserClient struct {
	browser *rod.Browser
	page    *rod.Page
	timeout time.Duration
}

// NewBrowserClient launches Chrome. The sandbox and GPU are disabled for
// containers; real Bluetooth is never touched because the page's synthetic
// source is used instead.
func NewBrowserClient(cfg BrowserConfig) (*BrowserClient, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("enable-experimental-web-platform-features")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	return &BrowserClient{
		browser: browser,
		timeout: cfg.Timeout,
	}, nil
}

// Navigate opens a URL and returns the page.
func (c *BrowserClient) Navigate(url string) (*rod.Page, error) {
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	c.page = page

	if err := page.Timeout(c.timeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return page, nil
}

// Page returns the current page, or nil if none open.
func (c *BrowserClient) Page() *rod.Page {
	return c.page
}

// Eval executes JavaScript and returns the result.
func (c *BrowserClient) Eval(js string) (any, error) {
	if c.page == nil {
		return nil, errors.New("no page open, call Navigate first")
	}
	result, err := c.page.Eval(js)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	return result.Value.Val(), nil
}

// Click clicks the element matching selector.
func (c *BrowserClient) Click(selector string) error {
	if c.page == nil {
		return errors.New("no page open, call Navigate first")
	}
	el, err := c.page.Timeout(c.timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// WaitEval polls js until it returns true or the timeout expires.
func (c *BrowserClient) WaitEval(js string) error {
	if c.page == nil {
		return errors.New("no page open, call Navigate first")
	}
	deadline := time.Now().Add(c.timeout)
	for time.Now().Before(deadline) {
		v, err := c.Eval(js)
		if err != nil {
			return err
		}
		if ok, _ := v.(bool); ok {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timed out after %v waiting for %s", c.timeout, js)
}

// WaitStable waits for the page to be stable (no DOM changes).
func (c *BrowserClient) WaitStable() error {
	if c.page == nil {
		return errors.New("no page open")
	}
	return c.page.WaitStable(c.timeout)
}

// Close cleans up browser resources.
// Always call this (via defer) to prevent orphaned Chrome processes.
func (c *BrowserClient) Close() error {
	if c.browser != nil {
		return c.browser.Close()
	}
	return nil
}
