// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/pdiddy/ace/internal/httputil"
	"github.com/pdiddy/ace/internal/logging"
)

// Browser opens pages in a scripted browser.
type Browser interface {
	Open(ctx context.Context, url string) (Page, error)
}

// Page is an open browser tab.
type Page interface {
	URL() (string, error)
	HTML() (string, error)
	Navigate(url string) error
	WaitFor(selector string, timeout time.Duration) error

	// ClickAll clicks every element matching selector, pausing between
	// clicks.
	ClickAll(selector string, pause time.Duration) error
	Close() error
}

// RodBrowser drives Chrome through the DevTools protocol. Chrome is launched
// on first use and shut down by Close.
type RodBrowser struct {
	headless bool

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodBrowser returns a browser that launches Chrome lazily.
func NewRodBrowser(headless bool) *RodBrowser {
	return &RodBrowser{headless: headless}
}

func (b *RodBrowser) start(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	logging.FromContext(ctx).Info("launching browser", "headless", b.headless)
	l := launcher.New().Headless(b.headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching chrome: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}
	b.launcher = l
	b.browser = browser
	return browser, nil
}

// Open loads url in a new tab and waits for the load event.
func (b *RodBrowser) Open(ctx context.Context, url string) (Page, error) {
	browser, err := b.start(ctx)
	if err != nil {
		return nil, err
	}
	p, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		p.Close()
		return nil, fmt.Errorf("loading %s: %w", url, err)
	}
	return &rodPage{ctx: ctx, page: p}, nil
}

// Close shuts Chrome down. The browser may be reopened afterwards.
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.launcher.Cleanup()
	b.browser, b.launcher = nil, nil
	return err
}

type rodPage struct {
	ctx  context.Context
	page *rod.Page
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) HTML() (string, error) {
	return p.page.HTML()
}

func (p *rodPage) Navigate(url string) error {
	if err := p.page.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return p.page.WaitLoad()
}

func (p *rodPage) WaitFor(selector string, timeout time.Duration) error {
	_, err := p.page.Timeout(timeout).Element(selector)
	return err
}

func (p *rodPage) ClickAll(selector string, pause time.Duration) error {
	elements, err := p.page.Elements(selector)
	if err != nil {
		return err
	}
	for _, el := range elements {
		if err := el.ScrollIntoView(); err != nil {
			return err
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		if err := httputil.Wait(p.ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
