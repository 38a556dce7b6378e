// Package browser owns the Playwright lifecycle for a journey run: one
// Chromium instance, one context and one page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// DefaultTimeout matches the step timeout the journeys were written against.
const DefaultTimeout = 30 * time.Second

// Options configures Launch.
type Options struct {
	Headless       bool
	DefaultTimeout time.Duration
	// Viewport is optional; zero keeps the library default.
	Viewport Viewport
}

// Viewport is a page size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Session is a launched browser with a single page.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
}

// Launch starts Playwright and Chromium and opens a page. A missing driver or
// browser install is reported as errs.Unavailable.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Canceled, "launch canceled", err)
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	logger := obs.From(ctx)

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "playwright not available (run `go run github.com/playwright-community/playwright-go/cmd/playwright install chromium`)", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "could not launch chromium", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	bctx, err := b.NewContext(ctxOpts)
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Internal, "could not create browser context", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Internal, "could not create page", err)
	}
	page.SetDefaultTimeout(millis(opts.DefaultTimeout))

	logger.Debug("browser launched", "headless", opts.Headless, "default_timeout_ms", opts.DefaultTimeout.Milliseconds())
	return &Session{pw: pw, browser: b, context: bctx, page: page, timeout: opts.DefaultTimeout}, nil
}

// Close tears down the page, context, browser and driver in reverse order.
// It is safe to call more than once.
func (s *Session) Close() error {
	if s == nil || s.pw == nil {
		return nil
	}
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(s.page.Close())
	keep(s.context.Close())
	keep(s.browser.Close())
	keep(s.pw.Stop())
	s.pw = nil
	if first != nil {
		return errs.Wrap(errs.Internal, "browser shutdown", first)
	}
	return nil
}

// Page exposes the underlying page for callers that need the full API.
func (s *Session) Page() playwright.Page {
	return s.page
}

// Goto navigates and waits for the load event.
func (s *Session) Goto(ctx context.Context, url string) error {
	if err := live(ctx); err != nil {
		return err
	}
	if _, err := s.page.Goto(url); err != nil {
		return classify(err, "goto "+url)
	}
	return nil
}

// ClickText clicks the single element whose text contains text.
func (s *Session) ClickText(ctx context.Context, text string) error {
	if err := live(ctx); err != nil {
		return err
	}
	return classify(s.page.GetByText(text).Click(), fmt.Sprintf("click text %q", text))
}

// ClickFirstText clicks the first element whose text contains text.
func (s *Session) ClickFirstText(ctx context.Context, text string) error {
	if err := live(ctx); err != nil {
		return err
	}
	return classify(s.page.GetByText(text).First().Click(), fmt.Sprintf("click first text %q", text))
}

// ClickButton clicks the button with the given accessible name.
func (s *Session) ClickButton(ctx context.Context, name string) error {
	if err := live(ctx); err != nil {
		return err
	}
	btn := s.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: name})
	return classify(btn.Click(), fmt.Sprintf("click button %q", name))
}

// FillLabel fills the form control labelled label.
func (s *Session) FillLabel(ctx context.Context, label, value string) error {
	if err := live(ctx); err != nil {
		return err
	}
	return classify(s.page.GetByLabel(label).Fill(value), fmt.Sprintf("fill label %q", label))
}

// FillPlaceholder fills the input with the given placeholder.
func (s *Session) FillPlaceholder(ctx context.Context, placeholder, value string) error {
	if err := live(ctx); err != nil {
		return err
	}
	return classify(s.page.GetByPlaceholder(placeholder).Fill(value), fmt.Sprintf("fill placeholder %q", placeholder))
}

// ExpectText waits until the element containing text is visible.
func (s *Session) ExpectText(ctx context.Context, text string, timeout time.Duration) error {
	if err := live(ctx); err != nil {
		return err
	}
	return s.waitVisible(s.page.GetByText(text), timeout, fmt.Sprintf("expect text %q", text))
}

// ExpectSelector waits until the element matching a CSS selector is visible.
func (s *Session) ExpectSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := live(ctx); err != nil {
		return err
	}
	return s.waitVisible(s.page.Locator(selector), timeout, fmt.Sprintf("expect %s", selector))
}

// ExpectNotEmpty waits until the element matching selector has text.
func (s *Session) ExpectNotEmpty(ctx context.Context, selector string, timeout time.Duration) error {
	if err := live(ctx); err != nil {
		return err
	}
	assertions := playwright.NewPlaywrightAssertions(millis(s.effective(timeout)))
	if err := assertions.Locator(s.page.Locator(selector)).Not().ToBeEmpty(); err != nil {
		return errs.Wrap(errs.Timeout, fmt.Sprintf("expect %s not empty", selector), err)
	}
	return nil
}

// InnerText returns the rendered text of the element matching selector.
func (s *Session) InnerText(ctx context.Context, selector string) (string, error) {
	if err := live(ctx); err != nil {
		return "", err
	}
	text, err := s.page.Locator(selector).InnerText()
	if err != nil {
		return "", classify(err, "inner text "+selector)
	}
	return text, nil
}

// ClearSession drops all cookies and the current origin's localStorage.
func (s *Session) ClearSession(ctx context.Context) error {
	if err := live(ctx); err != nil {
		return err
	}
	if err := s.context.ClearCookies(); err != nil {
		return classify(err, "clear cookies")
	}
	if _, err := s.page.Evaluate("localStorage.clear()"); err != nil {
		return classify(err, "clear localStorage")
	}
	return nil
}

// Screenshot captures the viewport, or the whole page when fullPage is set.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	png, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return nil, classify(err, "screenshot")
	}
	return png, nil
}

func (s *Session) waitVisible(l playwright.Locator, timeout time.Duration, what string) error {
	err := l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(millis(s.effective(timeout))),
	})
	return classify(err, what)
}

func (s *Session) effective(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return s.timeout
}

func live(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Canceled, "browser action canceled", err)
	}
	return nil
}

// classify maps Playwright failures onto error codes. Timeouts become
// errs.Timeout; everything else is errs.Internal.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return errs.Wrap(errs.Timeout, what+": timed out", err)
	}
	return errs.Wrap(errs.Internal, what, err)
}

func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
