package signflow

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeBrowser opens chromedp-backed sessions. One session is one headless
// browser process with a single page, matching the one-page-per-job model.
type ChromeBrowser struct {
	// ExecPath overrides the browser binary; empty lets chromedp find one.
	ExecPath string
	Headless bool
}

type chromeSession struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

func (b *ChromeBrowser) NewSession(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}
	if !b.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	s := &chromeSession{
		ctx:     tabCtx,
		cancels: []context.CancelFunc{cancelTab, cancelAlloc},
	}

	// Forms don't need images or fonts; blocking them makes pages settle
	// faster.
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(1280, 1280),
		network.Enable(),
		network.SetBlockedURLs([]string{
			"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
			"*.woff", "*.woff2", "*.ttf", "*.otf",
		}),
	)
	if err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	return s, nil
}

// run executes chromedp actions on the session's tab. The caller's context
// is only consulted up front; a started browser action runs to its own end.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(s.ctx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	// Document readiness is the closest chromedp equivalent of waiting for
	// the network to go idle; the settle pause after navigation covers the
	// stragglers.
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *chromeSession) Click(ctx context.Context, loc Locator) error {
	if loc.Index == nil {
		return s.run(ctx, chromedp.Click(loc.Selector, chromedp.ByQuery))
	}
	return s.run(ctx, chromedp.Evaluate(indexedJS(loc, "el.click()"), nil))
}

func (s *chromeSession) Type(ctx context.Context, loc Locator, text string, delay time.Duration) error {
	focus := chromedp.Focus(loc.Selector, chromedp.ByQuery)
	if loc.Index != nil {
		focus = chromedp.Evaluate(indexedJS(loc, "el.focus()"), nil)
	}
	if err := s.run(ctx, focus); err != nil {
		return fmt.Errorf("focus %s: %w", loc, err)
	}
	for _, r := range text {
		if err := s.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

func (s *chromeSession) Checked(ctx context.Context, loc Locator) (bool, error) {
	js := fmt.Sprintf(`document.querySelector(%q).checked === true`, loc.Selector)
	if loc.Index != nil {
		js = indexedJS(loc, "return el.checked === true")
	}
	var checked bool
	err := s.run(ctx, chromedp.Evaluate(js, &checked))
	return checked, err
}

func (s *chromeSession) SelectValue(ctx context.Context, loc Locator, value string) error {
	stmt := fmt.Sprintf(`el.value = %q; el.dispatchEvent(new Event('change', { bubbles: true }))`, value)
	js := uniqueJS(loc, stmt)
	if loc.Index != nil {
		js = indexedJS(loc, stmt)
	}
	return s.run(ctx, chromedp.Evaluate(js, nil))
}

func (s *chromeSession) ClickRadio(ctx context.Context, loc Locator, value string) error {
	if loc.Index == nil {
		sel := fmt.Sprintf(`%s[value=%q]`, loc.Selector, value)
		return s.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
	}
	js := fmt.Sprintf(`(() => {
		const radios = document.querySelectorAll(%q);
		if (%d >= radios.length) throw new Error('index %d out of bounds for radio selector ' + %q);
		let i = %d;
		while (i < radios.length && radios[i].value !== %q) i++;
		if (i >= radios.length) throw new Error('no radio with value ' + %q + ' at or after index %d');
		radios[i].click();
	})()`,
		loc.Selector, *loc.Index, *loc.Index, loc.Selector, *loc.Index, value, value, *loc.Index)
	return s.run(ctx, chromedp.Evaluate(js, nil))
}

func (s *chromeSession) ScrollTo(ctx context.Context, loc Locator) error {
	stmt := `el.scrollIntoView({ behavior: 'smooth' })`
	js := uniqueJS(loc, stmt)
	if loc.Index != nil {
		js = indexedJS(loc, stmt)
	}
	return s.run(ctx, chromedp.Evaluate(js, nil))
}

func (s *chromeSession) Exists(ctx context.Context, loc Locator) (bool, error) {
	js := fmt.Sprintf(`document.querySelector(%q) !== null`, loc.Selector)
	if loc.Index != nil {
		js = fmt.Sprintf(`document.querySelectorAll(%q).length > %d`, loc.Selector, *loc.Index)
	}
	var ok bool
	err := s.run(ctx, chromedp.Evaluate(js, &ok))
	return ok, err
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) Close(ctx context.Context) error {
	err := chromedp.Cancel(s.ctx)
	for _, cancel := range s.cancels {
		cancel()
	}
	return err
}

// uniqueJS wraps stmt in an IIFE with `el` bound to the selector's unique
// match, throwing when nothing matches.
func uniqueJS(loc Locator, stmt string) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) throw new Error('no element matches selector ' + %q);
		%s;
	})()`, loc.Selector, loc.Selector, stmt)
}

// indexedJS wraps stmt in an IIFE with `el` bound to the Nth match of the
// selector, throwing when the index is out of bounds.
func indexedJS(loc Locator, stmt string) string {
	return fmt.Sprintf(`(() => {
		const els = document.querySelectorAll(%q);
		if (%d >= els.length) throw new Error('index %d out of bounds for selector ' + %q + ' (' + els.length + ')');
		const el = els[%d];
		%s;
	})()`, loc.Selector, *loc.Index, *loc.Index, loc.Selector, *loc.Index, stmt)
}
