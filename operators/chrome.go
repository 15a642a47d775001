// Package operators connects longtake to real browsers.
//
// The chrome operator drives Chrome or Chromium over the DevTools protocol
// with chromedp. One Launcher owns the browser process; every scenario gets a
// tab in its own browser context, so cookies and storage never leak between
// concurrent takes.
package operators

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/teranos/longtake"
)

//go:embed matcher.js
var matcherSource string

// handleAttr marks elements returned by Query.
const handleAttr = "data-longtake-handle"

// maxConsoleLines bounds the per-page console buffer.
const maxConsoleLines = 500

// LaunchConfig selects and shapes the browser.
type LaunchConfig struct {
	Headless   bool
	ChromePath string // exec path, empty = let chromedp find Chrome
	RemoteURL  string // DevTools websocket URL of an already running browser
	Width      int
	Height     int
}

// LaunchConfigFrom extracts browser options from a director config.
func LaunchConfigFrom(c longtake.DirectorConfig) LaunchConfig {
	return LaunchConfig{
		Headless:   c.Headless,
		ChromePath: c.ChromePath,
		RemoteURL:  c.RemoteURL,
		Width:      c.Width,
		Height:     c.Height,
	}
}

// Launcher owns one browser and opens isolated pages on it.
type Launcher struct {
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewLauncher starts (or connects to) a browser. ctx bounds the browser's
// whole lifetime; Close releases it earlier.
func NewLauncher(ctx context.Context, config LaunchConfig, logger *zap.Logger) (*Launcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chrome")

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if config.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, config.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", config.Headless),
			chromedp.Flag("hide-scrollbars", true),
		)
		if config.Width > 0 && config.Height > 0 {
			opts = append(opts, chromedp.WindowSize(config.Width, config.Height))
		}
		if config.ChromePath != "" {
			opts = append(opts, chromedp.ExecPath(config.ChromePath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	sugar := logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	// An empty Run starts the browser so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("browser ready", zap.Bool("headless", config.Headless), zap.Bool("remote", config.RemoteURL != ""))
	return &Launcher{
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Open creates a tab in a fresh browser context.
func (l *Launcher) Open(ctx context.Context) (longtake.Page, func() error, error) {
	tabCtx, tabCancel := chromedp.NewContext(l.browserCtx, chromedp.WithNewBrowserContext())

	page := &ChromePage{tabCtx: tabCtx, logger: l.logger}
	chromedp.ListenTarget(tabCtx, page.onEvent)

	// The first Run allocates the tab and must use the tab context itself:
	// a derived context would close the tab when it ends.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	stopped := stop()
	if err != nil || !stopped {
		tabCancel()
		if err == nil {
			err = ctx.Err()
		}
		return nil, nil, fmt.Errorf("failed to open tab: %w", err)
	}
	l.logger.Debug("tab opened")

	release := func() error {
		tabCancel()
		return nil
	}
	return page, release, nil
}

// Close shuts the browser down.
func (l *Launcher) Close() error {
	l.browserCancel()
	l.allocCancel()
	return nil
}

// ChromePage is one browser tab.
type ChromePage struct {
	tabCtx context.Context
	logger *zap.Logger

	mu      sync.Mutex
	console []string
}

// run executes actions on the tab, bounded by the caller's context.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (p *ChromePage) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		args := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			if len(arg.Value) > 0 {
				args = append(args, string(arg.Value))
			} else if arg.Description != "" {
				args = append(args, arg.Description)
			}
		}
		p.record(fmt.Sprintf("%s: %s", ev.Type, strings.Join(args, " ")))
	case *runtime.EventExceptionThrown:
		text := ev.ExceptionDetails.Text
		if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != "" {
			text += " " + ev.ExceptionDetails.Exception.Description
		}
		p.record("exception: " + text)
	}
}

func (p *ChromePage) record(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.console) >= maxConsoleLines {
		p.console = p.console[1:]
	}
	p.console = append(p.console, line)
}

// ConsoleLog returns console messages and uncaught exceptions seen so far.
func (p *ChromePage) ConsoleLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.console...)
}

// Navigate loads url and waits for the body to be ready.
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

type queryRequest struct {
	Role     string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
	Text     string `json:"text,omitempty"`
	Contains string `json:"contains,omitempty"`
	CSS      string `json:"css,omitempty"`
	Anchor   string `json:"anchor,omitempty"`
	Axis     string `json:"axis,omitempty"`
}

type queryResponse struct {
	Stale   bool     `json:"stale"`
	Handles []string `json:"handles"`
}

// queryScript renders the matcher call for one query.
func queryScript(scope longtake.Scope, m longtake.Match) (string, error) {
	req := queryRequest{
		Role:     m.Role,
		Name:     m.Name,
		Text:     m.Text,
		Contains: m.Contains,
		CSS:      m.CSS,
	}
	if scope.Anchor != nil && scope.Axis != longtake.AxisDocument {
		req.Anchor = scope.Anchor.Handle()
		req.Axis = scope.Axis.String()
	}
	arg, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)(%s)", strings.TrimSpace(matcherSource), arg), nil
}

// Query tags every match with a handle attribute and returns the handles.
func (p *ChromePage) Query(ctx context.Context, scope longtake.Scope, m longtake.Match) ([]longtake.Element, error) {
	if m.Empty() {
		return nil, nil
	}
	script, err := queryScript(scope, m)
	if err != nil {
		return nil, err
	}

	var res queryResponse
	if err := p.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if res.Stale {
		return nil, fmt.Errorf("anchor %s: %w", scope.Anchor.Handle(), longtake.ErrStaleElement)
	}

	els := make([]longtake.Element, len(res.Handles))
	for i, h := range res.Handles {
		els[i] = &ChromeElement{page: p, handle: h}
	}
	return els, nil
}

// Location returns the tab's current URL.
func (p *ChromePage) Location(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

// Title returns the document title.
func (p *ChromePage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

// BodyText returns the rendered text of the document body.
func (p *ChromePage) BodyText(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

// Screenshot captures the full page as PNG.
func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

// ChromeElement is a handle attribute on a live node.
type ChromeElement struct {
	page   *ChromePage
	handle string
}

// Handle returns the element's handle attribute value.
func (e *ChromeElement) Handle() string { return e.handle }

func (e *ChromeElement) selector() string {
	return fmt.Sprintf(`[%s="%s"]`, handleAttr, e.handle)
}

type elementState struct {
	Attached bool   `json:"attached"`
	Visible  bool   `json:"visible"`
	Text     string `json:"text"`
}

const stateScript = `(function(sel) {
  const el = document.querySelector(sel);
  if (!el || !el.isConnected) return {attached: false, visible: false, text: ""};
  const style = window.getComputedStyle(el);
  const rect = el.getBoundingClientRect();
  const visible = style.display !== "none" && style.visibility !== "hidden" &&
    style.opacity !== "0" && rect.width > 0 && rect.height > 0;
  return {attached: true, visible: visible, text: el.innerText || el.textContent || ""};
})(%q)`

func (e *ChromeElement) state(ctx context.Context) (elementState, error) {
	var st elementState
	if err := e.page.run(ctx, chromedp.Evaluate(fmt.Sprintf(stateScript, e.selector()), &st)); err != nil {
		return st, err
	}
	if !st.Attached {
		return st, fmt.Errorf("%s: %w", e.handle, longtake.ErrStaleElement)
	}
	return st, nil
}

// Text returns the element's rendered text.
func (e *ChromeElement) Text(ctx context.Context) (string, error) {
	st, err := e.state(ctx)
	return st.Text, err
}

// Visible reports whether the element is rendered with a non-empty box.
func (e *ChromeElement) Visible(ctx context.Context) (bool, error) {
	st, err := e.state(ctx)
	return st.Visible, err
}

// Click scrolls the element into view and clicks its center.
func (e *ChromeElement) Click(ctx context.Context) error {
	if _, err := e.state(ctx); err != nil {
		return err
	}
	err := e.page.run(ctx,
		chromedp.ScrollIntoView(e.selector(), chromedp.ByQuery, chromedp.AtLeast(0)),
		chromedp.Click(e.selector(), chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	return e.detachedOr(ctx, err)
}

// Screenshot captures just the element.
func (e *ChromeElement) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := e.page.run(ctx, chromedp.Screenshot(e.selector(), &buf, chromedp.ByQuery, chromedp.AtLeast(0)))
	if err := e.detachedOr(ctx, err); err != nil {
		return nil, err
	}
	return buf, nil
}

// detachedOr reports a failed action as stale when the node has gone.
func (e *ChromeElement) detachedOr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, stateErr := e.state(ctx); stateErr != nil {
		return stateErr
	}
	return err
}
