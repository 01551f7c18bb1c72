// Package host connects to a Chromium browser over the DevTools protocol,
// blocks requests matched by the filter list and reports tab lifecycle events
// to a Listener.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/blockstats/internal/filter"
	"github.com/dgnsrekt/blockstats/internal/stats"
)

// ErrUnknownTab is returned for tab ids the host has not registered.
var ErrUnknownTab = errors.New("host: unknown tab")

const (
	evalTimeout = 5 * time.Second

	// visibilityBinding is called by pages with document.visibilityState.
	visibilityBinding = "__blockstatsVisibility"
)

// visibilityScript reports every visibility change of the document through
// visibilityBinding. A tab switch in the browser makes the new tab visible.
const visibilityScript = `(() => {
  if (window.__blockstatsVisibilityHooked) return;
  window.__blockstatsVisibilityHooked = true;
  document.addEventListener("visibilitychange", () => {
    if (typeof window.` + visibilityBinding + ` === "function") {
      window.` + visibilityBinding + `(document.visibilityState);
    }
  });
})();`

// Listener receives the browser events the stats tracker consumes.
type Listener interface {
	RecordBlockedRequest(f stats.Filter, tabIDs []int)
	NavigationCommitted(tabID, frameID int)
	TabActivated(tabID, windowID int)
	WindowRemoved(windowID int)
	PageRemoved(tabID int)
}

// Matcher decides requests; *filter.List implements it.
type Matcher interface {
	Match(rq filter.Request) *filter.Filter
}

type tabContext struct {
	ctx    context.Context
	cancel context.CancelFunc // nil for the context that owns the browser connection
}

// Host is a CDP connection to one browser.
type Host struct {
	cdpURL   string
	filters  Matcher
	registry *Registry

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	listener      Listener

	mu   sync.RWMutex
	tabs map[target.ID]*tabContext
}

func New(cdpURL string, filters Matcher) *Host {
	return &Host{
		cdpURL:   cdpURL,
		filters:  filters,
		registry: NewRegistry(),
		tabs:     make(map[target.ID]*tabContext),
	}
}

// Registry exposes the tab id mapping.
func (h *Host) Registry() *Registry {
	return h.registry
}

// Connect attaches to every open page and starts following target creation
// and destruction. Events go to l from then on.
func (h *Host) Connect(ctx context.Context, l Listener) error {
	h.listener = l
	slog.Info("host connecting to chromium", "url", h.cdpURL)

	h.allocCtx, h.allocCancel = chromedp.NewRemoteAllocator(context.Background(), h.cdpURL)

	pages, err := h.listPages(ctx)
	if err != nil {
		h.allocCancel()
		return err
	}

	// Reuse an existing page for the browser connection so no extra tab is
	// opened in front of the user.
	if len(pages) > 0 {
		h.browserCtx, h.browserCancel = chromedp.NewContext(h.allocCtx, chromedp.WithTargetID(pages[0].TargetID))
	} else {
		h.browserCtx, h.browserCancel = chromedp.NewContext(h.allocCtx)
	}
	if err := chromedp.Run(h.browserCtx); err != nil {
		h.allocCancel()
		return fmt.Errorf("host: connect to browser: %w", err)
	}
	ownID := chromedp.FromContext(h.browserCtx).Target.TargetID
	if len(pages) == 0 {
		pages = []*target.Info{{TargetID: ownID, Type: "page", URL: "about:blank"}}
	}

	attached := 0
	for _, p := range pages {
		tc := &tabContext{}
		if p.TargetID == ownID {
			tc.ctx = h.browserCtx
		} else {
			tc.ctx, tc.cancel = chromedp.NewContext(h.browserCtx, chromedp.WithTargetID(p.TargetID))
		}
		if _, err := h.attach(tc, p.TargetID, p.URL); err != nil {
			slog.Error("host failed to attach to tab", "target_id", p.TargetID, "url", truncateURL(p.URL), "error", err)
			continue
		}
		attached++
	}
	slog.Info("host attached to tabs", "count", attached)

	chromedp.ListenBrowser(h.browserCtx, h.onBrowserEvent)
	if err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(h.browserExecutor(ctx))
	})); err != nil {
		return fmt.Errorf("host: enable target discovery: %w", err)
	}
	return nil
}

func (h *Host) listPages(ctx context.Context) ([]*target.Info, error) {
	tempCtx, tempCancel := chromedp.NewContext(h.allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		return nil, fmt.Errorf("host: connect to browser: %w", err)
	}
	tempID := chromedp.FromContext(tempCtx).Target.TargetID

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return nil, fmt.Errorf("host: enumerate targets: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var pages []*target.Info
	for _, t := range targets {
		if t.Type == "page" && t.TargetID != tempID {
			pages = append(pages, t)
		}
	}
	slog.Debug("host found browser targets", "count", len(targets), "pages", len(pages))
	return pages, nil
}

func (h *Host) browserExecutor(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser)
}

func (h *Host) windowFor(targetID target.ID) int {
	var windowID browser.WindowID
	err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		windowID, _, err = browser.GetWindowForTarget().WithTargetID(targetID).Do(h.browserExecutor(ctx))
		return err
	}))
	if err != nil {
		slog.Debug("host window lookup failed", "target_id", targetID, "error", err)
		return 0
	}
	return int(windowID)
}

func (h *Host) attach(tc *tabContext, targetID target.ID, url string) (TabInfo, error) {
	info, created := h.registry.Register(targetID, h.windowFor(targetID), url)
	if !created {
		if tc.cancel != nil {
			tc.cancel()
		}
		return info, nil
	}

	h.mu.Lock()
	h.tabs[targetID] = tc
	h.mu.Unlock()

	// The first Run on a tab context attaches the session and must not carry
	// a deadline, or the session dies with it.
	if err := chromedp.Run(tc.ctx, fetch.Enable(), page.Enable(), runtime.Enable()); err != nil {
		h.forget(targetID)
		return TabInfo{}, fmt.Errorf("host: enable fetch/page domains: %w", err)
	}
	chromedp.ListenTarget(tc.ctx, h.tabEventHandler(tc.ctx, info.ID, targetID))
	if err := chromedp.Run(tc.ctx, watchVisibility()); err != nil {
		slog.Warn("host tab switches will not be reported", "tab_id", info.ID, "error", err)
	}
	slog.Info("host attached to tab", "tab_id", info.ID, "window_id", info.WindowID, "target_id", targetID, "url", truncateURL(url))
	return info, nil
}

func (h *Host) forget(targetID target.ID) (TabInfo, bool, bool) {
	h.mu.Lock()
	tc := h.tabs[targetID]
	delete(h.tabs, targetID)
	h.mu.Unlock()
	if tc != nil && tc.cancel != nil {
		tc.cancel()
	}
	return h.registry.Remove(targetID)
}

// onBrowserEvent runs on the chromedp event loop; anything that sends CDP
// commands is moved to its own goroutine.
func (h *Host) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		if _, known := h.registry.Get(e.TargetInfo.TargetID); known {
			return
		}
		go h.onPageCreated(e.TargetInfo.TargetID, e.TargetInfo.URL)
	case *target.EventTargetInfoChanged:
		if e.TargetInfo != nil && e.TargetInfo.Type == "page" {
			h.registry.SetURL(e.TargetInfo.TargetID, e.TargetInfo.URL)
		}
	case *target.EventTargetDestroyed:
		go h.onPageDestroyed(e.TargetID)
	}
}

func (h *Host) onPageCreated(targetID target.ID, url string) {
	tc := &tabContext{}
	tc.ctx, tc.cancel = chromedp.NewContext(h.browserCtx, chromedp.WithTargetID(targetID))
	info, err := h.attach(tc, targetID, url)
	if err != nil {
		slog.Warn("host failed to attach to new tab", "target_id", targetID, "error", err)
		return
	}
	// New tabs open in the foreground.
	h.listener.TabActivated(info.ID, info.WindowID)
}

func (h *Host) onPageDestroyed(targetID target.ID) {
	info, lastInWindow, ok := h.forget(targetID)
	if !ok {
		return
	}
	slog.Info("host tab closed", "tab_id", info.ID, "window_id", info.WindowID)
	h.listener.PageRemoved(info.ID)
	if lastInWindow {
		h.listener.WindowRemoved(info.WindowID)
	}
}

// watchVisibility installs the visibility hook on the current document and on
// every document the tab loads later.
func watchVisibility() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.AddBinding(visibilityBinding).Do(ctx); err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(visibilityScript).Do(ctx); err != nil {
			return err
		}
		_, exp, err := runtime.Evaluate(visibilityScript).Do(ctx)
		if err != nil {
			return err
		}
		if exp != nil {
			return exp
		}
		return nil
	})
}

func (h *Host) tabEventHandler(tabCtx context.Context, tabID int, targetID target.ID) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			// A new top-level document replaces the page, so its counts start
			// over before any of its subresources are decided.
			if e.ResourceType == network.ResourceTypeDocument && isTopFrame(e.FrameID, targetID) {
				slog.Debug("host tab loading new page", "tab_id", tabID, "url", truncateURL(e.Request.URL))
				h.listener.PageRemoved(tabID)
			}
			go h.onRequestPaused(tabCtx, tabID, targetID, e)
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				h.registry.SetURL(targetID, e.Frame.URL)
				slog.Debug("host tab navigated", "tab_id", tabID, "url", truncateURL(e.Frame.URL))
				h.listener.NavigationCommitted(tabID, stats.TopFrameID)
			}
		case *runtime.EventBindingCalled:
			if e.Name != visibilityBinding || e.Payload != "visible" {
				return
			}
			if info, ok := h.registry.Get(targetID); ok {
				slog.Debug("host tab became visible", "tab_id", info.ID, "window_id", info.WindowID)
				h.listener.TabActivated(info.ID, info.WindowID)
			}
		}
	}
}

func isTopFrame(frameID cdp.FrameID, targetID target.ID) bool {
	return string(frameID) == string(targetID)
}

// decide matches a paused request against the filter list. A nil filter means
// the request goes through.
func (h *Host) decide(targetID target.ID, e *fetch.EventRequestPaused) (*filter.Filter, filter.Request) {
	docURL := ""
	if info, ok := h.registry.Get(targetID); ok {
		docURL = info.URL
	}
	top := isTopFrame(e.FrameID, targetID)
	if top && e.ResourceType == network.ResourceTypeDocument {
		// The page is its own document.
		docURL = e.Request.URL
	}
	rq := filter.NewRequest(e.Request.URL, resourceType(e.ResourceType, top), docURL)
	if h.filters == nil {
		return nil, rq
	}
	f := h.filters.Match(rq)
	if !f.IsBlocking() {
		return nil, rq
	}
	return f, rq
}

func (h *Host) onRequestPaused(tabCtx context.Context, tabID int, targetID target.ID, e *fetch.EventRequestPaused) {
	f, rq := h.decide(targetID, e)
	var action chromedp.Action = fetch.ContinueRequest(e.RequestID)
	if f != nil {
		action = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient)
	}
	if err := chromedp.Run(tabCtx, action); err != nil {
		slog.Debug("host request decision failed", "tab_id", tabID, "url", truncateURL(rq.URL), "error", err)
		return
	}
	if f != nil {
		slog.Debug("host blocked request", "tab_id", tabID, "filter", f.Text, "url", truncateURL(rq.URL))
		h.listener.RecordBlockedRequest(f, []int{tabID})
	}
}

// resourceType maps a CDP resource type onto filter option names. Documents
// loaded outside the top frame are subdocuments.
func resourceType(t network.ResourceType, topFrame bool) string {
	switch t {
	case network.ResourceTypeDocument:
		if topFrame {
			return "document"
		}
		return "subdocument"
	case network.ResourceTypeXHR, network.ResourceTypeFetch, network.ResourceTypeEventSource:
		return "xmlhttprequest"
	case network.ResourceTypeStylesheet, network.ResourceTypeImage, network.ResourceTypeMedia,
		network.ResourceTypeFont, network.ResourceTypeScript, network.ResourceTypeWebSocket,
		network.ResourceTypePing:
		return strings.ToLower(string(t))
	default:
		return "other"
	}
}

// QueryTabs lists the registered tabs. A tab is active when its document is
// visible, which is true for the selected tab of each window.
func (h *Host) QueryTabs(ctx context.Context, activeOnly bool) ([]stats.Tab, error) {
	var out []stats.Tab
	for _, info := range h.registry.List() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.mu.RLock()
		tc := h.tabs[info.TargetID]
		h.mu.RUnlock()
		if tc == nil {
			continue
		}

		active := h.visible(ctx, tc.ctx, info.ID)
		if activeOnly && !active {
			continue
		}
		out = append(out, stats.Tab{ID: info.ID, WindowID: info.WindowID, Active: active, URL: info.URL})
	}
	return out, nil
}

func (h *Host) visible(ctx, tabCtx context.Context, tabID int) bool {
	evalCtx, cancel := context.WithTimeout(tabCtx, evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var state string
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(`document.visibilityState`, &state)); err != nil {
		slog.Debug("host visibility check failed", "tab_id", tabID, "error", err)
		return false
	}
	return state == "visible"
}

// ActivateTab brings a tab to the foreground and reports the activation.
func (h *Host) ActivateTab(ctx context.Context, tabID int) error {
	info, ok := h.registry.ByID(tabID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTab, tabID)
	}
	runCtx, cancel := context.WithTimeout(h.browserCtx, evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.ActivateTarget(info.TargetID).Do(h.browserExecutor(ctx))
	})); err != nil {
		return fmt.Errorf("host: activate tab %d: %w", tabID, err)
	}
	h.listener.TabActivated(info.ID, info.WindowID)
	return nil
}

// Close drops every tab context and the browser connection. The browser
// itself keeps running.
func (h *Host) Close() error {
	h.mu.Lock()
	h.tabs = make(map[target.ID]*tabContext)
	h.mu.Unlock()

	if h.allocCancel != nil {
		h.allocCancel()
	}
	slog.Info("host closed")
	return nil
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
