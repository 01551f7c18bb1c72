// Package stats counts blocked requests per tab and keeps the toolbar badge
// of the visible tabs in sync with those counts.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/blockstats/internal/badge"
	"github.com/dgnsrekt/blockstats/internal/classify"
)

// TopFrameID is the frame id of a tab's top-level document.
const TopFrameID = 0

const (
	prefsWriteTimeout = 5 * time.Second
	resyncTimeout     = 10 * time.Second
)

// Filter is the part of a content filter the tracker needs.
type Filter interface {
	IsBlocking() bool
	PatternText() string
}

// Tab is a browser tab as reported by the host.
type Tab struct {
	ID       int    `json:"id"`
	WindowID int    `json:"window_id"`
	Active   bool   `json:"active"`
	URL      string `json:"url,omitempty"`
}

// TabQuerier lists the tabs of the host browser.
type TabQuerier interface {
	QueryTabs(ctx context.Context, activeOnly bool) ([]Tab, error)
}

// BadgeDrawer draws a badge on a tab's toolbar icon; nil clears it.
// Implementations must not block and must not call back into the Tracker.
type BadgeDrawer interface {
	SetBadge(tabID int, b *badge.Badge)
}

// Preferences is the preference store as seen by the tracker.
type Preferences interface {
	ShowStatsInIcon() bool
	OnShowStatsInIcon(fn func()) (unsubscribe func())
	// WhenLoaded runs fn once the store has finished loading.
	WhenLoaded(fn func())
	IncrementBlockedTotal(ctx context.Context) error
}

// Options tune a Tracker. Zero values pick the defaults.
type Options struct {
	RefreshRate int
	Color       string
	TrackerLike func(patternText string) bool
	AfterFunc   AfterFunc
}

// Snapshot is a read-only copy of the tracker state.
type Snapshot struct {
	ActiveTabs    []int              `json:"active_tabs"`
	WindowTabs    map[int]int        `json:"window_tabs"`
	Counts        map[int]BlockCount `json:"counts"`
	RepaintQueued bool               `json:"repaint_queued"`
}

// Tracker owns the per-page counts, the active tab bookkeeping and the badge
// repaint schedule. Every event handler runs under one mutex, in arrival
// order.
type Tracker struct {
	prefs  Preferences
	drawer BadgeDrawer
	tabs   TabQuerier

	color       string
	trackerLike func(string) bool

	mu          sync.Mutex
	counts      *PageCounts
	active      *ActiveTabs
	sched       *Scheduler
	closed      bool
	unsubscribe func()
}

func NewTracker(prefs Preferences, drawer BadgeDrawer, tabs TabQuerier, opts Options) *Tracker {
	if opts.Color == "" {
		opts.Color = badge.DefaultColor
	}
	if opts.TrackerLike == nil {
		opts.TrackerLike = classify.IsTrackerLike
	}
	return &Tracker{
		prefs:       prefs,
		drawer:      drawer,
		tabs:        tabs,
		color:       opts.Color,
		trackerLike: opts.TrackerLike,
		counts:      NewPageCounts(),
		active:      NewActiveTabs(),
		sched:       NewScheduler(opts.RefreshRate, opts.AfterFunc),
	}
}

// Start subscribes to badge preference changes and seeds the active tabs from
// the host, then schedules one repaint.
func (t *Tracker) Start(ctx context.Context) error {
	unsubscribe := t.prefs.OnShowStatsInIcon(func() {
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		t.ShowBadgeChanged(ctx)
	})
	t.mu.Lock()
	t.unsubscribe = unsubscribe
	t.mu.Unlock()

	tabs, err := t.tabs.QueryTabs(ctx, true)
	if err != nil {
		slog.Warn("stats initial active tab query failed", "error", err)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tab := range tabs {
		t.active.Activate(tab.ID, tab.WindowID)
	}
	slog.Info("stats seeded active tabs", "active", t.active.Len(), "windows", len(t.active.byWindow))
	t.scheduleLocked(0, false)
	return nil
}

// Close stops future repaints and drops the preference subscription.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.sched.Stop()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// RecordBlockedRequest counts a request blocked by f on each of tabIDs and
// bumps the lifetime total once the preference store is loaded. Filters that
// do not block are ignored.
func (t *Tracker) RecordBlockedRequest(f Filter, tabIDs []int) {
	if f == nil || !f.IsBlocking() {
		return
	}
	trackerLike := t.trackerLike(f.PatternText())

	t.mu.Lock()
	for _, tabID := range tabIDs {
		t.counts.Record(PageFor(tabID), trackerLike)
		t.scheduleLocked(tabID, true)
	}
	t.mu.Unlock()

	t.prefs.WhenLoaded(func() {
		ctx, cancel := context.WithTimeout(context.Background(), prefsWriteTimeout)
		defer cancel()
		if err := t.prefs.IncrementBlockedTotal(ctx); err != nil {
			slog.Warn("stats blocked total increment failed", "error", err)
		}
	})
}

// NavigationCommitted repaints the tab once its top-level navigation is
// committed: cleared for a fresh page, or showing what was blocked before the
// commit.
func (t *Tracker) NavigationCommitted(tabID, frameID int) {
	if frameID != TopFrameID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.repaintLocked(tabID)
}

// TabActivated makes tabID the active tab of its window.
func (t *Tracker) TabActivated(tabID, windowID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active.Activate(tabID, windowID)
	t.scheduleLocked(0, false)
}

// WindowRemoved forgets a closed window and its active tab.
func (t *Tracker) WindowRemoved(windowID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tabID, ok := t.active.RemoveWindow(windowID); ok {
		slog.Debug("stats window removed", "window_id", windowID, "tab_id", tabID)
	}
}

// PageRemoved drops the counts of a discarded tab.
func (t *Tracker) PageRemoved(tabID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.Remove(PageFor(tabID))
}

// ShowBadgeChanged redraws every open tab after the badge preference flipped:
// populated when enabled, cleared when disabled.
func (t *Tracker) ShowBadgeChanged(ctx context.Context) {
	tabs, err := t.tabs.QueryTabs(ctx, false)
	if err != nil {
		slog.Warn("stats badge resync tab query failed", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	show := t.prefs.ShowStatsInIcon()
	for _, tab := range tabs {
		if show {
			t.drawer.SetBadge(tab.ID, t.badgeLocked(tab.ID))
		} else {
			t.drawer.SetBadge(tab.ID, nil)
		}
	}
	slog.Info("stats badge resync", "tabs", len(tabs), "show", show)
}

// BlockedPerPage returns the figures recorded for the tab's page.
func (t *Tracker) BlockedPerPage(tabID int) BlockCount {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts.Get(PageFor(tabID))
}

// IsActive reports whether the tab is active in some window.
func (t *Tracker) IsActive(tabID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active.Has(tabID)
}

// Snapshot copies the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ActiveTabs:    t.active.IDs(),
		WindowTabs:    t.active.Windows(),
		Counts:        t.counts.Copy(),
		RepaintQueued: t.sched.Pending(),
	}
}

// scheduleLocked arms the repaint timer. With restrict set, only a request
// for an active tab may arm it.
func (t *Tracker) scheduleLocked(tabID int, restrict bool) {
	if t.closed || !t.prefs.ShowStatsInIcon() {
		return
	}
	if restrict && !t.active.Has(tabID) {
		return
	}
	t.sched.Arm(t.flush)
}

// flush runs when the repaint timer fires and repaints every active tab.
func (t *Tracker) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sched.Done()
	if t.closed {
		return
	}
	for _, id := range t.active.IDs() {
		t.repaintLocked(id)
	}
}

func (t *Tracker) repaintLocked(tabID int) {
	if !t.prefs.ShowStatsInIcon() {
		return
	}
	t.drawer.SetBadge(tabID, t.badgeLocked(tabID))
}

func (t *Tracker) badgeLocked(tabID int) *badge.Badge {
	c := t.counts.Get(PageFor(tabID))
	if c.IsZero() {
		return nil
	}
	return &badge.Badge{
		Color:    t.color,
		Number:   c.Value(),
		Ads:      c.Ads,
		Trackers: c.Trackers,
	}
}
