package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/blockstats/internal/badge"
)

type fakeFilter struct {
	blocking bool
	pattern  string
}

func (f fakeFilter) IsBlocking() bool    { return f.blocking }
func (f fakeFilter) PatternText() string { return f.pattern }

func blocking(pattern string) fakeFilter { return fakeFilter{blocking: true, pattern: pattern} }

type drawCall struct {
	tabID int
	badge *badge.Badge
}

type fakeDrawer struct {
	mu    sync.Mutex
	calls []drawCall
}

func (d *fakeDrawer) SetBadge(tabID int, b *badge.Badge) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, drawCall{tabID: tabID, badge: b})
}

func (d *fakeDrawer) drawn() []drawCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]drawCall, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDrawer) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

type fakePrefs struct {
	mu        sync.Mutex
	show      bool
	loaded    bool
	waiting   []func()
	listeners []func()
	total     int
}

func newFakePrefs() *fakePrefs { return &fakePrefs{show: true, loaded: true} }

func (p *fakePrefs) ShowStatsInIcon() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.show
}

func (p *fakePrefs) OnShowStatsInIcon(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
	idx := len(p.listeners) - 1
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listeners[idx] = nil
	}
}

func (p *fakePrefs) setShow(v bool) {
	p.mu.Lock()
	p.show = v
	listeners := append([]func(){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn()
		}
	}
}

func (p *fakePrefs) WhenLoaded(fn func()) {
	p.mu.Lock()
	if !p.loaded {
		p.waiting = append(p.waiting, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

func (p *fakePrefs) markLoaded() {
	p.mu.Lock()
	p.loaded = true
	waiting := p.waiting
	p.waiting = nil
	p.mu.Unlock()
	for _, fn := range waiting {
		fn()
	}
}

func (p *fakePrefs) IncrementBlockedTotal(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
	return nil
}

func (p *fakePrefs) blockedTotal() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

type fakeTabs struct {
	tabs []Tab
	err  error
}

func (f *fakeTabs) QueryTabs(_ context.Context, activeOnly bool) ([]Tab, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Tab
	for _, tab := range f.tabs {
		if activeOnly && !tab.Active {
			continue
		}
		out = append(out, tab)
	}
	return out, nil
}

var errHostDown = errors.New("host down")

// manualTimers records armed timers; tests fire them explicitly.
type manualTimers struct {
	mu    sync.Mutex
	armed []time.Duration
	fires []func()
	stops int
}

func (m *manualTimers) after(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = append(m.armed, d)
	m.fires = append(m.fires, f)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.stops++
		return true
	}
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.armed)
}

// fireAll runs every armed timer callback that has not run yet.
func (m *manualTimers) fireAll() {
	m.mu.Lock()
	fires := m.fires
	m.fires = nil
	m.mu.Unlock()
	for _, f := range fires {
		f()
	}
}

func newTestTracker(prefs *fakePrefs, tabs *fakeTabs) (*Tracker, *fakeDrawer, *manualTimers) {
	drawer := &fakeDrawer{}
	timers := &manualTimers{}
	tr := NewTracker(prefs, drawer, tabs, Options{AfterFunc: timers.after})
	return tr, drawer, timers
}
