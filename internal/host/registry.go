package host

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/target"
)

// TabInfo is what the host knows about one browser tab.
type TabInfo struct {
	ID       int       `json:"id"`
	TargetID target.ID `json:"target_id"`
	WindowID int       `json:"window_id"`
	URL      string    `json:"url"`
}

// Registry hands out numeric tab ids for CDP targets. Ids are never reused.
type Registry struct {
	mu       sync.RWMutex
	byTarget map[target.ID]*TabInfo
	byID     map[int]*TabInfo
	nextID   atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{
		byTarget: make(map[target.ID]*TabInfo),
		byID:     make(map[int]*TabInfo),
	}
}

// Register records a target. A target registered twice keeps its first id.
// created reports whether the target was new.
func (r *Registry) Register(targetID target.ID, windowID int, url string) (info TabInfo, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byTarget[targetID]; ok {
		return *existing, false
	}
	t := &TabInfo{
		ID:       int(r.nextID.Add(1)),
		TargetID: targetID,
		WindowID: windowID,
		URL:      url,
	}
	r.byTarget[targetID] = t
	r.byID[t.ID] = t
	return *t, true
}

func (r *Registry) Get(targetID target.ID) (TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byTarget[targetID]
	if !ok {
		return TabInfo{}, false
	}
	return *t, true
}

func (r *Registry) ByID(tabID int) (TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[tabID]
	if !ok {
		return TabInfo{}, false
	}
	return *t, true
}

// SetURL updates the address of a known target.
func (r *Registry) SetURL(targetID target.ID, url string) (TabInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byTarget[targetID]
	if !ok {
		return TabInfo{}, false
	}
	t.URL = url
	return *t, true
}

// Remove forgets a target. lastInWindow reports whether no other tab of the
// same window is left.
func (r *Registry) Remove(targetID target.ID) (info TabInfo, lastInWindow, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byTarget[targetID]
	if !ok {
		return TabInfo{}, false, false
	}
	delete(r.byTarget, targetID)
	delete(r.byID, t.ID)

	lastInWindow = true
	for _, other := range r.byID {
		if other.WindowID == t.WindowID {
			lastInWindow = false
			break
		}
	}
	return *t, lastInWindow, true
}

// List returns all tabs ordered by id.
func (r *Registry) List() []TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tabs := make([]TabInfo, 0, len(r.byID))
	for _, t := range r.byID {
		tabs = append(tabs, *t)
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })
	return tabs
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
