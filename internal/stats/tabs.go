package stats

import "sort"

// ActiveTabs tracks which tab is in front in every open window. A tab is in
// the active set iff it was the most recently activated tab of a window that
// is still open.
type ActiveTabs struct {
	tabs     map[int]struct{}
	byWindow map[int]int
}

func NewActiveTabs() *ActiveTabs {
	return &ActiveTabs{
		tabs:     make(map[int]struct{}),
		byWindow: make(map[int]int),
	}
}

// Activate makes tabID the active tab of windowID. The window's previous
// active tab leaves the set first, even if the same id was seen elsewhere.
func (a *ActiveTabs) Activate(tabID, windowID int) {
	if last, ok := a.byWindow[windowID]; ok {
		delete(a.tabs, last)
	}
	a.tabs[tabID] = struct{}{}
	a.byWindow[windowID] = tabID
}

// RemoveWindow drops the window and its active tab. It returns the tab that
// was active there, if any.
func (a *ActiveTabs) RemoveWindow(windowID int) (int, bool) {
	tabID, ok := a.byWindow[windowID]
	if !ok {
		return 0, false
	}
	delete(a.tabs, tabID)
	delete(a.byWindow, windowID)
	return tabID, true
}

// Has reports whether the tab is currently active in some window.
func (a *ActiveTabs) Has(tabID int) bool {
	_, ok := a.tabs[tabID]
	return ok
}

// IDs returns the active tab ids in ascending order.
func (a *ActiveTabs) IDs() []int {
	ids := make([]int, 0, len(a.tabs))
	for id := range a.tabs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// WindowTab returns the active tab of a window.
func (a *ActiveTabs) WindowTab(windowID int) (int, bool) {
	tabID, ok := a.byWindow[windowID]
	return tabID, ok
}

// Windows returns a copy of the window -> active tab map.
func (a *ActiveTabs) Windows() map[int]int {
	out := make(map[int]int, len(a.byWindow))
	for w, t := range a.byWindow {
		out[w] = t
	}
	return out
}

// Len returns the size of the active set.
func (a *ActiveTabs) Len() int {
	return len(a.tabs)
}
