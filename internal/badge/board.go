// Package badge holds the toolbar badge shown for each tab and streams badge
// changes to whoever renders them.
package badge

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultColor is the badge background used for blocked-request counts.
const DefaultColor = "#646464"

// Badge is what gets drawn over the toolbar icon of one tab.
type Badge struct {
	Color    string  `json:"color"`
	Number   float64 `json:"number"`
	Ads      int     `json:"ads"`
	Trackers int     `json:"trackers"`
}

// Update is published whenever a tab's badge is set or cleared. A nil Badge
// means the badge was removed.
type Update struct {
	TabID int       `json:"tab_id"`
	Badge *Badge    `json:"badge"`
	At    time.Time `json:"at"`
}

// TabBadge pairs a tab with its current badge.
type TabBadge struct {
	TabID int   `json:"tab_id"`
	Badge Badge `json:"badge"`
}

// Board keeps the badge currently drawn for each tab.
type Board struct {
	broker *Broker
	now    func() time.Time

	mu     sync.RWMutex
	badges map[int]Badge
}

func NewBoard(broker *Broker) *Board {
	if broker == nil {
		broker = NewBroker()
	}
	return &Board{
		broker: broker,
		now:    time.Now,
		badges: make(map[int]Badge),
	}
}

// Broker returns the broker updates are published on.
func (b *Board) Broker() *Broker {
	return b.broker
}

// SetBadge draws b for the tab, or clears the tab's badge when b is nil. It
// never blocks on listeners.
func (b *Board) SetBadge(tabID int, badge *Badge) {
	b.mu.Lock()
	if badge == nil {
		delete(b.badges, tabID)
	} else {
		b.badges[tabID] = *badge
	}
	b.mu.Unlock()

	u := Update{TabID: tabID, At: b.now().UTC()}
	if badge != nil {
		cp := *badge
		u.Badge = &cp
	}
	b.broker.Publish(u)
	slog.Debug("badge set", "tab_id", tabID, "cleared", badge == nil)
}

// Get returns the tab's badge, if one is drawn.
func (b *Board) Get(tabID int) (Badge, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	badge, ok := b.badges[tabID]
	return badge, ok
}

// Snapshot lists every drawn badge ordered by tab id.
func (b *Board) Snapshot() []TabBadge {
	b.mu.RLock()
	out := make([]TabBadge, 0, len(b.badges))
	for id, badge := range b.badges {
		out = append(out, TabBadge{TabID: id, Badge: badge})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}
