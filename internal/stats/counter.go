package stats

import "strconv"

// Page identifies the content context of a browser tab for counting purposes.
type Page struct {
	TabID int
}

// PageFor returns the page identity for a tab id.
func PageFor(tabID int) Page {
	return Page{TabID: tabID}
}

func (p Page) String() string {
	return "page:" + strconv.Itoa(p.TabID)
}

// BlockCount holds the blocked-request figures of one page.
type BlockCount struct {
	Ads      int `json:"ads"`
	Trackers int `json:"trackers"`
}

// Total is the number of blocked requests of either kind.
func (c BlockCount) Total() int {
	return c.Ads + c.Trackers
}

// IsZero reports whether nothing has been blocked.
func (c BlockCount) IsZero() bool {
	return c.Ads == 0 && c.Trackers == 0
}

// Value packs both figures into one number: the integer part counts ads and
// the thousandths count trackers. Badge and message consumers still read this
// form; it is exact while Trackers stays below 1000.
func (c BlockCount) Value() float64 {
	return float64(c.Ads) + float64(c.Trackers)/1000
}

// PageCounts maps pages to their blocked-request figures. It is not safe for
// concurrent use; the Tracker serializes access.
type PageCounts struct {
	counts map[Page]BlockCount
}

func NewPageCounts() *PageCounts {
	return &PageCounts{counts: make(map[Page]BlockCount)}
}

// Record adds one blocked request to the page and returns the updated figures.
func (p *PageCounts) Record(page Page, trackerLike bool) BlockCount {
	c := p.counts[page]
	if trackerLike {
		c.Trackers++
	} else {
		c.Ads++
	}
	p.counts[page] = c
	return c
}

// Get returns the page's figures, or the zero count when none are recorded.
func (p *PageCounts) Get(page Page) BlockCount {
	return p.counts[page]
}

// Remove forgets the page.
func (p *PageCounts) Remove(page Page) {
	delete(p.counts, page)
}

// Len returns the number of pages with an entry.
func (p *PageCounts) Len() int {
	return len(p.counts)
}

// Copy returns a snapshot keyed by tab id.
func (p *PageCounts) Copy() map[int]BlockCount {
	out := make(map[int]BlockCount, len(p.counts))
	for page, c := range p.counts {
		out[page.TabID] = c
	}
	return out
}
