// Package classify decides whether a blocked request looks like an ad or a
// tracker, based on the pattern text of the filter that blocked it.
package classify

import "regexp"

// Category is the bucket a blocked request is counted in.
type Category int

const (
	AdLike Category = iota
	TrackerLike
)

func (c Category) String() string {
	if c == TrackerLike {
		return "tracker"
	}
	return "ad"
}

// privacyPatterns lists known analytics and tracking hosts and script paths.
// Patterns are unanchored and deliberately loose ("ga", "stat"), so a filter
// pattern containing any of them counts as tracker-like.
var privacyPatterns = compile(
	`metrics`,
	`track`,
	`googletagmanager`,
	`trak`,
	`geo.`,
	`statistic`,
	`stat`,
	`count`,
	`data`,
	`traf`,
	`pixel`,
	`ga`,
	`taboola.com`,
	`silkenthreadiness.info`,
	`adblockanalytics.com`,
	`google-analytics.com/analytics.js`,
	`google-analytics.com/cx/api.js`,
	`lnkr.us`,
	`metrext.com`,
	`icontent.us`,
	`qip.ng`,
	`qip.ru`,
	`ratexchange.net`,
	`trendtext.eu`,
	`adnotbad.com`,
	`adserv.info`,
	`serverads.net`,
	`jsfuel.com`,
	`spaceshipad.com`,
	`takethatad.com`,
	`tradeadsexchange.com`,
	`googletagservices.com/tag/js/gpt.js`,
	`googletagservices.com/gpt.js`,
	`google-analytics.com/ga.js`,
	`scorecardresearch.com/beacon.js`,
	`addthis.com`,
	`clientprofiler/adb`,
	`rma-api.gravity.com`,
	`api.gravity.com`,
	`b.grvcdn.com/moth-min.js`,
	`secure-api.gravity.com`,
	`geoIP.js`,
	`cc/s.gif?`,
	`cn/1.gif?`,
	`cn/2.gif?`,
	`cn/a.gif?`,
	`cn/b.gif?`,
	`cn/gs.gif?`,
	`cn/r.gif?`,
	`cn/s.gif?`,
	`cn/xy.gif?`,
	`cn/z.gif?`,
	`co/e.gif?`,
	`com.au/HG?hc=`,
	`com.com/redir?timestamp`,
	`com/0.gif?`,
	`com/1.gif?`,
	`com/2.gif?`,
	`com/3.gif?`,
	`ga_`,
	`.cloudfront.net`,
)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Classify returns TrackerLike when any privacy pattern matches the filter's
// pattern text, AdLike otherwise.
func Classify(patternText string) Category {
	for _, rx := range privacyPatterns {
		if rx.MatchString(patternText) {
			return TrackerLike
		}
	}
	return AdLike
}

// IsTrackerLike is shorthand for Classify(patternText) == TrackerLike.
func IsTrackerLike(patternText string) bool {
	return Classify(patternText) == TrackerLike
}
