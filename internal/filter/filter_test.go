package filter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseKinds(t *testing.T) {
	tests := []struct {
		text string
		want Kind
	}{
		{"", KindComment},
		{"! Title: EasyList", KindComment},
		{"[Adblock Plus 2.0]", KindComment},
		{"example.com##.ad-banner", KindElemHide},
		{"example.com#@#.ad-banner", KindElemHide},
		{"||ads.example.com^", KindBlocking},
		{"@@||example.com/allowed.js", KindWhitelist},
		{"/banner/*$bogus-option", KindInvalid},
		{"/ads[/", KindInvalid},
	}
	for _, tc := range tests {
		if got := Parse(tc.text).Kind; got != tc.want {
			t.Errorf("Parse(%q).Kind = %v; want %v", tc.text, got, tc.want)
		}
	}
}

func TestPatternTextDropsPrefixAndOptions(t *testing.T) {
	f := Parse("@@||google-analytics.com^$script,third-party")
	if got, want := f.PatternText(), "||google-analytics.com^"; got != want {
		t.Fatalf("PatternText() = %q; want %q", got, want)
	}
	if f.IsBlocking() {
		t.Fatal("whitelist filter reports IsBlocking")
	}
	if !Parse("||doubleclick.net^").IsBlocking() {
		t.Fatal("blocking filter reports !IsBlocking")
	}
}

func TestDomainAnchorMatches(t *testing.T) {
	f := Parse("||ads.example.com^")
	tests := []struct {
		url  string
		want bool
	}{
		{"https://ads.example.com/banner.png", true},
		{"http://cdn.ads.example.com/x.js", true},
		{"https://ads.example.com", true},
		{"https://ads.example.com.evil.net/x", false},
		{"https://notads.example.com/x", false},
		{"https://example.com/?u=ads.example.com", false},
	}
	for _, tc := range tests {
		if got := f.Matches(Request{URL: tc.url}); got != tc.want {
			t.Errorf("Matches(%q) = %v; want %v", tc.url, got, tc.want)
		}
	}
}

func TestWildcardAndAnchors(t *testing.T) {
	if !Parse("/banner/*/img").Matches(Request{URL: "https://x.org/banner/300x250/img.png"}) {
		t.Error("wildcard did not match")
	}
	if Parse("|https://x.org/ad").Matches(Request{URL: "http://y.com/?r=https://x.org/ad"}) {
		t.Error("start anchor matched mid-address")
	}
	if Parse("swf|").Matches(Request{URL: "https://x.org/movie.swf?x=1"}) {
		t.Error("end anchor matched before query")
	}
	if !Parse("swf|").Matches(Request{URL: "https://x.org/movie.swf"}) {
		t.Error("end anchor did not match at end")
	}
}

func TestRegexFilter(t *testing.T) {
	f := Parse(`/\/ads?\/[0-9]+\.js$/`)
	if f.Kind != KindBlocking {
		t.Fatalf("Kind = %v (%s); want blocking", f.Kind, f.Reason)
	}
	if !f.Matches(Request{URL: "https://x.org/ad/12.js"}) {
		t.Error("regex filter did not match")
	}
	if f.Matches(Request{URL: "https://x.org/ad/12.js?x"}) {
		t.Error("regex filter ignored $ anchor")
	}
}

func TestMatchCase(t *testing.T) {
	if !Parse("/Banner/").Matches(Request{URL: "https://x.org/banner/a"}) {
		t.Error("default match should ignore case")
	}
	if Parse("Banner$match-case").Matches(Request{URL: "https://x.org/banner/a"}) {
		t.Error("match-case filter matched differently cased address")
	}
}

func TestOptions(t *testing.T) {
	f := Parse("||tracker.net^$script,third-party,domain=news.com|~sports.news.com")
	base := Request{
		URL:          "https://tracker.net/t.js",
		ResourceType: "script",
		DocumentHost: "www.news.com",
		ThirdParty:   true,
	}
	if !f.Matches(base) {
		t.Fatal("filter did not match base request")
	}

	rq := base
	rq.ThirdParty = false
	if f.Matches(rq) {
		t.Error("third-party filter matched first-party request")
	}

	rq = base
	rq.ResourceType = "image"
	if f.Matches(rq) {
		t.Error("script filter matched image request")
	}

	rq = base
	rq.DocumentHost = "sports.news.com"
	if f.Matches(rq) {
		t.Error("excluded domain matched")
	}

	rq = base
	rq.DocumentHost = "other.org"
	if f.Matches(rq) {
		t.Error("filter matched outside its domains")
	}
}

func TestNegatedResourceType(t *testing.T) {
	f := Parse("/pixel.$~image")
	if f.Matches(Request{URL: "https://x.org/pixel.gif", ResourceType: "image"}) {
		t.Error("~image filter matched image")
	}
	if !f.Matches(Request{URL: "https://x.org/pixel.js", ResourceType: "script"}) {
		t.Error("~image filter did not match script")
	}
}

func TestXMLHTTPRequestType(t *testing.T) {
	rq := NewRequest("https://api.tracker.net/collect", "xmlhttprequest", "https://news.com/")
	tests := []struct {
		filter string
		want   bool
	}{
		{"||tracker.net^$xmlhttprequest", true},
		{"||tracker.net^$xhr", true},
		{"||tracker.net^$~image", true},
		{"||tracker.net^$~xmlhttprequest", false},
		{"||tracker.net^$script", false},
	}
	for _, tc := range tests {
		if got := Parse(tc.filter).Matches(rq); got != tc.want {
			t.Errorf("%s matches xmlhttprequest = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestListWhitelistWins(t *testing.T) {
	l := NewList()
	l.Add("||ads.example.com^")
	l.Add("@@||ads.example.com/acceptable/")
	l.Add("! comment")
	l.Add("example.com##.banner")

	blocked := l.Match(Request{URL: "https://ads.example.com/banner.js"})
	if !blocked.IsBlocking() {
		t.Fatalf("Match() = %v; want blocking filter", blocked)
	}

	allowed := l.Match(Request{URL: "https://ads.example.com/acceptable/a.js"})
	if allowed == nil || allowed.Kind != KindWhitelist {
		t.Fatalf("Match() = %v; want whitelist filter", allowed)
	}

	if got := l.Match(Request{URL: "https://example.org/"}); got != nil {
		t.Fatalf("Match() = %v; want nil", got)
	}

	blocking, whitelist := l.Len()
	if blocking != 1 || whitelist != 1 {
		t.Fatalf("Len() = %d, %d; want 1, 1", blocking, whitelist)
	}
}

func TestReadFromCountsSkipped(t *testing.T) {
	l := NewList()
	n, err := l.ReadFrom(strings.NewReader("[Adblock Plus 2.0]\n||a.com^\n/x$nope\n@@||b.com^\n"))
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if n != 4 {
		t.Fatalf("lines = %d; want 4", n)
	}
	if got := l.Skipped(); got != 1 {
		t.Fatalf("Skipped() = %d; want 1", got)
	}
}

func TestLoadConfigAndBuild(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "easylist.txt"), []byte("||ads.example.com^\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "filters.yaml")
	cfg := "lists:\n  - easylist.txt\nrules:\n  - \"||google-analytics.com^\"\n  - \"@@||ads.example.com/ok/\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got, want := c.Lists[0], filepath.Join(dir, "easylist.txt"); got != want {
		t.Fatalf("Lists[0] = %q; want %q", got, want)
	}

	l, err := c.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	blocking, whitelist := l.Len()
	if blocking != 2 || whitelist != 1 {
		t.Fatalf("Len() = %d, %d; want 2, 1", blocking, whitelist)
	}
	if !l.Match(Request{URL: "https://www.google-analytics.com/collect"}).IsBlocking() {
		t.Fatal("inline rule not applied")
	}
}

func TestLoadConfigRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.yaml")
	if err := os.WriteFile(path, []byte("lists: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() = nil error; want error for empty config")
	}
}

func TestBuildFailsOnMissingList(t *testing.T) {
	c := &Config{Lists: []string{filepath.Join(t.TempDir(), "missing.txt")}}
	if _, err := c.Build(); err == nil {
		t.Fatal("Build() = nil error; want error for missing file")
	}
}

func TestNewRequestThirdParty(t *testing.T) {
	tests := []struct {
		url, doc string
		want     bool
	}{
		{"https://cdn.news.co.uk/a.js", "https://www.news.co.uk/", false},
		{"https://tracker.co.uk/a.js", "https://www.news.co.uk/", true},
		{"https://static.example.com/x", "http://example.com/page", false},
		{"https://ads.net/x", "", false},
	}
	for _, tc := range tests {
		rq := NewRequest(tc.url, "Script", tc.doc)
		if rq.ThirdParty != tc.want {
			t.Errorf("NewRequest(%q, %q).ThirdParty = %v; want %v", tc.url, tc.doc, rq.ThirdParty, tc.want)
		}
		if rq.ResourceType != "script" {
			t.Errorf("ResourceType = %q; want script", rq.ResourceType)
		}
	}
}

func TestUntypedFilterSparesTopDocument(t *testing.T) {
	f := Parse("||ads.example.com^")
	if f.Matches(Request{URL: "https://ads.example.com/", ResourceType: "document"}) {
		t.Error("untyped filter matched top-level document")
	}
	if !Parse("||ads.example.com^$document").Matches(Request{URL: "https://ads.example.com/", ResourceType: "document"}) {
		t.Error("$document filter did not match document")
	}
}
