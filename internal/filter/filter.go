// Package filter parses Adblock Plus style filter rules and matches network
// requests against them.
package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Kind tells what a filter line does.
type Kind int

const (
	KindInvalid Kind = iota
	KindBlocking
	KindWhitelist
	KindComment
	KindElemHide
)

func (k Kind) String() string {
	switch k {
	case KindBlocking:
		return "blocking"
	case KindWhitelist:
		return "whitelist"
	case KindComment:
		return "comment"
	case KindElemHide:
		return "elemhide"
	default:
		return "invalid"
	}
}

// Request is a network request seen by the host.
type Request struct {
	URL          string
	ResourceType string // lower-case, e.g. "script", "image", "document"
	DocumentHost string // host of the page issuing the request
	ThirdParty   bool
}

// NewRequest describes a request for rawURL issued by the page at
// documentURL. Requests to a different registrable domain are third-party.
func NewRequest(rawURL, resourceType, documentURL string) Request {
	rq := Request{URL: rawURL, ResourceType: strings.ToLower(resourceType)}
	docHost := hostOf(documentURL)
	rq.DocumentHost = docHost
	if docHost != "" {
		rq.ThirdParty = baseDomain(hostOf(rawURL)) != baseDomain(docHost)
	}
	return rq
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func baseDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// Filter is one parsed filter line.
type Filter struct {
	Text string
	Kind Kind
	// Pattern is the URL pattern with the "@@" prefix and "$options" removed.
	Pattern string
	Reason  string // set for KindInvalid

	thirdParty    *bool
	matchCase     bool
	resourceTypes map[string]bool
	includeHosts  []string
	excludeHosts  []string
	re            *regexp.Regexp
}

// IsBlocking reports whether a match blocks the request.
func (f *Filter) IsBlocking() bool {
	return f != nil && f.Kind == KindBlocking
}

// PatternText returns the pattern the filter matches URLs with.
func (f *Filter) PatternText() string {
	return f.Pattern
}

func (f *Filter) String() string {
	return f.Text
}

var resourceTypeNames = map[string]string{
	"script":         "script",
	"image":          "image",
	"stylesheet":     "stylesheet",
	"xmlhttprequest": "xmlhttprequest",
	"xhr":            "xmlhttprequest",
	"subdocument":    "subdocument",
	"media":          "media",
	"font":           "font",
	"websocket":      "websocket",
	"ping":           "ping",
	"object":         "object",
	"document":       "document",
	"other":          "other",
}

// Parse turns one filter line into a Filter. It never fails; lines it cannot
// use come back as KindInvalid with a Reason.
func Parse(text string) *Filter {
	text = strings.TrimSpace(text)
	f := &Filter{Text: text}

	switch {
	case text == "" || strings.HasPrefix(text, "!") || strings.HasPrefix(text, "[Adblock"):
		f.Kind = KindComment
		return f
	case strings.Contains(text, "##") || strings.Contains(text, "#@#") || strings.Contains(text, "#?#"):
		f.Kind = KindElemHide
		return f
	}

	body := text
	f.Kind = KindBlocking
	if strings.HasPrefix(body, "@@") {
		f.Kind = KindWhitelist
		body = body[2:]
	}

	pattern, options := splitOptions(body)
	if err := f.applyOptions(options); err != nil {
		return invalid(text, err.Error())
	}
	f.Pattern = pattern

	re, err := compilePattern(pattern, f.matchCase)
	if err != nil {
		return invalid(text, err.Error())
	}
	f.re = re
	return f
}

func invalid(text, reason string) *Filter {
	return &Filter{Text: text, Kind: KindInvalid, Reason: reason}
}

// splitOptions separates "pattern$opt1,opt2". A "$" inside a /regex/ pattern
// is part of the pattern.
func splitOptions(body string) (string, string) {
	idx := strings.LastIndex(body, "$")
	if idx < 0 {
		return body, ""
	}
	if strings.HasPrefix(body, "/") && strings.HasSuffix(body, "/") {
		return body, ""
	}
	return body[:idx], body[idx+1:]
}

func (f *Filter) applyOptions(options string) error {
	if options == "" {
		return nil
	}
	for _, opt := range strings.Split(options, ",") {
		opt = strings.TrimSpace(opt)
		negated := strings.HasPrefix(opt, "~")
		name := strings.ToLower(strings.TrimPrefix(opt, "~"))
		value := ""
		if i := strings.Index(name, "="); i >= 0 {
			value = opt[strings.Index(opt, "=")+1:]
			name = name[:i]
		}

		switch {
		case name == "third-party":
			tp := !negated
			f.thirdParty = &tp
		case name == "match-case":
			f.matchCase = true
		case name == "domain":
			for _, d := range strings.Split(value, "|") {
				d = strings.ToLower(strings.TrimSpace(d))
				if d == "" {
					continue
				}
				if strings.HasPrefix(d, "~") {
					f.excludeHosts = append(f.excludeHosts, d[1:])
				} else {
					f.includeHosts = append(f.includeHosts, d)
				}
			}
		case resourceTypeNames[name] != "":
			if f.resourceTypes == nil {
				f.resourceTypes = make(map[string]bool)
				if negated {
					// A negated type never reaches the top-level document.
					for _, t := range resourceTypeNames {
						f.resourceTypes[t] = t != "document"
					}
				}
			}
			f.resourceTypes[resourceTypeNames[name]] = !negated
		default:
			return fmt.Errorf("unsupported option %q", opt)
		}
	}
	return nil
}

// separatorClass matches the "^" placeholder: anything but a letter, a digit
// or one of _ - . %, or the end of the address.
const separatorClass = `(?:[\x00-\x24\x26-\x2C\x2F\x3A-\x40\x5B-\x5E\x60\x7B-\x7F]|$)`

func compilePattern(pattern string, matchCase bool) (*regexp.Regexp, error) {
	var expr string
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		expr = pattern[1 : len(pattern)-1]
	} else {
		expr = patternToRegexp(pattern)
	}
	if !matchCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("bad pattern: %w", err)
	}
	return re, nil
}

func patternToRegexp(pattern string) string {
	var b strings.Builder
	p := pattern

	switch {
	case strings.HasPrefix(p, "||"):
		b.WriteString(`^[\w\-]+:/+(?:[^/]+\.)?`)
		p = p[2:]
	case strings.HasPrefix(p, "|"):
		b.WriteString("^")
		p = p[1:]
	}
	anchorEnd := false
	if strings.HasSuffix(p, "|") {
		anchorEnd = true
		p = p[:len(p)-1]
	}

	for _, r := range p {
		switch r {
		case '*':
			b.WriteString(".*")
		case '^':
			b.WriteString(separatorClass)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if anchorEnd {
		b.WriteString("$")
	}
	return b.String()
}

// Matches reports whether the filter applies to rq. Comments, element hiding
// and invalid filters never match.
func (f *Filter) Matches(rq Request) bool {
	if f == nil || f.re == nil {
		return false
	}
	if f.thirdParty != nil && *f.thirdParty != rq.ThirdParty {
		return false
	}
	if f.resourceTypes == nil {
		// Without type options a filter never blocks the top-level document.
		if rq.ResourceType == "document" {
			return false
		}
	} else if !f.resourceTypes[rq.ResourceType] {
		return false
	}
	if !f.hostAllowed(strings.ToLower(rq.DocumentHost)) {
		return false
	}
	return f.re.MatchString(rq.URL)
}

func (f *Filter) hostAllowed(host string) bool {
	for _, d := range f.excludeHosts {
		if hostMatches(host, d) {
			return false
		}
	}
	if len(f.includeHosts) == 0 {
		return true
	}
	for _, d := range f.includeHosts {
		if hostMatches(host, d) {
			return true
		}
	}
	return false
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
