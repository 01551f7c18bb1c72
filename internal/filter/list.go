package filter

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// List holds the filters requests are matched against.
type List struct {
	mu        sync.RWMutex
	blocking  []*Filter
	whitelist []*Filter
	skipped   int
}

func NewList() *List {
	return &List{}
}

// Add parses text and keeps the filter if it can match requests. It returns
// the parsed filter either way.
func (l *List) Add(text string) *Filter {
	f := Parse(text)
	l.mu.Lock()
	defer l.mu.Unlock()
	switch f.Kind {
	case KindBlocking:
		l.blocking = append(l.blocking, f)
	case KindWhitelist:
		l.whitelist = append(l.whitelist, f)
	case KindInvalid:
		l.skipped++
		slog.Debug("filter skipped", "text", f.Text, "reason", f.Reason)
	}
	return f
}

// ReadFrom adds every line of r. It returns the number of lines read.
func (l *List) ReadFrom(r io.Reader) (int64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var n int64
	for sc.Scan() {
		l.Add(sc.Text())
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("filter list: %w", err)
	}
	return n, nil
}

// LoadFile adds the filters of a plain filter list file.
func (l *List) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("filter list: %w", err)
	}
	defer f.Close()
	n, err := l.ReadFrom(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("filter list loaded", "path", path, "lines", n)
	return nil
}

// Match returns the filter deciding rq: a matching whitelist filter when one
// exists, otherwise the first matching blocking filter, otherwise nil.
func (l *List) Match(rq Request) *Filter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, f := range l.whitelist {
		if f.Matches(rq) {
			return f
		}
	}
	for _, f := range l.blocking {
		if f.Matches(rq) {
			return f
		}
	}
	return nil
}

// Len returns the number of blocking and whitelist filters held.
func (l *List) Len() (blocking, whitelist int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocking), len(l.whitelist)
}

// Skipped returns how many lines failed to parse.
func (l *List) Skipped() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.skipped
}

// Config is the top-level YAML filter configuration.
type Config struct {
	// Lists are filter list files; relative paths resolve against the
	// config file's directory.
	Lists []string `yaml:"lists"`
	Rules []string `yaml:"rules,omitempty"`
}

// LoadConfig reads and validates a YAML filter config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("filter config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("filter config: %w", err)
	}
	if len(cfg.Lists) == 0 && len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("filter config: %s has no lists and no rules", path)
	}
	dir := filepath.Dir(path)
	for i, p := range cfg.Lists {
		if p == "" {
			return nil, fmt.Errorf("filter config: lists[%d] is empty", i)
		}
		if !filepath.IsAbs(p) {
			cfg.Lists[i] = filepath.Join(dir, p)
		}
	}
	return &cfg, nil
}

// Build loads every list and inline rule of cfg into a new List.
func (cfg *Config) Build() (*List, error) {
	l := NewList()
	for _, p := range cfg.Lists {
		if err := l.LoadFile(p); err != nil {
			return nil, err
		}
	}
	for _, r := range cfg.Rules {
		l.Add(r)
	}
	blocking, whitelist := l.Len()
	slog.Info("filters ready", "blocking", blocking, "whitelist", whitelist, "skipped", l.Skipped())
	return l, nil
}
