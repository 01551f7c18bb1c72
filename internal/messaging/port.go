// Package messaging routes named request messages from UI clients to
// handlers and carries them over a WebSocket.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dgnsrekt/blockstats/internal/stats"
)

// ErrNoHandler is returned by Dispatch for message types nobody handles.
var ErrNoHandler = errors.New("messaging: no handler")

// Message is a request received on the port. Body holds the whole envelope
// so handlers decode whichever fields they need.
type Message struct {
	Type string
	Body json.RawMessage
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("messaging: %s: empty body", m.Type)
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("messaging: %s: %w", m.Type, err)
	}
	return nil
}

// Handler answers one message. The result is sent back as JSON.
type Handler func(ctx context.Context, msg Message) (any, error)

// Port is the message router.
type Port struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewPort() *Port {
	return &Port{handlers: make(map[string]Handler)}
}

// On registers h for messages of type name, replacing any earlier handler.
func (p *Port) On(name string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = h
}

// Types lists the registered message types.
func (p *Port) Types() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the handler registered for msg.Type.
func (p *Port) Dispatch(ctx context.Context, msg Message) (any, error) {
	p.mu.RLock()
	h, ok := p.handlers[msg.Type]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrNoHandler, msg.Type)
	}
	return h(ctx, msg)
}

// BlockedCounter is what the stats handlers read from.
type BlockedCounter interface {
	BlockedPerPage(tabID int) stats.BlockCount
}

// TabPayload is the sender tab carried by stats messages.
type TabPayload struct {
	Tab struct {
		ID *int `json:"id"`
	} `json:"tab"`
}

func tabID(msg Message) (int, error) {
	var p TabPayload
	if err := msg.Decode(&p); err != nil {
		return 0, err
	}
	if p.Tab.ID == nil {
		return 0, fmt.Errorf("messaging: %s: missing tab.id", msg.Type)
	}
	return *p.Tab.ID, nil
}

// RegisterStats wires the stats message handlers onto p.
//
// "stats.getBlockedPerPage" answers with the packed number the popup has
// always read: ads in the integer part, trackers in thousandths.
// "stats.getBlockedCounts" answers with the structured count.
func RegisterStats(p *Port, counter BlockedCounter) {
	p.On("stats.getBlockedPerPage", func(_ context.Context, msg Message) (any, error) {
		id, err := tabID(msg)
		if err != nil {
			return nil, err
		}
		return counter.BlockedPerPage(id).Value(), nil
	})
	p.On("stats.getBlockedCounts", func(_ context.Context, msg Message) (any, error) {
		id, err := tabID(msg)
		if err != nil {
			return nil, err
		}
		return counter.BlockedPerPage(id), nil
	})
	slog.Debug("messaging stats handlers registered")
}
