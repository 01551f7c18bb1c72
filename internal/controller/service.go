package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgnsrekt/blockstats/internal/badge"
	"github.com/dgnsrekt/blockstats/internal/classify"
	"github.com/dgnsrekt/blockstats/internal/filter"
	"github.com/dgnsrekt/blockstats/internal/host"
	"github.com/dgnsrekt/blockstats/internal/messaging"
	"github.com/dgnsrekt/blockstats/internal/prefs"
	"github.com/dgnsrekt/blockstats/internal/stats"
)

// TabHost is the browser side the service can steer. It is nil when events
// only arrive over HTTP.
type TabHost interface {
	ActivateTab(ctx context.Context, tabID int) error
}

// ActiveTab is the active tab of one window.
type ActiveTab struct {
	WindowID int `json:"window_id"`
	TabID    int `json:"tab_id"`
}

// BlockedRequest reports the outcome of a request-blocked event.
type BlockedRequest struct {
	Counted  bool   `json:"counted"`
	Kind     string `json:"kind"`
	Category string `json:"category,omitempty"`
}

// Service wraps the blocked-request tracker and its collaborators.
type Service struct {
	tracker *stats.Tracker
	prefs   *prefs.Store
	board   *badge.Board
	port    *messaging.Port
	host    TabHost
}

func NewService(tracker *stats.Tracker, store *prefs.Store, board *badge.Board, port *messaging.Port, h TabHost) *Service {
	return &Service{tracker: tracker, prefs: store, board: board, port: port, host: h}
}

func (s *Service) requireTabID(tabID int) error {
	if tabID < 0 {
		return &CodedError{Code: CodeValidation, Message: fmt.Sprintf("tab_id must not be negative (got %d)", tabID)}
	}
	return nil
}

func (s *Service) requireWindowID(windowID int) error {
	if windowID < 0 {
		return &CodedError{Code: CodeValidation, Message: fmt.Sprintf("window_id must not be negative (got %d)", windowID)}
	}
	return nil
}

func (s *Service) BlockedPerPage(ctx context.Context, tabID int) (stats.BlockCount, error) {
	if err := s.requireTabID(tabID); err != nil {
		return stats.BlockCount{}, err
	}
	return s.tracker.BlockedPerPage(tabID), nil
}

func (s *Service) ActiveTabs(ctx context.Context) ([]ActiveTab, error) {
	snap := s.tracker.Snapshot()
	out := make([]ActiveTab, 0, len(snap.WindowTabs))
	for windowID, tabID := range snap.WindowTabs {
		out = append(out, ActiveTab{WindowID: windowID, TabID: tabID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowID < out[j].WindowID })
	return out, nil
}

func (s *Service) ActivateTab(ctx context.Context, tabID int) error {
	if err := s.requireTabID(tabID); err != nil {
		return err
	}
	if s.host == nil {
		return newError(CodeHostUnavailable, "no browser host connected", nil)
	}
	if err := s.host.ActivateTab(ctx, tabID); err != nil {
		if errors.Is(err, host.ErrUnknownTab) {
			return newError(CodeTabNotFound, fmt.Sprintf("tab %d not found", tabID), err)
		}
		return newError(CodeHostUnavailable, "activate tab failed", err)
	}
	return nil
}

func (s *Service) Badges(ctx context.Context) ([]badge.TabBadge, error) {
	return s.board.Snapshot(), nil
}

// Board is the badge board streamed to SSE clients.
func (s *Service) Board() *badge.Board {
	return s.board
}

func (s *Service) BlockedTotal(ctx context.Context) (int64, error) {
	return s.prefs.BlockedTotal(), nil
}

func (s *Service) ShowBadge(ctx context.Context) (bool, error) {
	return s.prefs.ShowStatsInIcon(), nil
}

// SetShowBadge stores the badge preference. The tracker reacts through its
// preference subscription.
func (s *Service) SetShowBadge(ctx context.Context, show bool) (bool, error) {
	if err := s.prefs.SetBool(ctx, prefs.KeyShowStatsInIcon, show); err != nil {
		return false, newError(CodePrefsFailure, "save show_statsinicon failed", err)
	}
	return s.prefs.ShowStatsInIcon(), nil
}

func (s *Service) TabActivated(ctx context.Context, tabID, windowID int) error {
	if err := s.requireTabID(tabID); err != nil {
		return err
	}
	if err := s.requireWindowID(windowID); err != nil {
		return err
	}
	s.tracker.TabActivated(tabID, windowID)
	return nil
}

func (s *Service) WindowRemoved(ctx context.Context, windowID int) error {
	if err := s.requireWindowID(windowID); err != nil {
		return err
	}
	s.tracker.WindowRemoved(windowID)
	return nil
}

func (s *Service) NavigationCommitted(ctx context.Context, tabID, frameID int) error {
	if err := s.requireTabID(tabID); err != nil {
		return err
	}
	s.tracker.NavigationCommitted(tabID, frameID)
	return nil
}

// PageRemoved drops the tab's counts and its badge.
func (s *Service) PageRemoved(ctx context.Context, tabID int) error {
	if err := s.requireTabID(tabID); err != nil {
		return err
	}
	s.tracker.PageRemoved(tabID)
	if _, drawn := s.board.Get(tabID); drawn {
		s.board.SetBadge(tabID, nil)
	}
	return nil
}

// RequestBlocked parses filterText and records it against tabIDs. Filters
// that do not block are accepted but not counted.
func (s *Service) RequestBlocked(ctx context.Context, filterText string, tabIDs []int) (BlockedRequest, error) {
	if strings.TrimSpace(filterText) == "" {
		return BlockedRequest{}, &CodedError{Code: CodeValidation, Message: "filter is required"}
	}
	if len(tabIDs) == 0 {
		return BlockedRequest{}, &CodedError{Code: CodeValidation, Message: "tab_ids is required"}
	}
	for _, id := range tabIDs {
		if err := s.requireTabID(id); err != nil {
			return BlockedRequest{}, err
		}
	}

	f := filter.Parse(filterText)
	if f.Kind == filter.KindInvalid {
		return BlockedRequest{}, &CodedError{Code: CodeValidation, Message: "invalid filter: " + f.Reason}
	}
	out := BlockedRequest{Kind: f.Kind.String()}
	if f.IsBlocking() {
		s.tracker.RecordBlockedRequest(f, tabIDs)
		out.Counted = true
		out.Category = classify.Classify(f.PatternText()).String()
	}
	return out, nil
}

// Message dispatches one port message; raw is the whole envelope.
func (s *Service) Message(ctx context.Context, raw json.RawMessage) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &CodedError{Code: CodeValidation, Message: "invalid message", Cause: err}
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, &CodedError{Code: CodeValidation, Message: "type is required"}
	}
	result, err := s.port.Dispatch(ctx, messaging.Message{Type: env.Type, Body: raw})
	if err != nil {
		if errors.Is(err, messaging.ErrNoHandler) {
			return nil, newError(CodeNoHandler, fmt.Sprintf("no handler for %q", env.Type), err)
		}
		return nil, &CodedError{Code: CodeValidation, Message: err.Error(), Cause: err}
	}
	return result, nil
}

// Port is the message port served over WebSocket.
func (s *Service) Port() *messaging.Port {
	return s.port
}

// Listener adapts the service to host events. Host ids are always valid, so
// the validation errors are only logged.
func (s *Service) Listener() host.Listener {
	return hostEvents{s: s}
}

type hostEvents struct {
	s *Service
}

func (e hostEvents) RecordBlockedRequest(f stats.Filter, tabIDs []int) {
	e.s.tracker.RecordBlockedRequest(f, tabIDs)
}

func (e hostEvents) NavigationCommitted(tabID, frameID int) {
	e.log("navigation_committed", e.s.NavigationCommitted(context.Background(), tabID, frameID))
}

func (e hostEvents) TabActivated(tabID, windowID int) {
	e.log("tab_activated", e.s.TabActivated(context.Background(), tabID, windowID))
}

func (e hostEvents) WindowRemoved(windowID int) {
	e.log("window_removed", e.s.WindowRemoved(context.Background(), windowID))
}

func (e hostEvents) PageRemoved(tabID int) {
	e.log("page_removed", e.s.PageRemoved(context.Background(), tabID))
}

func (e hostEvents) log(event string, err error) {
	if err != nil {
		slog.Warn("controller host event rejected", "event", event, "error", err)
	}
}
