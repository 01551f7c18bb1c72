package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/blockstats/internal/badge"
	"github.com/dgnsrekt/blockstats/internal/controller"
	"github.com/dgnsrekt/blockstats/internal/messaging"
	"github.com/dgnsrekt/blockstats/internal/stats"
)

type Service interface {
	BlockedPerPage(ctx context.Context, tabID int) (stats.BlockCount, error)
	ActiveTabs(ctx context.Context) ([]controller.ActiveTab, error)
	ActivateTab(ctx context.Context, tabID int) error
	Badges(ctx context.Context) ([]badge.TabBadge, error)
	BlockedTotal(ctx context.Context) (int64, error)
	ShowBadge(ctx context.Context) (bool, error)
	SetShowBadge(ctx context.Context, show bool) (bool, error)
	TabActivated(ctx context.Context, tabID, windowID int) error
	WindowRemoved(ctx context.Context, windowID int) error
	NavigationCommitted(ctx context.Context, tabID, frameID int) error
	PageRemoved(ctx context.Context, tabID int) error
	RequestBlocked(ctx context.Context, filterText string, tabIDs []int) (controller.BlockedRequest, error)
	Message(ctx context.Context, raw json.RawMessage) (any, error)
	Board() *badge.Board
	Port() *messaging.Port
}

type tabIDInput struct {
	TabID int `path:"tab_id" minimum:"0" doc:"Numeric tab id"`
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func newStatus(status string) *statusOutput {
	out := &statusOutput{}
	out.Body.Status = status
	return out
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Blockstats API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/api/v1/badges/stream", badge.SSEHandler(svc.Board()))
	router.Get("/api/v1/messages/ws", svc.Port().ServeWS)

	registerMiscHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerEventHandlers(api, svc)
	registerMessageHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *controller.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case controller.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case controller.CodeTabNotFound, controller.CodeNoHandler:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeHostUnavailable, controller.CodePrefsFailure:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
