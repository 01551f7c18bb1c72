package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/blockstats/internal/badge"
	"github.com/dgnsrekt/blockstats/internal/controller"
)

func registerTabHandlers(api huma.API, svc Service) {
	type blockedOutput struct {
		Body struct {
			TabID    int     `json:"tab_id"`
			Ads      int     `json:"ads"`
			Trackers int     `json:"trackers"`
			Total    int     `json:"total"`
			Value    float64 `json:"value" doc:"Packed count: ads in the integer part, trackers in thousandths"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-blocked-per-page", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/blocked", Summary: "Requests blocked on the tab's current page", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*blockedOutput, error) {
			count, err := svc.BlockedPerPage(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &blockedOutput{}
			out.Body.TabID = input.TabID
			out.Body.Ads = count.Ads
			out.Body.Trackers = count.Trackers
			out.Body.Total = count.Total()
			out.Body.Value = count.Value()
			return out, nil
		})

	type activeOutput struct {
		Body struct {
			Tabs []controller.ActiveTab `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-active-tabs", Method: http.MethodGet, Path: "/api/v1/tabs/active", Summary: "Active tab of every window", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*activeOutput, error) {
			tabs, err := svc.ActiveTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &activeOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "activate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/activate", Summary: "Bring a tab to the foreground", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
			if err := svc.ActivateTab(ctx, input.TabID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("activated"), nil
		})

	type badgesOutput struct {
		Body struct {
			Badges []badge.TabBadge `json:"badges"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-badges", Method: http.MethodGet, Path: "/api/v1/badges", Summary: "Badges currently drawn", Tags: []string{"Badges"}},
		func(ctx context.Context, input *struct{}) (*badgesOutput, error) {
			badges, err := svc.Badges(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &badgesOutput{}
			out.Body.Badges = badges
			return out, nil
		})
}
