package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerMiscHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return newStatus("ok"), nil
		})

	type totalOutput struct {
		Body struct {
			BlockedTotal int64 `json:"blocked_total"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-blocked-total", Method: http.MethodGet, Path: "/api/v1/stats/total", Summary: "Lifetime number of blocked requests", Tags: []string{"Stats"}},
		func(ctx context.Context, input *struct{}) (*totalOutput, error) {
			total, err := svc.BlockedTotal(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &totalOutput{}
			out.Body.BlockedTotal = total
			return out, nil
		})

	type showBadgeOutput struct {
		Body struct {
			ShowStatsInIcon bool `json:"show_statsinicon"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-show-badge", Method: http.MethodGet, Path: "/api/v1/prefs/show-badge", Summary: "Whether blocked counts are drawn on the badge", Tags: []string{"Prefs"}},
		func(ctx context.Context, input *struct{}) (*showBadgeOutput, error) {
			show, err := svc.ShowBadge(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &showBadgeOutput{}
			out.Body.ShowStatsInIcon = show
			return out, nil
		})

	type setShowBadgeInput struct {
		Body struct {
			ShowStatsInIcon bool `json:"show_statsinicon" doc:"Draw blocked counts on the badge"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-show-badge", Method: http.MethodPut, Path: "/api/v1/prefs/show-badge", Summary: "Turn badge counts on or off", Tags: []string{"Prefs"}},
		func(ctx context.Context, input *setShowBadgeInput) (*showBadgeOutput, error) {
			show, err := svc.SetShowBadge(ctx, input.Body.ShowStatsInIcon)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &showBadgeOutput{}
			out.Body.ShowStatsInIcon = show
			return out, nil
		})
}
