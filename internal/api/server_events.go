package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/blockstats/internal/controller"
)

// registerEventHandlers accepts browser events from hosts that do not speak
// CDP, such as an extension forwarding its tab events.
func registerEventHandlers(api huma.API, svc Service) {
	type tabActivatedInput struct {
		Body struct {
			TabID    int `json:"tab_id" minimum:"0"`
			WindowID int `json:"window_id" minimum:"0"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "event-tab-activated", Method: http.MethodPost, Path: "/api/v1/events/tab-activated", Summary: "A tab became the active tab of its window", Tags: []string{"Events"}},
		func(ctx context.Context, input *tabActivatedInput) (*statusOutput, error) {
			if err := svc.TabActivated(ctx, input.Body.TabID, input.Body.WindowID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("accepted"), nil
		})

	type windowRemovedInput struct {
		Body struct {
			WindowID int `json:"window_id" minimum:"0"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "event-window-removed", Method: http.MethodPost, Path: "/api/v1/events/window-removed", Summary: "A window was closed", Tags: []string{"Events"}},
		func(ctx context.Context, input *windowRemovedInput) (*statusOutput, error) {
			if err := svc.WindowRemoved(ctx, input.Body.WindowID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("accepted"), nil
		})

	type navigationInput struct {
		Body struct {
			TabID   int `json:"tab_id" minimum:"0"`
			FrameID int `json:"frame_id" doc:"0 for the top-level frame"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "event-navigation-committed", Method: http.MethodPost, Path: "/api/v1/events/navigation-committed", Summary: "A navigation was committed in a frame", Tags: []string{"Events"}},
		func(ctx context.Context, input *navigationInput) (*statusOutput, error) {
			if err := svc.NavigationCommitted(ctx, input.Body.TabID, input.Body.FrameID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("accepted"), nil
		})

	type requestBlockedInput struct {
		Body struct {
			Filter string `json:"filter" doc:"Text of the filter that matched"`
			TabIDs []int  `json:"tab_ids" doc:"Tabs the request belonged to"`
		}
	}
	type requestBlockedOutput struct {
		Body controller.BlockedRequest
	}
	huma.Register(api, huma.Operation{OperationID: "event-request-blocked", Method: http.MethodPost, Path: "/api/v1/events/request-blocked", Summary: "A filter matched a request", Tags: []string{"Events"}},
		func(ctx context.Context, input *requestBlockedInput) (*requestBlockedOutput, error) {
			result, err := svc.RequestBlocked(ctx, input.Body.Filter, input.Body.TabIDs)
			if err != nil {
				return nil, mapErr(err)
			}
			return &requestBlockedOutput{Body: result}, nil
		})

	type pageRemovedInput struct {
		Body struct {
			TabID int `json:"tab_id" minimum:"0"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "event-page-removed", Method: http.MethodPost, Path: "/api/v1/events/page-removed", Summary: "A page was discarded", Tags: []string{"Events"}},
		func(ctx context.Context, input *pageRemovedInput) (*statusOutput, error) {
			if err := svc.PageRemoved(ctx, input.Body.TabID); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("accepted"), nil
		})
}
