package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerMessageHandlers(api huma.API, svc Service) {
	type messageInput struct {
		RawBody []byte `contentType:"application/json"`
	}
	type messageOutput struct {
		Body struct {
			Result any `json:"result"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "post-message", Method: http.MethodPost, Path: "/api/v1/messages", Summary: "Send one port message, e.g. {\"type\":\"stats.getBlockedPerPage\",\"tab\":{\"id\":1}}", Tags: []string{"Messages"}},
		func(ctx context.Context, input *messageInput) (*messageOutput, error) {
			result, err := svc.Message(ctx, json.RawMessage(input.RawBody))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &messageOutput{}
			out.Body.Result = result
			return out, nil
		})
}
