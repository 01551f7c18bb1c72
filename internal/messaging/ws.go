package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type envelope struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Type string          `json:"type"`
}

type reply struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handle decodes one raw envelope, dispatches it and encodes the reply.
func (p *Port) Handle(ctx context.Context, raw []byte) []byte {
	var env envelope
	var out reply
	if err := json.Unmarshal(raw, &env); err != nil {
		out.Error = "messaging: bad envelope: " + err.Error()
	} else {
		out.ID = env.ID
		result, err := p.Dispatch(ctx, Message{Type: env.Type, Body: raw})
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Result = result
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		data, _ = json.Marshal(reply{ID: out.ID, Error: "messaging: encode reply: " + err.Error()})
	}
	return data
}

// ServeWS upgrades the request to a WebSocket and answers text messages
// until the client goes away.
func (p *Port) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Debug("messaging ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("messaging ws client connected", "remote", r.RemoteAddr)
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			slog.Debug("messaging ws read loop exit", "remote", r.RemoteAddr, "error", err)
			return
		}
		if err := wsutil.WriteServerText(conn, p.Handle(ctx, data)); err != nil {
			slog.Debug("messaging ws write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}
