package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/blockstats/internal/stats"
)

type fakeCounter map[int]stats.BlockCount

func (f fakeCounter) BlockedPerPage(tabID int) stats.BlockCount {
	return f[tabID]
}

func newStatsPort() *Port {
	p := NewPort()
	RegisterStats(p, fakeCounter{7: {Ads: 3, Trackers: 2}})
	return p
}

func TestDispatchGetBlockedPerPage(t *testing.T) {
	p := newStatsPort()
	got, err := p.Dispatch(context.Background(), Message{
		Type: "stats.getBlockedPerPage",
		Body: json.RawMessage(`{"type":"stats.getBlockedPerPage","tab":{"id":7}}`),
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if want := 3.002; got != want {
		t.Fatalf("Dispatch() = %v; want %v", got, want)
	}
}

func TestDispatchUnknownPageIsZero(t *testing.T) {
	p := newStatsPort()
	got, err := p.Dispatch(context.Background(), Message{
		Type: "stats.getBlockedPerPage",
		Body: json.RawMessage(`{"tab":{"id":99}}`),
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got != 0.0 {
		t.Fatalf("Dispatch() = %v; want 0", got)
	}
}

func TestDispatchStructuredCounts(t *testing.T) {
	p := newStatsPort()
	got, err := p.Dispatch(context.Background(), Message{
		Type: "stats.getBlockedCounts",
		Body: json.RawMessage(`{"tab":{"id":7}}`),
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if want := (stats.BlockCount{Ads: 3, Trackers: 2}); got != want {
		t.Fatalf("Dispatch() = %v; want %v", got, want)
	}
}

func TestDispatchErrors(t *testing.T) {
	p := newStatsPort()
	ctx := context.Background()

	if _, err := p.Dispatch(ctx, Message{Type: "stats.nope"}); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("Dispatch(unknown) error = %v; want ErrNoHandler", err)
	}
	if _, err := p.Dispatch(ctx, Message{Type: "stats.getBlockedPerPage", Body: json.RawMessage(`{"tab":{}}`)}); err == nil {
		t.Fatal("Dispatch() without tab id = nil error")
	}
	if _, err := p.Dispatch(ctx, Message{Type: "stats.getBlockedPerPage"}); err == nil {
		t.Fatal("Dispatch() without body = nil error")
	}
}

func TestTypes(t *testing.T) {
	got := strings.Join(newStatsPort().Types(), ",")
	if want := "stats.getBlockedCounts,stats.getBlockedPerPage"; got != want {
		t.Fatalf("Types() = %q; want %q", got, want)
	}
}

func TestHandleEnvelope(t *testing.T) {
	p := newStatsPort()
	ctx := context.Background()

	var ok struct {
		ID     int     `json:"id"`
		Result float64 `json:"result"`
		Error  string  `json:"error"`
	}
	if err := json.Unmarshal(p.Handle(ctx, []byte(`{"id":4,"type":"stats.getBlockedPerPage","tab":{"id":7}}`)), &ok); err != nil {
		t.Fatal(err)
	}
	if ok.ID != 4 || ok.Result != 3.002 || ok.Error != "" {
		t.Fatalf("reply = %+v; want id 4 result 3.002", ok)
	}

	var bad map[string]any
	if err := json.Unmarshal(p.Handle(ctx, []byte(`not json`)), &bad); err != nil {
		t.Fatal(err)
	}
	if _, has := bad["error"]; !has {
		t.Fatalf("reply = %v; want error", bad)
	}
}

func TestServeWS(t *testing.T) {
	p := newStatsPort()
	srv := httptest.NewServer(http.HandlerFunc(p.ServeWS))
	defer srv.Close()

	ctx := context.Background()
	conn, _, _, err := ws.Dial(ctx, "ws://"+strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("ws.Dial() error = %v", err)
	}
	defer conn.Close()

	requests := []string{
		`{"id":1,"type":"stats.getBlockedPerPage","tab":{"id":7}}`,
		`{"id":2,"type":"stats.unknown"}`,
	}
	for _, rq := range requests {
		if err := wsutil.WriteClientText(conn, []byte(rq)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var first struct {
		ID     int     `json:"id"`
		Result float64 `json:"result"`
	}
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatal(err)
	}
	if first.ID != 1 || first.Result != 3.002 {
		t.Fatalf("first reply = %s", data)
	}

	var second struct {
		ID    int    `json:"id"`
		Error string `json:"error"`
	}
	data, err = wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, &second); err != nil {
		t.Fatal(err)
	}
	if second.ID != 2 || !strings.Contains(second.Error, "no handler") {
		t.Fatalf("second reply = %s", data)
	}
}
