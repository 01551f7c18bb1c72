package badge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// SSEHandler streams badge updates as server-sent events. Clients may limit
// the stream to some tabs with ?tabs=1,2. The current badges are replayed
// first so a fresh client starts in sync.
func SSEHandler(board *Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		tabFilter, err := parseTabFilter(r.URL.Query().Get("tabs"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, ch := board.Broker().Subscribe()
		defer board.Broker().Unsubscribe(id)

		for _, tb := range board.Snapshot() {
			if tabFilter != nil && !tabFilter[tb.TabID] {
				continue
			}
			badge := tb.Badge
			writeEvent(w, Update{TabID: tb.TabID, Badge: &badge, At: board.now().UTC()})
		}
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case u, ok := <-ch:
				if !ok {
					return
				}
				if tabFilter != nil && !tabFilter[u.TabID] {
					continue
				}
				writeEvent(w, u)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, u Update) {
	payload, err := json.Marshal(u)
	if err != nil {
		slog.Debug("badge event marshal failed", "tab_id", u.TabID, "error", err)
		return
	}
	fmt.Fprintf(w, "event: badge\ndata: %s\n\n", payload)
}

func parseTabFilter(q string) (map[int]bool, error) {
	if q == "" {
		return nil, nil
	}
	filter := make(map[int]bool)
	for _, f := range strings.Split(q, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid tab id %q", f)
		}
		filter[id] = true
	}
	return filter, nil
}
