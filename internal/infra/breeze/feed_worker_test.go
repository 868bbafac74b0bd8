package breeze

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"optiongate/internal/domain"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// startFeedServer runs a websocket endpoint that drains client frames and
// streams one-row tick batches until the client goes away.
func startFeedServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		batch := []map[string]any{
			{"stock_code": "NIFTY", "strike_price": 21500.0, "right": "CE", "ltp": 150.0},
		}
		for {
			if err := conn.WriteJSON(batch); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedWorker_DeliversBatches(t *testing.T) {
	w := NewFeedWorker(startFeedServer(t), NewSigner("key", "secret"))

	var mu sync.Mutex
	var got []domain.RawTick
	w.OnTicks(func(ticks []domain.RawTick) {
		mu.Lock()
		got = append(got, ticks...)
		mu.Unlock()
	})

	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			mu.Lock()
			defer mu.Unlock()
			if got[0]["stock_code"] != "NIFTY" {
				t.Fatalf("unexpected tick payload: %v", got[0])
			}
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no ticks delivered before deadline")
}

func TestFeedWorker_DisconnectWhileStreaming(t *testing.T) {
	w := NewFeedWorker(startFeedServer(t), NewSigner("key", "secret"))

	delivered := make(chan struct{}, 1)
	w.OnTicks(func([]domain.RawTick) {
		select {
		case delivered <- struct{}{}:
		default:
		}
	})

	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Tear down mid-stream: the read loop must observe the closed socket
	// without touching the cleared conn field.
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never started")
	}
	w.Disconnect()

	if w.Active() {
		t.Fatal("worker still active after Disconnect")
	}
}
