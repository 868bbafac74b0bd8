package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"optiongate/internal/domain"

	"github.com/gorilla/websocket"
)

func TestTickStreamDeliversFrames(t *testing.T) {
	srv, broker := newTestServer(t)
	connectSession(t, srv)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/ticks?token=" + testToken
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	// First frame mirrors the current cache, then a pushed tick must show up.
	broker.mu.Lock()
	h := broker.handler
	broker.mu.Unlock()
	h([]domain.RawTick{{"stock_code": "NIFTY", "strike_price": 21500.0, "right": "CE", "ltp": 150.0}})

	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var frame struct {
			Type    string `json:"type"`
			Version int64  `json:"version"`
			Ticks   []struct {
				StockCode string `json:"stock_code"`
			} `json:"ticks"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("no tick frame before deadline: %v", err)
		}
		if frame.Type == "tick_update" && len(frame.Ticks) > 0 {
			if frame.Ticks[0].StockCode != "NIFTY" {
				t.Fatalf("unexpected tick row: %+v", frame.Ticks[0])
			}
			return
		}
	}
}

func TestTickStreamRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/ticks?token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake failure with a bad token")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
