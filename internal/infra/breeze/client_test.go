package breeze

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"optiongate/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "", "key", "secret")
	c.signer.SetSession("tok")
	return c
}

func TestClient_ChecksumHeadersOnEveryRequest(t *testing.T) {
	var captured http.Header
	var capturedBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		capturedBody = string(b)
		json.NewEncoder(w).Encode(map[string]any{"Success": []any{}, "Status": 200})
	})

	if _, err := c.Positions(context.Background()); err != nil {
		t.Fatalf("Positions: %v", err)
	}

	if captured.Get("X-AppKey") != "key" {
		t.Errorf("X-AppKey = %q", captured.Get("X-AppKey"))
	}
	if captured.Get("X-SessionToken") != "tok" {
		t.Errorf("X-SessionToken = %q", captured.Get("X-SessionToken"))
	}
	sign := captured.Get("X-Checksum")
	if !strings.HasPrefix(sign, "token ") {
		t.Fatalf("X-Checksum = %q, want 'token ' prefix", sign)
	}
	// The checksum must be reproducible from the sent timestamp and body.
	want := "token " + computeChecksum(captured.Get("X-Timestamp"), capturedBody, "secret")
	if sign != want {
		t.Errorf("checksum mismatch: got %q want %q", sign, want)
	}
}

func TestClient_PlaceOrderReturnsOrderID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stock_code"] != "NIFTY" || body["right"] != "Call" {
			t.Errorf("unexpected order body: %v", body)
		}
		if body["quantity"] != "75" {
			t.Errorf("quantity = %v, want string '75'", body["quantity"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Success": map[string]any{"order_id": "ORD42"},
			"Status":  200,
		})
	})

	leg := domain.OrderLeg{
		Symbol:   "NIFTY",
		Exchange: "NFO",
		Product:  "options",
		Action:   "buy",
		Quantity: 75,
		Price:    decimal.NewFromInt(120),
		Expiry:   "02-Sep-2026",
		Strike:   21500,
		Right:    "Call",
	}
	id, err := c.PlaceOrder(context.Background(), leg)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != "ORD42" {
		t.Fatalf("order id = %q, want ORD42", id)
	}
}

func TestClient_BusinessErrorSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"Success": nil,
			"Status":  500,
			"Error":   "Insufficient funds",
		})
	})

	_, err := c.PlaceOrder(context.Background(), domain.OrderLeg{Symbol: "NIFTY", Quantity: 1, Expiry: "x"})
	if err == nil || !strings.Contains(err.Error(), "Insufficient funds") {
		t.Fatalf("err = %v, want broker message surfaced", err)
	}
}

func TestClient_SuccessListAndObjectShapes(t *testing.T) {
	rows := []any{
		map[string]any{"stock_code": "NIFTY", "strike_price": 21500.0},
		map[string]any{"stock_code": "NIFTY", "strike_price": 21600.0},
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"Success": rows, "Status": 200})
	})

	got, err := c.OptionChain(context.Background(), domain.OptionChainRequest{
		Symbol: "NIFTY", Exchange: "NFO", Expiry: "02-Sep-2026", Right: domain.RightCall,
	})
	if err != nil {
		t.Fatalf("OptionChain: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}

	// Single-object Success payloads normalize to a one-row slice.
	c2 := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"Success": map[string]any{"bank_balance": 100000.0},
			"Status":  200,
		})
	})
	funds, err := c2.Funds(context.Background())
	if err != nil {
		t.Fatalf("Funds: %v", err)
	}
	if funds["bank_balance"] != 100000.0 {
		t.Fatalf("funds = %v", funds)
	}
}
