package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradesync/models"
)

func newTestClient(base string) *Client {
	return NewClient(base, 2*time.Second, 100, 100)
}

func TestFetchPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode([]models.Position{
			{Symbol: "BTCUSDT", Side: "long", Size: 1, EntryPrice: 100, MarkPrice: 110, UnrealizedPnl: 10, Mode: "isolated"},
		})
	}))
	defer srv.Close()

	positions, err := newTestClient(srv.URL).FetchPositions(context.Background())
	if err != nil {
		t.Fatalf("fetch positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "BTCUSDT" || positions[0].UnrealizedPnl != 10 {
		t.Fatalf("unexpected positions: %+v", positions)
	}
}

func TestFetchAccountSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account/summary" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.AccountSummary{Balance: 1000, UsedMargin: 50, Leverage: 10})
	}))
	defer srv.Close()

	summary, err := newTestClient(srv.URL).FetchAccountSummary(context.Background())
	if err != nil {
		t.Fatalf("fetch summary: %v", err)
	}
	if summary.Balance != 1000 || summary.UsedMargin != 50 || summary.Leverage != 10 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestFetchOpenOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/open" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]models.Order{
			{OrderID: "A1", Symbol: "BTCUSDT", Side: "buy", Type: "limit", Quantity: 1, Price: 100, Status: "new"},
		})
	}))
	defer srv.Close()

	orders, err := newTestClient(srv.URL).FetchOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("fetch open orders: %v", err)
	}
	if len(orders) != 1 || orders[0].OrderID != "A1" {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestFetchErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.FetchPositions(context.Background()); err == nil {
		t.Fatalf("expected error on 502")
	}
	if _, err := c.FetchOpenOrders(context.Background()); err == nil {
		t.Fatalf("expected error on 502")
	}
	if _, err := c.FetchAccountSummary(context.Background()); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestSubmitOrderGeneratesClientOrderID(t *testing.T) {
	var received models.OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(models.OrderAck{OrderID: "S1", Status: "accepted"})
	}))
	defer srv.Close()

	ack, err := newTestClient(srv.URL).SubmitOrder(context.Background(), models.OrderRequest{
		Symbol: "BTCUSDT", Side: "buy", Type: "limit", Quantity: 1, Price: 100,
	})
	if err != nil {
		t.Fatalf("submit order: %v", err)
	}
	if ack.OrderID != "S1" || ack.Status != "accepted" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if received.ClientOrderID == "" {
		t.Fatalf("expected a generated client_order_id on the wire")
	}
	if received.Symbol != "BTCUSDT" || received.Quantity != 1 {
		t.Fatalf("request body mangled: %+v", received)
	}
}

func TestSubmitOrderKeepsCallerClientOrderID(t *testing.T) {
	var received models.OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(models.OrderAck{OrderID: "S2", Status: "accepted"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SubmitOrder(context.Background(), models.OrderRequest{
		Symbol: "BTCUSDT", Side: "sell", Type: "market", Quantity: 1, ClientOrderID: "mine-42",
	})
	if err != nil {
		t.Fatalf("submit order: %v", err)
	}
	if received.ClientOrderID != "mine-42" {
		t.Fatalf("caller-supplied client_order_id replaced: %q", received.ClientOrderID)
	}
}

func TestSubmitOrderRejectionCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "insufficient margin"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SubmitOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT", Side: "buy", Type: "market", Quantity: 100})
	if err == nil {
		t.Fatalf("expected rejection error")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %T: %v", err, err)
	}
	if cmdErr.Reason != "insufficient margin" {
		t.Fatalf("expected server message in reason, got %q", cmdErr.Reason)
	}
	if cmdErr.Error() != "submit order failed: insufficient margin" {
		t.Fatalf("unexpected error text: %q", cmdErr.Error())
	}
}

func TestSubmitOrderRejectionWithoutBodyMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SubmitOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT"})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %T: %v", err, err)
	}
	if cmdErr.Reason != "unexpected status 500" {
		t.Fatalf("expected status fallback reason, got %q", cmdErr.Reason)
	}
}

func TestPingMeasuresLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rtt, err := newTestClient(srv.URL).Ping(context.Background())
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if rtt < 20*time.Millisecond {
		t.Fatalf("latency below the server delay: %v", rtt)
	}
}

func TestPingFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Ping(context.Background()); err == nil {
		t.Fatalf("expected error on 503")
	}
}

func TestRequestsHonorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond, 100, 100)
	start := time.Now()
	if _, err := c.FetchPositions(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("timeout not enforced, call took %v", elapsed)
	}
}
