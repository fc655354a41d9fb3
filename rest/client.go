package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tradesync/logger"
	"tradesync/models"
)

// Client talks to the pull/command endpoints: snapshot fetches, order
// submission and the health probe. Every call carries a bounded timeout; a
// timed-out call is indistinguishable from a failed one for the caller.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	submit  *rate.Limiter
	log     *logger.Log
}

func NewClient(base string, timeout time.Duration, submitRate float64, submitBurst int) *Client {
	return &Client{
		base:    strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		submit:  rate.NewLimiter(rate.Limit(submitRate), submitBurst),
		log:     logger.GetLogger(),
	}
}

// FetchPositions returns the authoritative ordered collection of open
// positions.
func (c *Client) FetchPositions(ctx context.Context) ([]models.Position, error) {
	var positions []models.Position
	n, err := c.getJSON(ctx, "/positions", &positions)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	logger.IncrementSnapshotRead("positions", n)
	return positions, nil
}

// FetchAccountSummary returns the authoritative account summary snapshot.
func (c *Client) FetchAccountSummary(ctx context.Context) (models.AccountSummary, error) {
	var summary models.AccountSummary
	n, err := c.getJSON(ctx, "/account/summary", &summary)
	if err != nil {
		return models.AccountSummary{}, fmt.Errorf("fetch account summary: %w", err)
	}
	logger.IncrementSnapshotRead("account_summary", n)
	return summary, nil
}

// FetchOpenOrders returns the current open-order set. A failed fetch is
// reported as an error so the caller can retain its previous state instead of
// wiping the order book view on a transient failure.
func (c *Client) FetchOpenOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	n, err := c.getJSON(ctx, "/orders/open", &orders)
	if err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}
	logger.IncrementSnapshotRead("open_orders", n)
	return orders, nil
}

// SubmitOrder posts a new order. Success leaves reconciliation to subsequent
// execution events and snapshot fetches; failure is returned as a typed
// CommandError and performs no state mutation anywhere.
func (c *Client) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.submit.Wait(ctx); err != nil {
		return models.OrderAck{}, &CommandError{Op: "submit order", Reason: "rate limit wait aborted: " + err.Error()}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return models.OrderAck{}, &CommandError{Op: "submit order", Reason: "encode request: " + err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/orders", bytes.NewReader(body))
	if err != nil {
		return models.OrderAck{}, &CommandError{Op: "submit order", Reason: "build request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.OrderAck{}, &CommandError{Op: "submit order", Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.OrderAck{}, &CommandError{Op: "submit order", Reason: "read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		var failure struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &failure) == nil && failure.Message != "" {
			reason = failure.Message
		}
		return models.OrderAck{}, &CommandError{Op: "submit order", Reason: reason}
	}

	var ack models.OrderAck
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return models.OrderAck{}, &CommandError{Op: "submit order", Reason: "decode response: " + err.Error()}
	}

	logger.IncrementOrderSubmitted()
	c.log.WithComponent("rest_client").WithFields(logger.Fields{
		"symbol":          req.Symbol,
		"side":            req.Side,
		"client_order_id": req.ClientOrderID,
	}).Info("order submitted")

	return ack, nil
}

// Ping performs a lightweight round-trip against the health endpoint and
// returns the observed latency. Any 2xx response counts; only the round-trip
// time is consumed.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/ping", nil)
	if err != nil {
		return 0, fmt.Errorf("health probe: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("health probe: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("health probe: unexpected status %d", resp.StatusCode)
	}

	return time.Since(start), nil
}

// getJSON performs a GET with a bounded timeout and decodes the JSON
// response into out. It returns the response size for metric accounting.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response %s: %w", path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return 0, fmt.Errorf("decode response %s: %w", path, err)
	}

	return len(body), nil
}
