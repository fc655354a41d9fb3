package market

import (
	"testing"
	"time"
)

func newTestAggregator() *Aggregator {
	// Disabled stream; tests drive handleFrame directly.
	return NewAggregator("ws://127.0.0.1:1", false, 10*time.Millisecond)
}

func TestValidFrame(t *testing.T) {
	cases := []struct {
		name  string
		frame map[string]interface{}
		want  bool
	}{
		{"full frame", map[string]interface{}{"symbol": "BTCUSDT", "last_price": 100.2}, true},
		{"missing symbol", map[string]interface{}{"last_price": 100.2}, false},
		{"empty symbol", map[string]interface{}{"symbol": ""}, false},
		{"non-string symbol", map[string]interface{}{"symbol": 42.0}, false},
	}
	for _, tc := range cases {
		if got := ValidFrame(tc.frame); got != tc.want {
			t.Errorf("%s: ValidFrame = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSnapshotBeforeFirstFrame(t *testing.T) {
	a := newTestAggregator()

	if _, ok := a.Snapshot(); ok {
		t.Fatalf("expected no snapshot before the first frame")
	}
	if got := a.LastPrice(); got != 0 {
		t.Fatalf("expected default last price 0, got %v", got)
	}
	if _, ok := a.Spread(); ok {
		t.Fatalf("expected unknown spread before the first frame")
	}
}

func TestFrameReplacesSnapshotWholesale(t *testing.T) {
	a := newTestAggregator()

	a.handleFrame(map[string]interface{}{
		"symbol":     "BTCUSDT",
		"best_bid":   100.0,
		"best_ask":   100.5,
		"bid_size":   2.0,
		"ask_size":   1.5,
		"last_price": 100.2,
		"timestamp":  "t1",
	})

	snap, ok := a.Snapshot()
	if !ok {
		t.Fatalf("expected a snapshot after the first frame")
	}
	if snap.LastPrice != 100.2 || *snap.BestBid != 100.0 || *snap.BestAsk != 100.5 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Second frame omits best_bid entirely. The replacement is wholesale: the
	// old bid must not survive, and the missing side reads as unknown.
	a.handleFrame(map[string]interface{}{
		"symbol":     "BTCUSDT",
		"best_ask":   101.0,
		"last_price": 100.8,
		"timestamp":  "t2",
	})

	snap, _ = a.Snapshot()
	if snap.BestBid != nil {
		t.Fatalf("stale best_bid survived a wholesale replacement: %v", *snap.BestBid)
	}
	if snap.BestAsk == nil || *snap.BestAsk != 101.0 {
		t.Fatalf("unexpected best_ask: %+v", snap)
	}
	if snap.LastPrice != 100.8 || snap.Timestamp != "t2" {
		t.Fatalf("snapshot fields not replaced: %+v", snap)
	}
	if _, ok := a.Spread(); ok {
		t.Fatalf("spread must be unknown with one book side absent")
	}
}

func TestSpreadNeedsBothSides(t *testing.T) {
	a := newTestAggregator()

	a.handleFrame(map[string]interface{}{
		"symbol":     "BTCUSDT",
		"best_bid":   100.0,
		"best_ask":   100.5,
		"last_price": 100.2,
		"timestamp":  "t1",
	})

	spread, ok := a.Spread()
	if !ok {
		t.Fatalf("expected a known spread")
	}
	if spread != 0.5 {
		t.Fatalf("expected spread 0.5, got %v", spread)
	}
}

func TestFrameWithInvalidFieldTypesIsDropped(t *testing.T) {
	a := newTestAggregator()

	a.handleFrame(map[string]interface{}{
		"symbol":     "BTCUSDT",
		"last_price": 100.2,
		"timestamp":  "t1",
	})

	// last_price as a string fails decoding; the prior snapshot must survive.
	a.handleFrame(map[string]interface{}{
		"symbol":     "BTCUSDT",
		"last_price": "not a number",
		"timestamp":  "t2",
	})

	snap, ok := a.Snapshot()
	if !ok || snap.Timestamp != "t1" || snap.LastPrice != 100.2 {
		t.Fatalf("invalid frame replaced the prior snapshot: %+v", snap)
	}
}

func TestDisabledAggregatorReportsDisconnected(t *testing.T) {
	a := newTestAggregator()
	a.Start()
	defer a.Stop()

	if a.Connected() {
		t.Fatalf("disabled aggregator must not report connected")
	}
}
