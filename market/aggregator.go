package market

import (
	"encoding/json"
	"sync"
	"time"

	"tradesync/logger"
	"tradesync/models"
	"tradesync/stream"
)

// Aggregator maintains the latest market snapshot for one instrument from a
// streaming feed. Each validated inbound frame replaces the held snapshot
// wholesale; an incomplete update is never partially applied over stale
// fields, so the snapshot can never mix timestamps from two frames.
type Aggregator struct {
	client *stream.Client
	log    *logger.Log

	mu   sync.RWMutex
	snap *models.MarketSnapshot
}

func NewAggregator(wsURL string, enabled bool, reconnectDelay time.Duration) *Aggregator {
	a := &Aggregator{log: logger.GetLogger()}
	a.client = stream.NewClient(stream.Config{
		Name:           "market_stream",
		URL:            wsURL,
		Enabled:        enabled,
		ReconnectDelay: reconnectDelay,
		Validator:      ValidFrame,
	}, stream.Handlers{OnMessage: a.handleFrame})
	return a
}

// ValidFrame accepts market frames carrying a non-empty symbol field.
func ValidFrame(frame map[string]interface{}) bool {
	symbol, ok := frame["symbol"].(string)
	return ok && symbol != ""
}

func (a *Aggregator) Start() {
	a.client.Start()
}

func (a *Aggregator) Stop() {
	a.client.Close()
}

// Connected reports the underlying stream connectivity.
func (a *Aggregator) Connected() bool {
	return a.client.Connected()
}

// Snapshot returns the current market snapshot, if one has been received.
func (a *Aggregator) Snapshot() (models.MarketSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snap == nil {
		return models.MarketSnapshot{}, false
	}
	return *a.snap, true
}

// LastPrice returns the last trade price, or 0 before the first snapshot.
func (a *Aggregator) LastPrice() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snap == nil {
		return 0
	}
	return a.snap.LastPrice
}

// Spread returns best_ask - best_bid. The spread is unknown unless both sides
// of the book are present; an absent side is never treated as zero.
func (a *Aggregator) Spread() (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snap == nil || a.snap.BestBid == nil || a.snap.BestAsk == nil {
		return 0, false
	}
	return *a.snap.BestAsk - *a.snap.BestBid, true
}

func (a *Aggregator) handleFrame(frame map[string]interface{}) {
	payload, err := json.Marshal(frame)
	if err != nil {
		a.log.WithComponent("market_stream").WithError(err).Warn("failed to encode market frame")
		return
	}

	var snap models.MarketSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		logger.IncrementDroppedFrame()
		a.log.WithComponent("market_stream").WithError(err).Warn("dropping market frame with invalid field types")
		return
	}

	a.mu.Lock()
	a.snap = &snap
	a.mu.Unlock()
}
