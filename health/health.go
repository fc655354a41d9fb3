package health

import (
	"context"
	"sync"
	"time"

	"tradesync/logger"
	"tradesync/models"
)

// ConnectivitySource exposes one stream's connection boolean.
type ConnectivitySource interface {
	Connected() bool
}

// Prober performs a lightweight round-trip against the transport and returns
// the observed latency.
type Prober interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Aggregator composes the market and account connectivity signals with an
// independent latency probe into one system status. Connectivity defaults to
// disconnected (status error) until both streams actually report a
// connection; the probe never gates status, it only feeds latency.
type Aggregator struct {
	market  ConnectivitySource
	account ConnectivitySource
	prober  Prober
	log     *logger.Log

	interval time.Duration
	timeout  time.Duration

	mu        sync.RWMutex
	latencyMs int64

	startMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewAggregator(market, account ConnectivitySource, prober Prober, interval, timeout time.Duration) *Aggregator {
	return &Aggregator{
		market:   market,
		account:  account,
		prober:   prober,
		log:      logger.GetLogger(),
		interval: interval,
		timeout:  timeout,
	}
}

// Start launches the periodic latency probe.
func (a *Aggregator) Start(ctx context.Context) {
	a.startMu.Lock()
	if a.cancel != nil {
		a.startMu.Unlock()
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.startMu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		a.probe(ctx)

		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.probe(ctx)
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to finish.
func (a *Aggregator) Stop() {
	a.startMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.startMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
}

// probe measures one round-trip. A failed probe keeps the last known latency
// rather than resetting it; connectivity loss is signaled exclusively through
// the connected flag.
func (a *Aggregator) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rtt, err := a.prober.Ping(ctx)
	if err != nil {
		a.log.WithComponent("health_probe").WithError(err).Warn("health probe failed, keeping last latency")
		return
	}

	a.mu.Lock()
	a.latencyMs = rtt.Milliseconds()
	a.mu.Unlock()
}

// Status composes the current system status. Connected is the logical AND of
// the two stream connection states; status is ok iff connected, else error.
// The warning tier is reserved for partial-degradation signals.
func (a *Aggregator) Status() models.SystemStatus {
	marketUp := a.market.Connected()
	accountUp := a.account.Connected()
	connected := marketUp && accountUp

	a.mu.RLock()
	latency := a.latencyMs
	a.mu.RUnlock()

	status := models.SystemStatus{
		Status:      models.HealthError,
		LatencyMs:   latency,
		LastUpdated: time.Now().UTC(),
		Connected:   connected,
	}

	if connected {
		status.Status = models.HealthOK
		return status
	}

	switch {
	case !marketUp && !accountUp:
		status.Message = "market and account streams disconnected"
	case !marketUp:
		status.Message = "market stream disconnected"
	default:
		status.Message = "account stream disconnected"
	}
	return status
}
