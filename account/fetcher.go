package account

import (
	"context"
	"sync"
	"time"

	"tradesync/logger"
)

// Fetcher drives the periodic pull side of reconciliation: the account
// summary, open orders and positions each refresh on their own cadence.
// Failed fetches are logged and leave the reconciler's previous state
// untouched.
type Fetcher struct {
	source SnapshotSource
	rec    *Reconciler
	log    *logger.Log

	summaryEvery   time.Duration
	ordersEvery    time.Duration
	positionsEvery time.Duration
	timeout        time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFetcher(source SnapshotSource, rec *Reconciler, summaryEvery, ordersEvery, positionsEvery, timeout time.Duration) *Fetcher {
	return &Fetcher{
		source:         source,
		rec:            rec,
		log:            logger.GetLogger(),
		summaryEvery:   summaryEvery,
		ordersEvery:    ordersEvery,
		positionsEvery: positionsEvery,
		timeout:        timeout,
	}
}

// Start launches the poll loops. Each resource fetches once immediately and
// then on its own interval.
func (f *Fetcher) Start(ctx context.Context) {
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.log.WithComponent("account_snapshot").WithFields(logger.Fields{
		"summary_every":   f.summaryEvery.String(),
		"orders_every":    f.ordersEvery.String(),
		"positions_every": f.positionsEvery.String(),
	}).Info("snapshot fetcher starting")

	f.wg.Add(3)
	go f.poll(ctx, f.summaryEvery, f.fetchSummary)
	go f.poll(ctx, f.ordersEvery, f.fetchOrders)
	go f.poll(ctx, f.positionsEvery, f.fetchPositions)
}

// Stop cancels the poll loops and waits for them to finish. Fetches that were
// in flight at stop time resolve against the reconciler's active guard and
// cannot mutate state afterwards.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	f.wg.Wait()
	f.log.WithComponent("account_snapshot").Info("snapshot fetcher stopped")
}

func (f *Fetcher) poll(ctx context.Context, interval time.Duration, fetch func(context.Context)) {
	defer f.wg.Done()

	fetch(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetch(ctx)
		}
	}
}

func (f *Fetcher) fetchSummary(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	summary, err := f.source.FetchAccountSummary(ctx)
	if err != nil {
		f.log.WithComponent("account_snapshot").WithError(err).Warn("failed to fetch account summary, keeping previous state")
		return
	}
	f.rec.ApplySummarySnapshot(summary)
}

func (f *Fetcher) fetchOrders(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	orders, err := f.source.FetchOpenOrders(ctx)
	if err != nil {
		f.log.WithComponent("account_snapshot").WithError(err).Warn("failed to fetch open orders, keeping previous state")
		return
	}
	f.rec.ApplyOrdersSnapshot(orders)
}

func (f *Fetcher) fetchPositions(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	f.rec.RefreshPositions(ctx)
}
