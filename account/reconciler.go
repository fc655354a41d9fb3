package account

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"tradesync/logger"
	"tradesync/models"
	"tradesync/stream"
)

// SnapshotSource is the pull/command surface the reconciler depends on.
// Implemented by rest.Client in production and by fakes in tests.
type SnapshotSource interface {
	FetchPositions(ctx context.Context) ([]models.Position, error)
	FetchAccountSummary(ctx context.Context) (models.AccountSummary, error)
	FetchOpenOrders(ctx context.Context) ([]models.Order, error)
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error)
}

// Reconciler maintains the single consistent client-side view of positions,
// open orders and the derived account summary, merging incremental execution
// events from the stream with authoritative snapshot fetches. The two sources
// arrive with no ordering guarantee between them; snapshots win for existence
// and for the balance-side summary fields, push events win only for
// low-latency insertion of newly accepted orders.
type Reconciler struct {
	source  SnapshotSource
	client  *stream.Client
	timeout time.Duration
	log     *logger.Log

	mu        sync.RWMutex
	active    bool
	positions map[string]models.Position
	orders    map[string]models.Order
	summary   models.AccountSummary
}

func NewReconciler(source SnapshotSource, wsURL string, enabled bool, reconnectDelay, timeout time.Duration) *Reconciler {
	r := &Reconciler{
		source:    source,
		timeout:   timeout,
		log:       logger.GetLogger(),
		active:    true,
		positions: make(map[string]models.Position),
		orders:    make(map[string]models.Order),
	}
	r.client = stream.NewClient(stream.Config{
		Name:           "executions_stream",
		URL:            wsURL,
		Enabled:        enabled,
		ReconnectDelay: reconnectDelay,
		Validator:      ValidExecution,
	}, stream.Handlers{
		OnOpen:    r.onStreamOpen,
		OnMessage: r.handleExecution,
	})
	return r
}

// ValidExecution accepts execution frames carrying a non-empty order_id.
func ValidExecution(frame map[string]interface{}) bool {
	id, ok := frame["order_id"].(string)
	return ok && id != ""
}

func (r *Reconciler) Start() {
	r.client.Start()
}

// Stop tears down the executions stream and marks the reconciler inactive so
// that snapshot fetches still in flight cannot mutate state afterwards.
func (r *Reconciler) Stop() {
	r.client.Close()
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

// Connected reports the executions stream connectivity.
func (r *Reconciler) Connected() bool {
	return r.client.Connected()
}

// onStreamOpen treats every (re)connect as "state may be stale" and refetches
// positions immediately.
func (r *Reconciler) onStreamOpen() {
	r.log.WithComponent("account_reconciler").Info("executions stream open, refreshing positions")
	r.triggerPositionRefresh()
}

// handleExecution applies one validated execution event. Executed events are
// fill/close signals: the matching open order is removed and a fresh position
// snapshot is fetched, since the snapshot is authoritative for post-fill
// state. Non-executed events insert a new open order only for unseen ids; a
// duplicate push for a tracked id leaves the existing record unchanged.
func (r *Reconciler) handleExecution(frame map[string]interface{}) {
	payload, err := json.Marshal(frame)
	if err != nil {
		r.log.WithComponent("account_reconciler").WithError(err).Warn("failed to encode execution frame")
		return
	}
	var ev models.ExecutionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.IncrementDroppedFrame()
		r.log.WithComponent("account_reconciler").WithError(err).Warn("dropping execution frame with invalid field types")
		return
	}

	if ev.Executed {
		r.mu.Lock()
		if !r.active {
			r.mu.Unlock()
			return
		}
		delete(r.orders, ev.OrderID)
		r.mu.Unlock()

		r.log.WithComponent("account_reconciler").WithFields(logger.Fields{
			"order_id": ev.OrderID,
			"symbol":   ev.Symbol,
		}).Debug("execution fill, refreshing positions")
		r.triggerPositionRefresh()
		return
	}

	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	if _, seen := r.orders[ev.OrderID]; !seen {
		r.orders[ev.OrderID] = orderFromEvent(ev)
	}
	r.mu.Unlock()
}

func orderFromEvent(ev models.ExecutionEvent) models.Order {
	orderType := ev.Type
	if orderType == "" {
		orderType = "market"
	}
	status := ev.Status
	if status == "" {
		status = "new"
	}
	return models.Order{
		OrderID:   ev.OrderID,
		Symbol:    ev.Symbol,
		Side:      ev.Side,
		Type:      orderType,
		Quantity:  ev.Quantity,
		Price:     ev.Price,
		Status:    status,
		Timestamp: ev.Timestamp,
	}
}

// RefreshPositions fetches the position snapshot and applies it. A failed
// fetch is logged and leaves the previous in-memory state untouched;
// stale-but-available beats cleared state.
func (r *Reconciler) RefreshPositions(ctx context.Context) {
	positions, err := r.source.FetchPositions(ctx)
	if err != nil {
		r.log.WithComponent("account_snapshot").WithError(err).Warn("failed to fetch positions, keeping previous state")
		return
	}
	r.ApplyPositions(positions)
}

func (r *Reconciler) triggerPositionRefresh() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.RefreshPositions(ctx)
	}()
}

// ApplyPositions replaces the position set wholesale and rederives the
// position-dependent summary fields. Recomputation is idempotent: applying
// the same set twice yields an identical summary.
func (r *Reconciler) ApplyPositions(positions []models.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.positions = make(map[string]models.Position, len(positions))
	for _, p := range positions {
		r.positions[p.Symbol] = p
	}
	r.recomputeLocked()
}

// ApplySummarySnapshot replaces the snapshot-sourced summary fields. The
// summary poll is the sole authority for balance, used margin and leverage;
// the position-derived fields are rederived on top so PnL stays reactive
// between polls.
func (r *Reconciler) ApplySummarySnapshot(s models.AccountSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.summary.Balance = s.Balance
	r.summary.UsedMargin = s.UsedMargin
	r.summary.Leverage = s.Leverage
	r.recomputeLocked()
}

// ApplyOrdersSnapshot replaces the open-order set wholesale. The snapshot is
// authoritative for existence: an order the snapshot no longer lists is gone,
// even if a push event inserted it earlier.
func (r *Reconciler) ApplyOrdersSnapshot(orders []models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.orders = make(map[string]models.Order, len(orders))
	for _, o := range orders {
		r.orders[o.OrderID] = o
	}
}

func (r *Reconciler) recomputeLocked() {
	list := make([]models.Position, 0, len(r.positions))
	for _, p := range r.positions {
		list = append(list, p)
	}
	r.summary.Recompute(list)
}

// SubmitOrder forwards the command to the pull/command endpoint. Success
// leaves reconciliation to subsequent execution events and snapshot fetches;
// there is no optimistic local insertion. Failure propagates to the caller
// without any state mutation.
func (r *Reconciler) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error) {
	return r.source.SubmitOrder(ctx, req)
}

// Positions returns the current position set ordered by symbol.
func (r *Reconciler) Positions() []models.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]models.Position, 0, len(r.positions))
	for _, p := range r.positions {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })
	return list
}

// OpenOrders returns the current open-order set ordered by order id.
func (r *Reconciler) OpenOrders() []models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]models.Order, 0, len(r.orders))
	for _, o := range r.orders {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].OrderID < list[j].OrderID })
	return list
}

// Summary returns the current derived account summary.
func (r *Reconciler) Summary() models.AccountSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary
}
