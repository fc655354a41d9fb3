package session

import (
	"context"

	"github.com/google/uuid"

	"tradesync/account"
	"tradesync/config"
	"tradesync/health"
	"tradesync/logger"
	"tradesync/market"
	"tradesync/rest"
)

// Session is the composition root for one terminal session. All components
// are explicit owned instances created here and torn down together; nothing
// in the core lives in package-level state.
type Session struct {
	ID string

	Rest    *rest.Client
	Market  *market.Aggregator
	Account *account.Reconciler
	Fetcher *account.Fetcher
	Health  *health.Aggregator

	cfg    *config.Config
	log    *logger.Log
	cancel context.CancelFunc
}

func New(cfg *config.Config) *Session {
	restClient := rest.NewClient(
		cfg.Endpoints.RestBaseURL,
		cfg.Sync.RequestTimeout.Std(),
		cfg.Sync.SubmitRatePerSec,
		cfg.Sync.SubmitBurst,
	)

	marketAgg := market.NewAggregator(
		cfg.Endpoints.MarketWSURL,
		true,
		cfg.Sync.ReconnectDelay.Std(),
	)

	reconciler := account.NewReconciler(
		restClient,
		cfg.Endpoints.ExecutionsWSURL,
		true,
		cfg.Sync.ReconnectDelay.Std(),
		cfg.Sync.RequestTimeout.Std(),
	)

	fetcher := account.NewFetcher(
		restClient,
		reconciler,
		cfg.Sync.SummaryPollInterval.Std(),
		cfg.Sync.OrdersPollInterval.Std(),
		cfg.Sync.PositionsPollInterval.Std(),
		cfg.Sync.RequestTimeout.Std(),
	)

	healthAgg := health.NewAggregator(
		marketAgg,
		reconciler,
		restClient,
		cfg.Sync.ProbeInterval.Std(),
		cfg.Sync.RequestTimeout.Std(),
	)

	return &Session{
		ID:      uuid.NewString(),
		Rest:    restClient,
		Market:  marketAgg,
		Account: reconciler,
		Fetcher: fetcher,
		Health:  healthAgg,
		cfg:     cfg,
		log:     logger.GetLogger(),
	}
}

// Start brings up both streams, the snapshot poll loops and the health probe.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.log.WithComponent("session").WithFields(logger.Fields{
		"session_id": s.ID,
		"symbol":     s.cfg.App.Symbol,
	}).Info("session starting")

	s.Market.Start()
	s.Account.Start()
	s.Fetcher.Start(ctx)
	s.Health.Start(ctx)
}

// Stop tears the session down in reverse order. After Stop returns no timer,
// socket or in-flight request can mutate state or invoke a callback.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.Health.Stop()
	s.Fetcher.Stop()
	s.Account.Stop()
	s.Market.Stop()

	s.log.WithComponent("session").WithFields(logger.Fields{"session_id": s.ID}).Info("session stopped")
}
