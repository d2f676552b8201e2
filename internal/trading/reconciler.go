package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler periodically re-reads non-terminal orders from their venues so
// the local ledger converges even when nobody polls the refresh endpoint.
// Fills that happen while the gateway is down are picked up on the next tick.
type Reconciler struct {
	service  *Service
	interval time.Duration
}

func NewReconciler(service *Service, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{service: service, interval: interval}
}

// Start begins the reconciliation loop. Blocks until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	logger := log.With().Str("component", "order_reconciler").Logger()
	logger.Info().Dur("interval", r.interval).Msg("starting order reconciler")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down order reconciler")
			return
		case <-ticker.C:
			if err := r.refreshActiveOrders(ctx); err != nil {
				logger.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}

func (r *Reconciler) refreshActiveOrders(ctx context.Context) error {
	logger := log.With().Str("component", "order_reconciler").Logger()

	orders, err := r.service.db.ListActiveOrders()
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}
	logger.Info().Int("active_count", len(orders)).Msg("refreshing active orders")

	for _, order := range orders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A single unreachable venue must not stall the whole pass.
		if _, err := r.service.RefreshOrder(ctx, order.ID); err != nil {
			logger.Warn().
				Err(err).
				Uint("order_id", order.ID).
				Msg("failed to refresh order")
		}
	}
	return nil
}
