package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/lensseoyhshi/crypto-trading/internal/exchange"
	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

// AccountSource resolves accounts and builds their venue adapters. Satisfied
// by accounts.Service; narrowed to an interface so reconciliation can be
// tested against a fake venue.
type AccountSource interface {
	GetAccount(id uint) (*types.Account, error)
	GetActiveAccount(id uint) (*types.Account, error)
	Adapter(account *types.Account) (exchange.Exchange, error)
}

// Service reconciles the local order/position ledger with venue state. Every
// entry point makes at most one trade-mutating venue call and never retries
// it; ambiguous outcomes are resolved by RefreshOrder, not by guessing.
type Service struct {
	db       *Database
	accounts AccountSource
	locks    *symbolLocks
}

func NewService(gormDB *gorm.DB, accounts AccountSource) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		accounts: accounts,
		locks:    newSymbolLocks(),
	}
}

// PlaceOrder resolves the account, issues exactly one venue order-placement
// call and persists a local Order seeded from the venue's immediate response
// (market orders may come back already filled). The venue call and the local
// insert are not atomic: if the insert fails the venue-side order exists
// without a ledger record, which is surfaced as OrphanedExecutionError.
func (s *Service) PlaceOrder(ctx context.Context, req *types.CreateOrderRequest, webhookData string) (*types.Order, error) {
	if err := validateOrderRequest(req); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetActiveAccount(req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", req.AccountID, err)
	}
	adapter, err := s.accounts.Adapter(account)
	if err != nil {
		return nil, err
	}

	symbol := exchange.NormalizeSymbol(req.Symbol)
	unlock := s.locks.acquire(account.ID, symbol, positionSideFor(req.Side))
	defer unlock()

	venueOrder, err := adapter.CreateOrder(ctx, exchange.CreateOrderParams{
		Symbol:    symbol,
		Side:      req.Side,
		Type:      req.Type,
		Amount:    req.Amount,
		Price:     req.Price,
		StopPrice: req.StopPrice,
	})
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		AccountID:       account.ID,
		ExchangeOrderID: venueOrder.ExchangeOrderID,
		Symbol:          symbol,
		Side:            req.Side,
		Type:            req.Type,
		Amount:          req.Amount,
		Price:           req.Price,
		StopPrice:       req.StopPrice,
		WebhookData:     webhookData,
	}
	mergeVenueOrder(order, venueOrder)

	if err := s.db.CreateOrder(order); err != nil {
		log.Error().
			Err(err).
			Uint("account_id", account.ID).
			Str("exchange_order_id", venueOrder.ExchangeOrderID).
			Msg("venue order placed but local persistence failed")
		return nil, &types.OrphanedExecutionError{ExchangeOrderID: venueOrder.ExchangeOrderID, Err: err}
	}

	log.Info().
		Uint("order_id", order.ID).
		Uint("account_id", account.ID).
		Str("symbol", symbol).
		Str("side", string(order.Side)).
		Str("status", string(order.Status)).
		Msg("order placed")
	return order, nil
}

// CancelOrder cancels a non-terminal order on the venue and transitions the
// local record. Cancelling an already-terminal order is a deliberate error,
// not a silent no-op.
func (s *Service) CancelOrder(ctx context.Context, orderID uint) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	if order.Status.IsTerminal() {
		return order, fmt.Errorf("order %d: %w", orderID, types.ErrOrderTerminal)
	}

	account, err := s.accounts.GetAccount(order.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", order.AccountID, err)
	}
	adapter, err := s.accounts.Adapter(account)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(account.ID, order.Symbol, positionSideFor(order.Side))
	defer unlock()

	cancelled, err := adapter.CancelOrder(ctx, order.ExchangeOrderID, order.Symbol)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		// The venue considers the order terminal already; the local record is
		// stale. Leave it for RefreshOrder rather than guessing a status.
		return order, fmt.Errorf("order %d: %w", orderID, types.ErrOrderTerminal)
	}

	order.Status = types.StatusCancelled
	if err := s.db.UpdateOrder(order); err != nil {
		return nil, fmt.Errorf("persist cancellation of order %d: %w", orderID, err)
	}

	log.Info().Uint("order_id", order.ID).Msg("order cancelled")
	return order, nil
}

// ClosePosition places a reduce-only counter order and records it. A close
// with no amount, or an amount equal to the full tracked size, clears the
// position's open flag. A partial close leaves the tracked size untouched:
// only the next venue snapshot is authoritative for size.
func (s *Service) ClosePosition(ctx context.Context, req *types.ClosePositionRequest) (*types.Order, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("%w: invalid position side %q", types.ErrInvalidRequest, req.Side)
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: close amount must be positive", types.ErrInvalidRequest)
	}
	account, err := s.accounts.GetActiveAccount(req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", req.AccountID, err)
	}
	adapter, err := s.accounts.Adapter(account)
	if err != nil {
		return nil, err
	}

	symbol := exchange.NormalizeSymbol(req.Symbol)
	unlock := s.locks.acquire(account.ID, symbol, req.Side)
	defer unlock()

	venueOrder, err := adapter.ClosePosition(ctx, symbol, req.Side, req.Amount)
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		AccountID: account.ID,
		Symbol:    symbol,
		Side:      req.Side.CloseOrderSide(),
		Type:      types.TypeMarket,
		Amount:    venueOrder.Amount,
	}
	mergeVenueOrder(order, venueOrder)

	if err := s.db.CreateOrder(order); err != nil {
		log.Error().
			Err(err).
			Uint("account_id", account.ID).
			Str("exchange_order_id", venueOrder.ExchangeOrderID).
			Msg("venue close order placed but local persistence failed")
		return nil, &types.OrphanedExecutionError{ExchangeOrderID: venueOrder.ExchangeOrderID, Err: err}
	}

	position, err := s.db.GetOpenPosition(account.ID, symbol, req.Side)
	switch {
	case err == nil:
		if req.Amount == nil || req.Amount.Equal(position.Size) {
			position.IsOpen = false
			if err := s.db.SavePosition(position); err != nil {
				return nil, fmt.Errorf("mark position closed: %w", err)
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Nothing tracked locally; the close order is still recorded.
	default:
		return nil, fmt.Errorf("look up tracked position: %w", err)
	}

	log.Info().
		Uint("order_id", order.ID).
		Uint("account_id", account.ID).
		Str("symbol", symbol).
		Str("position_side", string(req.Side)).
		Msg("position close order placed")
	return order, nil
}

// RefreshOrder overwrites local execution state from the venue's
// authoritative view. Terminal orders are returned unchanged; the call is
// idempotent and is the sole mechanism for resolving ambiguous outcomes.
func (s *Service) RefreshOrder(ctx context.Context, orderID uint) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	if order.Status.IsTerminal() {
		return order, nil
	}

	account, err := s.accounts.GetAccount(order.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", order.AccountID, err)
	}
	adapter, err := s.accounts.Adapter(account)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(account.ID, order.Symbol, positionSideFor(order.Side))
	defer unlock()

	// Re-read under the lock: a concurrent cancel may have finished while we
	// waited, and its terminal status must not be overwritten with stale
	// venue state.
	order, err = s.db.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	if order.Status.IsTerminal() {
		return order, nil
	}

	venueOrder, err := adapter.GetOrder(ctx, order.ExchangeOrderID, order.Symbol)
	if err != nil {
		return nil, err
	}
	mergeVenueOrder(order, venueOrder)

	if err := s.db.UpdateOrder(order); err != nil {
		return nil, fmt.Errorf("persist refresh of order %d: %w", orderID, err)
	}
	return order, nil
}

// SyncPositions replaces the local position ledger for an account with the
// venue snapshot. This is the only operation that adjusts tracked sizes.
func (s *Service) SyncPositions(ctx context.Context, accountID uint) ([]types.Position, error) {
	account, err := s.accounts.GetActiveAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", accountID, err)
	}
	adapter, err := s.accounts.Adapter(account)
	if err != nil {
		return nil, err
	}

	snapshot, err := adapter.GetPositions(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range snapshot {
		snapshot[i].Symbol = exchange.NormalizeSymbol(snapshot[i].Symbol)
	}
	if err := s.db.ReplacePositions(account.ID, snapshot); err != nil {
		return nil, fmt.Errorf("persist position snapshot: %w", err)
	}
	return s.db.ListOpenPositions(PositionFilter{AccountID: account.ID})
}

func (s *Service) GetOrder(orderID uint) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

func (s *Service) ListOrders(f OrderFilter) ([]types.Order, error) {
	return s.db.ListOrders(f)
}

func (s *Service) ListPositions(f PositionFilter) ([]types.Position, error) {
	return s.db.ListOpenPositions(f)
}

// GetTicker fetches live market data through the account's venue.
func (s *Service) GetTicker(ctx context.Context, accountID uint, symbol string) (*types.Ticker, error) {
	adapter, err := s.adapterForActive(accountID)
	if err != nil {
		return nil, err
	}
	return adapter.GetTicker(ctx, symbol)
}

// GetKlines fetches candles through the account's venue. Start and end are
// optional window bounds passed through to the venue.
func (s *Service) GetKlines(ctx context.Context, accountID uint, symbol, interval string, limit int, start, end *time.Time) ([]types.Kline, error) {
	adapter, err := s.adapterForActive(accountID)
	if err != nil {
		return nil, err
	}
	return adapter.GetKlines(ctx, symbol, interval, limit, start, end)
}

func (s *Service) adapterForActive(accountID uint) (exchange.Exchange, error) {
	account, err := s.accounts.GetActiveAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", accountID, err)
	}
	return s.accounts.Adapter(account)
}

// mergeVenueOrder copies the venue's authoritative execution fields into the
// local record. FilledAmount is clamped to Amount: when a venue reports more
// filled than requested, status governs, not amount.
func mergeVenueOrder(local *types.Order, venue *types.Order) {
	local.ExchangeOrderID = venue.ExchangeOrderID
	local.Status = venue.Status
	local.FilledAmount = venue.FilledAmount
	if local.FilledAmount.GreaterThan(local.Amount) {
		local.FilledAmount = local.Amount
	}
	if venue.FilledPrice != nil {
		local.FilledPrice = venue.FilledPrice
	}
	local.Fee = venue.Fee
	if venue.FeeCurrency != "" {
		local.FeeCurrency = venue.FeeCurrency
	}
}

func validateOrderRequest(req *types.CreateOrderRequest) error {
	if !req.Side.Valid() {
		return fmt.Errorf("%w: invalid order side %q", types.ErrInvalidRequest, req.Side)
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: invalid order type %q", types.ErrInvalidRequest, req.Type)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", types.ErrInvalidRequest)
	}
	if req.Price != nil && req.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", types.ErrInvalidRequest)
	}
	if req.StopPrice != nil && req.StopPrice.IsNegative() {
		return fmt.Errorf("%w: stop price must not be negative", types.ErrInvalidRequest)
	}
	return nil
}
