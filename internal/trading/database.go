package trading

import (
	"github.com/lensseoyhshi/crypto-trading/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(id uint) (*types.Order, error) {
	var order types.Order
	if err := d.db.First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

type OrderFilter struct {
	AccountID uint
	Symbol    string
	Status    types.OrderStatus
	Limit     int
	Offset    int
}

func (d *Database) ListOrders(f OrderFilter) ([]types.Order, error) {
	query := d.db.Model(&types.Order{})
	if f.AccountID != 0 {
		query = query.Where("account_id = ?", f.AccountID)
	}
	if f.Symbol != "" {
		query = query.Where("symbol = ?", f.Symbol)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var orders []types.Order
	err := query.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&orders).Error
	return orders, err
}

// ListActiveOrders returns every order that can still transition, oldest
// first, for the background reconciler.
func (d *Database) ListActiveOrders() ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("status IN ?", []types.OrderStatus{types.StatusPending, types.StatusOpen, types.StatusPartiallyFilled}).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// GetOpenPosition fetches the single open position for the tuple, if any.
func (d *Database) GetOpenPosition(accountID uint, symbol string, side types.PositionSide) (*types.Position, error) {
	var position types.Position
	err := d.db.Where(
		"account_id = ? AND symbol = ? AND side = ? AND is_open = ?",
		accountID, symbol, side, true,
	).First(&position).Error
	if err != nil {
		return nil, err
	}
	return &position, nil
}

type PositionFilter struct {
	AccountID uint
	Symbol    string
	Limit     int
	Offset    int
}

func (d *Database) ListOpenPositions(f PositionFilter) ([]types.Position, error) {
	query := d.db.Model(&types.Position{}).Where("is_open = ?", true)
	if f.AccountID != 0 {
		query = query.Where("account_id = ?", f.AccountID)
	}
	if f.Symbol != "" {
		query = query.Where("symbol = ?", f.Symbol)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var positions []types.Position
	err := query.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&positions).Error
	return positions, err
}

func (d *Database) SavePosition(position *types.Position) error {
	return d.db.Save(position).Error
}

// ReplacePositions upserts a venue position snapshot for one account inside a
// transaction: rows present in the snapshot are refreshed, open local rows
// absent from it are closed.
func (d *Database) ReplacePositions(accountID uint, snapshot []types.Position) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var existing []types.Position
		if err := tx.Where("account_id = ? AND is_open = ?", accountID, true).Find(&existing).Error; err != nil {
			return err
		}

		seen := make(map[string]bool, len(snapshot))
		for i := range snapshot {
			p := snapshot[i]
			p.AccountID = accountID
			p.IsOpen = true
			seen[p.Symbol+"|"+string(p.Side)] = true

			var match *types.Position
			for j := range existing {
				if existing[j].Symbol == p.Symbol && existing[j].Side == p.Side {
					match = &existing[j]
					break
				}
			}
			if match != nil {
				match.Size = p.Size
				match.EntryPrice = p.EntryPrice
				match.MarkPrice = p.MarkPrice
				match.UnrealizedPnl = p.UnrealizedPnl
				match.RealizedPnl = p.RealizedPnl
				match.Leverage = p.Leverage
				match.Margin = p.Margin
				if err := tx.Save(match).Error; err != nil {
					return err
				}
			} else if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}

		for i := range existing {
			if !seen[existing[i].Symbol+"|"+string(existing[i].Side)] {
				existing[i].IsOpen = false
				if err := tx.Save(&existing[i]).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
