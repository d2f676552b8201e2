package accounts

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

func (d *Database) CreateAccount(account *types.Account) error {
	return d.db.Create(account).Error
}

func (d *Database) GetAccount(id uint) (*types.Account, error) {
	var account types.Account
	if err := d.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetActiveAccount fetches an account only if it is active. Inactive and
// unknown accounts are indistinguishable to callers: both are not found.
func (d *Database) GetActiveAccount(id uint) (*types.Account, error) {
	var account types.Account
	if err := d.db.Where("id = ? AND is_active = ?", id, true).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (d *Database) ListAccounts(limit, offset int) ([]types.Account, error) {
	var accounts []types.Account
	err := d.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&accounts).Error
	return accounts, err
}

func (d *Database) UpdateAccount(account *types.Account) error {
	return d.db.Save(account).Error
}

func (d *Database) DeleteAccount(id uint) error {
	result := d.db.Delete(&types.Account{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
