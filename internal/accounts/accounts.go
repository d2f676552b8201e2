package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/lensseoyhshi/crypto-trading/internal/exchange"
	"github.com/lensseoyhshi/crypto-trading/internal/types"
	"github.com/lensseoyhshi/crypto-trading/pkg/crypto"
)

// Service manages trading accounts: credential encryption at rest, CRUD, and
// building venue adapters from stored credentials. Decrypted key material is
// confined to the scope of a single call and is never logged.
type Service struct {
	db        *Database
	encryptor *crypto.Encryptor
	timeout   time.Duration
}

func NewService(gormDB *gorm.DB, encryptor *crypto.Encryptor, exchangeTimeout time.Duration) *Service {
	return &Service{
		db:        NewDatabase(gormDB),
		encryptor: encryptor,
		timeout:   exchangeTimeout,
	}
}

func (s *Service) CreateAccount(req *types.CreateAccountRequest) (*types.Account, error) {
	if !req.Exchange.Valid() {
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnsupportedExchange, req.Exchange)
	}

	apiKey, err := s.encryptor.Encrypt(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api key: %w", err)
	}
	secretKey, err := s.encryptor.Encrypt(req.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret key: %w", err)
	}
	passphrase, err := s.encryptor.Encrypt(req.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt passphrase: %w", err)
	}

	account := &types.Account{
		Name:       req.Name,
		Exchange:   req.Exchange,
		APIKey:     apiKey,
		SecretKey:  secretKey,
		Passphrase: passphrase,
		IsSandbox:  true,
		IsActive:   true,
	}
	if req.IsSandbox != nil {
		account.IsSandbox = *req.IsSandbox
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
	}

	if err := s.db.CreateAccount(account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	log.Info().
		Uint("account_id", account.ID).
		Str("name", account.Name).
		Str("exchange", string(account.Exchange)).
		Bool("sandbox", account.IsSandbox).
		Msg("account created")
	return account, nil
}

func (s *Service) GetAccount(id uint) (*types.Account, error) {
	return s.db.GetAccount(id)
}

// GetActiveAccount resolves an account that is allowed to trade.
func (s *Service) GetActiveAccount(id uint) (*types.Account, error) {
	return s.db.GetActiveAccount(id)
}

func (s *Service) ListAccounts(limit, offset int) ([]types.Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.db.ListAccounts(limit, offset)
}

// UpdateAccount applies the only permitted mutations: name and active flag.
func (s *Service) UpdateAccount(id uint, req *types.UpdateAccountRequest) (*types.Account, error) {
	account, err := s.db.GetAccount(id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		account.Name = *req.Name
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
	}
	if err := s.db.UpdateAccount(account); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	log.Info().Uint("account_id", account.ID).Str("name", account.Name).Msg("account updated")
	return account, nil
}

func (s *Service) DeleteAccount(id uint) error {
	if err := s.db.DeleteAccount(id); err != nil {
		return err
	}
	log.Info().Uint("account_id", id).Msg("account deleted")
	return nil
}

// Adapter decrypts the account's credentials and builds its venue adapter.
// Construction performs no I/O; plaintext credentials do not escape this call.
func (s *Service) Adapter(account *types.Account) (exchange.Exchange, error) {
	apiKey, err := s.encryptor.Decrypt(account.APIKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key for account %d: %w", account.ID, err)
	}
	secretKey, err := s.encryptor.Decrypt(account.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret key for account %d: %w", account.ID, err)
	}
	passphrase, err := s.encryptor.Decrypt(account.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt passphrase for account %d: %w", account.ID, err)
	}

	return exchange.New(account.Exchange, exchange.Credentials{
		APIKey:     apiKey,
		SecretKey:  secretKey,
		Passphrase: passphrase,
	}, account.IsSandbox, s.timeout)
}

// TestConnection probes the venue with an account-snapshot call and reports
// plain success or failure.
func (s *Service) TestConnection(ctx context.Context, accountID uint) (bool, error) {
	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return false, err
	}
	adapter, err := s.Adapter(account)
	if err != nil {
		return false, err
	}
	if _, err := adapter.AccountSnapshot(ctx); err != nil {
		log.Warn().Err(err).Uint("account_id", accountID).Msg("connection test failed")
		return false, nil
	}
	return true, nil
}

// Snapshot returns the live venue-side state of an active account.
func (s *Service) Snapshot(ctx context.Context, accountID uint) (*types.AccountSnapshot, error) {
	account, err := s.db.GetActiveAccount(accountID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.Adapter(account)
	if err != nil {
		return nil, err
	}
	snapshot, err := adapter.AccountSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	snapshot.AccountID = account.ID
	for i := range snapshot.Positions {
		snapshot.Positions[i].AccountID = account.ID
	}
	return snapshot, nil
}
