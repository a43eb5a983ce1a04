package services

import (
	"context"
	"errors"
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/provider"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 50
	pixKeyTypeRandom    = "random"
)

type AccountService interface {
	// Open returns the principal's account, creating and linking it on first call.
	Open(ctx context.Context, principalID string) (models.Account, error)
	Me(ctx context.Context, principalID string) (models.Account, error)
	History(ctx context.Context, principalID string, from, to *time.Time, limit int) (models.Account, []models.TransactionRecord, error)
	Reconcile(ctx context.Context, principalID string) (views.ReconciliationView, error)
	CreatePixKey(ctx context.Context, principalID string) (views.PixKeyView, error)
	PixKeys(ctx context.Context, principalID string) ([]models.PixKey, error)
}

type AccountServiceConfig struct {
	Logger   *zap.Logger
	Core     *ledger.Core
	Provider provider.Provider
}

type AccountServiceImpl struct {
	AccountServiceConfig
}

func NewAccountService(cfg AccountServiceConfig) AccountService {
	return &AccountServiceImpl{AccountServiceConfig: cfg}
}

func (s *AccountServiceImpl) Open(ctx context.Context, principalID string) (models.Account, error) {
	account, err := s.Core.Accounts.GetOrCreate(ctx, principalID)
	if err != nil {
		return models.Account{}, err
	}
	if account.ProviderAccountID != nil {
		return account, nil
	}

	// Provider linking is best effort; the ledger account stands on its own and the
	// next Open retries the link.
	res, err := s.Provider.CreateAccount(ctx, principalID, principalID)
	if err != nil {
		s.Logger.Warn("provider_account_link_failed",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.String(pkg.AccountNumber, account.AccountNumber),
			zap.Error(err))
		return account, nil
	}
	linked, err := s.Core.Accounts.LinkProviderAccount(ctx, account.ID, res.ProviderAccountID)
	if err != nil {
		return models.Account{}, err
	}
	return linked, nil
}

func (s *AccountServiceImpl) Me(ctx context.Context, principalID string) (models.Account, error) {
	return s.Core.Accounts.ByPrincipal(ctx, principalID)
}

func (s *AccountServiceImpl) History(ctx context.Context, principalID string, from, to *time.Time, limit int) (models.Account, []models.TransactionRecord, error) {
	account, err := s.Core.Accounts.ByPrincipal(ctx, principalID)
	if err != nil {
		return models.Account{}, nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	accountID := account.ID
	records := make([]models.TransactionRecord, 0)
	for rec, err := range s.Core.Ledger.Query(ctx, models.TransactionFilter{AccountID: &accountID, From: from, To: to, Limit: limit, Stale: true}) {
		if err != nil {
			return models.Account{}, nil, err
		}
		records = append(records, rec)
	}
	return account, records, nil
}

func (s *AccountServiceImpl) Reconcile(ctx context.Context, principalID string) (views.ReconciliationView, error) {
	account, err := s.linkedAccount(ctx, principalID)
	if err != nil {
		return views.ReconciliationView{}, err
	}
	providerBalance, err := s.Provider.GetBalance(ctx, *account.ProviderAccountID)
	if err != nil {
		return views.ReconciliationView{}, upstream(err)
	}
	diff := account.Balance.Sub(providerBalance)
	return views.ReconciliationView{
		AccountNumber:   account.AccountNumber,
		LedgerBalance:   account.Balance.StringFixed(2),
		ProviderBalance: providerBalance.StringFixed(2),
		Difference:      diff.StringFixed(2),
		InSync:          diff.IsZero(),
	}, nil
}

func (s *AccountServiceImpl) CreatePixKey(ctx context.Context, principalID string) (views.PixKeyView, error) {
	account, err := s.linkedAccount(ctx, principalID)
	if err != nil {
		return views.PixKeyView{}, err
	}
	res, err := s.Provider.GeneratePixKey(ctx, *account.ProviderAccountID)
	if err != nil {
		return views.PixKeyView{}, upstream(err)
	}
	keyType := res.Type
	if keyType == "" {
		keyType = pixKeyTypeRandom
	}
	key, err := s.Core.Accounts.AddPixKey(ctx, account.ID, keyType, res.Key)
	if err != nil {
		return views.PixKeyView{}, err
	}
	v := views.NewPixKeyView(key)
	v.QRCode = res.QRCode
	return v, nil
}

func (s *AccountServiceImpl) PixKeys(ctx context.Context, principalID string) ([]models.PixKey, error) {
	account, err := s.Core.Accounts.ByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return s.Core.Accounts.PixKeys(ctx, account.ID)
}

func (s *AccountServiceImpl) linkedAccount(ctx context.Context, principalID string) (models.Account, error) {
	account, err := s.Core.Accounts.ByPrincipal(ctx, principalID)
	if err != nil {
		return models.Account{}, err
	}
	if account.ProviderAccountID == nil {
		return models.Account{}, pkg.NewAppError(pkg.ErrBusinessRuleCode, "account is not linked to the banking provider", nil)
	}
	return account, nil
}

// upstream keeps provider AppErrors as they are and wraps anything else as a 502.
func upstream(err error) error {
	var appErr pkg.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return pkg.NewAppError(pkg.ErrUpstreamCode, pkg.ErrUpstreamCode.Message, err)
}
