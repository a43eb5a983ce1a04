package services

import (
	"context"
	"errors"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	kafkautils "github.com/nimeshabuddhika/resilient-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

type TransferService interface {
	// Transfer sends money from the principal's account.
	Transfer(ctx context.Context, principalID string, req views.TransferRequest) (models.TransactionRecord, error)
	// Execute runs a transfer and publishes its ledger event once committed.
	Execute(ctx context.Context, req ledger.TransferRequest) (models.TransactionRecord, error)
}

type TransferServiceConfig struct {
	Logger    *zap.Logger
	Core      *ledger.Core
	Publisher kafkautils.EventPublisher
}

type TransferServiceImpl struct {
	TransferServiceConfig
}

func NewTransferService(cfg TransferServiceConfig) TransferService {
	if cfg.Publisher == nil {
		cfg.Publisher = kafkautils.NoopPublisher{}
	}
	return &TransferServiceImpl{TransferServiceConfig: cfg}
}

func (s *TransferServiceImpl) Transfer(ctx context.Context, principalID string, req views.TransferRequest) (models.TransactionRecord, error) {
	sender, err := s.Core.Accounts.ByPrincipal(ctx, principalID)
	if errors.Is(err, pkg.ErrAccountNotFound) {
		return models.TransactionRecord{}, pkg.SenderAccountMissing("caller has no account; open one first")
	}
	if err != nil {
		return models.TransactionRecord{}, err
	}
	return s.Execute(ctx, ledger.TransferRequest{
		SenderAccount:   sender.AccountNumber,
		ReceiverAccount: req.ToAccount,
		Amount:          req.Amount,
		Description:     req.Description,
		Type:            pkg.TransactionTypeTransfer,
	})
}

func (s *TransferServiceImpl) Execute(ctx context.Context, req ledger.TransferRequest) (models.TransactionRecord, error) {
	record, err := s.Core.Transfers.TransferWithRetry(ctx, req)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	// Committed already; a publish failure must not fail the request.
	if err := s.Publisher.PublishLedgerEvent(ctx, record); err != nil {
		s.Logger.Error("ledger_event_publish_failed",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.String(pkg.Digest, record.Digest),
			zap.Error(err))
	}
	return record, nil
}
