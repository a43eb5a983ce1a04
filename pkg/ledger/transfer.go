package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferRequest moves Amount from SenderAccount to ReceiverAccount (both account numbers).
type TransferRequest struct {
	SenderAccount   string
	ReceiverAccount string
	Amount          decimal.Decimal
	Description     string
	Type            pkg.TransactionType // TRANSFER when empty
	DeviceID        *uuid.UUID          // originating device, if any
}

// TransferEngine applies debit, credit and ledger append as one atomic unit.
type TransferEngine struct {
	store    Store
	accounts *AccountStore
	ledger   *Ledger
	logger   *zap.Logger
	retry    RetryPolicy
}

func NewTransferEngine(store Store, accounts *AccountStore, ledger *Ledger, logger *zap.Logger, retry RetryPolicy) *TransferEngine {
	return &TransferEngine{store: store, accounts: accounts, ledger: ledger, logger: logger, retry: retry}
}

// Transfer validates req and executes it. Preconditions are checked in this order, each with
// its own error: amount, sender, receiver, self transfer, balance. A failed precondition
// leaves no trace. On success the returned record is the committed ledger entry.
func (e *TransferEngine) Transfer(ctx context.Context, req TransferRequest) (models.TransactionRecord, error) {
	if req.Type == "" {
		req.Type = pkg.TransactionTypeTransfer
	}
	rec, err := e.transfer(ctx, req)
	e.observe(ctx, req, rec, err)
	return rec, err
}

// TransferWithRetry is Transfer retried on lock timeouts under the engine's retry policy.
func (e *TransferEngine) TransferWithRetry(ctx context.Context, req TransferRequest) (models.TransactionRecord, error) {
	return RetryTransient(ctx, e.retry, e.logger, func(ctx context.Context) (models.TransactionRecord, error) {
		return e.Transfer(ctx, req)
	})
}

func (e *TransferEngine) transfer(ctx context.Context, req TransferRequest) (models.TransactionRecord, error) {
	if err := validateAmount(req.Amount); err != nil {
		return models.TransactionRecord{}, err
	}
	if !req.Type.Valid() {
		return models.TransactionRecord{}, pkg.NewAppError(pkg.ErrInvalidInputCode, fmt.Sprintf("unknown transaction type %q", req.Type), nil)
	}
	if utils.IsEmpty(req.SenderAccount) {
		return models.TransactionRecord{}, pkg.SenderAccountMissing("sender has no account")
	}

	var record models.TransactionRecord
	err := e.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		sender, err := tx.FindAccountByNumber(ctx, req.SenderAccount)
		if err != nil {
			return notFoundAs(err, pkg.SenderAccountMissing(fmt.Sprintf("sender account %q does not exist", req.SenderAccount)))
		}
		receiver, err := tx.FindAccountByNumber(ctx, req.ReceiverAccount)
		if err != nil {
			return notFoundAs(err, pkg.ReceiverAccountNotFound(req.ReceiverAccount))
		}
		if sender.ID == receiver.ID {
			return pkg.SelfTransferRejected(sender.AccountNumber)
		}

		// Both rows in account number order so mirrored transfers cannot deadlock.
		locked, err := tx.LockAccounts(ctx, sender.AccountNumber, receiver.AccountNumber)
		if err != nil {
			return err
		}
		for _, a := range locked {
			switch a.ID {
			case sender.ID:
				sender = a
			case receiver.ID:
				receiver = a
			}
		}

		if sender.Balance.LessThan(req.Amount) {
			return pkg.InsufficientFunds(sender.AccountNumber, sender.Balance.StringFixed(2), req.Amount.StringFixed(2))
		}
		if _, err = e.accounts.debit(ctx, tx, sender, req.Amount); err != nil {
			return err
		}
		if _, err = e.accounts.credit(ctx, tx, receiver, req.Amount); err != nil {
			return err
		}

		record, err = e.ledger.Append(ctx, tx, models.TransactionRecord{
			SenderID:       sender.ID,
			ReceiverID:     receiver.ID,
			SenderNumber:   sender.AccountNumber,
			ReceiverNumber: receiver.AccountNumber,
			Amount:         req.Amount,
			Type:           req.Type,
			Description:    req.Description,
			DeviceID:       req.DeviceID,
		})
		return err
	})
	if err != nil {
		return models.TransactionRecord{}, err
	}
	return record, nil
}

func (e *TransferEngine) observe(ctx context.Context, req TransferRequest, rec models.TransactionRecord, err error) {
	traceID := pkg.TraceIDFromContext(ctx)
	if err == nil {
		transfersTotal.WithLabelValues(string(req.Type), "ok").Inc()
		e.logger.Info("transfer_committed",
			zap.String(pkg.TraceId, traceID),
			zap.String("sender_account", rec.SenderNumber),
			zap.String("receiver_account", rec.ReceiverNumber),
			zap.String("amount", rec.Amount.StringFixed(2)),
			zap.String("type", string(rec.Type)),
			zap.String(pkg.Digest, rec.Digest))
		return
	}

	outcome := pkg.ErrServerCode.Code
	var appErr pkg.AppError
	if errors.As(err, &appErr) {
		outcome = appErr.Code.Code
	}
	transfersTotal.WithLabelValues(string(req.Type), outcome).Inc()
	e.logger.Warn("transfer_rejected",
		zap.String(pkg.TraceId, traceID),
		zap.String("sender_account", req.SenderAccount),
		zap.String("receiver_account", req.ReceiverAccount),
		zap.String("amount", req.Amount.String()),
		zap.String("outcome", outcome),
		zap.Error(err))
}
