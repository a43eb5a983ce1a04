package pkg

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLedgerErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{InvalidAmount("bad"), ErrInvalidAmount},
		{SenderAccountMissing("none"), ErrSenderAccountMissing},
		{ReceiverAccountNotFound("x"), ErrReceiverAccountNotFound},
		{SelfTransferRejected("1"), ErrSelfTransferRejected},
		{InsufficientFunds("1", "50.00", "100.00"), ErrInsufficientFunds},
		{DuplicateDigest("d"), ErrDuplicateDigest},
		{AccountNotFound("1"), ErrAccountNotFound},
		{DeviceNotFound("dev"), ErrDeviceNotFound},
		{DeviceUnauthorized(), ErrDeviceUnauthorized},
		{DailyLimitExceeded("reason"), ErrDailyLimitExceeded},
		{LockTimeout(errors.New("busy")), ErrLockTimeout},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, tc.err, tc.sentinel)
		assert.ErrorIs(t, fmt.Errorf("wrapped: %w", tc.err), tc.sentinel)

		var appErr AppError
		assert.True(t, errors.As(tc.err, &appErr), tc.err.Error())
	}
}

func TestToErrorResponse(t *testing.T) {
	logger := zap.NewNop()

	resp := ToErrorResponse(logger, "trace", InsufficientFunds("0000000001", "50.00", "100.00"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Equal(t, ErrInsufficientFundsCode.Code, resp.Code)
	assert.Contains(t, resp.Message, "balance: 50.00")

	resp = ToErrorResponse(logger, "trace", errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, ErrServerCode.Code, resp.Code)
	assert.Equal(t, ErrServerCode.Message, resp.Message)

	resp = ToErrorResponse(logger, "trace", DeviceUnauthorized())
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestHandleSQLError(t *testing.T) {
	logger := zap.NewNop()
	code := func(err error) string {
		var appErr AppError
		require.True(t, errors.As(err, &appErr))
		return appErr.Code.Code
	}

	notFound := HandleSQLError("t", logger, pgx.ErrNoRows)
	assert.Equal(t, ErrRecordNotFoundCode.Code, code(notFound))
	assert.ErrorIs(t, notFound, ErrRecordNotFound)

	assert.Equal(t, ErrSQLDuplicateCode.Code, code(HandleSQLError("t", logger, &pgconn.PgError{Code: "23505"})))
	assert.Equal(t, ErrSQLConflictCode.Code, code(HandleSQLError("t", logger, &pgconn.PgError{Code: "23503"})))
	assert.Equal(t, ErrSQLConflictCode.Code, code(HandleSQLError("t", logger, &pgconn.PgError{Code: "23001"})))
	assert.Equal(t, ErrBusinessRuleCode.Code, code(HandleSQLError("t", logger, &pgconn.PgError{Code: "23514"})))
	assert.Equal(t, ErrSQLInvalidInput.Code, code(HandleSQLError("t", logger, &pgconn.PgError{Code: "22P02"})))
	assert.Equal(t, ErrSQLUnknownCode.Code, code(HandleSQLError("t", logger, errors.New("conn reset"))))

	for _, c := range []string{"55P03", "40P01", "40001"} {
		err := HandleSQLError("t", logger, &pgconn.PgError{Code: c})
		assert.ErrorIs(t, err, ErrLockTimeout, c)
	}
}
