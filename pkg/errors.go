package pkg

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var ExposeErrorDetails = false

func init() {
	if gin.DebugMode == gin.Mode() || gin.TestMode == gin.Mode() {
		ExposeErrorDetails = true
	}
}

// Reusable errors
var (
	SqlErrForeignKeyViolation = errors.New("foreign key violation")
	SqlError                  = errors.New("sql error")
	ErrRecordNotFound         = errors.New("record not found")
)

// Ledger errors. Match with errors.Is; the AppError wrapping them carries the public message.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrSenderAccountMissing    = errors.New("sender account missing")
	ErrReceiverAccountNotFound = errors.New("receiver account not found")
	ErrSelfTransferRejected    = errors.New("self transfer rejected")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrDuplicateDigest         = errors.New("duplicate digest")
	ErrDeviceNotFound          = errors.New("device not found")
	ErrDeviceUnauthorized      = errors.New("device unauthorized")
	ErrDailyLimitExceeded      = errors.New("daily limit exceeded")
	ErrAccountNotFound         = errors.New("account not found")

	// ErrLockTimeout is the only transient ledger error; callers may retry it.
	ErrLockTimeout = errors.New("lock timeout")
)

// ErrorCode defines a standardized error code
type ErrorCode struct {
	Code    string
	Status  int
	Message string // default message
}

var (
	// Generic app
	ErrInvalidInputCode   = ErrorCode{Code: "APP_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
	ErrUnauthorizedCode   = ErrorCode{Code: "APP_UNAUTHORIZED", Status: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbiddenCode      = ErrorCode{Code: "APP_FORBIDDEN", Status: http.StatusForbidden, Message: "forbidden"}
	ErrServerCode         = ErrorCode{Code: "APP_INTERNAL", Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrRecordNotFoundCode = ErrorCode{Code: "APP_NOT_FOUND", Status: http.StatusNotFound, Message: "record not found"}
	ErrUpstreamCode       = ErrorCode{Code: "APP_UPSTREAM", Status: http.StatusBadGateway, Message: "upstream provider error"}

	// Business/domain rules
	ErrBusinessRuleCode = ErrorCode{Code: "BUSINESS_RULE_VIOLATION", Status: http.StatusUnprocessableEntity, Message: "business rule violated"}

	// Ledger
	ErrInvalidAmountCode           = ErrorCode{Code: "LEDGER_INVALID_AMOUNT", Status: http.StatusBadRequest, Message: "amount must be positive"}
	ErrSenderAccountMissingCode    = ErrorCode{Code: "LEDGER_SENDER_ACCOUNT_MISSING", Status: http.StatusNotFound, Message: "sender has no account"}
	ErrReceiverAccountNotFoundCode = ErrorCode{Code: "LEDGER_RECEIVER_NOT_FOUND", Status: http.StatusNotFound, Message: "receiver account not found"}
	ErrSelfTransferCode            = ErrorCode{Code: "LEDGER_SELF_TRANSFER", Status: http.StatusUnprocessableEntity, Message: "cannot transfer to the same account"}
	ErrInsufficientFundsCode       = ErrorCode{Code: "BUSINESS_INSUFFICIENT_FUNDS", Status: http.StatusUnprocessableEntity, Message: "insufficient balance"}
	ErrDuplicateDigestCode         = ErrorCode{Code: "LEDGER_DUPLICATE_DIGEST", Status: http.StatusConflict, Message: "duplicate transaction digest"}
	ErrAccountNotFoundCode         = ErrorCode{Code: "LEDGER_ACCOUNT_NOT_FOUND", Status: http.StatusNotFound, Message: "account not found"}
	ErrLockTimeoutCode             = ErrorCode{Code: "LEDGER_LOCK_TIMEOUT", Status: http.StatusServiceUnavailable, Message: "account is busy, retry later"}

	// Devices
	ErrDeviceNotFoundCode     = ErrorCode{Code: "DEVICE_NOT_FOUND", Status: http.StatusNotFound, Message: "device not found"}
	ErrDeviceUnauthorizedCode = ErrorCode{Code: "DEVICE_UNAUTHORIZED", Status: http.StatusUnauthorized, Message: "invalid credential or inactive device"}
	ErrDailyLimitCode         = ErrorCode{Code: "DEVICE_DAILY_LIMIT_EXCEEDED", Status: http.StatusUnprocessableEntity, Message: "daily limit exceeded"}
	ErrRateLimitedCode        = ErrorCode{Code: "DEVICE_RATE_LIMITED", Status: http.StatusTooManyRequests, Message: "too many requests"}

	// SQL layer
	ErrSQLUnknownCode   = ErrorCode{Code: "SQL_UNKNOWN", Status: http.StatusInternalServerError, Message: "sql error"}
	ErrSQLConflictCode  = ErrorCode{Code: "SQL_CONFLICT", Status: http.StatusConflict, Message: "sql conflict"}
	ErrSQLDuplicateCode = ErrorCode{Code: "SQL_DUPLICATE", Status: http.StatusConflict, Message: "duplicate record"}
	ErrSQLInvalidInput  = ErrorCode{Code: "SQL_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
)

type AppError struct {
	Code    ErrorCode
	Message string // public-facing message
	Cause   error  // internal cause (wrapped)
}

func (e AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}
func (e AppError) Unwrap() error { return e.Cause }

func NewAppError(code ErrorCode, msg string, cause error) error {
	return AppError{Code: code, Message: msg, Cause: cause}
}

// Ledger error constructors. Each wraps the matching sentinel so callers can use errors.Is.

func InvalidAmount(msg string) error {
	return NewAppError(ErrInvalidAmountCode, msg, ErrInvalidAmount)
}

func SenderAccountMissing(msg string) error {
	return NewAppError(ErrSenderAccountMissingCode, msg, ErrSenderAccountMissing)
}

func ReceiverAccountNotFound(accountNumber string) error {
	return NewAppError(ErrReceiverAccountNotFoundCode, fmt.Sprintf("receiver account %q not found", accountNumber), ErrReceiverAccountNotFound)
}

func SelfTransferRejected(accountNumber string) error {
	return NewAppError(ErrSelfTransferCode, fmt.Sprintf("account %s cannot transfer to itself", accountNumber), ErrSelfTransferRejected)
}

func InsufficientFunds(accountNumber, balance, amount string) error {
	return NewAppError(ErrInsufficientFundsCode,
		fmt.Sprintf("insufficient balance on account %s (balance: %s, requested: %s)", accountNumber, balance, amount),
		ErrInsufficientFunds)
}

func DuplicateDigest(digest string) error {
	return NewAppError(ErrDuplicateDigestCode, fmt.Sprintf("transaction digest %s already recorded", digest), ErrDuplicateDigest)
}

func AccountNotFound(ref string) error {
	return NewAppError(ErrAccountNotFoundCode, fmt.Sprintf("account %q not found", ref), ErrAccountNotFound)
}

func DeviceNotFound(deviceID string) error {
	return NewAppError(ErrDeviceNotFoundCode, fmt.Sprintf("device %q not found", deviceID), ErrDeviceNotFound)
}

// DeviceUnauthorized is deliberately unspecific about which check failed.
func DeviceUnauthorized() error {
	return NewAppError(ErrDeviceUnauthorizedCode, ErrDeviceUnauthorizedCode.Message, ErrDeviceUnauthorized)
}

func DailyLimitExceeded(reason string) error {
	return NewAppError(ErrDailyLimitCode, reason, ErrDailyLimitExceeded)
}

func LockTimeout(cause error) error {
	return NewAppError(ErrLockTimeoutCode, ErrLockTimeoutCode.Message, errors.Join(ErrLockTimeout, cause))
}

// ErrorResponse defines the standardized error response format
type ErrorResponse struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ToErrorResponse converts an error into an ErrorResponse, logging details and optionally exposing error messages.
// If the error is not an AppError, it is converted to a generic 500 error.
func ToErrorResponse(logger *zap.Logger, traceID string, err error) ErrorResponse {
	var appErr AppError
	if errors.As(err, &appErr) {
		resp := ErrorResponse{
			Status:  appErr.Code.Status,
			Code:    appErr.Code.Code,
			Message: appErr.Message,
		}
		if appErr.Code.Status >= http.StatusInternalServerError {
			logger.Error("application error", zap.String(TraceId, traceID), zap.Error(err))
		} else {
			logger.Warn("request rejected", zap.String(TraceId, traceID), zap.String("code", appErr.Code.Code), zap.Error(err))
		}
		if ExposeErrorDetails {
			resp.Details = err.Error()
		}
		return resp
	}
	// Unknown error : 500
	resp := ErrorResponse{
		Status:  ErrServerCode.Status,
		Code:    ErrServerCode.Code,
		Message: ErrServerCode.Message,
	}
	logger.Error("application error", zap.String(TraceId, traceID), zap.Error(err))
	if ExposeErrorDetails {
		resp.Details = err.Error()
	}
	return resp
}

// HandleSQLError maps pg errors -> AppError with proper codes/status
func HandleSQLError(traceId string, logger *zap.Logger, err error) error {
	var pgErr *pgconn.PgError
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("sql error : no records found", zap.String(TraceId, traceId))
		return NewAppError(ErrRecordNotFoundCode, "no records found", errors.Join(ErrRecordNotFound, err))
	}
	if !errors.As(err, &pgErr) {
		logger.Error("sql error : unknown", zap.String(TraceId, traceId), zap.Error(err))
		return NewAppError(ErrSQLUnknownCode, "sql error", err)
	}

	// Log rich pg error context
	logger.Error("sql error",
		zap.String(TraceId, traceId),
		zap.String("code", pgErr.Code),
		zap.String("message", pgErr.Message),
		zap.String("detail", pgErr.Detail),
		zap.String("schema", pgErr.SchemaName),
		zap.String("table", pgErr.TableName),
		zap.String("column", pgErr.ColumnName),
		zap.String("constraint", pgErr.ConstraintName),
	)

	switch pgErr.Code {
	case "23505": // unique_violation
		return NewAppError(ErrSQLDuplicateCode, "duplicate value violates unique constraint", SqlError)
	case "23503": // foreign_key_violation
		return NewAppError(ErrSQLConflictCode, "foreign key violation", SqlErrForeignKeyViolation)
	case "23001": // restrict_violation, e.g. append-only ledger
		return NewAppError(ErrSQLConflictCode, "restricted modification", SqlError)
	case "23514": // check_violation, e.g. balance >= 0
		return NewAppError(ErrBusinessRuleCode, "check constraint violated", SqlError)
	case "22P02": // invalid_text_representation Ex: bad UUID
		return NewAppError(ErrSQLInvalidInput, "invalid input syntax", SqlError)
	case "22001": // string_data_right_truncation
		return NewAppError(ErrSQLInvalidInput, "value too long for column", SqlError)
	case "22003": // numeric_value_out_of_range
		return NewAppError(ErrSQLInvalidInput, "numeric value out of range", SqlError)
	case "55P03", "40P01", "40001": // lock_not_available, deadlock_detected, serialization_failure
		return LockTimeout(err)
	default:
		return NewAppError(ErrSQLUnknownCode, "sql error", SqlError)
	}
}
