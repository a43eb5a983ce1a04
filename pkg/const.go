package pkg

const (
	HeaderTraceId     string = "X-Trace-Id"
	HeaderRequestId   string = "X-Request-Id"
	HeaderPrincipalId string = "X-Principal-Id"
	HeaderDeviceId    string = "X-Device-Id"
)

// Log and context keys
const (
	TraceId       string = "trace_id"
	RequestId     string = "request_id"
	PrincipalId   string = "principal_id"
	AccountNumber string = "account_number"
	DeviceId      string = "device_id"
	Digest        string = "digest"
)

// TransactionType classifies a ledger record.
type TransactionType string

const (
	TransactionTypeTransfer    TransactionType = "TRANSFER"
	TransactionTypeDeposit     TransactionType = "DEPOSIT"
	TransactionTypeWithdraw    TransactionType = "WITHDRAW"
	TransactionTypePayment     TransactionType = "PAYMENT"
	TransactionTypePixSent     TransactionType = "PIX_SENT"
	TransactionTypePixReceived TransactionType = "PIX_RECEIVED"
	TransactionTypePurchase    TransactionType = "PURCHASE"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypePayment,
		TransactionTypePixSent, TransactionTypePixReceived, TransactionTypePurchase:
		return true
	}
	return false
}
