package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// DigestLength is the length of a hex encoded digest.
const DigestLength = sha256.Size * 2

// Digest returns the SHA-256 hex digest of a transaction record.
//
// Fields are UTF-8 encoded and joined with '|' in this order: sender account number,
// receiver account number, amount with two decimals, timestamp in UTC RFC 3339 with
// nanoseconds, description, nonce.
func Digest(sender, receiver string, amount decimal.Decimal, ts time.Time, description, nonce string) string {
	h := sha256.New()
	fields := []string{
		sender,
		receiver,
		amount.StringFixed(2),
		ts.UTC().Format(time.RFC3339Nano),
		description,
		nonce,
	}
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewNonce returns 128 random bits, hex encoded.
func NewNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
