package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
)

// DefaultDailyLimit caps what one device may spend per UTC day.
var DefaultDailyLimit = decimal.RequireFromString("50.00")

// SpendingRuleEngine gates device payments on same-day usage.
//
// The check reads the ledger and decides; it is not linearized with the transfer that
// follows. Two concurrent payments from one device can both pass against the same usage
// and together exceed the limit. That gap is accepted.
type SpendingRuleEngine struct {
	ledger *Ledger
	limit  decimal.Decimal
	clock  Clock
}

func NewSpendingRuleEngine(ledger *Ledger, limit decimal.Decimal, clock Clock) *SpendingRuleEngine {
	return &SpendingRuleEngine{ledger: ledger, limit: limit, clock: clock}
}

func (r *SpendingRuleEngine) Limit() decimal.Decimal { return r.limit }

// Window is the day window usage is currently counted in.
func (r *SpendingRuleEngine) Window() (time.Time, time.Time) { return DayWindow(r.clock()) }

// CheckDailyLimit reports whether the device may spend amount more today.
// The reason names the used and limit figures when the payment is refused.
func (r *SpendingRuleEngine) CheckDailyLimit(ctx context.Context, device models.Device, amount decimal.Decimal) (bool, string, error) {
	used, err := r.UsedToday(ctx, device)
	if err != nil {
		return false, "", err
	}
	if used.Add(amount).GreaterThan(r.limit) {
		deviceDenials.WithLabelValues("daily_limit").Inc()
		return false, fmt.Sprintf("daily limit exceeded (used: %s, limit: %s)", used.StringFixed(2), r.limit.StringFixed(2)), nil
	}
	return true, "approved", nil
}

// UsedToday sums the device's ledger records within the current UTC day.
func (r *SpendingRuleEngine) UsedToday(ctx context.Context, device models.Device) (decimal.Decimal, error) {
	from, to := r.Window()
	deviceID := device.ID
	used := decimal.Zero
	for rec, err := range r.ledger.Query(ctx, models.TransactionFilter{DeviceID: &deviceID, From: &from, To: &to}) {
		if err != nil {
			return decimal.Zero, err
		}
		used = used.Add(rec.Amount)
	}
	return used, nil
}

// DayWindow returns the UTC calendar day containing t as [start, end).
func DayWindow(t time.Time) (time.Time, time.Time) {
	y, m, d := t.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
