package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type HTTPConfig struct {
	BaseURL     string
	APIKey      string
	MaxAttempts int           // default 3
	BaseBackoff time.Duration // default 100ms
	MaxBackoff  time.Duration // default 2s
	Client      *http.Client  // default utils.NewHTTPClient()
	Logger      *zap.Logger
}

// HTTP is a JSON-over-HTTP provider adapter. 5xx responses and transport errors are retried
// with jittered exponential backoff; 4xx responses are not.
type HTTP struct {
	cfg HTTPConfig
}

var _ Provider = (*HTTP)(nil)

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = utils.NewHTTPClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &HTTP{cfg: cfg}
}

func (h *HTTP) CreateAccount(ctx context.Context, name, taxID string) (AccountResult, error) {
	var out AccountResult
	err := h.do(ctx, http.MethodPost, "/accounts", map[string]string{"name": name, "tax_id": taxID}, &out)
	return out, err
}

func (h *HTTP) GetBalance(ctx context.Context, providerAccountID string) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	err := h.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(providerAccountID)+"/balance", nil, &out)
	return out.Balance, err
}

func (h *HTTP) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal) (TransferResult, error) {
	var out TransferResult
	err := h.do(ctx, http.MethodPost, "/transfers", map[string]string{
		"sender_id":   senderID,
		"receiver_id": receiverID,
		"amount":      amount.StringFixed(2),
	}, &out)
	return out, err
}

func (h *HTTP) GeneratePixKey(ctx context.Context, providerAccountID string) (PixKeyResult, error) {
	var out PixKeyResult
	err := h.do(ctx, http.MethodPost, "/accounts/"+url.PathEscape(providerAccountID)+"/pix-keys", map[string]string{"type": "random"}, &out)
	return out, err
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider responded %d: %s", e.status, e.body)
}

func (h *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= h.cfg.MaxAttempts; attempt++ {
		lastErr = h.once(ctx, method, path, payload, out)
		if lastErr == nil {
			return nil
		}
		var se *statusError
		if errors.As(lastErr, &se) && se.status < http.StatusInternalServerError {
			break
		}
		if attempt == h.cfg.MaxAttempts {
			break
		}
		delay := utils.CalculateExponentialBackoffWithJitter(attempt, h.cfg.BaseBackoff, h.cfg.MaxBackoff)
		h.cfg.Logger.Warn("provider_call_retrying",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return pkg.NewAppError(pkg.ErrUpstreamCode, ErrProviderUnavailable.Error(), errors.Join(ErrProviderUnavailable, lastErr))
}

func (h *HTTP) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}
	if traceID := pkg.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set(pkg.HeaderTraceId, traceID)
	}

	resp, err := h.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: string(b)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
