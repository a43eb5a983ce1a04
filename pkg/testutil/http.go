package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
)

type ApiResponse struct {
	TraceID string          `json:"traceId"`
	Data    json.RawMessage `json:"data"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// Do serves one request against h. payload is JSON encoded when not nil.
func Do(t *testing.T, h http.Handler, method, url string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get(pkg.HeaderTraceId) == "" {
		req.Header.Set(pkg.HeaderTraceId, uuid.New().String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	t.Logf("%s %s: status %d", method, url, rec.Code)
	return rec
}

// DecodeSuccess unwraps the data envelope into out.
func DecodeSuccess(t *testing.T, r io.Reader, out any) ApiResponse {
	t.Helper()
	var resp ApiResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		t.Fatalf("decode success body: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return resp
}

func DecodeError(t *testing.T, r io.Reader) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return out
}
