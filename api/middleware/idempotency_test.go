package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key], _ = value.(string)
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

const saleURL = "/api/pos/sales/create"

func postSale(body, key, vendor string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, saleURL, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	if vendor != "" {
		req.Header.Set(VendorIDHeader, vendor)
	}
	return req
}

func decodeCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Success {
		t.Fatalf("expected failure envelope, got %s", resp.Body.String())
	}
	return payload.Code
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, nil, SaleReplayWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, postSale(`{"foo":"bar"}`, "", ""))
		if resp.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d", resp.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencyRejectsOversizedKey(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil, 0)(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postSale(`{}`, strings.Repeat("k", maxIdempotencyKey+1), ""))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, nil, SaleReplayWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), postSale(`{}`, "boom", ""))
	}
	if len(store.data) != 0 {
		t.Fatalf("server errors must not be cached: %v", store.data)
	}
	if calls != 2 {
		t.Fatalf("retry after 5xx should run the handler again, ran %d", calls)
	}
}

func TestIdempotencyScopeIncludesVendor(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, nil, SaleReplayWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, vendor := range []string{"11111111-1111-1111-1111-111111111111", "22222222-2222-2222-2222-222222222222"} {
		handler.ServeHTTP(httptest.NewRecorder(), postSale(`{}`, "same", vendor))
	}
	if calls != 2 {
		t.Fatalf("keys must be scoped per vendor, handler ran %d times", calls)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, nil, SaleReplayWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"orderNumber":"S-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postSale(`{"foo":"bar"}`, "abc", ""))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", first.Code)
	}

	again := httptest.NewRecorder()
	handler.ServeHTTP(again, postSale(`{"foo":"bar"}`, "abc", ""))
	if again.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", again.Code)
	}
	if again.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type preserved")
	}
	if again.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if strings.TrimSpace(again.Body.String()) != `{"success":true,"orderNumber":"S-1"}` {
		t.Fatalf("expected stored body got %s", again.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil, SaleReplayWindow)(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), postSale(`{"foo":"bar"}`, "xyz", ""))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postSale(`{"foo":"diff"}`, "xyz", ""))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := decodeCode(t, resp); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyRejectsDuplicateWhileInFlight(t *testing.T) {
	store := newFakeStore()
	var inner http.Handler
	outer := Idempotency(store, nil, SaleReplayWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A second register submits the same sale before the first finishes.
		dup := httptest.NewRecorder()
		inner.ServeHTTP(dup, postSale(`{"total":10}`, "dup", ""))
		if dup.Code != http.StatusConflict || decodeCode(t, dup) != string(pkgerrors.CodeConflict) {
			t.Errorf("expected in-flight duplicate to get CONFLICT, got %d %s", dup.Code, dup.Body.String())
		}
		w.WriteHeader(http.StatusCreated)
	}))
	inner = outer

	resp := httptest.NewRecorder()
	outer.ServeHTTP(resp, postSale(`{"total":10}`, "dup", ""))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected original request to complete, got %d", resp.Code)
	}
}
