package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hanko-field/commerce/internal/platform/auth"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func newRequest(body, key, uid string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	return req
}

func TestMiddleware_PassesThroughWithoutKey(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest(`{}`, "", "u1"))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest(`{}`, "", "u1"))
	if calls != 2 {
		t.Fatalf("expected handler called twice, got %d", calls)
	}
}

func TestMiddleware_RequiredKey(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithRequiredKey())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be invoked when header is missing")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest(`{}`, "", "u1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"gatewayOrderId":"order_1"}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newRequest(`{"promoCodeId":"p1"}`, "abc-123", "u1"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newRequest(`{"promoCodeId":"p1"}`, "abc-123", "u1"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if rr2.Code != http.StatusCreated || rr2.Body.String() != `{"gatewayOrderId":"order_1"}` {
		t.Fatalf("unexpected replay %d %s", rr2.Code, rr2.Body.String())
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay header")
	}
}

func TestMiddleware_ScopesKeysPerPrincipal(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest(`{}`, "same", "u1"))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest(`{}`, "same", "u2"))
	if calls != 2 {
		t.Fatalf("expected separate principals to run independently, got %d calls", calls)
	}
}

func TestMiddleware_FingerprintMismatch(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest(`{"a":1}`, "k", "u1"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest(`{"a":2}`, "k", "u1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_ReleasesKeyOnFailure(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newRequest(`{}`, "retry-me", "u1"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newRequest(`{}`, "retry-me", "u1"))

	if rr1.Code != http.StatusBadGateway || rr2.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry after failure, got %d then %d (%d calls)", rr1.Code, rr2.Code, calls)
	}
}

func TestMemoryStore_PendingReservation(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Reserve(context.Background(), "k", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	res, err := store.Reserve(context.Background(), "k", "fp", fixedTime.Add(time.Second), time.Minute)
	if err != nil || res.State != ReservationStatePending {
		t.Fatalf("expected pending, got %v err %v", res.State, err)
	}
	res, err = store.Reserve(context.Background(), "k", "fp", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired record to be replaced, got %v err %v", res.State, err)
	}
}

func assertErrorCode(t *testing.T, body []byte, expected string) {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if payload["error"] != expected {
		t.Fatalf("expected error code %s, got %v", expected, payload["error"])
	}
}
