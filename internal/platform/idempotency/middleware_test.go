package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sellerdesk/api/internal/platform/requestctx"
)

func keyedRequest(storeID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if storeID != "" {
		req = req.WithContext(requestctx.WithStoreID(req.Context(), storeID))
	}
	return req
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"order-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest("store-1", "key-1", `{"quantity":1}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, keyedRequest("store-1", "key-1", `{"quantity":1}`))
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d", second.Code)
	}
	if second.Body.String() != `{"id":"order-1"}` {
		t.Fatalf("replay: unexpected body %s", second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("replay: expected replay marker header")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler invoked once, got %d", calls.Load())
	}
}

func TestMiddlewareScopesKeysPerStore(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))

	for _, store := range []string{"store-1", "store-2"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, keyedRequest(store, "key-1", `{"quantity":1}`))
		if rr.Code != http.StatusCreated {
			t.Fatalf("store %s: expected 201, got %d", store, rr.Code)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected both tenants processed, got %d calls", calls.Load())
	}
}

func TestMiddlewareRejectsKeyReuseAcrossPayloads(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, keyedRequest("store-1", "key-1", `{"quantity":1}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, keyedRequest("store-1", "key-1", `{"quantity":9}`))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on fingerprint mismatch, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "idempotency_key_conflict") {
		t.Fatalf("expected conflict code, got %s", rr.Body.String())
	}
}

func TestMiddlewareSkipsWithoutHeader(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, keyedRequest("store-1", "", `{"quantity":1}`))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rr.Code)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected no deduplication without key, got %d calls", calls.Load())
	}
}

func TestMiddlewareReleasesKeyOnServerError(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, keyedRequest("store-1", "key-1", `{"quantity":1}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, keyedRequest("store-1", "key-1", `{"quantity":1}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected retry to run after release, got %d", rr.Code)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected handler retried, got %d calls", calls.Load())
	}
}
