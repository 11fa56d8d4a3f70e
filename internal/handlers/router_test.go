package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestRouterHealthEndpoints(t *testing.T) {
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(
		WithHealthVersion("1.2.3"),
		WithHealthClock(func() time.Time { return time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC) }),
	)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse healthz: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Fatalf("unexpected healthz body: %v", body)
	}
}

func TestRouterReadyzReportsFailingCheck(t *testing.T) {
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(
		WithReadinessCheck("firestore", func(context.Context) error { return errors.New("dial timeout") }),
	)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "dial timeout") {
		t.Fatalf("expected check detail, got %s", rr.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "route_not_found") {
		t.Fatalf("expected route_not_found code, got %s", rr.Body.String())
	}
}

func TestRouterUnconfiguredGroupReturnsNotImplemented(t *testing.T) {
	router := NewRouter()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

func TestRouterAPIMiddlewaresSkipHealth(t *testing.T) {
	router := NewRouter(
		WithAPIMiddlewares(StoreScopeMiddleware()),
		WithOrderRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz must not require scope, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected scope enforcement on api group, got %d", rr.Code)
	}
}

func TestRouterMountsRouteGroups(t *testing.T) {
	registered := false
	router := NewRouter(WithOrderRoutes(func(r chi.Router) {
		registered = true
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}))
	if !registered {
		t.Fatal("expected order registrar invoked")
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from mounted route, got %d", rr.Code)
	}
}
