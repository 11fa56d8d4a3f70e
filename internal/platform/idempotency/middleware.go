package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sellerdesk/api/internal/platform/httpx"
	"github.com/sellerdesk/api/internal/platform/requestctx"
)

const defaultHeaderName = "Idempotency-Key"

// maxBodyBytes caps how much of a request body is buffered for fingerprinting.
const maxBodyBytes = 1 << 20

// Logger receives middleware diagnostics.
type Logger func(ctx context.Context, event string, fields map[string]any)

type middlewareConfig struct {
	header string
	ttl    time.Duration
	clock  func() time.Time
	logger Logger
}

// MiddlewareOption customises the middleware.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the client key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if strings.TrimSpace(name) != "" {
			cfg.header = name
		}
	}
}

// WithTTL overrides how long stored responses are replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithLogger sets the diagnostics sink.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// Middleware replays stored responses for repeated mutating requests that
// carry the same idempotency key. Requests without the header pass through
// untouched.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}

			rawKey := strings.TrimSpace(r.Header.Get(cfg.header))
			if rawKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("request_body_unreadable", "unable to read request body", http.StatusBadRequest))
				return
			}

			key := ScopedKey(requestctx.StoreID(ctx), rawKey)
			fingerprint := Fingerprint(r.Method, r.URL.Path, body)
			now := cfg.clock().UTC()

			state, record, err := store.Reserve(ctx, key, fingerprint, now, cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key was used for a different request", http.StatusUnprocessableEntity))
				return
			case err != nil:
				cfg.logger(ctx, "idempotency_reserve_failed", map[string]any{"error": err.Error()})
				// The store being down must not block order intake.
				next.ServeHTTP(w, r)
				return
			}

			switch state {
			case StateReplay:
				writeStoredResponse(w, record)
				return
			case StateInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("request_in_flight", "a request with this idempotency key is still processing", http.StatusConflict))
				return
			}

			recorder := newResponseRecorder(w)
			next.ServeHTTP(recorder, r)

			if recorder.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					cfg.logger(ctx, "idempotency_release_failed", map[string]any{"error": err.Error()})
				}
				return
			}
			if err := store.Complete(ctx, key, Record{
				Status:      recorder.status,
				ContentType: recorder.Header().Get("Content-Type"),
				Body:        recorder.body.Bytes(),
			}); err != nil {
				cfg.logger(ctx, "idempotency_complete_failed", map[string]any{"error": err.Error()})
			}
		})
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set("Idempotency-Replayed", "true")
	status := record.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseRecorder(parent http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: parent, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}
