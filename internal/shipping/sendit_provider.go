package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// defaultSenditTokenTTL applies when the login token carries no expiry claim.
const defaultSenditTokenTTL = time.Hour

// tokenRefreshSkew refreshes tokens slightly before their actual expiry so an
// in-flight request never rides an expired bearer.
const tokenRefreshSkew = time.Minute

// SenditLogger defines the logging contract for Sendit operations.
type SenditLogger func(ctx context.Context, event string, fields map[string]any)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SenditProviderConfig configures the SenditProvider.
type SenditProviderConfig struct {
	BaseURL    string
	PublicKey  string
	SecretKey  string
	HTTPClient httpDoer
	Logger     SenditLogger
	Clock      func() time.Time
}

// SenditProvider implements CarrierProvider against the Sendit HTTP API.
// Authentication is a key-pair login returning a JWT bearer that is cached
// until shortly before its exp claim.
type SenditProvider struct {
	baseURL   string
	publicKey string
	secretKey string
	client    httpDoer
	clock     func() time.Time
	logger    SenditLogger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewSenditProvider constructs a Sendit CarrierProvider.
func NewSenditProvider(cfg SenditProviderConfig) (*SenditProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("sendit: base url is required")
	}
	if strings.TrimSpace(cfg.PublicKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("sendit: key pair is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &SenditProvider{
		baseURL:   baseURL,
		publicKey: strings.TrimSpace(cfg.PublicKey),
		secretKey: strings.TrimSpace(cfg.SecretKey),
		client:    client,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

type senditLoginResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token string `json:"token"`
	} `json:"data"`
	Message string `json:"message"`
}

type senditDeliveryResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Code     string `json:"code"`
		LabelURL string `json:"label_url"`
	} `json:"data"`
	Message string `json:"message"`
}

// CreateDelivery registers a parcel and returns its Sendit tracking code.
func (p *SenditProvider) CreateDelivery(ctx context.Context, req DeliveryRequest) (Ticket, error) {
	payload := map[string]any{
		"reference":      req.Reference,
		"name":           req.CustomerName,
		"phone":          req.CustomerPhone,
		"district":       req.City,
		"address":        req.Address,
		"amount":         req.Amount,
		"products":       req.Products,
		"allow_open":     1,
		"packaging_id":   1,
		"option_exchange": 0,
	}

	var resp senditDeliveryResponse
	if err := p.call(ctx, http.MethodPost, "/deliveries", payload, &resp); err != nil {
		return Ticket{}, err
	}
	if !resp.Success || resp.Data.Code == "" {
		return Ticket{}, fmt.Errorf("sendit: create delivery rejected: %s", resp.Message)
	}

	p.logger(ctx, "shipping.sendit.delivery_created", map[string]any{
		"reference":  req.Reference,
		"trackingId": resp.Data.Code,
	})
	return Ticket{TrackingID: resp.Data.Code, LabelURL: resp.Data.LabelURL}, nil
}

// RequestPickup schedules collection of a registered parcel.
func (p *SenditProvider) RequestPickup(ctx context.Context, req PickupRequest) error {
	if strings.TrimSpace(req.TrackingID) == "" {
		return errors.New("sendit: tracking id is required for pickup")
	}
	payload := map[string]any{
		"deliveries": []string{req.TrackingID},
	}
	var resp senditLoginResponse
	if err := p.call(ctx, http.MethodPost, "/pickups", payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("sendit: pickup rejected: %s", resp.Message)
	}
	p.logger(ctx, "shipping.sendit.pickup_requested", map[string]any{
		"trackingId": req.TrackingID,
	})
	return nil
}

func (p *SenditProvider) call(ctx context.Context, method, path string, payload any, out any) error {
	token, err := p.bearerToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sendit: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sendit: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendit: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token revoked server-side; drop the cache so the next call re-logs in.
		p.mu.Lock()
		p.token = ""
		p.mu.Unlock()
		return fmt.Errorf("sendit: %s %s: unauthorized", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendit: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("sendit: decode response: %w", err)
	}
	return nil
}

// bearerToken returns the cached login token, refreshing it when it is about
// to expire.
func (p *SenditProvider) bearerToken(ctx context.Context) (string, error) {
	now := p.clock()
	p.mu.Lock()
	if p.token != "" && now.Before(p.tokenExp.Add(-tokenRefreshSkew)) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	body, err := json.Marshal(map[string]string{
		"public_key": p.publicKey,
		"secret_key": p.secretKey,
	})
	if err != nil {
		return "", fmt.Errorf("sendit: encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("sendit: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sendit: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendit: login: unexpected status %d", resp.StatusCode)
	}
	var login senditLoginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&login); err != nil {
		return "", fmt.Errorf("sendit: decode login response: %w", err)
	}
	if !login.Success || login.Data.Token == "" {
		return "", fmt.Errorf("sendit: login rejected: %s", login.Message)
	}

	expiry := tokenExpiry(login.Data.Token, now)

	p.mu.Lock()
	p.token = login.Data.Token
	p.tokenExp = expiry
	p.mu.Unlock()

	p.logger(ctx, "shipping.sendit.token_refreshed", map[string]any{
		"expiresAt": expiry,
	})
	return login.Data.Token, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the token
// is only inspected for scheduling, never trusted.
func tokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time.UTC()
	}
	return now.Add(defaultSenditTokenTTL)
}
