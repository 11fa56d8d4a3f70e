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
	"time"

	"github.com/googleapis/gax-go/v2"
)

const olivraisonMaxAttempts = 3

// OlivraisonLogger defines the logging contract for Olivraison operations.
type OlivraisonLogger func(ctx context.Context, event string, fields map[string]any)

// OlivraisonProviderConfig configures the OlivraisonProvider.
type OlivraisonProviderConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient httpDoer
	Logger     OlivraisonLogger
}

// OlivraisonProvider implements CarrierProvider against the Olivraison HTTP
// API. Requests are retried with jittered backoff on transient failures.
type OlivraisonProvider struct {
	baseURL string
	apiKey  string
	client  httpDoer
	logger  OlivraisonLogger
}

// NewOlivraisonProvider constructs an Olivraison CarrierProvider.
func NewOlivraisonProvider(cfg OlivraisonProviderConfig) (*OlivraisonProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("olivraison: base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("olivraison: api key is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &OlivraisonProvider{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
		logger:  logger,
	}, nil
}

type olivraisonParcelResponse struct {
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_url"`
	Message        string `json:"message"`
}

// CreateDelivery registers a parcel and returns its tracking number.
func (p *OlivraisonProvider) CreateDelivery(ctx context.Context, req DeliveryRequest) (Ticket, error) {
	payload := map[string]any{
		"reference":   req.Reference,
		"recipient":   req.CustomerName,
		"phone":       req.CustomerPhone,
		"city":        req.City,
		"address":     req.Address,
		"cod_amount":  req.Amount,
		"description": req.Products,
	}

	var resp olivraisonParcelResponse
	if err := p.call(ctx, http.MethodPost, "/colis", payload, &resp); err != nil {
		return Ticket{}, err
	}
	if resp.TrackingNumber == "" {
		return Ticket{}, fmt.Errorf("olivraison: create delivery rejected: %s", resp.Message)
	}

	p.logger(ctx, "shipping.olivraison.delivery_created", map[string]any{
		"reference":  req.Reference,
		"trackingId": resp.TrackingNumber,
	})
	return Ticket{TrackingID: resp.TrackingNumber, LabelURL: resp.LabelURL}, nil
}

// RequestPickup schedules collection of a registered parcel.
func (p *OlivraisonProvider) RequestPickup(ctx context.Context, req PickupRequest) error {
	if strings.TrimSpace(req.TrackingID) == "" {
		return errors.New("olivraison: tracking id is required for pickup")
	}
	payload := map[string]any{
		"tracking_numbers": []string{req.TrackingID},
	}
	if err := p.call(ctx, http.MethodPost, "/ramassage", payload, nil); err != nil {
		return err
	}
	p.logger(ctx, "shipping.olivraison.pickup_requested", map[string]any{
		"trackingId": req.TrackingID,
	})
	return nil
}

func (p *OlivraisonProvider) call(ctx context.Context, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("olivraison: encode request: %w", err)
	}

	backoff := gax.Backoff{
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
	}

	var lastErr error
	for attempt := 0; attempt < olivraisonMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
				return err
			}
		}

		retryable, err := p.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("olivraison: %s %s: retries exhausted: %w", method, path, lastErr)
}

func (p *OlivraisonProvider) doOnce(ctx context.Context, method, path string, body []byte, out any) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("olivraison: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("olivraison: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("olivraison: %s %s: status %d", method, path, resp.StatusCode)
	default:
		return false, fmt.Errorf("olivraison: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return false, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return false, fmt.Errorf("olivraison: decode response: %w", err)
	}
	return false, nil
}
