package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sellerdesk/api/internal/services"
)

// ErrUnsupportedCarrier is returned when the manager cannot locate a carrier.
var ErrUnsupportedCarrier = errors.New("shipping: unsupported carrier")

// DeliveryRequest describes a parcel to register with a carrier.
type DeliveryRequest struct {
	Reference     string
	CustomerName  string
	CustomerPhone string
	City          string
	Address       string
	Amount        float64
	Products      string
}

// Ticket is the carrier's answer to a registered delivery.
type Ticket struct {
	TrackingID string
	LabelURL   string
}

// PickupRequest asks the carrier to collect a registered parcel.
type PickupRequest struct {
	TrackingID string
}

// CarrierProvider defines the contract carrier adapters implement.
type CarrierProvider interface {
	CreateDelivery(ctx context.Context, req DeliveryRequest) (Ticket, error)
	RequestPickup(ctx context.Context, req PickupRequest) error
}

// Manager routes carrier operations to the registered providers. It satisfies
// the gateway contract the automation engine dispatches through.
type Manager struct {
	providers      map[string]CarrierProvider
	defaultCarrier string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultCarrier overrides the carrier used when a command names none.
func WithDefaultCarrier(carrier string) ManagerOption {
	return func(m *Manager) {
		m.defaultCarrier = strings.ToLower(strings.TrimSpace(carrier))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]CarrierProvider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("shipping: at least one carrier is required")
	}
	copyMap := make(map[string]CarrierProvider, len(providers))
	for k, v := range providers {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("shipping: invalid carrier registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if len(copyMap) == 1 {
		for key := range copyMap {
			m.defaultCarrier = key
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolve(carrier string) (string, CarrierProvider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("shipping: no carriers registered")
	}
	key := strings.ToLower(strings.TrimSpace(carrier))
	if key == "" {
		key = m.defaultCarrier
	}
	if p, ok := m.providers[key]; ok {
		return key, p, nil
	}
	return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedCarrier, carrier)
}

// CreateDelivery registers the parcel with the named carrier.
func (m *Manager) CreateDelivery(ctx context.Context, cmd services.CreateDeliveryCommand) (services.DeliveryTicket, error) {
	key, provider, err := m.resolve(cmd.Carrier)
	if err != nil {
		return services.DeliveryTicket{}, err
	}
	ticket, err := provider.CreateDelivery(ctx, DeliveryRequest{
		Reference:     cmd.OrderID,
		CustomerName:  cmd.CustomerName,
		CustomerPhone: cmd.CustomerPhone,
		City:          cmd.CustomerCity,
		Address:       cmd.CustomerAddress,
		Amount:        cmd.Amount,
		Products:      cmd.Products,
	})
	if err != nil {
		return services.DeliveryTicket{}, err
	}
	return services.DeliveryTicket{
		Carrier:    key,
		TrackingID: ticket.TrackingID,
		LabelURL:   ticket.LabelURL,
	}, nil
}

// RequestPickup asks the named carrier to collect the parcel.
func (m *Manager) RequestPickup(ctx context.Context, cmd services.RequestPickupCommand) error {
	_, provider, err := m.resolve(cmd.Carrier)
	if err != nil {
		return err
	}
	return provider.RequestPickup(ctx, PickupRequest{TrackingID: cmd.TrackingID})
}
