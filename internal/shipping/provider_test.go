package shipping

import (
	"context"
	"errors"
	"testing"

	"github.com/sellerdesk/api/internal/services"
)

type stubCarrierProvider struct {
	createFn    func(context.Context, DeliveryRequest) (Ticket, error)
	pickupFn    func(context.Context, PickupRequest) error
	createCalls []DeliveryRequest
	pickupCalls []PickupRequest
}

func (s *stubCarrierProvider) CreateDelivery(ctx context.Context, req DeliveryRequest) (Ticket, error) {
	s.createCalls = append(s.createCalls, req)
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return Ticket{TrackingID: "trk-1"}, nil
}

func (s *stubCarrierProvider) RequestPickup(ctx context.Context, req PickupRequest) error {
	s.pickupCalls = append(s.pickupCalls, req)
	if s.pickupFn != nil {
		return s.pickupFn(ctx, req)
	}
	return nil
}

func TestManagerRoutesByCarrierName(t *testing.T) {
	sendit := &stubCarrierProvider{}
	olivraison := &stubCarrierProvider{}
	manager, err := NewManager(map[string]CarrierProvider{
		"sendit":     sendit,
		"olivraison": olivraison,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	ticket, err := manager.CreateDelivery(context.Background(), services.CreateDeliveryCommand{
		Carrier:      "Sendit",
		OrderID:      "order-1",
		CustomerName: "Amine",
		Amount:       300,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	if ticket.Carrier != "sendit" || ticket.TrackingID != "trk-1" {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
	if len(sendit.createCalls) != 1 || len(olivraison.createCalls) != 0 {
		t.Fatalf("expected sendit routed, got sendit=%d olivraison=%d", len(sendit.createCalls), len(olivraison.createCalls))
	}
	if sendit.createCalls[0].Reference != "order-1" || sendit.createCalls[0].Amount != 300 {
		t.Fatalf("unexpected delivery request: %+v", sendit.createCalls[0])
	}
}

func TestManagerDefaultsSingleCarrier(t *testing.T) {
	sendit := &stubCarrierProvider{}
	manager, err := NewManager(map[string]CarrierProvider{"sendit": sendit})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if err := manager.RequestPickup(context.Background(), services.RequestPickupCommand{TrackingID: "trk-9"}); err != nil {
		t.Fatalf("request pickup: %v", err)
	}
	if len(sendit.pickupCalls) != 1 || sendit.pickupCalls[0].TrackingID != "trk-9" {
		t.Fatalf("unexpected pickup calls: %+v", sendit.pickupCalls)
	}
}

func TestManagerUnsupportedCarrier(t *testing.T) {
	manager, err := NewManager(map[string]CarrierProvider{
		"sendit":     &stubCarrierProvider{},
		"olivraison": &stubCarrierProvider{},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = manager.CreateDelivery(context.Background(), services.CreateDeliveryCommand{Carrier: "dhl"})
	if !errors.Is(err, ErrUnsupportedCarrier) {
		t.Fatalf("expected unsupported carrier, got %v", err)
	}
}

func TestNewManagerRejectsEmptyRegistration(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty registration")
	}
	if _, err := NewManager(map[string]CarrierProvider{" ": &stubCarrierProvider{}}); err == nil {
		t.Fatal("expected error for blank carrier key")
	}
}
