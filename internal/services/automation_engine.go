package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/repositories"
)

// AutomationEngineDeps bundles the collaborators required to construct the engine.
type AutomationEngineDeps struct {
	Automations repositories.AutomationRepository
	Stores      repositories.StoreRepository
	Orders      repositories.OrderRepository
	Carriers    CarrierGateway
	Messages    MessageSender
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type automationEngine struct {
	automations repositories.AutomationRepository
	stores      repositories.StoreRepository
	orders      repositories.OrderRepository
	carriers    CarrierGateway
	messages    MessageSender
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewAutomationEngine wires dependencies into a concrete AutomationEngine.
func NewAutomationEngine(deps AutomationEngineDeps) (AutomationEngine, error) {
	if deps.Automations == nil {
		return nil, errors.New("automation engine: automation repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &automationEngine{
		automations: deps.Automations,
		stores:      deps.Stores,
		orders:      deps.Orders,
		carriers:    deps.Carriers,
		messages:    deps.Messages,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (e *automationEngine) OnOrderCreated(ctx context.Context, order Order) AutomationRunSummary {
	return e.run(ctx, domain.TriggerOrderCreated, order)
}

func (e *automationEngine) OnOrderUpdated(ctx context.Context, previous Order, current Order) AutomationRunSummary {
	return e.run(ctx, domain.TriggerOrderUpdated, current)
}

func (e *automationEngine) run(ctx context.Context, trigger domain.TriggerKind, order Order) AutomationRunSummary {
	summary := AutomationRunSummary{Trigger: trigger}

	defs, err := e.automations.QueryActive(ctx, order.StoreID, trigger)
	if err != nil {
		e.logger(ctx, "automation_query_failed", map[string]any{
			"storeId": order.StoreID,
			"trigger": string(trigger),
			"error":   err.Error(),
		})
		summary.Failures = append(summary.Failures, AutomationFailure{Err: err})
		return summary
	}
	summary.Matched = len(defs)

	var store *Store
	for _, def := range defs {
		if !e.conditionPasses(ctx, def, order) {
			summary.Skipped++
			continue
		}
		if err := e.dispatch(ctx, def, order, &store); err != nil {
			if errors.Is(err, errUnknownAction) {
				summary.Skipped++
				continue
			}
			summary.Failures = append(summary.Failures, AutomationFailure{AutomationID: def.ID, Err: err})
			continue
		}
		summary.Executed++
	}
	return summary
}

// errUnknownAction marks definitions whose action id is not recognised; they
// are counted as skipped, not failed.
var errUnknownAction = errors.New("automation engine: unknown action")

func (e *automationEngine) conditionPasses(ctx context.Context, def AutomationDefinition, order Order) bool {
	cond := def.Condition()
	switch cond.Kind {
	case domain.ConditionNone:
		return true
	case domain.ConditionStatusEquals:
		return order.Status == cond.Status
	case domain.ConditionTotalGreater:
		return order.Total() > cond.Amount
	default:
		e.logger(ctx, "automation_condition_unknown", map[string]any{
			"automationId": def.ID,
			"storeId":      def.StoreID,
		})
		return false
	}
}

func (e *automationEngine) dispatch(ctx context.Context, def AutomationDefinition, order Order, store **Store) error {
	action := def.Action()
	switch action.Kind {
	case domain.ActionCreateDelivery:
		return e.createDelivery(ctx, def, action, order)
	case domain.ActionSendWhatsApp:
		return e.sendMessage(ctx, action, order, store)
	case domain.ActionRequestPickup:
		return e.requestPickup(ctx, action, order)
	default:
		e.logger(ctx, "automation_action_unknown", map[string]any{
			"automationId": def.ID,
			"storeId":      def.StoreID,
			"actionId":     def.RawActionID(),
		})
		return errUnknownAction
	}
}

func (e *automationEngine) createDelivery(ctx context.Context, def AutomationDefinition, action domain.Action, order Order) error {
	if e.carriers == nil {
		return errors.New("automation engine: carrier gateway is not configured")
	}

	ticket, err := e.carriers.CreateDelivery(ctx, CreateDeliveryCommand{
		Carrier:         action.Carrier,
		StoreID:         order.StoreID,
		OrderID:         order.ID,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		CustomerCity:    order.CustomerCity,
		CustomerAddress: order.CustomerAddress,
		Amount:          order.Total(),
		Products:        deliveryProductLine(order),
	})
	if err != nil {
		return fmt.Errorf("create delivery via %s: %w", action.Carrier, err)
	}

	e.logger(ctx, "automation_delivery_created", map[string]any{
		"automationId": def.ID,
		"orderId":      order.ID,
		"carrier":      ticket.Carrier,
		"trackingId":   ticket.TrackingID,
	})

	if e.orders == nil {
		return nil
	}
	// The tracking write-back rides the same merge path as user updates; losing
	// it leaves the ticket reachable through the carrier dashboard only.
	_, err = e.orders.Update(ctx, repositories.OrderUpdateRequest{
		StoreID: order.StoreID,
		OrderID: order.ID,
		Fields: repositories.OrderFields{
			Carrier:    &ticket.Carrier,
			TrackingID: &ticket.TrackingID,
		},
		Now: e.clock(),
	})
	if err != nil {
		return fmt.Errorf("record tracking id %s: %w", ticket.TrackingID, err)
	}
	return nil
}

func (e *automationEngine) sendMessage(ctx context.Context, action domain.Action, order Order, store **Store) error {
	if e.messages == nil {
		return errors.New("automation engine: message sender is not configured")
	}
	if strings.TrimSpace(order.CustomerPhone) == "" {
		return errors.New("automation engine: order has no customer phone")
	}

	if *store == nil {
		loaded, err := e.loadStore(ctx, order.StoreID)
		if err != nil {
			return err
		}
		*store = &loaded
	}

	return e.messages.SendOrderMessage(ctx, SendOrderMessageCommand{
		StoreID:  order.StoreID,
		OrderID:  order.ID,
		Phone:    order.CustomerPhone,
		Template: action.Template,
		Order:    order,
		Store:    **store,
	})
}

func (e *automationEngine) requestPickup(ctx context.Context, action domain.Action, order Order) error {
	if e.carriers == nil {
		return errors.New("automation engine: carrier gateway is not configured")
	}
	carrier := action.Carrier
	if carrier == "" {
		carrier = order.Carrier
	}
	return e.carriers.RequestPickup(ctx, RequestPickupCommand{
		Carrier:    carrier,
		StoreID:    order.StoreID,
		TrackingID: order.TrackingID,
	})
}

// loadStore fetches tenant sender settings once per engine run; the zero store
// keeps messages sendable when the record is missing.
func (e *automationEngine) loadStore(ctx context.Context, storeID string) (Store, error) {
	if e.stores == nil {
		return Store{ID: storeID}, nil
	}
	store, err := e.stores.FindByID(ctx, storeID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Store{ID: storeID}, nil
		}
		return Store{}, fmt.Errorf("load store %s: %w", storeID, err)
	}
	return store, nil
}

func deliveryProductLine(order Order) string {
	name := strings.TrimSpace(order.ArticleName)
	if name == "" {
		name = order.ArticleID
	}
	if order.Quantity > 1 {
		return fmt.Sprintf("%s x%d", name, order.Quantity)
	}
	return name
}
