package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Store represents a tenant account. Orders, products and automations all hang
// off a store; every core operation receives the store id explicitly.
type Store struct {
	ID            string
	Name          string
	Phone         string
	Currency      string
	SenderName    string
	SenderCity    string
	SenderAddress string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Product is a catalog entry holding the shared stock counter.
//
// Stock never drops below zero; any transaction that would make it negative is
// aborted before writing.
type Product struct {
	ID        string
	StoreID   string
	Name      string
	Stock     int
	Price     float64
	CostPrice float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order is a single ledger entry for a store.
//
// Soft deletion (Deleted flag) is orthogonal to Status: a deleted order keeps
// its status and has no stock effect either way.
type Order struct {
	ID               string
	StoreID          string
	ArticleID        string
	ArticleName      string
	Quantity         int
	Price            float64
	CostPrice        float64
	RealDeliveryCost float64
	Status           OrderStatus
	IsPaid           bool
	PaymentMethod    string
	CustomerID       string
	CustomerName     string
	CustomerPhone    string
	CustomerCity     string
	CustomerAddress  string
	Date             time.Time
	Carrier          string
	TrackingID       string
	Deleted          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Total returns the order value (unit price times quantity).
func (o Order) Total() float64 {
	return o.Price * float64(o.Quantity)
}

// Customer stores the contact record an order may link to. Contact fields are
// denormalised back from the order on every update that touches them.
type Customer struct {
	ID        string
	StoreID   string
	Name      string
	Phone     string
	City      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AggregateTotals carries the store-wide monetary aggregates.
type AggregateTotals struct {
	Revenue              float64
	Count                int64
	RealizedRevenue      float64
	RealizedCOGS         float64
	RealizedDeliveryCost float64
	DeliveredRevenue     float64
}

// DailyStat buckets revenue and order count by calendar day.
type DailyStat struct {
	Revenue float64
	Count   int64
}

// AggregateStats is the single per-store statistics document. It is entirely
// derived from the order ledger and always written as a whole, never merged.
type AggregateStats struct {
	StoreID      string
	Totals       AggregateTotals
	StatusCounts map[string]int64
	Daily        map[string]DailyStat
	// GeneratedAt records when the document was rebuilt. It is provenance
	// metadata, not part of the derived aggregate.
	GeneratedAt time.Time
}

// DailyBucketKey formats the day bucket used by AggregateStats.Daily.
func DailyBucketKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// AutomationStatus enumerates automation definition states.
type AutomationStatus string

const (
	// AutomationStatusActive marks definitions evaluated on lifecycle events.
	AutomationStatusActive AutomationStatus = "active"
	// AutomationStatusInactive marks definitions that are skipped entirely.
	AutomationStatusInactive AutomationStatus = "inactive"
)

// TriggerKind identifies the lifecycle event an automation reacts to.
type TriggerKind string

const (
	// TriggerOrderCreated fires after an order create transaction commits.
	TriggerOrderCreated TriggerKind = "order_created"
	// TriggerOrderUpdated fires after an order update transaction commits.
	TriggerOrderUpdated TriggerKind = "order_updated"
)

// ConditionKind enumerates the supported automation condition variants.
type ConditionKind int

const (
	// ConditionNone means the definition carries no condition node and the
	// action always runs.
	ConditionNone ConditionKind = iota
	// ConditionStatusEquals compares the event order status to a target.
	ConditionStatusEquals
	// ConditionTotalGreater compares the event order total to a threshold.
	ConditionTotalGreater
	// ConditionUnknown is the serialization-boundary fallback for retired
	// condition ids found in persisted definitions. It never passes.
	ConditionUnknown
)

// Condition is the decoded, closed-variant form of an automation condition node.
type Condition struct {
	Kind   ConditionKind
	Status OrderStatus
	Amount float64
}

// ActionKind enumerates the supported automation action variants.
type ActionKind int

const (
	// ActionUnknown is the serialization-boundary fallback for retired action
	// ids; the engine logs and skips it.
	ActionUnknown ActionKind = iota
	// ActionCreateDelivery creates a shipment through the carrier client.
	ActionCreateDelivery
	// ActionSendWhatsApp renders a template and dispatches it.
	ActionSendWhatsApp
	// ActionRequestPickup asks the carrier to schedule a pickup.
	ActionRequestPickup
)

// Action is the decoded, closed-variant form of an automation action node.
type Action struct {
	Kind     ActionKind
	Carrier  string
	Template string
}

// AutomationNodeType distinguishes the node roles inside a definition.
type AutomationNodeType string

const (
	// AutomationNodeTrigger is the first node of every definition.
	AutomationNodeTrigger AutomationNodeType = "trigger"
	// AutomationNodeCondition is the optional middle node.
	AutomationNodeCondition AutomationNodeType = "condition"
	// AutomationNodeAction is the final node of every definition.
	AutomationNodeAction AutomationNodeType = "action"
)

// AutomationNode is a single element of the stored trigger→condition→action
// chain. Config is free-form per node kind.
type AutomationNode struct {
	Type   AutomationNodeType
	ID     string
	Config map[string]any
}

// AutomationDefinition is a tenant-authored rule: one trigger, at most one
// condition, one action. The engine consumes it read-only.
type AutomationDefinition struct {
	ID        string
	StoreID   string
	Name      string
	Status    AutomationStatus
	Nodes     []AutomationNode
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Trigger returns the trigger kind from the first node, or empty when the
// chain is malformed.
func (d AutomationDefinition) Trigger() TriggerKind {
	if len(d.Nodes) == 0 || d.Nodes[0].Type != AutomationNodeTrigger {
		return ""
	}
	return TriggerKind(d.Nodes[0].ID)
}

// Condition decodes the condition node into its closed variant. Definitions
// without a condition node yield ConditionNone.
func (d AutomationDefinition) Condition() Condition {
	for _, node := range d.Nodes {
		if node.Type != AutomationNodeCondition {
			continue
		}
		switch node.ID {
		case "status_equals":
			return Condition{Kind: ConditionStatusEquals, Status: OrderStatus(configString(node.Config, "status"))}
		case "total_greater":
			return Condition{Kind: ConditionTotalGreater, Amount: configFloat(node.Config, "amount")}
		default:
			return Condition{Kind: ConditionUnknown}
		}
	}
	return Condition{Kind: ConditionNone}
}

// Action decodes the action node into its closed variant. The last node wins
// when no node is explicitly typed as an action.
func (d AutomationDefinition) Action() Action {
	node, ok := d.actionNode()
	if !ok {
		return Action{Kind: ActionUnknown}
	}
	switch node.ID {
	case "create_delivery":
		return Action{Kind: ActionCreateDelivery, Carrier: configString(node.Config, "carrier")}
	case "send_whatsapp":
		return Action{Kind: ActionSendWhatsApp, Template: configString(node.Config, "template")}
	case "request_pickup":
		return Action{Kind: ActionRequestPickup, Carrier: configString(node.Config, "carrier")}
	default:
		return Action{Kind: ActionUnknown}
	}
}

// RawActionID exposes the stored action node id for logging unknown kinds.
func (d AutomationDefinition) RawActionID() string {
	if node, ok := d.actionNode(); ok {
		return node.ID
	}
	return ""
}

func (d AutomationDefinition) actionNode() (AutomationNode, bool) {
	for _, node := range d.Nodes {
		if node.Type == AutomationNodeAction {
			return node, true
		}
	}
	if len(d.Nodes) > 1 {
		return d.Nodes[len(d.Nodes)-1], true
	}
	return AutomationNode{}, false
}

func configString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

func configFloat(config map[string]any, key string) float64 {
	if config == nil {
		return 0
	}
	switch v := config[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
