package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/sellerdesk/api/internal/domain"
	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
)

const automationsCollection = "automations"

// AutomationRepository persists automation definitions. The engine consumes
// them read-only via QueryActive; editing goes through Upsert.
type AutomationRepository struct {
	automations *pfirestore.BaseRepository[automationDocument]
}

// NewAutomationRepository constructs the repository bound to the shared provider.
func NewAutomationRepository(provider *pfirestore.Provider) (*AutomationRepository, error) {
	if provider == nil {
		return nil, errors.New("automation repository requires firestore provider")
	}
	return &AutomationRepository{
		automations: pfirestore.NewBaseRepository[automationDocument](provider, automationsCollection),
	}, nil
}

// QueryActive returns the store's active definitions whose trigger matches.
// The trigger id is denormalised onto the document so the query does not have
// to unpack node arrays server-side.
func (r *AutomationRepository) QueryActive(ctx context.Context, storeID string, trigger domain.TriggerKind) ([]domain.AutomationDefinition, error) {
	if r == nil || r.automations == nil {
		return nil, errors.New("automation repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, errors.New("automation query: store id is required")
	}

	docs, err := r.automations.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("storeId", "==", storeID).
			Where("status", "==", string(domain.AutomationStatusActive)).
			Where("triggerType", "==", string(trigger))
	})
	if err != nil {
		return nil, pfirestore.WrapError("automations.queryActive", err)
	}
	return toDefinitions(docs), nil
}

// List returns every definition of the store, name-sorted for stable UIs.
func (r *AutomationRepository) List(ctx context.Context, storeID string) ([]domain.AutomationDefinition, error) {
	if r == nil || r.automations == nil {
		return nil, errors.New("automation repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, errors.New("automation list: store id is required")
	}

	docs, err := r.automations.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("storeId", "==", storeID)
	})
	if err != nil {
		return nil, pfirestore.WrapError("automations.list", err)
	}

	defs := toDefinitions(docs)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Upsert writes the definition, refreshing the denormalised trigger id.
func (r *AutomationRepository) Upsert(ctx context.Context, def domain.AutomationDefinition) error {
	if r == nil || r.automations == nil {
		return errors.New("automation repository not initialised")
	}
	if strings.TrimSpace(def.ID) == "" {
		return errors.New("automation upsert: id is required")
	}
	if len(def.Nodes) == 0 {
		return errors.New("automation upsert: at least one node is required")
	}
	_, err := r.automations.Set(ctx, def.ID, newAutomationDocument(def))
	return pfirestore.WrapError("automations.upsert", err)
}

func toDefinitions(docs []pfirestore.Document[automationDocument]) []domain.AutomationDefinition {
	defs := make([]domain.AutomationDefinition, 0, len(docs))
	for _, doc := range docs {
		defs = append(defs, doc.Data.toDomain(doc.ID))
	}
	return defs
}

type automationDocument struct {
	StoreID     string                   `firestore:"storeId"`
	Name        string                   `firestore:"name"`
	Status      string                   `firestore:"status"`
	TriggerType string                   `firestore:"triggerType"`
	Nodes       []automationNodeDocument `firestore:"nodes"`
	CreatedAt   time.Time                `firestore:"createdAt"`
	UpdatedAt   time.Time                `firestore:"updatedAt"`
}

type automationNodeDocument struct {
	Type   string         `firestore:"type"`
	ID     string         `firestore:"id"`
	Config map[string]any `firestore:"config,omitempty"`
}

func newAutomationDocument(def domain.AutomationDefinition) automationDocument {
	nodes := make([]automationNodeDocument, len(def.Nodes))
	for i, node := range def.Nodes {
		nodes[i] = automationNodeDocument{
			Type:   string(node.Type),
			ID:     strings.TrimSpace(node.ID),
			Config: node.Config,
		}
	}
	return automationDocument{
		StoreID:     strings.TrimSpace(def.StoreID),
		Name:        strings.TrimSpace(def.Name),
		Status:      string(def.Status),
		TriggerType: string(def.Trigger()),
		Nodes:       nodes,
		CreatedAt:   def.CreatedAt.UTC(),
		UpdatedAt:   def.UpdatedAt.UTC(),
	}
}

func (d automationDocument) toDomain(id string) domain.AutomationDefinition {
	nodes := make([]domain.AutomationNode, len(d.Nodes))
	for i, node := range d.Nodes {
		nodes[i] = domain.AutomationNode{
			Type:   domain.AutomationNodeType(node.Type),
			ID:     node.ID,
			Config: node.Config,
		}
	}
	return domain.AutomationDefinition{
		ID:        id,
		StoreID:   d.StoreID,
		Name:      d.Name,
		Status:    domain.AutomationStatus(d.Status),
		Nodes:     nodes,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
