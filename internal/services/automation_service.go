package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/repositories"
)

// ErrAutomationInvalid signals a definition that violates the chain shape.
var ErrAutomationInvalid = errors.New("automations: invalid definition")

// AutomationServiceDeps bundles the collaborators required to construct the service.
type AutomationServiceDeps struct {
	Automations repositories.AutomationRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type automationService struct {
	automations repositories.AutomationRepository
	clock       func() time.Time
	newID       func() string
}

// NewAutomationService wires dependencies into a concrete AutomationService.
func NewAutomationService(deps AutomationServiceDeps) (AutomationService, error) {
	if deps.Automations == nil {
		return nil, errors.New("automation service: automation repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &automationService{
		automations: deps.Automations,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *automationService) ListAutomations(ctx context.Context, storeID string) ([]AutomationDefinition, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, fmt.Errorf("%w: store id is required", ErrAutomationInvalid)
	}
	return s.automations.List(ctx, storeID)
}

func (s *automationService) SaveAutomation(ctx context.Context, cmd SaveAutomationCommand) (AutomationDefinition, error) {
	storeID := strings.TrimSpace(cmd.StoreID)
	if storeID == "" {
		return AutomationDefinition{}, fmt.Errorf("%w: store id is required", ErrAutomationInvalid)
	}
	if err := validateNodeChain(cmd.Nodes); err != nil {
		return AutomationDefinition{}, err
	}

	status := cmd.Status
	if status == "" {
		status = domain.AutomationStatusActive
	}
	if status != domain.AutomationStatusActive && status != domain.AutomationStatusInactive {
		return AutomationDefinition{}, fmt.Errorf("%w: unknown status %q", ErrAutomationInvalid, status)
	}

	now := s.clock()
	def := AutomationDefinition{
		ID:        strings.TrimSpace(cmd.ID),
		StoreID:   storeID,
		Name:      strings.TrimSpace(cmd.Name),
		Status:    status,
		Nodes:     cmd.Nodes,
		UpdatedAt: now,
	}
	if def.ID == "" {
		def.ID = s.newID()
		def.CreatedAt = now
	}

	if err := s.automations.Upsert(ctx, def); err != nil {
		return AutomationDefinition{}, err
	}
	return def, nil
}

// validateNodeChain enforces the trigger → optional condition → action shape.
// Condition and action ids are not validated here: retired ids stay stored and
// the engine treats them as skip at evaluation time.
func validateNodeChain(nodes []domain.AutomationNode) error {
	if len(nodes) == 0 {
		return fmt.Errorf("%w: at least one node is required", ErrAutomationInvalid)
	}
	if nodes[0].Type != domain.AutomationNodeTrigger {
		return fmt.Errorf("%w: first node must be the trigger", ErrAutomationInvalid)
	}
	switch domain.TriggerKind(nodes[0].ID) {
	case domain.TriggerOrderCreated, domain.TriggerOrderUpdated:
	default:
		return fmt.Errorf("%w: unknown trigger %q", ErrAutomationInvalid, nodes[0].ID)
	}

	var conditions, actions, triggers int
	for i, node := range nodes {
		switch node.Type {
		case domain.AutomationNodeTrigger:
			triggers++
			if i != 0 {
				return fmt.Errorf("%w: trigger must be the first node", ErrAutomationInvalid)
			}
		case domain.AutomationNodeCondition:
			conditions++
		case domain.AutomationNodeAction:
			actions++
		default:
			return fmt.Errorf("%w: unknown node type %q", ErrAutomationInvalid, node.Type)
		}
	}
	if triggers != 1 {
		return fmt.Errorf("%w: exactly one trigger is required", ErrAutomationInvalid)
	}
	if conditions > 1 {
		return fmt.Errorf("%w: at most one condition is allowed", ErrAutomationInvalid)
	}
	if actions != 1 {
		return fmt.Errorf("%w: exactly one action is required", ErrAutomationInvalid)
	}
	return nil
}
