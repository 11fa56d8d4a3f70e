package di

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sellerdesk/api/internal/platform/config"
	"github.com/sellerdesk/api/internal/repositories"
	"github.com/sellerdesk/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders      services.OrderService
	Automations services.AutomationService
	Engine      services.AutomationEngine
	Stats       services.StatsService
}

// ContainerDeps carries the external collaborators wired outside the
// repository registry. Any of them may be nil: orders then skip event
// publishing, and automation actions that need the missing collaborator
// fail per definition without aborting the run.
type ContainerDeps struct {
	Events   services.OrderEventPublisher
	Carriers services.CarrierGateway
	Messages services.MessageSender
	Logger   *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring will provide real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps ContainerDeps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources held by the container.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, deps ContainerDeps) (Services, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine, err := services.NewAutomationEngine(services.AutomationEngineDeps{
		Automations: reg.Automations(),
		Stores:      reg.Stores(),
		Orders:      reg.Orders(),
		Carriers:    deps.Carriers,
		Messages:    deps.Messages,
		Logger:      EventLogger(logger.Named("automation")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build automation engine: %w", err)
	}

	automationSvc, err := services.NewAutomationService(services.AutomationServiceDeps{
		Automations: reg.Automations(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build automation service: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		Events:      deps.Events,
		Automations: engine,
		Logger:      EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	statsSvc, err := services.NewStatsService(services.StatsServiceDeps{
		Orders: reg.Orders(),
		Stats:  reg.Stats(),
		Logger: EventLogger(logger.Named("stats")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stats service: %w", err)
	}

	return Services{
		Orders:      orderSvc,
		Automations: automationSvc,
		Engine:      engine,
		Stats:       statsSvc,
	}, nil
}

// EventLogger adapts a zap logger to the event/fields callback the service
// layer expects.
func EventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}
