package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/dispatcher"
	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/application/service"
	"github.com/garyjia/budget-approval/internal/application/workflow"
	"github.com/garyjia/budget-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/budget-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/budget-approval/internal/infrastructure/realtime"
	httpapi "github.com/garyjia/budget-approval/internal/interfaces/http"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	notifier port.Notifier
	insights port.InsightsGenerator
	hub      *realtime.Hub

	// Application
	dispatcher   dispatcher.Dispatcher
	services     *ServiceBundle
	orchestrator workflow.Orchestrator

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Budget       port.BudgetRepository
	Approver     port.ApproverRepository
	Request      port.RequestRepository
	LineItem     port.LineItemRepository
	Level        port.ApprovalLevelRepository
	Notification port.NotificationRepository
	Activity     port.ActivityRepository
	Sequence     port.SequenceRepository
	Directory    *repository.DirectoryRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Budget        service.BudgetService
	Request       service.RequestService
	Inbox         service.InboxService
	Insights      service.InsightsService
	Scope         service.ScopeValidator
	Ledger        service.ApprovalLedger
	AutoApproval  service.AutoApprovalResolver
	Notifications service.NotificationDispatcher
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. External adapters (notifier, insights, realtime hub)
// 3. Application services
// 4. Event dispatcher and orchestrator
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external adapters
	if err := c.initExternal(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize external adapters: %w", err)
	}
	c.logger.Info("External adapters initialized")

	// Step 3: Initialize application services
	if err := c.initServices(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 4: Initialize dispatcher and orchestrator
	if err := c.initDispatcherAndOrchestrator(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize dispatcher and orchestrator: %w", err)
	}
	c.logger.Info("Dispatcher and orchestrator initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases initialized components in reverse order
func (c *Container) teardown() error {
	var errs []error

	// Step 1: Drain the dispatcher so pending async handlers finish (reverse of step 4)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	// Step 2: Services hold no resources (reverse of step 3)

	// Step 3: Disconnect realtime clients (reverse of step 2)
	if c.hub != nil {
		if err := c.hub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close realtime hub: %w", err))
		} else {
			c.logger.Info("Realtime hub closed")
		}
		c.hub = nil
	}

	// Step 4: Close database (reverse of step 1)
	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.sqlDB = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: message}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.sqlDB == nil:
		set("database", false, "not initialized")
	default:
		if err := c.sqlDB.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	set("dispatcher", c.dispatcher != nil, messageIf(c.dispatcher == nil, "not initialized"))
	set("orchestrator", c.orchestrator != nil, messageIf(c.orchestrator == nil, "not initialized"))

	if c.hub != nil {
		set("realtime", true, fmt.Sprintf("clients: %d", c.hub.ClientCount()))
	}

	return status
}

func messageIf(cond bool, msg string) string {
	if cond {
		return msg
	}
	return ""
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.sqlDB, c.logger)
	if err != nil {
		c.sqlDB.Close()
		c.sqlDB = nil
		return err
	}

	c.repositories = repos
	return nil
}

// initExternal initializes the notifier, the insights generator and the realtime hub.
func (c *Container) initExternal() error {
	notifier, err := ProvideNotifier(&c.config.Notification, &c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.notifier = notifier

	insights, err := ProvideInsightsGenerator(&c.config.OpenAI, c.logger)
	if err != nil {
		return err
	}
	c.insights = insights

	c.hub = ProvideRealtimeHub(&c.config.Realtime, c.logger)
	return nil
}

// initServices initializes all application services using providers.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:        c.repositories,
		TxManager:    c.db,
		Notifier:     c.notifier,
		Insights:     c.insights,
		Notification: &c.config.Notification,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initDispatcherAndOrchestrator initializes the event dispatcher and the orchestrator.
func (c *Container) initDispatcherAndOrchestrator() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	orchestrator, err := ProvideOrchestrator(&WorkflowDeps{
		Repos:      c.repositories,
		Services:   c.services,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Hub:        c.hub,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.orchestrator = orchestrator

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Directory returns the writable user and organization directory.
func (c *Container) Directory() port.DirectoryWriter {
	return c.repositories.Directory
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Orchestrator returns the workflow orchestrator.
func (c *Container) Orchestrator() workflow.Orchestrator {
	return c.orchestrator
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// HTTPServices returns the services exposed by the HTTP adapter.
func (c *Container) HTTPServices() httpapi.Services {
	services := httpapi.Services{
		Budgets:      c.services.Budget,
		Requests:     c.services.Request,
		Inbox:        c.services.Inbox,
		Orchestrator: c.orchestrator,
	}
	if c.services.Insights != nil {
		services.Insights = c.services.Insights
	}
	if c.hub != nil {
		services.Realtime = http.HandlerFunc(c.hub.ServeWS)
	}
	return services
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
