package container

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/dispatcher"
	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/application/service"
	"github.com/garyjia/budget-approval/internal/application/workflow"
	"github.com/garyjia/budget-approval/internal/domain/event"
	infraLark "github.com/garyjia/budget-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/budget-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/budget-approval/internal/infrastructure/notify"
	"github.com/garyjia/budget-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/budget-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/budget-approval/internal/infrastructure/realtime"
	"github.com/garyjia/budget-approval/internal/infrastructure/spreadsheet"
	"github.com/garyjia/budget-approval/migrations"
	"github.com/garyjia/budget-approval/pkg/database"
	"github.com/garyjia/budget-approval/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the SQLite database, applies the embedded migrations and
// wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.Open(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, migrations.FS, logger)
	if err != nil {
		return nil, err
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Budget:       repository.NewBudgetRepository(sqlDB, logger),
		Approver:     repository.NewApproverRepository(sqlDB, logger),
		Request:      repository.NewRequestRepository(sqlDB, logger),
		LineItem:     repository.NewLineItemRepository(sqlDB, logger),
		Level:        repository.NewApprovalLevelRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
		Activity:     repository.NewActivityRepository(sqlDB, logger),
		Sequence:     repository.NewSequenceRepository(sqlDB, logger),
		Directory:    repository.NewDirectoryRepository(sqlDB, logger),
	}, nil
}

// ProvideNotifier builds the outbound notifier for the configured channels.
// More than one channel fans out; delivery succeeds when any channel accepts the message.
func ProvideNotifier(cfg *NotificationConfig, larkCfg *LarkConfig, logger *zap.Logger) (port.Notifier, error) {
	if cfg == nil || larkCfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	channels, err := ParseChannels(cfg.Channel)
	if err != nil {
		return nil, err
	}

	notifiers := make([]port.Notifier, 0, len(channels))
	for _, ch := range channels {
		switch ch {
		case ChannelLark:
			sdk := infraLark.NewSDKClient(infraLark.Config{
				AppID:     larkCfg.AppID,
				AppSecret: larkCfg.AppSecret,
				BaseURL:   larkCfg.BaseURL,
			}, logger)
			notifiers = append(notifiers, infraLark.NewMessenger(sdk, logger))
		case ChannelLog:
			notifiers = append(notifiers, notify.NewLogNotifier(logger))
		}
	}

	if len(notifiers) == 1 {
		return notifiers[0], nil
	}
	return notify.NewFanOut(logger, notifiers...), nil
}

// ProvideInsightsGenerator creates the OpenAI insights generator, or nil when insights are disabled.
func ProvideInsightsGenerator(cfg *OpenAIConfig, logger *zap.Logger) (port.InsightsGenerator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai config is required")
	}
	if !cfg.Enabled {
		logger.Info("AI insights disabled")
		return nil, nil
	}

	prompts, err := openai.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	if cfg.Temperature > 0 {
		prompts.RequestInsights.Temperature = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		prompts.RequestInsights.MaxTokens = cfg.MaxTokens
	}

	return openai.NewInsightsGenerator(openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	}, prompts, logger), nil
}

// ProvideRealtimeHub creates the websocket hub, or nil when the feed is disabled.
func ProvideRealtimeHub(cfg *RealtimeConfig, logger *zap.Logger) *realtime.Hub {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return realtime.NewHub(realtime.Config{
		WriteTimeout:   cfg.WriteTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(logger)), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos        *RepositoryBundle
	TxManager    port.TransactionManager
	Notifier     port.Notifier
	Insights     port.InsightsGenerator
	Notification *NotificationConfig
	Logger       *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	repos := deps.Repos
	serviceLogger := utils.NewKVLogger(deps.Logger)

	notifyCfg := service.NotificationDispatcherConfig{}
	if deps.Notification != nil {
		notifyCfg = service.NotificationDispatcherConfig{
			AppBaseURL:         deps.Notification.AppBaseURL,
			SenderName:         deps.Notification.SenderName,
			PayrollRoleKeyword: deps.Notification.PayrollRoleKeyword,
			MaxConcurrency:     deps.Notification.MaxConcurrency,
		}
	}

	bundle := &ServiceBundle{
		Budget: service.NewBudgetService(repos.Budget, repos.Approver, repos.Level, deps.TxManager, serviceLogger, nil),
		Request: service.NewRequestService(service.RequestServiceDeps{
			RequestRepo:  repos.Request,
			BudgetRepo:   repos.Budget,
			LineItemRepo: repos.LineItem,
			LevelRepo:    repos.Level,
			ActivityRepo: repos.Activity,
			Numbers:      service.NewRequestNumberGenerator(repos.Sequence, serviceLogger, nil),
			Importer:     spreadsheet.NewImporter(deps.Logger),
			Exporter:     spreadsheet.NewExporter(deps.Logger),
			TxManager:    deps.TxManager,
			Logger:       serviceLogger,
		}),
		Inbox:         service.NewInboxService(repos.Notification, serviceLogger),
		Scope:         service.NewScopeValidator(repos.Request, repos.Budget, repos.LineItem, nil),
		Ledger:        service.NewApprovalLedger(repos.Request, repos.Approver, repos.Level, deps.TxManager, serviceLogger, nil),
		AutoApproval:  service.NewAutoApprovalResolver(repos.Request, repos.Level, deps.TxManager, serviceLogger, nil),
		Notifications: service.NewNotificationDispatcher(
			repos.Request, repos.Budget, repos.Level, repos.Notification,
			repos.Directory, deps.Notifier, notifyCfg, serviceLogger, nil,
		),
	}
	if deps.Insights != nil {
		bundle.Insights = service.NewInsightsService(repos.Request, repos.Budget, repos.LineItem, repos.Level, deps.Insights, serviceLogger)
	}
	return bundle, nil
}

// WorkflowDeps holds dependencies required for creating the orchestrator.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Services   *ServiceBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Hub        *realtime.Hub
	Logger     *zap.Logger
}

// ProvideOrchestrator creates the workflow orchestrator and registers event subscribers.
func ProvideOrchestrator(deps *WorkflowDeps) (workflow.Orchestrator, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil || deps.Services == nil {
		return nil, fmt.Errorf("repositories and services are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	orchestrator := workflow.NewOrchestrator(workflow.Deps{
		RequestRepo:   deps.Repos.Request,
		BudgetRepo:    deps.Repos.Budget,
		ApproverRepo:  deps.Repos.Approver,
		LineItemRepo:  deps.Repos.LineItem,
		ActivityRepo:  deps.Repos.Activity,
		TxManager:     deps.TxManager,
		Scope:         deps.Services.Scope,
		Ledger:        deps.Services.Ledger,
		AutoApproval:  deps.Services.AutoApproval,
		Notifications: deps.Services.Notifications,
		Dispatcher:    deps.Dispatcher,
		Logger:        deps.Logger,
	})

	deps.Dispatcher.SubscribeNamed(dispatcher.AnyType, "event_logger", createEventLogHandler(deps.Logger))
	if deps.Hub != nil {
		deps.Dispatcher.SubscribeNamed(dispatcher.AnyType, "realtime_hub", deps.Hub.HandleEvent)
	}

	return orchestrator, nil
}

// createEventLogHandler records every workflow event at debug level
func createEventLogHandler(logger *zap.Logger) func(context.Context, *event.Event) error {
	return func(_ context.Context, evt *event.Event) error {
		if evt == nil {
			return fmt.Errorf("event cannot be nil")
		}
		logger.Debug("Workflow event",
			zap.String("event_id", evt.ID),
			zap.String("type", string(evt.Type)),
			zap.String("request_id", evt.RequestID),
			zap.String("stage", evt.GetPayloadString(event.PayloadStage)),
			zap.String("correlation_id", evt.CorrelationID))
		return nil
	}
}
