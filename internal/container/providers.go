package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/notification"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/currency"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/storage"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// NotifierBundle holds the Lark transports used by notification delivery.
type NotifierBundle struct {
	Client *lark.Client
	Push   port.PushSender
	Email  port.EmailSender
}

// CurrencyBundle holds the converter and its upstream rate source.
type CurrencyBundle struct {
	Converter *currency.RateConverter
	Fetcher   port.RateFetcher
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on one connection pool.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Expense:      repository.NewExpenseRepository(db.DB, logger),
		Report:       repository.NewReportRepository(db.DB, logger),
		Instance:     repository.NewApprovalInstanceRepository(db.DB, logger),
		Matrix:       repository.NewApprovalMatrixRepository(db.DB, logger),
		User:         repository.NewUserRepository(db.DB, logger),
		Notification: repository.NewNotificationRepository(db.DB, logger),
		ExchangeRate: repository.NewExchangeRateRepository(db.DB, logger),
		Spend:        repository.NewSpendRepository(db.DB, logger),
	}, nil
}

// ProvideNotifiers creates the Lark client and the push and email senders on top of it.
func ProvideNotifiers(cfg *LarkConfig, logger *zap.Logger) (*NotifierBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}

	client := lark.NewClient(lark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		BaseURL:       cfg.BaseURL,
		ReceiveIDType: cfg.ReceiveIDType,
	}, logger)

	return &NotifierBundle{
		Client: client,
		Push:   lark.NewPushSender(client, cfg.ReceiveIDType, logger),
		Email:  lark.NewEmailSender(client, logger),
	}, nil
}

// ProvideReceiptParser creates the OCR parser, loading prompt overrides when configured.
func ProvideReceiptParser(cfg *OpenAIConfig, logger *zap.Logger) (port.ReceiptParser, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai config is required")
	}

	prompts, err := openai.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	return openai.NewReceiptParser(openai.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		MaxPages: cfg.MaxPages,
		Timeout:  cfg.Timeout,
	}, prompts, logger), nil
}

// ProvideCurrency creates the converter and warms it from stored rates.
// A cold cache is not fatal; the refresher fills it on its first run.
func ProvideCurrency(ctx context.Context, cfg *CurrencyConfig, rates port.ExchangeRateRepository, logger *zap.Logger) (*CurrencyBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("currency config is required")
	}

	converter := currency.NewRateConverter(rates, logger)
	if err := converter.Warm(ctx); err != nil {
		logger.Warn("Failed to warm exchange rate cache", zap.Error(err))
	}

	return &CurrencyBundle{
		Converter: converter,
		Fetcher:   currency.NewHTTPRateFetcher(cfg.RatesURL, cfg.Timeout, logger),
	}, nil
}

// ProvideStorage creates the local file storage.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil || cfg.BaseDir == "" {
		return nil, fmt.Errorf("storage base directory is required")
	}
	return storage.NewLocalFileStorage(cfg.BaseDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewLogAdapter(logger))), nil
}

// ProvideNotificationQueue creates the delivery queue. It is started with the other workers.
func ProvideNotificationQueue(cfg *NotificationConfig, repos *RepositoryBundle, notifiers *NotifierBundle, logger *zap.Logger) *notification.Queue {
	adapter := utils.NewLogAdapter(logger)
	deliverer := notification.NewDeliverer(repos.User, notifiers.Push, notifiers.Email, repos.Notification, adapter)

	opts := []notification.Option{notification.WithMaxRetries(cfg.MaxRetries)}
	if len(cfg.RetryDelays) > 0 {
		opts = append(opts, notification.WithRetryDelays(cfg.RetryDelays...))
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, notification.WithDeliveryTimeout(cfg.DeliveryTimeout))
	}
	return notification.NewQueue(deliverer, adapter, opts...)
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Queue      port.NotificationQueue
	Converter  port.CurrencyConverter
	Parser     port.ReceiptParser
	Storage    port.FileStorage
	Logger     *zap.Logger
}

// ProvideServices creates the application services and the approval engine,
// and subscribes duplicate reconciliation to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	adapter := utils.NewLogAdapter(deps.Logger)
	repos := deps.Repos

	duplicates := service.NewDuplicateService(repos.Expense, repos.User, adapter)
	duplicates.RegisterHandlers(deps.Dispatcher)

	expenses := service.NewExpenseService(repos.Expense, repos.Report, repos.User, duplicates, adapter,
		service.WithCurrencyConverter(deps.Converter),
		service.WithExpenseDispatcher(deps.Dispatcher),
	)

	engine := workflow.NewEngine(
		repos.Instance,
		repos.Matrix,
		repos.Report,
		repos.Expense,
		repos.User,
		service.NewRoleResolver(repos.User, adapter),
		deps.TxManager,
		adapter,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithNotificationQueue(deps.Queue),
	)

	return &ServiceBundle{
		Expense:   expenses,
		Duplicate: duplicates,
		Report:    service.NewReportService(repos.Report, repos.Expense, repos.User, adapter),
		Receipt:   service.NewReceiptService(deps.Storage, deps.Parser, repos.User, duplicates, storage.ReceiptPath, adapter),
		Dashboard: service.NewDashboardService(repos.Spend, deps.Converter, adapter),
		Approval:  engine,
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Config    *Config
	Queue     *notification.Queue
	Currency  *CurrencyBundle
	Dashboard service.DashboardService
	Companies worker.CompanyLister
	Storage   port.FileStorage
	Logger    *zap.Logger
}

// ProvideWorkers registers the notification queue, rate refresher and snapshot exporter.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	manager.Register(deps.Queue)
	manager.Register(worker.NewRateRefreshWorker(
		deps.Currency.Converter,
		deps.Currency.Fetcher,
		deps.Config.Currency.RefreshInterval,
		deps.Logger,
	))
	manager.Register(worker.NewSnapshotWorker(
		worker.SnapshotConfig{
			Interval: deps.Config.Dashboard.SnapshotInterval,
			Months:   deps.Config.Dashboard.SnapshotMonths,
		},
		deps.Dashboard,
		deps.Companies,
		deps.Storage,
		storage.ExportPath,
		deps.Logger,
	))

	return manager, nil
}
