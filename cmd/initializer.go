package main

import (
	"database/sql"
	"log"
	"log/slog"

	"firebase.google.com/go/messaging"
	"github.com/redis/go-redis/v9"

	"cloudbill/internal/config"
	"cloudbill/internal/handlers"
	"cloudbill/internal/pay"
	"cloudbill/internal/repositories"
	"cloudbill/internal/services"
	"cloudbill/utils"
)

type application struct {
	errorLog       *log.Logger
	infoLog        *log.Logger
	tokens         *utils.Manager
	invoiceHandler *handlers.InvoiceHandler
	catalogHandler *handlers.CatalogHandler
	deviceHandler  *handlers.DeviceHandler
}

// appDeps collects the clients opened in main. Optional clients are nil
// when their section of the config is empty.
type appDeps struct {
	db        *sql.DB
	cfg       config.Config
	gateway   *pay.Client
	tokens    *utils.Manager
	redis     redis.UniversalClient
	messaging *messaging.Client
	uploader  *utils.S3Uploader
	logger    *slog.Logger
	infoLog   *log.Logger
	errorLog  *log.Logger
}

func initializeApp(deps appDeps) *application {
	dialect := repositories.Dialect(deps.cfg.Database.Driver)

	invoiceRepo := repositories.NewInvoiceRepository(deps.db, dialect)
	machineServiceRepo := repositories.NewMachineServiceRepository(deps.db, dialect)
	packageRepo := repositories.NewPackageRepository(deps.db, dialect)
	deviceTokenRepo := repositories.NewDeviceTokenRepository(deps.db, dialect)

	var locker services.Locker = services.NopLocker{}
	if deps.redis != nil {
		locker = services.NewRedisLocker(deps.redis, "cloudbill:")
	}

	var notifier services.Notifier = services.NopNotifier{}
	if deps.messaging != nil {
		notifier = services.NewFCMNotifier(deps.messaging, deviceTokenRepo, deps.logger.With("component", "fcm"))
	}

	var receipts services.ReceiptArchive = services.NopReceiptArchive{}
	if deps.uploader != nil {
		receipts = services.NewReceiptArchiver(deps.uploader)
	}

	provisioner := services.NewProvisionerService(
		machineServiceRepo,
		locker,
		deps.cfg.ProvisionLockTTL(),
		deps.logger.With("component", "provisioner"),
		nil,
	)

	invoiceService := services.NewInvoiceService(services.InvoiceServiceConfig{
		Invoices:    invoiceRepo,
		Packages:    packageRepo,
		Gateway:     deps.gateway,
		Provisioner: provisioner,
		Notifier:    notifier,
		Receipts:    receipts,
		Currency:    deps.cfg.Billing.Currency,
		Logger:      deps.logger.With("component", "invoices"),
	})
	catalogService := services.NewCatalogService(packageRepo, machineServiceRepo, nil)

	return &application{
		errorLog:       deps.errorLog,
		infoLog:        deps.infoLog,
		tokens:         deps.tokens,
		invoiceHandler: handlers.NewInvoiceHandler(invoiceService),
		catalogHandler: handlers.NewCatalogHandler(catalogService),
		deviceHandler:  handlers.NewDeviceHandler(deviceTokenRepo),
	}
}
