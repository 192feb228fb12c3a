package common

import (
	"context"
	"log"
	"strings"

	"booking-settlement-go/internal/booking"
	"booking-settlement-go/internal/database"
	"booking-settlement-go/internal/gateway"
	"booking-settlement-go/internal/ledger"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/notify"
	"booking-settlement-go/internal/payment"
	"booking-settlement-go/internal/withdrawal"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

// Services bundles the wired settlement core for the CLIs and the scheduler
// process.
type Services struct {
	DbService         *database.Service
	GatewayService    gateway.Client
	Notifier          notify.Notifier
	BookingService    *booking.Service
	PaymentService    *payment.Service
	WithdrawalService *withdrawal.Service
	RefundPolicy      ledger.RefundPolicy
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	gatewayService, err := gateway.NewService(cfg.Gateway)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	policy, err := LoadRefundPolicy(cfg.Settlement.RefundPolicyFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	notifier := notify.NewStoreNotifier(dbService)

	return &Services{
		DbService:         dbService,
		GatewayService:    gatewayService,
		Notifier:          notifier,
		BookingService:    booking.NewService(dbService, notifier, cfg.Settlement, policy),
		PaymentService:    payment.NewService(dbService, gatewayService, notifier, cfg.Settlement, policy),
		WithdrawalService: withdrawal.NewService(dbService, gatewayService, notifier, cfg.Settlement),
		RefundPolicy:      policy,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service without the
// payment gateway. Useful for read-only operations and schema setup.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
