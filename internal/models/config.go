package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Gateway    GatewayConfig
	Settlement SettlementConfig
	Scheduler  SchedulerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	SeedDemoData    bool
}

// GatewayConfig holds payment gateway client settings. Timeout bounds every
// gateway call (capture, status, refund, transfer).
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SettlementConfig holds the monetary rules of the platform.
type SettlementConfig struct {
	// PlatformFeeRate is the single canonical fee rate applied to every
	// payment. The legacy system carried 10% and 5% in different modules;
	// 10% (the capture-path rate) is the default here and the value is
	// configurable so the business can settle the question in one place.
	PlatformFeeRate      decimal.Decimal
	EscrowHoldDays       int
	DisputeExtensionDays int
	MinWithdrawalAmount  decimal.Decimal
	AutoCancelAfter      time.Duration
	ReminderWindow       time.Duration
	NotificationMaxAge   time.Duration
	RefundPolicyFile     string
}

// SchedulerConfig holds the job loop intervals.
type SchedulerConfig struct {
	HourlyInterval time.Duration
	DailyInterval  time.Duration
	WeeklyInterval time.Duration
}
