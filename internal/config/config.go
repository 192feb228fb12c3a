/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"booking-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	gatewayTimeout, err := getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	autoCancelAfter, err := getEnvDuration("AUTO_CANCEL_AFTER", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	reminderWindow, err := getEnvDuration("REMINDER_WINDOW", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	// Read notifications older than this are purged by the weekly job.
	notificationMaxAge, err := getEnvDuration("NOTIFICATION_MAX_AGE", 180*24*time.Hour)
	if err != nil {
		return nil, err
	}

	hourlyInterval, err := getEnvDuration("SCHEDULER_HOURLY_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	dailyInterval, err := getEnvDuration("SCHEDULER_DAILY_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	weeklyInterval, err := getEnvDuration("SCHEDULER_WEEKLY_INTERVAL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	feeRate, err := getEnvDecimal("PLATFORM_FEE_RATE", "0.10")
	if err != nil {
		return nil, err
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("PLATFORM_FEE_RATE must be in [0, 1): %s", feeRate.String())
	}

	minWithdrawal, err := getEnvDecimal("MIN_WITHDRAWAL_AMOUNT", "10.00")
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "settlement.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			SeedDemoData:    getEnvBool("SEED_DEMO_DATA", false),
		},
		Gateway: models.GatewayConfig{
			BaseURL: getEnvString("GATEWAY_BASE_URL", "https://api.sandbox.pagamento.example"),
			APIKey:  os.Getenv("GATEWAY_API_KEY"),
			Timeout: gatewayTimeout,
		},
		Settlement: models.SettlementConfig{
			PlatformFeeRate:      feeRate,
			EscrowHoldDays:       getEnvInt("ESCROW_HOLD_DAYS", 15),
			DisputeExtensionDays: getEnvInt("DISPUTE_EXTENSION_DAYS", 30),
			MinWithdrawalAmount:  minWithdrawal,
			AutoCancelAfter:      autoCancelAfter,
			ReminderWindow:       reminderWindow,
			NotificationMaxAge:   notificationMaxAge,
			RefundPolicyFile:     getEnvString("REFUND_POLICY_FILE", ""),
		},
		Scheduler: models.SchedulerConfig{
			HourlyInterval: hourlyInterval,
			DailyInterval:  dailyInterval,
			WeeklyInterval: weeklyInterval,
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnvString(key, defaultValue)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, raw, err)
	}
	return value, nil
}
