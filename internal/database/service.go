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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Store.
var _ store.Store = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an existing connection. Used by tests running
// against :memory: databases.
func NewServiceWithDB(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	-- Users: balance is the provider's withdrawable funds, mutated only by
	-- release and withdrawal transactions through the version-guarded update.
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		balance TEXT NOT NULL DEFAULT '0',
		balance_version INTEGER NOT NULL DEFAULT 1,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	-- Services offered by providers
	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		price TEXT NOT NULL,
		hourly_rate TEXT,
		max_bookings INTEGER,
		booking_count INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_services_provider ON services(provider_id);

	-- Bookings: one reservation of a service. Rows are never deleted.
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		service_id TEXT NOT NULL REFERENCES services(id),
		client_id TEXT NOT NULL REFERENCES users(id),
		provider_id TEXT NOT NULL REFERENCES users(id),
		booking_date TIMESTAMP NOT NULL,
		end_date TIMESTAMP,
		total_price TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		notes TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		cancellation_reason TEXT NOT NULL DEFAULT '',
		cancelled_by TEXT NOT NULL DEFAULT '',
		completed_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_service_date ON bookings(service_id, booking_date);
	CREATE INDEX IF NOT EXISTS idx_bookings_client ON bookings(client_id);
	CREATE INDEX IF NOT EXISTS idx_bookings_provider ON bookings(provider_id);
	CREATE INDEX IF NOT EXISTS idx_bookings_status_created ON bookings(status, created_at);

	-- Payments: 1:1 with bookings
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL UNIQUE REFERENCES bookings(id),
		amount TEXT NOT NULL,
		service_fee TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_method TEXT NOT NULL DEFAULT '',
		gateway_transaction_id TEXT NOT NULL DEFAULT '',
		pix_code TEXT NOT NULL DEFAULT '',
		pix_qr_code TEXT NOT NULL DEFAULT '',
		pix_expires_at TIMESTAMP,
		boleto_barcode TEXT NOT NULL DEFAULT '',
		boleto_url TEXT NOT NULL DEFAULT '',
		boleto_due_date TIMESTAMP,
		escrow_release_date TIMESTAMP,
		released_at TIMESTAMP,
		refund_amount TEXT,
		refunded_at TIMESTAMP,
		dispute_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
	CREATE INDEX IF NOT EXISTS idx_payments_escrow ON payments(escrow_release_date);
	CREATE INDEX IF NOT EXISTS idx_payments_gateway_tx ON payments(gateway_transaction_id);

	-- Withdrawals
	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		bank_account_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		failure_reason TEXT NOT NULL DEFAULT '',
		gateway_transfer_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_user_status ON withdrawals(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_account ON withdrawals(bank_account_id);

	-- Bank accounts
	CREATE TABLE IF NOT EXISTS bank_accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		bank_code TEXT NOT NULL,
		bank_name TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL,
		holder_name TEXT NOT NULL,
		holder_document TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bank_accounts_user ON bank_accounts(user_id);

	-- Notification requests; delivery is an external concern.
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_read_created ON notifications(read, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// beginTx starts a write transaction with the rollback deferred; callers
// commit explicitly.
func (s *Service) beginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Scan helpers shared by the per-entity files.

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func parseDecimal(raw string, field string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s '%s': %w", field, raw, err)
	}
	return value, nil
}

func decimalPtr(ns sql.NullString, field string) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	value, err := parseDecimal(ns.String, field)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
