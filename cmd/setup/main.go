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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"booking-settlement-go/internal/common"
	"booking-settlement-go/internal/config"
	"booking-settlement-go/internal/database"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// demo fixtures inserted with --seed: a client, a provider with a bank
// account, and two bookable services.
var demoUsers = []models.User{
	{Id: "demo-client", Name: "Ana Souza", Email: "ana@example.com", Active: true},
	{Id: "demo-provider", Name: "Carlos Lima", Email: "carlos@example.com", Active: true},
}

func seedDemoData(ctx context.Context, dbService *database.Service) error {
	for i := range demoUsers {
		// Inserts are idempotent; rerunning setup leaves existing users alone.
		if err := dbService.InsertUser(ctx, &demoUsers[i]); err != nil {
			return fmt.Errorf("failed to insert demo user %s: %w", demoUsers[i].Id, err)
		}
		zap.L().Info("Inserted demo user",
			zap.String("user_id", demoUsers[i].Id),
			zap.String("name", demoUsers[i].Name))
	}

	hourlyRate := decimal.RequireFromString("80")
	maxBookings := int64(4)
	demoServices := []models.Service{
		{
			Id:         "demo-service-cleaning",
			ProviderId: "demo-provider",
			Title:      "Home Cleaning",
			Price:      decimal.RequireFromString("200"),
			Active:     true,
		},
		{
			Id:          "demo-service-tutoring",
			ProviderId:  "demo-provider",
			Title:       "Math Tutoring",
			Price:       decimal.RequireFromString("80"),
			HourlyRate:  &hourlyRate,
			MaxBookings: &maxBookings,
			Active:      true,
		},
	}

	for i := range demoServices {
		if _, err := dbService.GetServiceById(ctx, demoServices[i].Id); err == nil {
			zap.L().Info("Demo service already exists, skipping",
				zap.String("service_id", demoServices[i].Id))
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check demo service %s: %w", demoServices[i].Id, err)
		}
		if err := dbService.InsertService(ctx, &demoServices[i]); err != nil {
			return fmt.Errorf("failed to insert demo service %s: %w", demoServices[i].Id, err)
		}
		zap.L().Info("Inserted demo service",
			zap.String("service_id", demoServices[i].Id),
			zap.String("title", demoServices[i].Title))
	}

	accounts, err := dbService.ListBankAccounts(ctx, "demo-provider")
	if err != nil {
		return fmt.Errorf("failed to list demo bank accounts: %w", err)
	}
	if len(accounts) == 0 {
		account := &models.BankAccount{
			Id:             "demo-account",
			UserId:         "demo-provider",
			BankCode:       "341",
			BankName:       "Itau",
			Branch:         "0001",
			AccountNumber:  "12345-6",
			HolderName:     "Carlos Lima",
			HolderDocument: "123.456.789-00",
		}
		if err := dbService.AddBankAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to insert demo bank account: %w", err)
		}
		zap.L().Info("Inserted demo bank account",
			zap.String("account_id", account.Id),
			zap.String("user_id", account.UserId))
	}

	return nil
}

func main() {
	seed := flag.Bool("seed", false, "Insert demo users, services and a bank account after schema setup")
	flag.Parse()

	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	common.PrintHeader("Booking Settlement - Database Setup", common.DefaultWidth)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	logger.Info("Initializing database schema", zap.String("path", cfg.Database.Path))
	if err := dbService.InitSchema(); err != nil {
		logger.Fatal("Failed to initialize schema", zap.Error(err))
	}
	fmt.Println("Schema initialized")

	if *seed || cfg.Database.SeedDemoData {
		logger.Info("Seeding demo data")
		if err := seedDemoData(ctx, dbService); err != nil {
			logger.Fatal("Failed to seed demo data", zap.Error(err))
		}
		fmt.Println("Demo data seeded")
	}

	common.PrintFooter("Setup complete", common.DefaultWidth)
}
