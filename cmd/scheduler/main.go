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
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-settlement-go/internal/common"
	"booking-settlement-go/internal/config"
	"booking-settlement-go/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "Run every job once and exit instead of starting the loops")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting settlement scheduler")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	sched := scheduler.New(scheduler.Config{
		Store:          services.DbService,
		BookingService: services.BookingService,
		PaymentService: services.PaymentService,
		Notifier:       services.Notifier,
		Settlement:     cfg.Settlement,
		Scheduler:      cfg.Scheduler,
	})

	if *once {
		zap.L().Info("Running all jobs once (--once)")
		sched.RunHourly(ctx)
		sched.RunDaily(ctx)
		sched.RunWeekly(ctx)
		zap.L().Info("All jobs finished")
		return
	}

	sched.Start(ctx)

	zap.L().Info("Scheduler running",
		zap.Duration("hourly_interval", cfg.Scheduler.HourlyInterval),
		zap.Duration("daily_interval", cfg.Scheduler.DailyInterval),
		zap.Duration("weekly_interval", cfg.Scheduler.WeeklyInterval))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping scheduler...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Scheduler stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
