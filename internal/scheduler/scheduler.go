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

package scheduler

import (
	"context"
	"fmt"
	"time"

	"booking-settlement-go/internal/booking"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/notify"
	"booking-settlement-go/internal/payment"
	"booking-settlement-go/internal/store"

	"go.uber.org/zap"
)

// Config contains the collaborators and intervals for the settlement
// scheduler.
type Config struct {
	Store          store.Store
	BookingService *booking.Service
	PaymentService *payment.Service
	Notifier       notify.Notifier
	Settlement     models.SettlementConfig
	Scheduler      models.SchedulerConfig
}

// Scheduler runs the time-triggered settlement jobs. Every job is idempotent:
// each run only touches rows still matching its predicate, so overlapping or
// repeated runs are harmless.
type Scheduler struct {
	store          store.Store
	bookingService *booking.Service
	paymentService *payment.Service
	notifier       notify.Notifier
	cfg            models.SettlementConfig

	hourlyInterval time.Duration
	dailyInterval  time.Duration
	weeklyInterval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		store:          cfg.Store,
		bookingService: cfg.BookingService,
		paymentService: cfg.PaymentService,
		notifier:       cfg.Notifier,
		cfg:            cfg.Settlement,
		hourlyInterval: cfg.Scheduler.HourlyInterval,
		dailyInterval:  cfg.Scheduler.DailyInterval,
		weeklyInterval: cfg.Scheduler.WeeklyInterval,
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}
}

// Start launches the job loops. Each cadence runs once immediately, then on
// its ticker.
func (s *Scheduler) Start(ctx context.Context) {
	zap.L().Info("Starting settlement scheduler",
		zap.Duration("hourly_interval", s.hourlyInterval),
		zap.Duration("daily_interval", s.dailyInterval),
		zap.Duration("weekly_interval", s.weeklyInterval))

	go s.run(ctx)
}

// Stop shuts the scheduler down and waits for the loop to drain.
func (s *Scheduler) Stop() {
	zap.L().Info("Stopping settlement scheduler")
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Settlement scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneChan)

	hourly := time.NewTicker(s.hourlyInterval)
	defer hourly.Stop()
	daily := time.NewTicker(s.dailyInterval)
	defer daily.Stop()
	weekly := time.NewTicker(s.weeklyInterval)
	defer weekly.Stop()

	s.RunHourly(ctx)
	s.RunDaily(ctx)
	s.RunWeekly(ctx)

	for {
		select {
		case <-hourly.C:
			s.RunHourly(ctx)
		case <-daily.C:
			s.RunDaily(ctx)
		case <-weekly.C:
			s.RunWeekly(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunHourly auto-cancels bookings left pending past the provider response
// window. Cancellation runs through the booking state machine with the
// system actor, which drives the full-refund path.
func (s *Scheduler) RunHourly(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.AutoCancelAfter)
	stale, err := s.store.StalePendingBookings(ctx, cutoff)
	if err != nil {
		zap.L().Error("Failed to list stale pending bookings", zap.Error(err))
		return
	}

	cancelled := 0
	for _, b := range stale {
		err := s.bookingService.Cancel(ctx, b.Id, models.SystemActor, "provider no-response")
		if err != nil {
			zap.L().Error("Failed to auto-cancel stale booking",
				zap.String("booking_id", b.Id), zap.Error(err))
			continue
		}
		cancelled++
	}

	if len(stale) > 0 {
		zap.L().Info("Hourly job finished",
			zap.Int("stale_bookings", len(stale)),
			zap.Int("cancelled", cancelled))
	}
}

// RunDaily releases matured escrow and sends booking reminders.
func (s *Scheduler) RunDaily(ctx context.Context) {
	s.releaseMaturedEscrow(ctx)
	s.sendReminders(ctx)
}

// releaseMaturedEscrow processes releasable payments one at a time; a
// failing item is logged and skipped, never aborting the batch.
func (s *Scheduler) releaseMaturedEscrow(ctx context.Context) {
	releasable, err := s.store.ListReleasablePayments(ctx, time.Now().UTC())
	if err != nil {
		zap.L().Error("Failed to list releasable payments", zap.Error(err))
		return
	}
	if len(releasable) == 0 {
		return
	}

	released, failed := 0, 0
	for _, p := range releasable {
		if _, err := s.paymentService.ReleaseFunds(ctx, p.Id); err != nil {
			failed++
			zap.L().Error("Failed to release escrow funds",
				zap.String("payment_id", p.Id), zap.Error(err))
			continue
		}
		released++
	}

	zap.L().Info("Escrow release batch finished",
		zap.Int("candidates", len(releasable)),
		zap.Int("released", released),
		zap.Int("failed", failed))
}

// sendReminders notifies both parties of accepted bookings starting inside
// the reminder window.
func (s *Scheduler) sendReminders(ctx context.Context) {
	now := time.Now().UTC()
	upcoming, err := s.store.UpcomingAcceptedBookings(ctx, now, now.Add(s.cfg.ReminderWindow))
	if err != nil {
		zap.L().Error("Failed to list upcoming bookings", zap.Error(err))
		return
	}

	for _, b := range upcoming {
		when := b.BookingDate.Format("2006-01-02 15:04")
		notify.Dispatch(ctx, s.notifier, []notify.Event{
			{
				UserId:  b.ClientId,
				Type:    notify.TypeBookingReminder,
				Title:   "Upcoming booking",
				Message: fmt.Sprintf("Your booking starts at %s.", when),
			},
			{
				UserId:  b.ProviderId,
				Type:    notify.TypeBookingReminder,
				Title:   "Upcoming booking",
				Message: fmt.Sprintf("You have a booking starting at %s.", when),
			},
		})
	}

	if len(upcoming) > 0 {
		zap.L().Info("Reminders sent", zap.Int("bookings", len(upcoming)))
	}
}

// RunWeekly purges read notifications older than the retention period.
func (s *Scheduler) RunWeekly(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.NotificationMaxAge)
	purged, err := s.store.PurgeReadNotifications(ctx, cutoff)
	if err != nil {
		zap.L().Error("Failed to purge notifications", zap.Error(err))
		return
	}
	if purged > 0 {
		zap.L().Info("Purged read notifications", zap.Int64("purged", purged))
	}
}
