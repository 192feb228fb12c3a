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

package notify

import (
	"context"

	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/store"

	"go.uber.org/zap"
)

// Notification types emitted by the settlement core.
const (
	TypeBookingCreated   = "booking_created"
	TypeBookingAccepted  = "booking_accepted"
	TypeBookingDeclined  = "booking_declined"
	TypeBookingCompleted = "booking_completed"
	TypeBookingCancelled = "booking_cancelled"
	TypeBookingReminder  = "booking_reminder"
	TypePaymentReceived  = "payment_received"
	TypePaymentRefunded  = "payment_refunded"
	TypeFundsReleased    = "funds_released"
	TypeDisputeOpened    = "dispute_opened"
	TypeWithdrawalUpdate = "withdrawal_update"
)

// Event is one notification request addressed to a user. Delivery transport
// (push, email) is outside this module; events are persisted for pickup.
type Event struct {
	UserId  string
	Type    string
	Title   string
	Message string
}

// Notifier emits events. Emission failures must never fail the business
// operation that produced the event; callers log and move on.
type Notifier interface {
	Emit(ctx context.Context, event Event) error
}

// StoreNotifier persists events as notification rows.
type StoreNotifier struct {
	store store.Store
}

var _ Notifier = (*StoreNotifier)(nil)

func NewStoreNotifier(s store.Store) *StoreNotifier {
	return &StoreNotifier{store: s}
}

func (n *StoreNotifier) Emit(ctx context.Context, event Event) error {
	err := n.store.InsertNotification(ctx, &models.Notification{
		UserId:  event.UserId,
		Type:    event.Type,
		Title:   event.Title,
		Message: event.Message,
	})
	if err != nil {
		return err
	}

	zap.L().Info("Notification emitted",
		zap.String("user_id", event.UserId),
		zap.String("type", event.Type),
		zap.String("title", event.Title))
	return nil
}

// Dispatch emits a batch of events after a transaction has committed. Each
// failure is logged and skipped.
func Dispatch(ctx context.Context, notifier Notifier, events []Event) {
	if notifier == nil {
		return
	}
	for _, event := range events {
		if err := notifier.Emit(ctx, event); err != nil {
			zap.L().Warn("Failed to emit notification",
				zap.String("user_id", event.UserId),
				zap.String("type", event.Type),
				zap.Error(err))
		}
	}
}
