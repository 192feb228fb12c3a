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

package store

import (
	"context"
	"errors"
	"time"

	"booking-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations. Callers branch
// with errors.Is; messages wrapped around them carry the entity context.
var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrForbidden means the actor lacks the role or ownership required.
	ErrForbidden = errors.New("operation not permitted for this actor")
	// ErrInvalidState means the operation is not valid for the current status.
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrInvalidArgument means malformed or out-of-range input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict covers capacity exhaustion, duplicate in-flight withdrawals
	// and concurrent transitions losing the race.
	ErrConflict = errors.New("conflicting operation in progress")
	// ErrNotEligible means the refund fraction for the request is zero.
	ErrNotEligible = errors.New("not eligible for refund")
	// ErrAlreadyReleased marks a second release of the same payment; callers
	// treat it as a no-op success.
	ErrAlreadyReleased = errors.New("funds already released")
	// ErrPaymentProcessingFailed wraps a gateway-side capture failure.
	ErrPaymentProcessingFailed = errors.New("payment processing failed")
	// ErrConcurrentModification means an optimistic balance update lost.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// CreateBookingParams contains the parameters for the atomic
// booking + payment insert. Capacity is re-checked inside the transaction.
type CreateBookingParams struct {
	ServiceId   string
	ClientId    string
	ProviderId  string
	BookingDate time.Time
	EndDate     *time.Time
	TotalPrice  decimal.Decimal
	ServiceFee  decimal.Decimal
	NetAmount   decimal.Decimal
	Notes       string
	Address     string
	MaxBookings *int64
}

// CancelBookingParams contains the parameters for the atomic cancellation.
// RefundAmount is nil when no refund applies (payment never captured, or
// zero-fraction cancellation leaving it paid).
type CancelBookingParams struct {
	BookingId    string
	ActorId      string
	Reason       string
	RefundAmount *decimal.Decimal
	CancelledAt  time.Time
}

// ReleaseResult reports a successful escrow release.
type ReleaseResult struct {
	PaymentId  string
	ProviderId string
	NetAmount  decimal.Decimal
	NewBalance decimal.Decimal
	ReleasedAt time.Time
}

// PaymentArtifacts carries method-specific gateway artifacts stored on a
// payment awaiting settlement (PIX / boleto).
type PaymentArtifacts struct {
	PixCode       string
	PixQRCode     string
	PixExpiresAt  *time.Time
	BoletoBarcode string
	BoletoURL     string
	BoletoDueDate *time.Time
}

// Store is the transactional persistence boundary of the settlement core.
// Every multi-row mutation commits atomically or not at all.
type Store interface {
	// Users and services
	GetUserById(ctx context.Context, id string) (*models.User, error)
	GetUserBalance(ctx context.Context, userId string) (decimal.Decimal, error)
	GetServiceById(ctx context.Context, id string) (*models.Service, error)

	// Bookings
	CreateBookingWithPayment(ctx context.Context, params CreateBookingParams) (*models.Booking, *models.Payment, error)
	GetBookingById(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, userId, role, status string, limit, offset int) ([]models.Booking, error)
	AcceptBooking(ctx context.Context, id string) error
	DeclineBooking(ctx context.Context, id, actorId, reason string) error
	CompleteBooking(ctx context.Context, id string, completedAt, escrowReleaseDate time.Time) error
	CancelBooking(ctx context.Context, params CancelBookingParams) error
	StalePendingBookings(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	UpcomingAcceptedBookings(ctx context.Context, from, to time.Time) ([]models.Booking, error)

	// Payments
	GetPaymentById(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByBookingId(ctx context.Context, bookingId string) (*models.Payment, error)
	MarkPaymentPaid(ctx context.Context, id, method, gatewayTransactionId string) error
	SetPaymentArtifacts(ctx context.Context, id, method, gatewayTransactionId string, artifacts PaymentArtifacts) error
	MarkPaymentFailed(ctx context.Context, id string) error
	MarkPaymentRefunded(ctx context.Context, id string, amount decimal.Decimal, refundedAt time.Time) error
	ReleaseFunds(ctx context.Context, paymentId string, now time.Time) (*ReleaseResult, error)
	ListReleasablePayments(ctx context.Context, now time.Time) ([]models.Payment, error)
	ExtendEscrowForDispute(ctx context.Context, id string, newReleaseDate time.Time, reason string) error

	// Withdrawals and bank accounts
	CreateWithdrawal(ctx context.Context, userId string, amount decimal.Decimal, bankAccountId string) (*models.Withdrawal, error)
	GetWithdrawalById(ctx context.Context, id string) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userId string, limit, offset int) ([]models.Withdrawal, error)
	SetWithdrawalProcessing(ctx context.Context, id, gatewayTransferId string) error
	CompleteWithdrawal(ctx context.Context, id string) error
	FailWithdrawal(ctx context.Context, id, reason string) error
	AddBankAccount(ctx context.Context, account *models.BankAccount) error
	GetBankAccount(ctx context.Context, id string) (*models.BankAccount, error)
	ListBankAccounts(ctx context.Context, userId string) ([]models.BankAccount, error)
	DeleteBankAccount(ctx context.Context, id, userId string) error

	// Notifications
	InsertNotification(ctx context.Context, n *models.Notification) error
	MarkNotificationRead(ctx context.Context, id string) error
	PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error)
}
