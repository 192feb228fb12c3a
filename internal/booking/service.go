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

package booking

import (
	"context"
	"fmt"
	"time"

	"booking-settlement-go/internal/ledger"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/notify"
	"booking-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service drives the booking lifecycle: create, accept, decline, complete,
// cancel. Multi-row effects run inside the store's transaction; notifications
// are dispatched only after the commit.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	cfg      models.SettlementConfig
	policy   ledger.RefundPolicy
}

func NewService(s store.Store, notifier notify.Notifier, cfg models.SettlementConfig, policy ledger.RefundPolicy) *Service {
	return &Service{
		store:    s,
		notifier: notifier,
		cfg:      cfg,
		policy:   policy,
	}
}

// CreateParams is a client's booking request.
type CreateParams struct {
	ServiceId   string
	ClientId    string
	BookingDate time.Time
	EndDate     *time.Time
	Notes       string
	Address     string
}

// Create books a service. The total price is the fixed price, or the hourly
// rate times the rounded-up duration when an end date is given. The booking
// and its pending payment are inserted as one atomic unit.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Booking, *models.Payment, error) {
	svc, err := s.store.GetServiceById(ctx, params.ServiceId)
	if err != nil {
		return nil, nil, err
	}
	if !svc.Active {
		return nil, nil, fmt.Errorf("%w: service %s is inactive", store.ErrInvalidState, svc.Id)
	}
	if params.ClientId == svc.ProviderId {
		return nil, nil, fmt.Errorf("%w: providers cannot book their own service", store.ErrForbidden)
	}
	if _, err := s.store.GetUserById(ctx, params.ClientId); err != nil {
		return nil, nil, err
	}
	if params.BookingDate.IsZero() {
		return nil, nil, fmt.Errorf("%w: booking date is required", store.ErrInvalidArgument)
	}
	if params.EndDate != nil && !params.EndDate.After(params.BookingDate) {
		return nil, nil, fmt.Errorf("%w: end date must be after the booking date", store.ErrInvalidArgument)
	}

	totalPrice, err := computePrice(svc, params.BookingDate, params.EndDate)
	if err != nil {
		return nil, nil, err
	}
	serviceFee, netAmount := ledger.ComputeFees(totalPrice, s.cfg.PlatformFeeRate)

	booking, payment, err := s.store.CreateBookingWithPayment(ctx, store.CreateBookingParams{
		ServiceId:   svc.Id,
		ClientId:    params.ClientId,
		ProviderId:  svc.ProviderId,
		BookingDate: params.BookingDate,
		EndDate:     params.EndDate,
		TotalPrice:  totalPrice,
		ServiceFee:  serviceFee,
		NetAmount:   netAmount,
		Notes:       params.Notes,
		Address:     params.Address,
		MaxBookings: svc.MaxBookings,
	})
	if err != nil {
		return nil, nil, err
	}

	notify.Dispatch(ctx, s.notifier, []notify.Event{{
		UserId:  svc.ProviderId,
		Type:    notify.TypeBookingCreated,
		Title:   "New booking request",
		Message: fmt.Sprintf("You have a new booking request for %s.", svc.Title),
	}})

	return booking, payment, nil
}

// computePrice resolves the booking price from the service's pricing model.
func computePrice(svc *models.Service, start time.Time, end *time.Time) (decimal.Decimal, error) {
	if end == nil || svc.HourlyRate == nil {
		return svc.Price, nil
	}
	hours := decimal.NewFromFloat(end.Sub(start).Hours()).Ceil()
	if hours.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: booking duration must be positive", store.ErrInvalidArgument)
	}
	return svc.HourlyRate.Mul(hours), nil
}

// Accept moves a pending booking to accepted. Provider only.
func (s *Service) Accept(ctx context.Context, bookingId, actorId string) error {
	booking, err := s.store.GetBookingById(ctx, bookingId)
	if err != nil {
		return err
	}
	if actorId != booking.ProviderId {
		return fmt.Errorf("%w: only the provider can accept a booking", store.ErrForbidden)
	}
	if err := s.store.AcceptBooking(ctx, bookingId); err != nil {
		return err
	}

	notify.Dispatch(ctx, s.notifier, []notify.Event{{
		UserId:  booking.ClientId,
		Type:    notify.TypeBookingAccepted,
		Title:   "Booking accepted",
		Message: "Your booking request was accepted by the provider.",
	}})
	return nil
}

// Decline moves a pending booking to declined and fails the linked payment.
// Provider only.
func (s *Service) Decline(ctx context.Context, bookingId, actorId, reason string) error {
	booking, err := s.store.GetBookingById(ctx, bookingId)
	if err != nil {
		return err
	}
	if actorId != booking.ProviderId {
		return fmt.Errorf("%w: only the provider can decline a booking", store.ErrForbidden)
	}
	if err := s.store.DeclineBooking(ctx, bookingId, actorId, reason); err != nil {
		return err
	}

	notify.Dispatch(ctx, s.notifier, []notify.Event{{
		UserId:  booking.ClientId,
		Type:    notify.TypeBookingDeclined,
		Title:   "Booking declined",
		Message: "Your booking request was declined by the provider.",
	}})
	return nil
}

// Complete moves an accepted booking to completed, marks the linked payment
// paid and starts the escrow hold. Provider only.
func (s *Service) Complete(ctx context.Context, bookingId, actorId string) error {
	booking, err := s.store.GetBookingById(ctx, bookingId)
	if err != nil {
		return err
	}
	if actorId != booking.ProviderId {
		return fmt.Errorf("%w: only the provider can complete a booking", store.ErrForbidden)
	}

	now := time.Now().UTC()
	releaseDate := ledger.ComputeEscrowReleaseDate(now, s.cfg.EscrowHoldDays)
	if err := s.store.CompleteBooking(ctx, bookingId, now, releaseDate); err != nil {
		return err
	}

	notify.Dispatch(ctx, s.notifier, []notify.Event{{
		UserId:  booking.ClientId,
		Type:    notify.TypeBookingCompleted,
		Title:   "Service completed",
		Message: "Your booking was completed. Leave a review for the provider.",
	}})
	return nil
}

// Cancel moves a pending or accepted booking to cancelled. Either party may
// cancel; the refund fraction follows the time-based tiers, with a full
// refund for system-driven cancellations. A captured payment with a zero
// fraction stays paid; a never-captured payment is failed.
func (s *Service) Cancel(ctx context.Context, bookingId, actorId, reason string) error {
	booking, err := s.store.GetBookingById(ctx, bookingId)
	if err != nil {
		return err
	}
	if actorId != booking.ClientId && actorId != booking.ProviderId && actorId != models.SystemActor {
		return fmt.Errorf("%w: only a booking party can cancel", store.ErrForbidden)
	}
	if booking.IsTerminal() {
		return fmt.Errorf("%w: booking %s is %s", store.ErrInvalidState, bookingId, booking.Status)
	}

	payment, err := s.store.GetPaymentByBookingId(ctx, bookingId)
	if err != nil {
		return err
	}

	// Cancellation settles the refund in the local ledger only; no gateway
	// refund call happens on this path.
	now := time.Now().UTC()
	var refundAmount *decimal.Decimal
	if payment.Status == models.PaymentStatusPaid {
		fraction := decimal.NewFromInt(1)
		if actorId != models.SystemActor {
			fraction = s.policy.RefundFraction(ledger.HoursUntil(booking.BookingDate, now))
		}
		if fraction.GreaterThan(decimal.Zero) {
			refund := ledger.ComputeRefund(payment.Amount, fraction)
			refundAmount = &refund
		}
	}

	err = s.store.CancelBooking(ctx, store.CancelBookingParams{
		BookingId:    bookingId,
		ActorId:      actorId,
		Reason:       reason,
		RefundAmount: refundAmount,
		CancelledAt:  now,
	})
	if err != nil {
		return err
	}

	counterpart := booking.ProviderId
	if actorId == booking.ProviderId {
		counterpart = booking.ClientId
	}
	events := []notify.Event{{
		UserId:  counterpart,
		Type:    notify.TypeBookingCancelled,
		Title:   "Booking cancelled",
		Message: fmt.Sprintf("Booking %s was cancelled.", bookingId),
	}}
	if refundAmount != nil {
		events = append(events, notify.Event{
			UserId:  booking.ClientId,
			Type:    notify.TypePaymentRefunded,
			Title:   "Refund issued",
			Message: fmt.Sprintf("A refund of %s was issued for your cancelled booking.", refundAmount.StringFixed(2)),
		})
	}
	notify.Dispatch(ctx, s.notifier, events)

	zap.L().Info("Booking cancelled",
		zap.String("booking_id", bookingId),
		zap.String("actor_id", actorId),
		zap.Bool("refund_issued", refundAmount != nil))
	return nil
}

// UpdateStatus is the shared entry point for the terminal client/provider
// transitions.
func (s *Service) UpdateStatus(ctx context.Context, bookingId, actorId, target, reason string) error {
	switch target {
	case models.BookingStatusCompleted:
		return s.Complete(ctx, bookingId, actorId)
	case models.BookingStatusCancelled:
		return s.Cancel(ctx, bookingId, actorId, reason)
	default:
		return fmt.Errorf("%w: unsupported target status %q", store.ErrInvalidArgument, target)
	}
}

func (s *Service) GetById(ctx context.Context, bookingId string) (*models.Booking, error) {
	return s.store.GetBookingById(ctx, bookingId)
}

// List returns the user's bookings in the given role, newest first.
func (s *Service) List(ctx context.Context, userId, role, status string, limit, offset int) ([]models.Booking, error) {
	if role != "client" && role != "provider" {
		return nil, fmt.Errorf("%w: role must be client or provider", store.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListBookings(ctx, userId, role, status, limit, offset)
}
