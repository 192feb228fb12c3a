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

package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-settlement-go/internal/gateway"
	"booking-settlement-go/internal/ledger"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/notify"
	"booking-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service drives the payment lifecycle: capture, status reconciliation,
// refund, escrow release and dispute freeze.
type Service struct {
	store    store.Store
	gateway  gateway.Client
	notifier notify.Notifier
	cfg      models.SettlementConfig
	policy   ledger.RefundPolicy
}

func NewService(s store.Store, gw gateway.Client, notifier notify.Notifier, cfg models.SettlementConfig, policy ledger.RefundPolicy) *Service {
	return &Service{
		store:    s,
		gateway:  gw,
		notifier: notifier,
		cfg:      cfg,
		policy:   policy,
	}
}

// CaptureParams is a client's payment submission for a pending booking.
type CaptureParams struct {
	BookingId     string
	ActorId       string
	Method        string
	Card          gateway.CardDetails
	PayerDocument string
}

// Capture charges the linked payment through the gateway. Card captures
// settle synchronously; pix and boleto stay pending with their artifacts
// stored until the gateway confirms settlement.
func (s *Service) Capture(ctx context.Context, params CaptureParams) (*models.Payment, error) {
	booking, err := s.store.GetBookingById(ctx, params.BookingId)
	if err != nil {
		return nil, err
	}
	if params.ActorId != booking.ClientId {
		return nil, fmt.Errorf("%w: only the booking's client can pay", store.ErrForbidden)
	}
	if booking.Status != models.BookingStatusPending {
		return nil, fmt.Errorf("%w: booking %s is %s", store.ErrInvalidState, booking.Id, booking.Status)
	}

	payment, err := s.store.GetPaymentByBookingId(ctx, params.BookingId)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("%w: payment %s is %s", store.ErrInvalidState, payment.Id, payment.Status)
	}

	var result *gateway.CaptureResult
	switch params.Method {
	case models.PaymentMethodCard:
		if params.Card.Number == "" || params.Card.CVV == "" {
			return nil, fmt.Errorf("%w: card details are required", store.ErrInvalidArgument)
		}
		result, err = s.gateway.CaptureCard(ctx, payment.Id, payment.Amount, params.Card)
	case models.PaymentMethodPix:
		result, err = s.gateway.GeneratePix(ctx, payment.Id, payment.Amount)
	case models.PaymentMethodBoleto:
		if params.PayerDocument == "" {
			return nil, fmt.Errorf("%w: payer document is required for boleto", store.ErrInvalidArgument)
		}
		result, err = s.gateway.GenerateBoleto(ctx, payment.Id, payment.Amount, params.PayerDocument)
	default:
		return nil, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidArgument, params.Method)
	}

	if err != nil {
		// A capture with no definitive answer counts as failed; the client
		// retries with a fresh charge.
		if markErr := s.store.MarkPaymentFailed(ctx, payment.Id); markErr != nil {
			zap.L().Error("Failed to mark payment failed after gateway error",
				zap.String("payment_id", payment.Id), zap.Error(markErr))
		}
		return nil, fmt.Errorf("%w: %v", store.ErrPaymentProcessingFailed, err)
	}

	switch result.Status {
	case gateway.StatusApproved:
		if err := s.store.MarkPaymentPaid(ctx, payment.Id, params.Method, result.TransactionId); err != nil {
			return nil, err
		}
		s.notifyPaymentReceived(ctx, booking)
	case gateway.StatusPending:
		err := s.store.SetPaymentArtifacts(ctx, payment.Id, params.Method, result.TransactionId, store.PaymentArtifacts{
			PixCode:       result.PixCode,
			PixQRCode:     result.PixQRCode,
			PixExpiresAt:  result.PixExpiresAt,
			BoletoBarcode: result.BoletoBarcode,
			BoletoURL:     result.BoletoURL,
			BoletoDueDate: result.BoletoDueDate,
		})
		if err != nil {
			return nil, err
		}
	default:
		if err := s.store.MarkPaymentFailed(ctx, payment.Id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: gateway returned %s", store.ErrPaymentProcessingFailed, result.Status)
	}

	return s.store.GetPaymentById(ctx, payment.Id)
}

// CheckStatus returns the payment, reconciling a pending payment against the
// gateway first when a gateway reference exists. Reconciliation to paid
// notifies the provider exactly once; the status guard on the paid
// transition makes a concurrent double-reconcile lose cleanly.
func (s *Service) CheckStatus(ctx context.Context, paymentId, requesterId string) (*models.Payment, error) {
	payment, err := s.store.GetPaymentById(ctx, paymentId)
	if err != nil {
		return nil, err
	}
	booking, err := s.store.GetBookingById(ctx, payment.BookingId)
	if err != nil {
		return nil, err
	}
	if requesterId != booking.ClientId && requesterId != booking.ProviderId {
		return nil, fmt.Errorf("%w: only a booking party can check the payment", store.ErrForbidden)
	}

	if payment.Status == models.PaymentStatusPending && payment.GatewayTransactionId != "" {
		status, err := s.gateway.CheckStatus(ctx, payment.GatewayTransactionId)
		if err != nil {
			zap.L().Warn("Gateway status check failed, returning local state",
				zap.String("payment_id", paymentId), zap.Error(err))
			return payment, nil
		}

		switch status {
		case gateway.StatusApproved:
			err := s.store.MarkPaymentPaid(ctx, paymentId, "", payment.GatewayTransactionId)
			if err == nil {
				s.notifyPaymentReceived(ctx, booking)
			} else if !errors.Is(err, store.ErrInvalidState) {
				return nil, err
			}
		case gateway.StatusDeclined, gateway.StatusFailed:
			if err := s.store.MarkPaymentFailed(ctx, paymentId); err != nil && !errors.Is(err, store.ErrInvalidState) {
				return nil, err
			}
		}
		return s.store.GetPaymentById(ctx, paymentId)
	}

	return payment, nil
}

func (s *Service) notifyPaymentReceived(ctx context.Context, booking *models.Booking) {
	notify.Dispatch(ctx, s.notifier, []notify.Event{{
		UserId:  booking.ProviderId,
		Type:    notify.TypePaymentReceived,
		Title:   "Payment received",
		Message: fmt.Sprintf("Payment for booking %s was confirmed.", booking.Id),
	}})
}

// RequestRefund refunds a paid payment on a cancelled booking. The gateway
// refund happens before any local mutation, so a gateway failure leaves the
// payment paid and the request retryable.
func (s *Service) RequestRefund(ctx context.Context, paymentId, requesterId, reason string) (*models.Payment, error) {
	payment, err := s.store.GetPaymentById(ctx, paymentId)
	if err != nil {
		return nil, err
	}
	booking, err := s.store.GetBookingById(ctx, payment.BookingId)
	if err != nil {
		return nil, err
	}
	if requesterId != booking.ClientId {
		return nil, fmt.Errorf("%w: only the client can request a refund", store.ErrForbidden)
	}
	if booking.Status != models.BookingStatusCancelled {
		return nil, fmt.Errorf("%w: booking %s is not cancelled", store.ErrInvalidState, booking.Id)
	}
	if payment.Status != models.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: payment %s is %s", store.ErrInvalidState, paymentId, payment.Status)
	}

	now := time.Now().UTC()
	fraction := s.policy.RefundFraction(ledger.HoursUntil(booking.BookingDate, now))
	if fraction.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: cancellation was under the refund window", store.ErrNotEligible)
	}
	refundAmount := ledger.ComputeRefund(payment.Amount, fraction)

	if payment.GatewayTransactionId != "" {
		if _, err := s.gateway.Refund(ctx, payment.GatewayTransactionId, refundAmount); err != nil {
			// No definitive answer. Reconcile before giving up so a refund
			// that actually landed is not retried into a double refund.
			status, checkErr := s.gateway.CheckStatus(ctx, payment.GatewayTransactionId)
			if checkErr != nil || status != gateway.StatusRefunded {
				return nil, fmt.Errorf("%w: %v", store.ErrPaymentProcessingFailed, err)
			}
			zap.L().Info("Gateway refund reconciled after error",
				zap.String("payment_id", paymentId))
		}
	}

	if err := s.store.MarkPaymentRefunded(ctx, paymentId, refundAmount, now); err != nil {
		return nil, err
	}

	notify.Dispatch(ctx, s.notifier, []notify.Event{
		{
			UserId:  booking.ClientId,
			Type:    notify.TypePaymentRefunded,
			Title:   "Refund issued",
			Message: fmt.Sprintf("A refund of %s was issued.", refundAmount.StringFixed(2)),
		},
		{
			UserId:  booking.ProviderId,
			Type:    notify.TypePaymentRefunded,
			Title:   "Booking refunded",
			Message: fmt.Sprintf("The payment for booking %s was refunded.", booking.Id),
		},
	})

	return s.store.GetPaymentById(ctx, paymentId)
}

// ReleaseFunds settles a matured escrow to the provider's balance. A second
// release of the same payment is a no-op success, never a second credit.
// Privileged: callers are the scheduler and operator tooling only.
func (s *Service) ReleaseFunds(ctx context.Context, paymentId string) (*store.ReleaseResult, error) {
	result, err := s.store.ReleaseFunds(ctx, paymentId, time.Now().UTC())
	if errors.Is(err, store.ErrAlreadyReleased) {
		zap.L().Info("Release skipped, funds already released",
			zap.String("payment_id", paymentId))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	notify.Dispatch(ctx, s.notifier, []notify.Event{{
		UserId:  result.ProviderId,
		Type:    notify.TypeFundsReleased,
		Title:   "Funds released",
		Message: fmt.Sprintf("%s was credited to your withdrawable balance.", result.NetAmount.StringFixed(2)),
	}})
	return result, nil
}

// FreezeForDispute extends the escrow hold for a disputed payment without
// changing its status. Resolution is an external admin action.
func (s *Service) FreezeForDispute(ctx context.Context, paymentId, actorId, reason string) error {
	payment, err := s.store.GetPaymentById(ctx, paymentId)
	if err != nil {
		return err
	}
	if payment.ReleasedAt != nil {
		return fmt.Errorf("%w: payment %s has already been released", store.ErrInvalidState, paymentId)
	}
	booking, err := s.store.GetBookingById(ctx, payment.BookingId)
	if err != nil {
		return err
	}
	if actorId != booking.ClientId && actorId != booking.ProviderId {
		return fmt.Errorf("%w: only a booking party can open a dispute", store.ErrForbidden)
	}

	newReleaseDate := time.Now().UTC().AddDate(0, 0, s.cfg.DisputeExtensionDays)
	if err := s.store.ExtendEscrowForDispute(ctx, paymentId, newReleaseDate, reason); err != nil {
		return err
	}

	zap.L().Warn("Payment frozen for dispute, pending manual resolution",
		zap.String("payment_id", paymentId),
		zap.String("opened_by", actorId),
		zap.String("reason", reason),
		zap.Time("new_release_date", newReleaseDate))

	notify.Dispatch(ctx, s.notifier, []notify.Event{
		{
			UserId:  booking.ClientId,
			Type:    notify.TypeDisputeOpened,
			Title:   "Dispute opened",
			Message: fmt.Sprintf("A dispute was opened on booking %s; the escrow hold was extended.", booking.Id),
		},
		{
			UserId:  booking.ProviderId,
			Type:    notify.TypeDisputeOpened,
			Title:   "Dispute opened",
			Message: fmt.Sprintf("A dispute was opened on booking %s; the escrow hold was extended.", booking.Id),
		},
	})
	return nil
}

func (s *Service) GetById(ctx context.Context, paymentId string) (*models.Payment, error) {
	return s.store.GetPaymentById(ctx, paymentId)
}
