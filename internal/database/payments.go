package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) GetPaymentById(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := scanPayment(s.db.QueryRowContext(ctx, queryGetPaymentById, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment %s", store.ErrNotFound, id)
	}
	return payment, err
}

func (s *Service) GetPaymentByBookingId(ctx context.Context, bookingId string) (*models.Payment, error) {
	payment, err := scanPayment(s.db.QueryRowContext(ctx, queryGetPaymentByBookingId, bookingId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment for booking %s", store.ErrNotFound, bookingId)
	}
	return payment, err
}

// MarkPaymentPaid records an approved capture and the method used. Valid
// only while the payment is pending or processing.
func (s *Service) MarkPaymentPaid(ctx context.Context, id, method, gatewayTransactionId string) error {
	result, err := s.db.ExecContext(ctx, queryMarkPaymentPaid, method, method, gatewayTransactionId, id)
	if err != nil {
		return fmt.Errorf("failed to mark payment paid: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: payment %s is not awaiting capture", store.ErrInvalidState, id)
	}
	return nil
}

// SetPaymentArtifacts stores the gateway reference and method artifacts for a
// capture awaiting settlement (PIX / boleto). The payment stays pending.
func (s *Service) SetPaymentArtifacts(ctx context.Context, id, method, gatewayTransactionId string, artifacts store.PaymentArtifacts) error {
	result, err := s.db.ExecContext(ctx, querySetPaymentArtifacts,
		method, gatewayTransactionId, artifacts.PixCode, artifacts.PixQRCode, nullableTime(artifacts.PixExpiresAt),
		artifacts.BoletoBarcode, artifacts.BoletoURL, nullableTime(artifacts.BoletoDueDate), id)
	if err != nil {
		return fmt.Errorf("failed to set payment artifacts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: payment %s is not pending", store.ErrInvalidState, id)
	}
	return nil
}

func (s *Service) MarkPaymentFailed(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, queryMarkPaymentFailed, id)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: payment %s is not awaiting capture", store.ErrInvalidState, id)
	}
	return nil
}

func (s *Service) MarkPaymentRefunded(ctx context.Context, id string, amount decimal.Decimal, refundedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, queryMarkPaymentRefunded, amount.String(), refundedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark payment refunded: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: payment %s is not refundable", store.ErrInvalidState, id)
	}
	return nil
}

// ReleaseFunds settles a matured escrow: it stamps released_at and credits
// the provider's balance with the net amount in one transaction. The
// released_at IS NULL guard in the UPDATE makes a second call report
// ErrAlreadyReleased instead of crediting twice; callers treat that as a
// no-op success.
func (s *Service) ReleaseFunds(ctx context.Context, paymentId string, now time.Time) (*store.ReleaseResult, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	payment, err := scanPayment(tx.QueryRowContext(ctx, queryGetPaymentById, paymentId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment %s", store.ErrNotFound, paymentId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	if payment.ReleasedAt != nil || payment.Status == models.PaymentStatusReleased {
		return nil, fmt.Errorf("%w: payment %s released at %v", store.ErrAlreadyReleased, paymentId, payment.ReleasedAt)
	}

	booking, err := scanBooking(tx.QueryRowContext(ctx, queryGetBookingById, payment.BookingId))
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking.Status != models.BookingStatusCompleted {
		return nil, fmt.Errorf("%w: booking %s is %s, not completed", store.ErrInvalidState, booking.Id, booking.Status)
	}

	result, err := tx.ExecContext(ctx, queryReleasePayment, now, paymentId, now)
	if err != nil {
		return nil, fmt.Errorf("failed to release payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// Paid but the escrow date has not matured (or was extended by a
		// dispute after we loaded the row).
		return nil, fmt.Errorf("%w: payment %s escrow has not matured", store.ErrInvalidState, paymentId)
	}

	newBalance, err := s.creditBalance(ctx, tx, booking.ProviderId, payment.NetAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to credit provider balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Escrow funds released",
		zap.String("payment_id", paymentId),
		zap.String("provider_id", booking.ProviderId),
		zap.String("net_amount", payment.NetAmount.String()),
		zap.String("new_balance", newBalance.String()))

	return &store.ReleaseResult{
		PaymentId:  paymentId,
		ProviderId: booking.ProviderId,
		NetAmount:  payment.NetAmount,
		NewBalance: newBalance,
		ReleasedAt: now,
	}, nil
}

// ListReleasablePayments returns payments matching the release predicate:
// paid, unreleased, escrow matured, booking completed.
func (s *Service) ListReleasablePayments(ctx context.Context, now time.Time) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, queryListReleasablePayments, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list releasable payments: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var payments []models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment rows: %w", err)
	}
	return payments, nil
}

// ExtendEscrowForDispute pushes the release date out and records the dispute
// reason. Only unreleased payments can be frozen.
func (s *Service) ExtendEscrowForDispute(ctx context.Context, id string, newReleaseDate time.Time, reason string) error {
	result, err := s.db.ExecContext(ctx, queryExtendEscrowForDispute, newReleaseDate, reason, id)
	if err != nil {
		return fmt.Errorf("failed to extend escrow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: payment %s already released or terminal", store.ErrInvalidState, id)
	}
	return nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var amountStr, serviceFeeStr, netAmountStr string
	var refundAmount sql.NullString
	var pixExpiresAt, boletoDueDate, escrowReleaseDate, releasedAt, refundedAt sql.NullTime
	err := row.Scan(&p.Id, &p.BookingId, &amountStr, &serviceFeeStr, &netAmountStr, &p.Status,
		&p.PaymentMethod, &p.GatewayTransactionId, &p.PixCode, &p.PixQRCode, &pixExpiresAt,
		&p.BoletoBarcode, &p.BoletoURL, &boletoDueDate, &escrowReleaseDate, &releasedAt,
		&refundAmount, &refundedAt, &p.DisputeReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if p.Amount, err = parseDecimal(amountStr, "amount"); err != nil {
		return nil, err
	}
	if p.ServiceFee, err = parseDecimal(serviceFeeStr, "service_fee"); err != nil {
		return nil, err
	}
	if p.NetAmount, err = parseDecimal(netAmountStr, "net_amount"); err != nil {
		return nil, err
	}
	if p.RefundAmount, err = decimalPtr(refundAmount, "refund_amount"); err != nil {
		return nil, err
	}
	p.PixExpiresAt = timePtr(pixExpiresAt)
	p.BoletoDueDate = timePtr(boletoDueDate)
	p.EscrowReleaseDate = timePtr(escrowReleaseDate)
	p.ReleasedAt = timePtr(releasedAt)
	p.RefundedAt = timePtr(refundedAt)
	return &p, nil
}
