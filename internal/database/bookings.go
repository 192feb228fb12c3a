package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateBookingWithPayment atomically inserts a booking, its linked pending
// payment, and the service booking-counter bump. The daily capacity count
// runs inside the same transaction as the insert, so two concurrent creates
// for a full day cannot both pass the check.
func (s *Service) CreateBookingWithPayment(ctx context.Context, params store.CreateBookingParams) (*models.Booking, *models.Payment, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	if params.MaxBookings != nil {
		var count int64
		err := tx.QueryRowContext(ctx, queryCountActiveBookingsForDay,
			params.ServiceId, params.BookingDate).Scan(&count)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to count bookings for day: %w", err)
		}
		if count >= *params.MaxBookings {
			return nil, nil, fmt.Errorf("%w: service %s is fully booked on %s (%d/%d)",
				store.ErrConflict, params.ServiceId, params.BookingDate.Format("2006-01-02"), count, *params.MaxBookings)
		}
	}

	now := time.Now().UTC()
	booking := &models.Booking{
		Id:          uuid.New().String(),
		ServiceId:   params.ServiceId,
		ClientId:    params.ClientId,
		ProviderId:  params.ProviderId,
		BookingDate: params.BookingDate,
		EndDate:     params.EndDate,
		TotalPrice:  params.TotalPrice,
		Status:      models.BookingStatusPending,
		Notes:       params.Notes,
		Address:     params.Address,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = tx.ExecContext(ctx, queryInsertBooking,
		booking.Id, booking.ServiceId, booking.ClientId, booking.ProviderId,
		booking.BookingDate, nullableTime(booking.EndDate), booking.TotalPrice.String(),
		booking.Notes, booking.Address, now, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert booking: %w", err)
	}

	payment := &models.Payment{
		Id:         uuid.New().String(),
		BookingId:  booking.Id,
		Amount:     params.TotalPrice,
		ServiceFee: params.ServiceFee,
		NetAmount:  params.NetAmount,
		Status:     models.PaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = tx.ExecContext(ctx, queryInsertPayment,
		payment.Id, payment.BookingId, payment.Amount.String(),
		payment.ServiceFee.String(), payment.NetAmount.String(), now, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryAdjustServiceBookingCount, 1, params.ServiceId); err != nil {
		return nil, nil, fmt.Errorf("failed to increment booking counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Booking created",
		zap.String("booking_id", booking.Id),
		zap.String("service_id", booking.ServiceId),
		zap.String("client_id", booking.ClientId),
		zap.String("total_price", booking.TotalPrice.String()))

	return booking, payment, nil
}

func (s *Service) GetBookingById(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := scanBooking(s.db.QueryRowContext(ctx, queryGetBookingById, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %s", store.ErrNotFound, id)
	}
	return booking, err
}

func (s *Service) ListBookings(ctx context.Context, userId, role, status string, limit, offset int) ([]models.Booking, error) {
	query := queryListBookingsByClient
	if role == "provider" {
		query = queryListBookingsByProvider
	}

	rows, err := s.db.QueryContext(ctx, query, userId, status, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating booking rows: %w", err)
	}
	return bookings, nil
}

// AcceptBooking transitions pending -> accepted. The status predicate lives
// in the UPDATE, so a concurrent conflicting transition loses cleanly.
func (s *Service) AcceptBooking(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, queryAcceptBooking, id)
	if err != nil {
		return fmt.Errorf("failed to accept booking: %w", err)
	}
	return requireTransition(result, id, "accept")
}

// DeclineBooking transitions pending -> declined, fails the linked payment
// and releases the capacity slot, all in one transaction.
func (s *Service) DeclineBooking(ctx context.Context, id, actorId, reason string) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryDeclineBooking, reason, actorId, id)
	if err != nil {
		return fmt.Errorf("failed to decline booking: %w", err)
	}
	if err := requireTransition(result, id, "decline"); err != nil {
		return err
	}

	booking, err := scanBooking(tx.QueryRowContext(ctx, queryGetBookingById, id))
	if err != nil {
		return fmt.Errorf("failed to reload booking: %w", err)
	}

	payment, err := scanPayment(tx.QueryRowContext(ctx, queryGetPaymentByBookingId, id))
	if err != nil {
		return fmt.Errorf("failed to load linked payment: %w", err)
	}
	if payment.Status == models.PaymentStatusPending || payment.Status == models.PaymentStatusProcessing {
		if _, err := tx.ExecContext(ctx, queryMarkPaymentFailed, payment.Id); err != nil {
			return fmt.Errorf("failed to fail linked payment: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, queryAdjustServiceBookingCount, -1, booking.ServiceId); err != nil {
		return fmt.Errorf("failed to decrement booking counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CompleteBooking transitions accepted -> completed and places the linked
// payment into escrow with the given release date, in one transaction.
func (s *Service) CompleteBooking(ctx context.Context, id string, completedAt, escrowReleaseDate time.Time) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryCompleteBooking, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to complete booking: %w", err)
	}
	if err := requireTransition(result, id, "complete"); err != nil {
		return err
	}

	result, err = tx.ExecContext(ctx, queryHoldPaymentInEscrow, escrowReleaseDate, id)
	if err != nil {
		return fmt.Errorf("failed to place payment in escrow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: linked payment is terminal, cannot hold in escrow", store.ErrInvalidState)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Booking completed, payment held in escrow",
		zap.String("booking_id", id),
		zap.Time("escrow_release_date", escrowReleaseDate))
	return nil
}

// CancelBooking transitions pending/accepted -> cancelled, settles the
// linked payment (refund when a refund amount applies, failure when it was
// never captured) and releases the capacity slot, in one transaction.
func (s *Service) CancelBooking(ctx context.Context, params store.CancelBookingParams) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryCancelBooking, params.Reason, params.ActorId, params.BookingId)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if err := requireTransition(result, params.BookingId, "cancel"); err != nil {
		return err
	}

	booking, err := scanBooking(tx.QueryRowContext(ctx, queryGetBookingById, params.BookingId))
	if err != nil {
		return fmt.Errorf("failed to reload booking: %w", err)
	}

	payment, err := scanPayment(tx.QueryRowContext(ctx, queryGetPaymentByBookingId, params.BookingId))
	if err != nil {
		return fmt.Errorf("failed to load linked payment: %w", err)
	}

	switch payment.Status {
	case models.PaymentStatusPending, models.PaymentStatusProcessing:
		// Never captured; nothing to refund.
		if _, err := tx.ExecContext(ctx, queryMarkPaymentFailed, payment.Id); err != nil {
			return fmt.Errorf("failed to fail linked payment: %w", err)
		}
	case models.PaymentStatusPaid:
		if params.RefundAmount != nil {
			result, err := tx.ExecContext(ctx, queryMarkPaymentRefunded,
				params.RefundAmount.String(), params.CancelledAt, payment.Id)
			if err != nil {
				return fmt.Errorf("failed to refund linked payment: %w", err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check rows affected: %w", err)
			}
			if rows == 0 {
				return fmt.Errorf("%w: payment %s left paid state concurrently", store.ErrConflict, payment.Id)
			}
		}
		// A zero-fraction cancellation leaves the payment paid.
	}

	if _, err := tx.ExecContext(ctx, queryAdjustServiceBookingCount, -1, booking.ServiceId); err != nil {
		return fmt.Errorf("failed to decrement booking counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Booking cancelled",
		zap.String("booking_id", params.BookingId),
		zap.String("cancelled_by", params.ActorId))
	return nil
}

// StalePendingBookings returns pending bookings created before the cutoff,
// candidates for the hourly auto-cancel job.
func (s *Service) StalePendingBookings(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	return s.queryBookings(ctx, queryStalePendingBookings, cutoff)
}

// UpcomingAcceptedBookings returns accepted bookings starting inside
// [from, to), candidates for the daily reminder job.
func (s *Service) UpcomingAcceptedBookings(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	return s.queryBookings(ctx, queryUpcomingAcceptedBookings, from, to)
}

func (s *Service) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating booking rows: %w", err)
	}
	return bookings, nil
}

// requireTransition converts a zero-row guarded UPDATE into the state error
// the caller surfaces.
func requireTransition(result sql.Result, bookingId, operation string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: cannot %s booking %s in its current status", store.ErrInvalidState, operation, bookingId)
	}
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var totalPriceStr string
	var endDate, completedAt sql.NullTime
	err := row.Scan(&b.Id, &b.ServiceId, &b.ClientId, &b.ProviderId, &b.BookingDate, &endDate,
		&totalPriceStr, &b.Status, &b.Notes, &b.Address, &b.CancellationReason, &b.CancelledBy,
		&completedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.TotalPrice, err = parseDecimal(totalPriceStr, "total_price")
	if err != nil {
		return nil, err
	}
	b.EndDate = timePtr(endDate)
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}
