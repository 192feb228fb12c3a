package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/store"
)

func (s *Service) GetUserById(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	var balanceStr string
	err := s.db.QueryRowContext(ctx, queryGetUserById, id).Scan(
		&u.Id, &u.Name, &u.Email, &balanceStr, &u.BalanceVersion, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Balance, err = parseDecimal(balanceStr, "balance")
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertUser is used by setup seeding and tests; duplicate emails are ignored.
func (s *Service) InsertUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, queryInsertUser, u.Id, u.Name, u.Email, u.Balance.String())
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Service) GetServiceById(ctx context.Context, id string) (*models.Service, error) {
	svc, err := scanService(s.db.QueryRowContext(ctx, queryGetServiceById, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: service %s", store.ErrNotFound, id)
	}
	return svc, err
}

func (s *Service) InsertService(ctx context.Context, svc *models.Service) error {
	var hourlyRate interface{}
	if svc.HourlyRate != nil {
		hourlyRate = svc.HourlyRate.String()
	}
	var maxBookings interface{}
	if svc.MaxBookings != nil {
		maxBookings = *svc.MaxBookings
	}
	_, err := s.db.ExecContext(ctx, queryInsertService,
		svc.Id, svc.ProviderId, svc.Title, svc.Price.String(), hourlyRate, maxBookings, svc.Active)
	if err != nil {
		return fmt.Errorf("failed to insert service: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanService(row rowScanner) (*models.Service, error) {
	var svc models.Service
	var priceStr string
	var hourlyRate sql.NullString
	var maxBookings sql.NullInt64
	err := row.Scan(&svc.Id, &svc.ProviderId, &svc.Title, &priceStr, &hourlyRate,
		&maxBookings, &svc.BookingCount, &svc.Active, &svc.CreatedAt)
	if err != nil {
		return nil, err
	}

	svc.Price, err = parseDecimal(priceStr, "price")
	if err != nil {
		return nil, err
	}
	svc.HourlyRate, err = decimalPtr(hourlyRate, "hourly_rate")
	if err != nil {
		return nil, err
	}
	if maxBookings.Valid {
		v := maxBookings.Int64
		svc.MaxBookings = &v
	}
	return &svc, nil
}
