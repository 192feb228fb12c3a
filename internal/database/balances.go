package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetUserBalance returns the provider's current withdrawable balance.
func (s *Service) GetUserBalance(ctx context.Context, userId string) (decimal.Decimal, error) {
	var balanceStr string
	var version int64
	err := s.db.QueryRowContext(ctx, queryGetUserBalance, userId).Scan(&balanceStr, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: user %s", store.ErrNotFound, userId)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return parseDecimal(balanceStr, "balance")
}

// creditBalance and debitBalance are the only two code paths that touch
// user.balance. Both run on a transaction handle with an optimistic version
// guard, so a lost update is detected rather than silently overwritten.

func (s *Service) creditBalance(ctx context.Context, tx *sql.Tx, userId string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.applyBalanceDelta(ctx, tx, userId, amount)
}

func (s *Service) debitBalance(ctx context.Context, tx *sql.Tx, userId string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.applyBalanceDelta(ctx, tx, userId, amount.Neg())
}

func (s *Service) applyBalanceDelta(ctx context.Context, tx *sql.Tx, userId string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balanceStr string
	var version int64
	err := tx.QueryRowContext(ctx, queryGetUserBalance, userId).Scan(&balanceStr, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: user %s", store.ErrNotFound, userId)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance for update: %w", err)
	}

	currentBalance, err := parseDecimal(balanceStr, "balance")
	if err != nil {
		return decimal.Zero, err
	}

	newBalance := currentBalance.Add(delta)
	if newBalance.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: insufficient balance: current=%s, requested=%s, shortfall=%s",
			store.ErrInvalidArgument, currentBalance.String(), delta.Neg().String(), delta.Neg().Sub(currentBalance).String())
	}

	result, err := tx.ExecContext(ctx, queryUpdateUserBalance, newBalance.String(), userId, version)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return decimal.Zero, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	zap.L().Debug("Balance updated",
		zap.String("user_id", userId),
		zap.String("old_balance", currentBalance.String()),
		zap.String("new_balance", newBalance.String()))

	return newBalance, nil
}
