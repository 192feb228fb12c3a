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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateWithdrawal atomically debits the provider's balance and inserts the
// withdrawal row. The single-active-withdrawal rule and the bank-account
// ownership check run inside the same transaction, so a concurrent second
// request cannot slip between the check and the insert.
func (s *Service) CreateWithdrawal(ctx context.Context, userId string, amount decimal.Decimal, bankAccountId string) (*models.Withdrawal, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := scanBankAccount(tx.QueryRowContext(ctx, queryGetBankAccount, bankAccountId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: bank account %s", store.ErrNotFound, bankAccountId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bank account: %w", err)
	}
	if account.UserId != userId {
		return nil, fmt.Errorf("%w: bank account %s", store.ErrNotFound, bankAccountId)
	}

	var existingId string
	err = tx.QueryRowContext(ctx, queryCheckActiveWithdrawal, userId).Scan(&existingId)
	if err == nil {
		return nil, fmt.Errorf("%w: withdrawal %s is still in flight", store.ErrConflict, existingId)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check for active withdrawal: %w", err)
	}

	if _, err := s.debitBalance(ctx, tx, userId, amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	withdrawal := &models.Withdrawal{
		Id:            uuid.New().String(),
		UserId:        userId,
		Amount:        amount,
		BankAccountId: bankAccountId,
		Status:        models.WithdrawalStatusPending,
		CreatedAt:     now,
	}

	_, err = tx.ExecContext(ctx, queryInsertWithdrawal,
		withdrawal.Id, withdrawal.UserId, withdrawal.Amount.String(), withdrawal.BankAccountId, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert withdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Withdrawal created, balance debited",
		zap.String("withdrawal_id", withdrawal.Id),
		zap.String("user_id", userId),
		zap.String("amount", amount.String()))

	return withdrawal, nil
}

func (s *Service) GetWithdrawalById(ctx context.Context, id string) (*models.Withdrawal, error) {
	withdrawal, err := scanWithdrawal(s.db.QueryRowContext(ctx, queryGetWithdrawalById, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, id)
	}
	return withdrawal, err
}

func (s *Service) ListWithdrawals(ctx context.Context, userId string, limit, offset int) ([]models.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, queryListWithdrawals, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var withdrawals []models.Withdrawal
	for rows.Next() {
		withdrawal, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, *withdrawal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}
	return withdrawals, nil
}

func (s *Service) SetWithdrawalProcessing(ctx context.Context, id, gatewayTransferId string) error {
	result, err := s.db.ExecContext(ctx, querySetWithdrawalProcessing, gatewayTransferId, id)
	if err != nil {
		return fmt.Errorf("failed to set withdrawal processing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: withdrawal %s is not pending", store.ErrInvalidState, id)
	}
	return nil
}

// CompleteWithdrawal finalizes the transfer. The balance was debited at
// creation, so completion has no further balance effect.
func (s *Service) CompleteWithdrawal(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, queryCompleteWithdrawal, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete withdrawal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: withdrawal %s is not in flight", store.ErrInvalidState, id)
	}
	return nil
}

// FailWithdrawal marks the transfer failed and credits the amount back in
// the same transaction, compensating the debit taken at creation. The status
// guard makes a repeated failure callback a no-op error, never a double
// credit.
func (s *Service) FailWithdrawal(ctx context.Context, id, reason string) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	withdrawal, err := scanWithdrawal(tx.QueryRowContext(ctx, queryGetWithdrawalById, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load withdrawal: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryFailWithdrawal, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to fail withdrawal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: withdrawal %s is not in flight", store.ErrInvalidState, id)
	}

	newBalance, err := s.creditBalance(ctx, tx, withdrawal.UserId, withdrawal.Amount)
	if err != nil {
		return fmt.Errorf("failed to credit back failed withdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Withdrawal failed, balance credited back",
		zap.String("withdrawal_id", id),
		zap.String("user_id", withdrawal.UserId),
		zap.String("amount", withdrawal.Amount.String()),
		zap.String("new_balance", newBalance.String()),
		zap.String("reason", reason))
	return nil
}

func scanWithdrawal(row rowScanner) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var amountStr string
	var processedAt sql.NullTime
	err := row.Scan(&w.Id, &w.UserId, &amountStr, &w.BankAccountId, &w.Status,
		&w.FailureReason, &w.GatewayTransferId, &w.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}

	w.Amount, err = parseDecimal(amountStr, "amount")
	if err != nil {
		return nil, err
	}
	w.ProcessedAt = timePtr(processedAt)
	return &w, nil
}
