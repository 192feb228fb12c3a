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

// AddBankAccount inserts the account. A user's first account becomes the
// default automatically.
func (s *Service) AddBankAccount(ctx context.Context, account *models.BankAccount) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, queryCountBankAccounts, account.UserId).Scan(&count); err != nil {
		return fmt.Errorf("failed to count bank accounts: %w", err)
	}

	if account.Id == "" {
		account.Id = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	if count == 0 {
		account.IsDefault = true
	}

	_, err = tx.ExecContext(ctx, queryInsertBankAccount,
		account.Id, account.UserId, account.BankCode, account.BankName, account.Branch,
		account.AccountNumber, account.HolderName, account.HolderDocument,
		account.IsDefault, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bank account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) GetBankAccount(ctx context.Context, id string) (*models.BankAccount, error) {
	account, err := scanBankAccount(s.db.QueryRowContext(ctx, queryGetBankAccount, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: bank account %s", store.ErrNotFound, id)
	}
	return account, err
}

func (s *Service) ListBankAccounts(ctx context.Context, userId string) ([]models.BankAccount, error) {
	rows, err := s.db.QueryContext(ctx, queryListBankAccounts, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var accounts []models.BankAccount
	for rows.Next() {
		account, err := scanBankAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank account rows: %w", err)
	}
	return accounts, nil
}

// DeleteBankAccount removes the account unless a withdrawal in flight still
// references it. Deleting the default promotes the oldest remaining account.
func (s *Service) DeleteBankAccount(ctx context.Context, id, userId string) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	account, err := scanBankAccount(tx.QueryRowContext(ctx, queryGetBankAccount, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: bank account %s", store.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load bank account: %w", err)
	}
	if account.UserId != userId {
		return fmt.Errorf("%w: bank account %s", store.ErrNotFound, id)
	}

	var active int
	if err := tx.QueryRowContext(ctx, queryCountActiveWithdrawalsForAccount, id).Scan(&active); err != nil {
		return fmt.Errorf("failed to count active withdrawals: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("%w: bank account %s has a withdrawal in flight", store.ErrConflict, id)
	}

	if _, err := tx.ExecContext(ctx, queryDeleteBankAccount, id, userId); err != nil {
		return fmt.Errorf("failed to delete bank account: %w", err)
	}

	if account.IsDefault {
		var oldestId string
		err := tx.QueryRowContext(ctx, queryOldestBankAccount, userId).Scan(&oldestId)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to find replacement default account: %w", err)
		}
		if err == nil {
			if _, err := tx.ExecContext(ctx, querySetDefaultBankAccount, oldestId); err != nil {
				return fmt.Errorf("failed to promote default account: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanBankAccount(row rowScanner) (*models.BankAccount, error) {
	var a models.BankAccount
	err := row.Scan(&a.Id, &a.UserId, &a.BankCode, &a.BankName, &a.Branch,
		&a.AccountNumber, &a.HolderName, &a.HolderDocument, &a.IsDefault, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
