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

package withdrawal

import (
	"context"
	"fmt"

	"booking-settlement-go/internal/gateway"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/notify"
	"booking-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service drives provider withdrawals and their bank accounts. The balance
// debit is taken when the withdrawal is created; the bank transfer itself is
// asynchronous and reported back through HandleTransferResult.
type Service struct {
	store    store.Store
	gateway  gateway.Client
	notifier notify.Notifier
	cfg      models.SettlementConfig
}

func NewService(s store.Store, gw gateway.Client, notifier notify.Notifier, cfg models.SettlementConfig) *Service {
	return &Service{
		store:    s,
		gateway:  gw,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Request debits the user's balance, records the withdrawal and initiates
// the bank transfer. A transfer that cannot be initiated leaves the
// withdrawal pending for a later retry; the debit stands until the transfer
// definitively fails.
func (s *Service) Request(ctx context.Context, userId string, amount decimal.Decimal, bankAccountId string) (*models.Withdrawal, error) {
	if amount.LessThan(s.cfg.MinWithdrawalAmount) {
		return nil, fmt.Errorf("%w: minimum withdrawal amount is %s",
			store.ErrInvalidArgument, s.cfg.MinWithdrawalAmount.StringFixed(2))
	}

	account, err := s.store.GetBankAccount(ctx, bankAccountId)
	if err != nil {
		return nil, err
	}
	if account.UserId != userId {
		return nil, fmt.Errorf("%w: bank account %s", store.ErrNotFound, bankAccountId)
	}

	withdrawal, err := s.store.CreateWithdrawal(ctx, userId, amount, bankAccountId)
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.Transfer(ctx, withdrawal.Id, amount, account)
	if err != nil {
		zap.L().Warn("Transfer initiation failed, withdrawal stays pending",
			zap.String("withdrawal_id", withdrawal.Id), zap.Error(err))
	} else if err := s.applyTransferStatus(ctx, withdrawal, result.TransferId, result.Status, result.FailureReason); err != nil {
		return nil, err
	}

	notify.Dispatch(ctx, s.notifier, []notify.Event{{
		UserId:  userId,
		Type:    notify.TypeWithdrawalUpdate,
		Title:   "Withdrawal requested",
		Message: fmt.Sprintf("Your withdrawal of %s was requested.", amount.StringFixed(2)),
	}})

	return s.store.GetWithdrawalById(ctx, withdrawal.Id)
}

// HandleTransferResult applies an asynchronous status callback from the
// transfer provider. Re-delivered callbacks are safe to replay: the status
// guards make completed and failed transitions apply at most once.
func (s *Service) HandleTransferResult(ctx context.Context, withdrawalId, transferId string, status gateway.Status, failureReason string) error {
	withdrawal, err := s.store.GetWithdrawalById(ctx, withdrawalId)
	if err != nil {
		return err
	}
	return s.applyTransferStatus(ctx, withdrawal, transferId, status, failureReason)
}

func (s *Service) applyTransferStatus(ctx context.Context, withdrawal *models.Withdrawal, transferId string, status gateway.Status, failureReason string) error {
	switch status {
	case gateway.StatusPending:
		if withdrawal.Status == models.WithdrawalStatusPending {
			return s.store.SetWithdrawalProcessing(ctx, withdrawal.Id, transferId)
		}
		return nil

	case gateway.StatusApproved:
		if withdrawal.Status == models.WithdrawalStatusPending {
			if err := s.store.SetWithdrawalProcessing(ctx, withdrawal.Id, transferId); err != nil {
				return err
			}
		}
		if err := s.store.CompleteWithdrawal(ctx, withdrawal.Id); err != nil {
			return err
		}
		notify.Dispatch(ctx, s.notifier, []notify.Event{{
			UserId:  withdrawal.UserId,
			Type:    notify.TypeWithdrawalUpdate,
			Title:   "Withdrawal completed",
			Message: fmt.Sprintf("Your withdrawal of %s was transferred to your bank account.", withdrawal.Amount.StringFixed(2)),
		}})
		return nil

	case gateway.StatusDeclined, gateway.StatusFailed:
		if failureReason == "" {
			failureReason = "transfer rejected by processor"
		}
		if err := s.store.FailWithdrawal(ctx, withdrawal.Id, failureReason); err != nil {
			return err
		}
		notify.Dispatch(ctx, s.notifier, []notify.Event{{
			UserId:  withdrawal.UserId,
			Type:    notify.TypeWithdrawalUpdate,
			Title:   "Withdrawal failed",
			Message: fmt.Sprintf("Your withdrawal of %s failed and the amount was returned to your balance.", withdrawal.Amount.StringFixed(2)),
		}})
		return nil

	default:
		return fmt.Errorf("%w: unexpected transfer status %q", store.ErrInvalidArgument, status)
	}
}

// List returns the user's withdrawals, newest first.
func (s *Service) List(ctx context.Context, userId string, limit, offset int) ([]models.Withdrawal, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListWithdrawals(ctx, userId, limit, offset)
}

func (s *Service) GetById(ctx context.Context, withdrawalId string) (*models.Withdrawal, error) {
	return s.store.GetWithdrawalById(ctx, withdrawalId)
}

// AddBankAccount registers a payout destination. The user's first account
// becomes the default.
func (s *Service) AddBankAccount(ctx context.Context, account *models.BankAccount) (*models.BankAccount, error) {
	if account.UserId == "" || account.BankCode == "" || account.AccountNumber == "" ||
		account.HolderName == "" || account.HolderDocument == "" {
		return nil, fmt.Errorf("%w: bank account fields are incomplete", store.ErrInvalidArgument)
	}
	if _, err := s.store.GetUserById(ctx, account.UserId); err != nil {
		return nil, err
	}
	if err := s.store.AddBankAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) ListBankAccounts(ctx context.Context, userId string) ([]models.BankAccount, error) {
	return s.store.ListBankAccounts(ctx, userId)
}

// DeleteBankAccount removes a payout destination unless a withdrawal in
// flight references it.
func (s *Service) DeleteBankAccount(ctx context.Context, id, userId string) error {
	return s.store.DeleteBankAccount(ctx, id, userId)
}
