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

package main

import (
	"context"
	"flag"
	"fmt"

	"booking-settlement-go/internal/common"
	"booking-settlement-go/internal/config"
	"booking-settlement-go/internal/gateway"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/withdrawal"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	action        string
	withdrawalId  string
	userId        string
	amount        decimal.Decimal
	bankAccountId string
	transferId    string
	status        string
	reason        string
	bankCode      string
	bankName      string
	branch        string
	accountNumber string
	holderName    string
	holderDoc     string
	limit         int
	offset        int
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	action := flag.String("action", "", "One of: request, get, list, add-account, list-accounts, delete-account, transfer-result")
	withdrawalId := flag.String("withdrawal", "", "Withdrawal id (get, transfer-result)")
	userId := flag.String("user", "", "Provider user id")
	amount := flag.String("amount", "", "Withdrawal amount (request)")
	bankAccountId := flag.String("account", "", "Bank account id (request, delete-account)")
	transferId := flag.String("transfer", "", "Gateway transfer id (transfer-result)")
	status := flag.String("status", "", "Gateway transfer status: pending, approved, declined or failed (transfer-result)")
	reason := flag.String("reason", "", "Failure reason (transfer-result)")
	bankCode := flag.String("bank-code", "", "Bank code (add-account)")
	bankName := flag.String("bank-name", "", "Bank name (add-account)")
	branch := flag.String("branch", "", "Branch number (add-account)")
	accountNumber := flag.String("account-number", "", "Account number (add-account)")
	holderName := flag.String("holder-name", "", "Account holder name (add-account)")
	holderDoc := flag.String("holder-document", "", "Account holder CPF/CNPJ (add-account)")
	limit := flag.Int("limit", 20, "Page size (list)")
	offset := flag.Int("offset", 0, "Page offset (list)")
	flag.Parse()

	req := &withdrawalRequest{
		action:        *action,
		withdrawalId:  *withdrawalId,
		userId:        *userId,
		bankAccountId: *bankAccountId,
		transferId:    *transferId,
		status:        *status,
		reason:        *reason,
		bankCode:      *bankCode,
		bankName:      *bankName,
		branch:        *branch,
		accountNumber: *accountNumber,
		holderName:    *holderName,
		holderDoc:     *holderDoc,
		limit:         *limit,
		offset:        *offset,
	}

	switch req.action {
	case "request":
		if req.userId == "" || *amount == "" || req.bankAccountId == "" {
			return nil, fmt.Errorf("request requires --user, --amount and --account")
		}
		parsed, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("invalid --amount %q: %w", *amount, err)
		}
		req.amount = parsed
	case "get":
		if req.withdrawalId == "" {
			return nil, fmt.Errorf("get requires --withdrawal")
		}
	case "list", "list-accounts":
		if req.userId == "" {
			return nil, fmt.Errorf("%s requires --user", req.action)
		}
	case "add-account":
		if req.userId == "" || req.bankCode == "" || req.accountNumber == "" {
			return nil, fmt.Errorf("add-account requires --user, --bank-code and --account-number")
		}
	case "delete-account":
		if req.userId == "" || req.bankAccountId == "" {
			return nil, fmt.Errorf("delete-account requires --user and --account")
		}
	case "transfer-result":
		if req.withdrawalId == "" || req.status == "" {
			return nil, fmt.Errorf("transfer-result requires --withdrawal and --status")
		}
	default:
		return nil, fmt.Errorf("unknown --action %q", req.action)
	}

	return req, nil
}

func printWithdrawal(w *models.Withdrawal) {
	fmt.Printf("\nWithdrawal: %s\n", w.Id)
	fmt.Printf("User:       %s\n", w.UserId)
	fmt.Printf("Amount:     %s\n", w.Amount.String())
	fmt.Printf("Account:    %s\n", w.BankAccountId)
	fmt.Printf("Status:     %s\n", w.Status)
	if w.GatewayTransferId != "" {
		fmt.Printf("Transfer:   %s\n", w.GatewayTransferId)
	}
	if w.FailureReason != "" {
		fmt.Printf("Failure:    %s\n", w.FailureReason)
	}
	if w.ProcessedAt != nil {
		fmt.Printf("Processed:  %s\n", w.ProcessedAt.Format("2006-01-02 15:04"))
	}
}

func runAction(ctx context.Context, svc *withdrawal.Service, req *withdrawalRequest) error {
	switch req.action {
	case "request":
		w, err := svc.Request(ctx, req.userId, req.amount, req.bankAccountId)
		if err != nil {
			return err
		}
		printWithdrawal(w)
		return nil
	case "get":
		w, err := svc.GetById(ctx, req.withdrawalId)
		if err != nil {
			return err
		}
		printWithdrawal(w)
		return nil
	case "list":
		withdrawals, err := svc.List(ctx, req.userId, req.limit, req.offset)
		if err != nil {
			return err
		}
		fmt.Printf("\n%d withdrawal(s) for %s\n", len(withdrawals), req.userId)
		for i := range withdrawals {
			w := &withdrawals[i]
			fmt.Printf("%s %s  %-10s  %s\n",
				common.BoxPrefix(i == len(withdrawals)-1), w.Id, w.Status, w.Amount.String())
		}
		return nil
	case "add-account":
		account, err := svc.AddBankAccount(ctx, &models.BankAccount{
			UserId:         req.userId,
			BankCode:       req.bankCode,
			BankName:       req.bankName,
			Branch:         req.branch,
			AccountNumber:  req.accountNumber,
			HolderName:     req.holderName,
			HolderDocument: req.holderDoc,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Bank account %s added (default: %t)\n", account.Id, account.IsDefault)
		return nil
	case "list-accounts":
		accounts, err := svc.ListBankAccounts(ctx, req.userId)
		if err != nil {
			return err
		}
		fmt.Printf("\n%d bank account(s) for %s\n", len(accounts), req.userId)
		for i := range accounts {
			a := &accounts[i]
			marker := ""
			if a.IsDefault {
				marker = " (default)"
			}
			fmt.Printf("%s %s  %s %s %s%s\n",
				common.BoxPrefix(i == len(accounts)-1), a.Id, a.BankCode, a.Branch, a.AccountNumber, marker)
		}
		return nil
	case "delete-account":
		if err := svc.DeleteBankAccount(ctx, req.bankAccountId, req.userId); err != nil {
			return err
		}
		fmt.Printf("Bank account %s deleted\n", req.bankAccountId)
		return nil
	case "transfer-result":
		// Manual stand-in for the gateway's transfer status callback.
		if err := svc.HandleTransferResult(ctx, req.withdrawalId, req.transferId,
			gateway.Status(req.status), req.reason); err != nil {
			return err
		}
		w, err := svc.GetById(ctx, req.withdrawalId)
		if err != nil {
			return err
		}
		printWithdrawal(w)
		return nil
	}
	return fmt.Errorf("unknown action %q", req.action)
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		flag.Usage()
		logger.Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader(fmt.Sprintf("Withdrawal - %s", req.action), common.DefaultWidth)

	if err := runAction(ctx, services.WithdrawalService, req); err != nil {
		logger.Fatal("Withdrawal operation failed",
			zap.String("action", req.action),
			zap.Error(err))
	}

	common.PrintFooter("Done", common.DefaultWidth)
}
