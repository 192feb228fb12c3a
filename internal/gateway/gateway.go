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

package gateway

import (
	"context"
	"fmt"
	"time"

	"booking-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// Status is the processor-side state of a capture, refund or transfer.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusDeclined Status = "declined"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// Error is a processor-reported failure carrying the gateway's own code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// CardDetails is the card data forwarded for an immediate capture. It is
// never persisted.
type CardDetails struct {
	Number       string
	HolderName   string
	ExpiryMonth  string
	ExpiryYear   string
	CVV          string
	Installments int
}

// CaptureResult is the processor's answer to a capture or charge-generation
// request. Method-specific artifacts are set for pix and boleto charges.
type CaptureResult struct {
	TransactionId string
	Status        Status

	PixCode      string
	PixQRCode    string
	PixExpiresAt *time.Time

	BoletoBarcode string
	BoletoURL     string
	BoletoDueDate *time.Time
}

// RefundResult is the processor's answer to a refund request.
type RefundResult struct {
	RefundId string
	Status   Status
}

// TransferResult is the processor's answer to a bank payout request.
type TransferResult struct {
	TransferId    string
	Status        Status
	FailureReason string
}

// Client is the payment-processor boundary. Implementations must be safe for
// concurrent use.
type Client interface {
	// CaptureCard charges a card synchronously.
	CaptureCard(ctx context.Context, paymentId string, amount decimal.Decimal, card CardDetails) (*CaptureResult, error)
	// GeneratePix creates a pix charge; settlement is asynchronous.
	GeneratePix(ctx context.Context, paymentId string, amount decimal.Decimal) (*CaptureResult, error)
	// GenerateBoleto issues a boleto; settlement is asynchronous.
	GenerateBoleto(ctx context.Context, paymentId string, amount decimal.Decimal, payerDocument string) (*CaptureResult, error)
	// CheckStatus polls the processor for a transaction's current state.
	CheckStatus(ctx context.Context, transactionId string) (Status, error)
	// Refund returns captured funds to the payer.
	Refund(ctx context.Context, transactionId string, amount decimal.Decimal) (*RefundResult, error)
	// Transfer initiates a bank payout for a withdrawal.
	Transfer(ctx context.Context, withdrawalId string, amount decimal.Decimal, account *models.BankAccount) (*TransferResult, error)
}

// toMinorUnits converts a decimal BRL amount to integer centavos. The
// processor API only speaks minor units; everywhere else amounts stay
// decimal.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
