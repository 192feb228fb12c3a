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
	"booking-settlement-go/internal/payment"

	"go.uber.org/zap"
)

type paymentRequest struct {
	action        string
	paymentId     string
	bookingId     string
	actorId       string
	method        string
	cardNumber    string
	cardHolder    string
	cardExpiry    string
	cardCVV       string
	installments  int
	payerDocument string
	reason        string
}

func parseAndValidateFlags() (*paymentRequest, error) {
	action := flag.String("action", "", "One of: capture, status, refund, release, freeze, get")
	paymentId := flag.String("payment", "", "Payment id")
	bookingId := flag.String("booking", "", "Booking id (capture)")
	actorId := flag.String("actor", "", "Acting user id")
	method := flag.String("method", "", "Payment method: card, pix or boleto (capture)")
	cardNumber := flag.String("card-number", "", "Card number (capture with --method card)")
	cardHolder := flag.String("card-holder", "", "Card holder name")
	cardExpiry := flag.String("card-expiry", "", "Card expiry as MM/YY")
	cardCVV := flag.String("card-cvv", "", "Card verification code")
	installments := flag.Int("installments", 1, "Card installments")
	payerDocument := flag.String("document", "", "Payer CPF/CNPJ (capture with --method boleto)")
	reason := flag.String("reason", "", "Refund or dispute reason")
	flag.Parse()

	req := &paymentRequest{
		action:        *action,
		paymentId:     *paymentId,
		bookingId:     *bookingId,
		actorId:       *actorId,
		method:        *method,
		cardNumber:    *cardNumber,
		cardHolder:    *cardHolder,
		cardCVV:       *cardCVV,
		installments:  *installments,
		payerDocument: *payerDocument,
		reason:        *reason,
	}

	if *cardExpiry != "" {
		if len(*cardExpiry) != 5 || (*cardExpiry)[2] != '/' {
			return nil, fmt.Errorf("invalid --card-expiry %q, expected MM/YY", *cardExpiry)
		}
		req.cardExpiry = *cardExpiry
	}

	switch req.action {
	case "capture":
		if req.bookingId == "" || req.actorId == "" || req.method == "" {
			return nil, fmt.Errorf("capture requires --booking, --actor and --method")
		}
	case "status", "refund", "freeze":
		if req.paymentId == "" || req.actorId == "" {
			return nil, fmt.Errorf("%s requires --payment and --actor", req.action)
		}
	case "release", "get":
		if req.paymentId == "" {
			return nil, fmt.Errorf("%s requires --payment", req.action)
		}
	default:
		return nil, fmt.Errorf("unknown --action %q", req.action)
	}

	return req, nil
}

func printPayment(p *models.Payment) {
	fmt.Printf("\nPayment:  %s\n", p.Id)
	fmt.Printf("Booking:  %s\n", p.BookingId)
	fmt.Printf("Status:   %s\n", p.Status)
	fmt.Printf("Amount:   %s (fee %s, net %s)\n",
		p.Amount.String(), p.ServiceFee.String(), p.NetAmount.String())
	if p.PaymentMethod != "" {
		fmt.Printf("Method:   %s\n", p.PaymentMethod)
	}
	if p.PixCode != "" {
		fmt.Printf("Pix code: %s\n", p.PixCode)
	}
	if p.BoletoURL != "" {
		fmt.Printf("Boleto:   %s\n", p.BoletoURL)
	}
	if p.EscrowReleaseDate != nil {
		fmt.Printf("Escrow:   releases %s\n", p.EscrowReleaseDate.Format("2006-01-02"))
	}
	if p.ReleasedAt != nil {
		fmt.Printf("Released: %s\n", p.ReleasedAt.Format("2006-01-02 15:04"))
	}
	if p.RefundAmount != nil {
		fmt.Printf("Refunded: %s\n", p.RefundAmount.String())
	}
	if p.DisputeReason != "" {
		fmt.Printf("Dispute:  %s\n", p.DisputeReason)
	}
}

func runAction(ctx context.Context, svc *payment.Service, req *paymentRequest) error {
	switch req.action {
	case "capture":
		var expiryMonth, expiryYear string
		if req.cardExpiry != "" {
			expiryMonth, expiryYear = req.cardExpiry[:2], req.cardExpiry[3:]
		}
		p, err := svc.Capture(ctx, payment.CaptureParams{
			BookingId: req.bookingId,
			ActorId:   req.actorId,
			Method:    req.method,
			Card: gateway.CardDetails{
				Number:       req.cardNumber,
				HolderName:   req.cardHolder,
				ExpiryMonth:  expiryMonth,
				ExpiryYear:   expiryYear,
				CVV:          req.cardCVV,
				Installments: req.installments,
			},
			PayerDocument: req.payerDocument,
		})
		if err != nil {
			return err
		}
		printPayment(p)
		return nil
	case "status":
		p, err := svc.CheckStatus(ctx, req.paymentId, req.actorId)
		if err != nil {
			return err
		}
		printPayment(p)
		return nil
	case "refund":
		p, err := svc.RequestRefund(ctx, req.paymentId, req.actorId, req.reason)
		if err != nil {
			return err
		}
		printPayment(p)
		return nil
	case "release":
		result, err := svc.ReleaseFunds(ctx, req.paymentId)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Printf("Payment %s was already released\n", req.paymentId)
			return nil
		}
		fmt.Printf("Released %s to provider, new balance %s\n",
			result.NetAmount.String(), result.NewBalance.String())
		return nil
	case "freeze":
		if err := svc.FreezeForDispute(ctx, req.paymentId, req.actorId, req.reason); err != nil {
			return err
		}
		fmt.Printf("Payment %s frozen for dispute\n", req.paymentId)
		return nil
	case "get":
		p, err := svc.GetById(ctx, req.paymentId)
		if err != nil {
			return err
		}
		printPayment(p)
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

	common.PrintHeader(fmt.Sprintf("Payment - %s", req.action), common.DefaultWidth)

	if err := runAction(ctx, services.PaymentService, req); err != nil {
		logger.Fatal("Payment operation failed",
			zap.String("action", req.action),
			zap.Error(err))
	}

	common.PrintFooter("Done", common.DefaultWidth)
}
