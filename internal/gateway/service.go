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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"booking-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service is the HTTP implementation of Client.
type Service struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

var _ Client = (*Service)(nil)

func NewService(cfg models.GatewayConfig) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   10 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConnsPerHost: 5,
	}

	return &Service{
		baseURL:    cfg.BaseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":")),
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   timeout,
		},
	}, nil
}

type chargeRequest struct {
	ReferenceId   string       `json:"reference_id"`
	Amount        int64        `json:"amount"`
	Method        string       `json:"method"`
	Card          *cardPayload `json:"card,omitempty"`
	Installments  int          `json:"installments,omitempty"`
	PayerDocument string       `json:"payer_document,omitempty"`
}

type cardPayload struct {
	Number      string `json:"number"`
	HolderName  string `json:"holder_name"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
}

type chargeResponse struct {
	TransactionId string     `json:"transaction_id"`
	Status        string     `json:"status"`
	PixCode       string     `json:"pix_code,omitempty"`
	PixQRCode     string     `json:"pix_qr_code,omitempty"`
	PixExpiresAt  *time.Time `json:"pix_expires_at,omitempty"`
	BoletoBarcode string     `json:"boleto_barcode,omitempty"`
	BoletoURL     string     `json:"boleto_url,omitempty"`
	BoletoDueDate *time.Time `json:"boleto_due_date,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

func (s *Service) CaptureCard(ctx context.Context, paymentId string, amount decimal.Decimal, card CardDetails) (*CaptureResult, error) {
	installments := card.Installments
	if installments <= 0 {
		installments = 1
	}
	return s.charge(ctx, chargeRequest{
		ReferenceId:  paymentId,
		Amount:       toMinorUnits(amount),
		Method:       models.PaymentMethodCard,
		Installments: installments,
		Card: &cardPayload{
			Number:      card.Number,
			HolderName:  card.HolderName,
			ExpiryMonth: card.ExpiryMonth,
			ExpiryYear:  card.ExpiryYear,
			CVV:         card.CVV,
		},
	})
}

func (s *Service) GeneratePix(ctx context.Context, paymentId string, amount decimal.Decimal) (*CaptureResult, error) {
	return s.charge(ctx, chargeRequest{
		ReferenceId: paymentId,
		Amount:      toMinorUnits(amount),
		Method:      models.PaymentMethodPix,
	})
}

func (s *Service) GenerateBoleto(ctx context.Context, paymentId string, amount decimal.Decimal, payerDocument string) (*CaptureResult, error) {
	return s.charge(ctx, chargeRequest{
		ReferenceId:   paymentId,
		Amount:        toMinorUnits(amount),
		Method:        models.PaymentMethodBoleto,
		PayerDocument: payerDocument,
	})
}

func (s *Service) charge(ctx context.Context, req chargeRequest) (*CaptureResult, error) {
	var resp chargeResponse
	if err := s.post(ctx, "/v1/charges", req, &resp); err != nil {
		return nil, err
	}

	return &CaptureResult{
		TransactionId: resp.TransactionId,
		Status:        Status(resp.Status),
		PixCode:       resp.PixCode,
		PixQRCode:     resp.PixQRCode,
		PixExpiresAt:  resp.PixExpiresAt,
		BoletoBarcode: resp.BoletoBarcode,
		BoletoURL:     resp.BoletoURL,
		BoletoDueDate: resp.BoletoDueDate,
	}, nil
}

func (s *Service) CheckStatus(ctx context.Context, transactionId string) (Status, error) {
	var resp chargeResponse
	if err := s.get(ctx, "/v1/charges/"+transactionId, &resp); err != nil {
		return "", err
	}
	return Status(resp.Status), nil
}

func (s *Service) Refund(ctx context.Context, transactionId string, amount decimal.Decimal) (*RefundResult, error) {
	req := map[string]interface{}{
		"amount": toMinorUnits(amount),
	}
	var resp struct {
		RefundId string `json:"refund_id"`
		Status   string `json:"status"`
	}
	if err := s.post(ctx, "/v1/charges/"+transactionId+"/refunds", req, &resp); err != nil {
		return nil, err
	}
	return &RefundResult{RefundId: resp.RefundId, Status: Status(resp.Status)}, nil
}

func (s *Service) Transfer(ctx context.Context, withdrawalId string, amount decimal.Decimal, account *models.BankAccount) (*TransferResult, error) {
	req := map[string]interface{}{
		"reference_id": withdrawalId,
		"amount":       toMinorUnits(amount),
		"bank_account": map[string]string{
			"bank_code":       account.BankCode,
			"branch":          account.Branch,
			"account_number":  account.AccountNumber,
			"holder_name":     account.HolderName,
			"holder_document": account.HolderDocument,
		},
	}
	var resp struct {
		TransferId    string `json:"transfer_id"`
		Status        string `json:"status"`
		FailureReason string `json:"failure_reason"`
	}
	if err := s.post(ctx, "/v1/transfers", req, &resp); err != nil {
		return nil, err
	}
	return &TransferResult{
		TransferId:    resp.TransferId,
		Status:        Status(resp.Status),
		FailureReason: resp.FailureReason,
	}, nil
}

func (s *Service) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("unable to marshal gateway request: %w", err)
	}
	return s.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (s *Service) get(ctx context.Context, path string, out interface{}) error {
	return s.do(ctx, http.MethodGet, path, nil, out)
}

func (s *Service) do(ctx context.Context, method, path string, body *bytes.Reader, out interface{}) error {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, nil)
	}
	if err != nil {
		return fmt.Errorf("unable to create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.authHeader)

	res, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			zap.L().Warn("Failed to close gateway response body", zap.Error(err))
		}
	}()

	if res.StatusCode >= 400 {
		var apiErr struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		}
		if decodeErr := json.NewDecoder(res.Body).Decode(&apiErr); decodeErr == nil && apiErr.ErrorCode != "" {
			return &Error{Code: apiErr.ErrorCode, Message: apiErr.ErrorMessage}
		}
		return &Error{Code: fmt.Sprintf("http_%d", res.StatusCode), Message: res.Status}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to decode gateway response: %w", err)
	}
	return nil
}
