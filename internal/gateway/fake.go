package gateway

import (
	"context"
	"sync"

	"booking-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// Fake is a scripted in-memory Client for tests. Zero value approves
// everything with generated-looking identifiers.
type Fake struct {
	mu sync.Mutex

	CaptureStatus  Status
	CaptureErr     error
	StatusByTxId   map[string]Status
	RefundStatus   Status
	RefundErr      error
	TransferStatus Status
	TransferErr    error
	FailureReason  string

	CaptureCalls  []string
	RefundCalls   []string
	TransferCalls []string
}

var _ Client = (*Fake)(nil)

func (f *Fake) captureStatus() Status {
	if f.CaptureStatus == "" {
		return StatusApproved
	}
	return f.CaptureStatus
}

func (f *Fake) CaptureCard(ctx context.Context, paymentId string, amount decimal.Decimal, card CardDetails) (*CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	f.CaptureCalls = append(f.CaptureCalls, paymentId)
	return &CaptureResult{
		TransactionId: "fake-card-" + paymentId,
		Status:        f.captureStatus(),
	}, nil
}

func (f *Fake) GeneratePix(ctx context.Context, paymentId string, amount decimal.Decimal) (*CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	f.CaptureCalls = append(f.CaptureCalls, paymentId)
	status := f.CaptureStatus
	if status == "" {
		status = StatusPending
	}
	return &CaptureResult{
		TransactionId: "fake-pix-" + paymentId,
		Status:        status,
		PixCode:       "00020126fakepixcode",
		PixQRCode:     "data:image/png;base64,fakeqr",
	}, nil
}

func (f *Fake) GenerateBoleto(ctx context.Context, paymentId string, amount decimal.Decimal, payerDocument string) (*CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	f.CaptureCalls = append(f.CaptureCalls, paymentId)
	status := f.CaptureStatus
	if status == "" {
		status = StatusPending
	}
	return &CaptureResult{
		TransactionId: "fake-boleto-" + paymentId,
		Status:        status,
		BoletoBarcode: "34191790010104351004791020150008291070026000",
		BoletoURL:     "https://gateway.example/boletos/" + paymentId,
	}, nil
}

func (f *Fake) CheckStatus(ctx context.Context, transactionId string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status, ok := f.StatusByTxId[transactionId]; ok {
		return status, nil
	}
	return f.captureStatus(), nil
}

func (f *Fake) Refund(ctx context.Context, transactionId string, amount decimal.Decimal) (*RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	f.RefundCalls = append(f.RefundCalls, transactionId)
	status := f.RefundStatus
	if status == "" {
		status = StatusRefunded
	}
	return &RefundResult{RefundId: "fake-refund-" + transactionId, Status: status}, nil
}

func (f *Fake) Transfer(ctx context.Context, withdrawalId string, amount decimal.Decimal, account *models.BankAccount) (*TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransferErr != nil {
		return nil, f.TransferErr
	}
	f.TransferCalls = append(f.TransferCalls, withdrawalId)
	status := f.TransferStatus
	if status == "" {
		status = StatusPending
	}
	return &TransferResult{
		TransferId:    "fake-transfer-" + withdrawalId,
		Status:        status,
		FailureReason: f.FailureReason,
	}, nil
}
