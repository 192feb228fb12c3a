package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"booking-settlement-go/internal/database"
	"booking-settlement-go/internal/gateway"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/notify"
	"booking-settlement-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Emit(ctx context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func setupWithdrawalService(t *testing.T) (*Service, *database.Service, *gateway.Fake, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	dbService := database.NewServiceWithDB(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	ctx := context.Background()
	provider := models.User{
		Id:      "provider1",
		Name:    "Test Provider",
		Email:   "provider@example.com",
		Balance: decimal.NewFromInt(500),
	}
	if err := dbService.InsertUser(ctx, &provider); err != nil {
		t.Fatalf("Failed to insert test user: %v", err)
	}
	account := models.BankAccount{
		Id:             "acct1",
		UserId:         "provider1",
		BankCode:       "341",
		BankName:       "Itau",
		Branch:         "0001",
		AccountNumber:  "12345-6",
		HolderName:     "Test Provider",
		HolderDocument: "123.456.789-00",
	}
	if err := dbService.AddBankAccount(ctx, &account); err != nil {
		t.Fatalf("Failed to insert test bank account: %v", err)
	}

	fakeGateway := &gateway.Fake{}
	cfg := models.SettlementConfig{
		MinWithdrawalAmount: decimal.RequireFromString("10.00"),
	}
	service := NewService(dbService, fakeGateway, &recordingNotifier{}, cfg)

	cleanup := func() {
		db.Close()
	}
	return service, dbService, fakeGateway, cleanup
}

func TestRequest(t *testing.T) {
	service, dbService, fakeGateway, cleanup := setupWithdrawalService(t)
	defer cleanup()

	ctx := context.Background()
	withdrawal, err := service.Request(ctx, "provider1", decimal.NewFromInt(200), "acct1")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	// The fake transfer answers pending, so the withdrawal moves to
	// processing with the transfer reference attached.
	if withdrawal.Status != models.WithdrawalStatusProcessing {
		t.Errorf("Expected status processing, got %s", withdrawal.Status)
	}
	if withdrawal.GatewayTransferId == "" {
		t.Error("Expected gateway transfer id to be stored")
	}
	if len(fakeGateway.TransferCalls) != 1 {
		t.Errorf("Expected 1 transfer call, got %d", len(fakeGateway.TransferCalls))
	}

	balance, err := dbService.GetUserBalance(ctx, "provider1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected balance 300 after debit, got %s", balance.String())
	}
}

func TestRequest_BelowMinimum(t *testing.T) {
	service, _, fakeGateway, cleanup := setupWithdrawalService(t)
	defer cleanup()

	_, err := service.Request(context.Background(), "provider1", decimal.RequireFromString("9.99"), "acct1")
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument below minimum, got %v", err)
	}
	if len(fakeGateway.TransferCalls) != 0 {
		t.Errorf("Expected no transfer call, got %d", len(fakeGateway.TransferCalls))
	}
}

func TestRequest_TransferInitiationFailureLeavesPending(t *testing.T) {
	service, dbService, fakeGateway, cleanup := setupWithdrawalService(t)
	defer cleanup()

	fakeGateway.TransferErr = &gateway.Error{Code: "unavailable", Message: "processor down"}
	withdrawal, err := service.Request(context.Background(), "provider1", decimal.NewFromInt(100), "acct1")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if withdrawal.Status != models.WithdrawalStatusPending {
		t.Errorf("Expected status pending after transfer error, got %s", withdrawal.Status)
	}

	// The debit stands until the transfer definitively fails.
	balance, err := dbService.GetUserBalance(context.Background(), "provider1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected balance 400, got %s", balance.String())
	}
}

func TestHandleTransferResult_Completed(t *testing.T) {
	service, dbService, _, cleanup := setupWithdrawalService(t)
	defer cleanup()

	ctx := context.Background()
	withdrawal, err := service.Request(ctx, "provider1", decimal.NewFromInt(200), "acct1")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	err = service.HandleTransferResult(ctx, withdrawal.Id, withdrawal.GatewayTransferId, gateway.StatusApproved, "")
	if err != nil {
		t.Fatalf("HandleTransferResult failed: %v", err)
	}

	stored, err := dbService.GetWithdrawalById(ctx, withdrawal.Id)
	if err != nil {
		t.Fatalf("GetWithdrawalById failed: %v", err)
	}
	if stored.Status != models.WithdrawalStatusCompleted {
		t.Errorf("Expected status completed, got %s", stored.Status)
	}

	balance, err := dbService.GetUserBalance(ctx, "provider1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected balance to stay 300, got %s", balance.String())
	}
}

func TestHandleTransferResult_FailureCreditsBack(t *testing.T) {
	service, dbService, _, cleanup := setupWithdrawalService(t)
	defer cleanup()

	ctx := context.Background()
	withdrawal, err := service.Request(ctx, "provider1", decimal.NewFromInt(200), "acct1")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	err = service.HandleTransferResult(ctx, withdrawal.Id, withdrawal.GatewayTransferId, gateway.StatusFailed, "account closed")
	if err != nil {
		t.Fatalf("HandleTransferResult failed: %v", err)
	}

	stored, err := dbService.GetWithdrawalById(ctx, withdrawal.Id)
	if err != nil {
		t.Fatalf("GetWithdrawalById failed: %v", err)
	}
	if stored.Status != models.WithdrawalStatusFailed {
		t.Errorf("Expected status failed, got %s", stored.Status)
	}
	if stored.FailureReason != "account closed" {
		t.Errorf("Expected failure reason recorded, got %q", stored.FailureReason)
	}

	balance, err := dbService.GetUserBalance(ctx, "provider1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected balance restored to 500, got %s", balance.String())
	}

	// A replayed callback is rejected by the status guard, not re-credited.
	err = service.HandleTransferResult(ctx, withdrawal.Id, withdrawal.GatewayTransferId, gateway.StatusFailed, "account closed")
	if !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on replay, got %v", err)
	}
}

func TestAddBankAccount_Validation(t *testing.T) {
	service, _, _, cleanup := setupWithdrawalService(t)
	defer cleanup()

	_, err := service.AddBankAccount(context.Background(), &models.BankAccount{UserId: "provider1"})
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for incomplete account, got %v", err)
	}

	account := &models.BankAccount{
		UserId:         "provider1",
		BankCode:       "001",
		BankName:       "Banco do Brasil",
		Branch:         "0002",
		AccountNumber:  "98765-4",
		HolderName:     "Test Provider",
		HolderDocument: "123.456.789-00",
	}
	added, err := service.AddBankAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("AddBankAccount failed: %v", err)
	}
	if added.Id == "" {
		t.Error("Expected generated account id")
	}
}
