package payment

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-settlement-go/internal/database"
	"booking-settlement-go/internal/gateway"
	"booking-settlement-go/internal/ledger"
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

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

type paymentFixture struct {
	service  *Service
	db       *database.Service
	gateway  *gateway.Fake
	notifier *recordingNotifier
	booking  *models.Booking
	payment  *models.Payment
}

func setupPaymentService(t *testing.T, bookingDate time.Time) (*paymentFixture, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	dbService := database.NewServiceWithDB(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	ctx := context.Background()
	users := []models.User{
		{Id: "client1", Name: "Test Client", Email: "client@example.com"},
		{Id: "provider1", Name: "Test Provider", Email: "provider@example.com"},
	}
	for i := range users {
		if err := dbService.InsertUser(ctx, &users[i]); err != nil {
			t.Fatalf("Failed to insert test user: %v", err)
		}
	}
	svc := models.Service{Id: "svc1", ProviderId: "provider1", Title: "House Cleaning", Price: decimal.NewFromInt(200), Active: true}
	if err := dbService.InsertService(ctx, &svc); err != nil {
		t.Fatalf("Failed to insert test service: %v", err)
	}

	booking, payment, err := dbService.CreateBookingWithPayment(ctx, store.CreateBookingParams{
		ServiceId:   "svc1",
		ClientId:    "client1",
		ProviderId:  "provider1",
		BookingDate: bookingDate,
		TotalPrice:  decimal.NewFromInt(200),
		ServiceFee:  decimal.NewFromInt(20),
		NetAmount:   decimal.NewFromInt(180),
	})
	if err != nil {
		t.Fatalf("CreateBookingWithPayment failed: %v", err)
	}

	fakeGateway := &gateway.Fake{}
	notifier := &recordingNotifier{}
	cfg := models.SettlementConfig{
		PlatformFeeRate:      decimal.RequireFromString("0.10"),
		EscrowHoldDays:       15,
		DisputeExtensionDays: 30,
	}
	service := NewService(dbService, fakeGateway, notifier, cfg, ledger.DefaultRefundPolicy())

	fixture := &paymentFixture{
		service:  service,
		db:       dbService,
		gateway:  fakeGateway,
		notifier: notifier,
		booking:  booking,
		payment:  payment,
	}
	cleanup := func() {
		db.Close()
	}
	return fixture, cleanup
}

func TestCapture_CardApproved(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(48*time.Hour))
	defer cleanup()

	payment, err := f.service.Capture(context.Background(), CaptureParams{
		BookingId: f.booking.Id,
		ActorId:   "client1",
		Method:    models.PaymentMethodCard,
		Card:      gateway.CardDetails{Number: "4111111111111111", HolderName: "Test Client", CVV: "123"},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if payment.Status != models.PaymentStatusPaid {
		t.Errorf("Expected status paid, got %s", payment.Status)
	}
	if payment.PaymentMethod != models.PaymentMethodCard {
		t.Errorf("Expected method card, got %s", payment.PaymentMethod)
	}
	if f.notifier.count(notify.TypePaymentReceived) != 1 {
		t.Errorf("Expected 1 payment_received notification, got %d", f.notifier.count(notify.TypePaymentReceived))
	}
}

func TestCapture_CardDeclined(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(48*time.Hour))
	defer cleanup()

	f.gateway.CaptureStatus = gateway.StatusDeclined
	_, err := f.service.Capture(context.Background(), CaptureParams{
		BookingId: f.booking.Id,
		ActorId:   "client1",
		Method:    models.PaymentMethodCard,
		Card:      gateway.CardDetails{Number: "4111111111111111", CVV: "123"},
	})
	if !errors.Is(err, store.ErrPaymentProcessingFailed) {
		t.Fatalf("Expected ErrPaymentProcessingFailed, got %v", err)
	}

	stored, err := f.db.GetPaymentById(context.Background(), f.payment.Id)
	if err != nil {
		t.Fatalf("GetPaymentById failed: %v", err)
	}
	if stored.Status != models.PaymentStatusFailed {
		t.Errorf("Expected payment failed after decline, got %s", stored.Status)
	}
}

func TestCapture_PixStaysPending(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(48*time.Hour))
	defer cleanup()

	payment, err := f.service.Capture(context.Background(), CaptureParams{
		BookingId: f.booking.Id,
		ActorId:   "client1",
		Method:    models.PaymentMethodPix,
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if payment.Status != models.PaymentStatusPending {
		t.Errorf("Expected pix capture to stay pending, got %s", payment.Status)
	}
	if payment.PixCode == "" {
		t.Error("Expected pix code to be stored")
	}
	if payment.GatewayTransactionId == "" {
		t.Error("Expected gateway reference to be stored")
	}
	if f.notifier.count(notify.TypePaymentReceived) != 0 {
		t.Error("Expected no provider notification before settlement")
	}
}

func TestCapture_Authorization(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(48*time.Hour))
	defer cleanup()

	_, err := f.service.Capture(context.Background(), CaptureParams{
		BookingId: f.booking.Id,
		ActorId:   "provider1",
		Method:    models.PaymentMethodPix,
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Errorf("Expected ErrForbidden for non-client capture, got %v", err)
	}

	_, err = f.service.Capture(context.Background(), CaptureParams{
		BookingId: f.booking.Id,
		ActorId:   "client1",
		Method:    "cash",
	})
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for unsupported method, got %v", err)
	}
}

func TestCheckStatus_ReconcilesOnce(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(48*time.Hour))
	defer cleanup()

	ctx := context.Background()
	if _, err := f.service.Capture(ctx, CaptureParams{
		BookingId: f.booking.Id,
		ActorId:   "client1",
		Method:    models.PaymentMethodPix,
	}); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	// The pix charge settles on the gateway side.
	f.gateway.StatusByTxId = map[string]gateway.Status{
		"fake-pix-" + f.payment.Id: gateway.StatusApproved,
	}

	payment, err := f.service.CheckStatus(ctx, f.payment.Id, "client1")
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if payment.Status != models.PaymentStatusPaid {
		t.Errorf("Expected reconciliation to paid, got %s", payment.Status)
	}

	// A second poll must not re-notify.
	if _, err := f.service.CheckStatus(ctx, f.payment.Id, "provider1"); err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if f.notifier.count(notify.TypePaymentReceived) != 1 {
		t.Errorf("Expected exactly 1 provider notification, got %d", f.notifier.count(notify.TypePaymentReceived))
	}
}

func TestCheckStatus_PartyOnly(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(48*time.Hour))
	defer cleanup()

	_, err := f.service.CheckStatus(context.Background(), f.payment.Id, "stranger")
	if !errors.Is(err, store.ErrForbidden) {
		t.Errorf("Expected ErrForbidden for non-party check, got %v", err)
	}
}

func TestRequestRefund(t *testing.T) {
	// Booking 30h out: cancellation lands in the 100% tier.
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(30*time.Hour))
	defer cleanup()

	ctx := context.Background()
	if err := f.db.MarkPaymentPaid(ctx, f.payment.Id, models.PaymentMethodCard, "gw-1"); err != nil {
		t.Fatalf("MarkPaymentPaid failed: %v", err)
	}
	err := f.db.CancelBooking(ctx, store.CancelBookingParams{
		BookingId:   f.booking.Id,
		ActorId:     "client1",
		Reason:      "changed plans",
		CancelledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}

	payment, err := f.service.RequestRefund(ctx, f.payment.Id, "client1", "changed plans")
	if err != nil {
		t.Fatalf("RequestRefund failed: %v", err)
	}
	if payment.Status != models.PaymentStatusRefunded {
		t.Errorf("Expected status refunded, got %s", payment.Status)
	}
	if payment.RefundAmount == nil || !payment.RefundAmount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected full refund 200, got %v", payment.RefundAmount)
	}
	if len(f.gateway.RefundCalls) != 1 {
		t.Errorf("Expected 1 gateway refund call, got %d", len(f.gateway.RefundCalls))
	}
}

func TestRequestRefund_GatewayFailureLeavesPaid(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(30*time.Hour))
	defer cleanup()

	ctx := context.Background()
	if err := f.db.MarkPaymentPaid(ctx, f.payment.Id, models.PaymentMethodCard, "gw-1"); err != nil {
		t.Fatalf("MarkPaymentPaid failed: %v", err)
	}
	err := f.db.CancelBooking(ctx, store.CancelBookingParams{
		BookingId:   f.booking.Id,
		ActorId:     "client1",
		CancelledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}

	f.gateway.RefundErr = &gateway.Error{Code: "timeout", Message: "gateway timed out"}
	_, err = f.service.RequestRefund(ctx, f.payment.Id, "client1", "changed plans")
	if !errors.Is(err, store.ErrPaymentProcessingFailed) {
		t.Fatalf("Expected ErrPaymentProcessingFailed, got %v", err)
	}

	stored, err := f.db.GetPaymentById(ctx, f.payment.Id)
	if err != nil {
		t.Fatalf("GetPaymentById failed: %v", err)
	}
	if stored.Status != models.PaymentStatusPaid {
		t.Errorf("Expected payment to remain paid for retry, got %s", stored.Status)
	}
}

func TestRequestRefund_GatewayTimeoutReconciled(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(30*time.Hour))
	defer cleanup()

	ctx := context.Background()
	if err := f.db.MarkPaymentPaid(ctx, f.payment.Id, models.PaymentMethodCard, "gw-1"); err != nil {
		t.Fatalf("MarkPaymentPaid failed: %v", err)
	}
	err := f.db.CancelBooking(ctx, store.CancelBookingParams{
		BookingId:   f.booking.Id,
		ActorId:     "client1",
		CancelledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}

	// The refund call times out but the gateway actually processed it.
	f.gateway.RefundErr = &gateway.Error{Code: "timeout", Message: "gateway timed out"}
	f.gateway.StatusByTxId = map[string]gateway.Status{"gw-1": gateway.StatusRefunded}

	payment, err := f.service.RequestRefund(ctx, f.payment.Id, "client1", "changed plans")
	if err != nil {
		t.Fatalf("RequestRefund failed: %v", err)
	}
	if payment.Status != models.PaymentStatusRefunded {
		t.Errorf("Expected reconciled refund, got %s", payment.Status)
	}
}

func TestRequestRefund_NotEligible(t *testing.T) {
	// Booking 1h out: zero-refund tier.
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(time.Hour))
	defer cleanup()

	ctx := context.Background()
	if err := f.db.MarkPaymentPaid(ctx, f.payment.Id, models.PaymentMethodCard, "gw-1"); err != nil {
		t.Fatalf("MarkPaymentPaid failed: %v", err)
	}
	err := f.db.CancelBooking(ctx, store.CancelBookingParams{
		BookingId:   f.booking.Id,
		ActorId:     "client1",
		CancelledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}

	_, err = f.service.RequestRefund(ctx, f.payment.Id, "client1", "too late")
	if !errors.Is(err, store.ErrNotEligible) {
		t.Errorf("Expected ErrNotEligible, got %v", err)
	}
	if len(f.gateway.RefundCalls) != 0 {
		t.Errorf("Expected no gateway refund call, got %d", len(f.gateway.RefundCalls))
	}
}

func TestReleaseFunds_SecondCallIsNoOp(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(-48*time.Hour))
	defer cleanup()

	ctx := context.Background()
	if err := f.db.MarkPaymentPaid(ctx, f.payment.Id, models.PaymentMethodCard, "gw-1"); err != nil {
		t.Fatalf("MarkPaymentPaid failed: %v", err)
	}
	if err := f.db.AcceptBooking(ctx, f.booking.Id); err != nil {
		t.Fatalf("AcceptBooking failed: %v", err)
	}
	if err := f.db.CompleteBooking(ctx, f.booking.Id, time.Now().UTC(), time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("CompleteBooking failed: %v", err)
	}

	result, err := f.service.ReleaseFunds(ctx, f.payment.Id)
	if err != nil {
		t.Fatalf("ReleaseFunds failed: %v", err)
	}
	if result == nil || !result.NetAmount.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("Expected release of 180, got %v", result)
	}

	// At-least-once scheduler delivery: the retry is a silent no-op.
	result, err = f.service.ReleaseFunds(ctx, f.payment.Id)
	if err != nil {
		t.Fatalf("Second ReleaseFunds failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result on no-op release, got %v", result)
	}

	balance, err := f.db.GetUserBalance(ctx, "provider1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(180)) {
		t.Errorf("Expected single credit of 180, got %s", balance.String())
	}
	if f.notifier.count(notify.TypeFundsReleased) != 1 {
		t.Errorf("Expected 1 funds_released notification, got %d", f.notifier.count(notify.TypeFundsReleased))
	}
}

func TestFreezeForDispute(t *testing.T) {
	f, cleanup := setupPaymentService(t, time.Now().UTC().Add(-48*time.Hour))
	defer cleanup()

	ctx := context.Background()
	if err := f.db.MarkPaymentPaid(ctx, f.payment.Id, models.PaymentMethodCard, "gw-1"); err != nil {
		t.Fatalf("MarkPaymentPaid failed: %v", err)
	}
	if err := f.db.AcceptBooking(ctx, f.booking.Id); err != nil {
		t.Fatalf("AcceptBooking failed: %v", err)
	}
	if err := f.db.CompleteBooking(ctx, f.booking.Id, time.Now().UTC(), time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("CompleteBooking failed: %v", err)
	}

	if err := f.service.FreezeForDispute(ctx, f.payment.Id, "client1", "service not delivered"); err != nil {
		t.Fatalf("FreezeForDispute failed: %v", err)
	}

	stored, err := f.db.GetPaymentById(ctx, f.payment.Id)
	if err != nil {
		t.Fatalf("GetPaymentById failed: %v", err)
	}
	if stored.Status != models.PaymentStatusPaid {
		t.Errorf("Expected dispute freeze to keep status paid, got %s", stored.Status)
	}
	expected := time.Now().UTC().AddDate(0, 0, 30)
	if stored.EscrowReleaseDate == nil ||
		stored.EscrowReleaseDate.Before(expected.Add(-time.Minute)) ||
		stored.EscrowReleaseDate.After(expected.Add(time.Minute)) {
		t.Errorf("Expected escrow extended to about %v, got %v", expected, stored.EscrowReleaseDate)
	}
	if f.notifier.count(notify.TypeDisputeOpened) != 2 {
		t.Errorf("Expected dispute notifications to both parties, got %d", f.notifier.count(notify.TypeDisputeOpened))
	}

	// The extension pushed the payment out of the release predicate.
	if _, err := f.service.ReleaseFunds(ctx, f.payment.Id); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState releasing a frozen payment, got %v", err)
	}
}
