package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-settlement-go/internal/booking"
	"booking-settlement-go/internal/database"
	"booking-settlement-go/internal/gateway"
	"booking-settlement-go/internal/ledger"
	"booking-settlement-go/internal/models"
	"booking-settlement-go/internal/notify"
	"booking-settlement-go/internal/payment"
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

type schedulerFixture struct {
	scheduler *Scheduler
	db        *database.Service
	notifier  *recordingNotifier
}

func setupScheduler(t *testing.T, settlement models.SettlementConfig) (*schedulerFixture, func()) {
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

	notifier := &recordingNotifier{}
	policy := ledger.DefaultRefundPolicy()
	bookingService := booking.NewService(dbService, notifier, settlement, policy)
	paymentService := payment.NewService(dbService, &gateway.Fake{}, notifier, settlement, policy)

	scheduler := New(Config{
		Store:          dbService,
		BookingService: bookingService,
		PaymentService: paymentService,
		Notifier:       notifier,
		Settlement:     settlement,
		Scheduler: models.SchedulerConfig{
			HourlyInterval: time.Hour,
			DailyInterval:  24 * time.Hour,
			WeeklyInterval: 7 * 24 * time.Hour,
		},
	})

	fixture := &schedulerFixture{scheduler: scheduler, db: dbService, notifier: notifier}
	cleanup := func() {
		db.Close()
	}
	return fixture, cleanup
}

// seedPaidCompleted walks a booking to completed with its payment held in
// escrow until releaseDate, and returns the payment id.
func seedPaidCompleted(t *testing.T, f *schedulerFixture, releaseDate time.Time) string {
	t.Helper()
	ctx := context.Background()
	b, p, err := f.db.CreateBookingWithPayment(ctx, store.CreateBookingParams{
		ServiceId:   "svc1",
		ClientId:    "client1",
		ProviderId:  "provider1",
		BookingDate: time.Now().UTC().Add(-48 * time.Hour),
		TotalPrice:  decimal.NewFromInt(200),
		ServiceFee:  decimal.NewFromInt(20),
		NetAmount:   decimal.NewFromInt(180),
	})
	if err != nil {
		t.Fatalf("CreateBookingWithPayment failed: %v", err)
	}
	if err := f.db.AcceptBooking(ctx, b.Id); err != nil {
		t.Fatalf("AcceptBooking failed: %v", err)
	}
	if err := f.db.MarkPaymentPaid(ctx, p.Id, models.PaymentMethodCard, "gw-"+p.Id); err != nil {
		t.Fatalf("MarkPaymentPaid failed: %v", err)
	}
	if err := f.db.CompleteBooking(ctx, b.Id, time.Now().UTC(), releaseDate); err != nil {
		t.Fatalf("CompleteBooking failed: %v", err)
	}
	return p.Id
}

func TestRunHourly_AutoCancelsStalePending(t *testing.T) {
	// A negative response window makes the just-created booking stale.
	f, cleanup := setupScheduler(t, models.SettlementConfig{
		PlatformFeeRate: decimal.RequireFromString("0.10"),
		EscrowHoldDays:  15,
		AutoCancelAfter: -time.Minute,
	})
	defer cleanup()

	ctx := context.Background()
	b, p, err := f.db.CreateBookingWithPayment(ctx, store.CreateBookingParams{
		ServiceId:   "svc1",
		ClientId:    "client1",
		ProviderId:  "provider1",
		BookingDate: time.Now().UTC().Add(30 * time.Minute),
		TotalPrice:  decimal.NewFromInt(200),
		ServiceFee:  decimal.NewFromInt(20),
		NetAmount:   decimal.NewFromInt(180),
	})
	if err != nil {
		t.Fatalf("CreateBookingWithPayment failed: %v", err)
	}
	if err := f.db.MarkPaymentPaid(ctx, p.Id, models.PaymentMethodPix, "gw-1"); err != nil {
		t.Fatalf("MarkPaymentPaid failed: %v", err)
	}

	f.scheduler.RunHourly(ctx)

	stored, err := f.db.GetBookingById(ctx, b.Id)
	if err != nil {
		t.Fatalf("GetBookingById failed: %v", err)
	}
	if stored.Status != models.BookingStatusCancelled {
		t.Errorf("Expected booking cancelled, got %s", stored.Status)
	}
	if stored.CancelledBy != models.SystemActor {
		t.Errorf("Expected cancelled_by system, got %s", stored.CancelledBy)
	}

	// System cancellation refunds in full even inside the late window.
	payment, err := f.db.GetPaymentById(ctx, p.Id)
	if err != nil {
		t.Fatalf("GetPaymentById failed: %v", err)
	}
	if payment.Status != models.PaymentStatusRefunded {
		t.Errorf("Expected payment refunded, got %s", payment.Status)
	}
	if payment.RefundAmount == nil || !payment.RefundAmount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected full refund 200, got %v", payment.RefundAmount)
	}

	// A re-run finds nothing left to cancel.
	f.scheduler.RunHourly(ctx)
	if f.notifier.count(notify.TypeBookingCancelled) != 1 {
		t.Errorf("Expected 1 cancellation notification, got %d", f.notifier.count(notify.TypeBookingCancelled))
	}
}

func TestRunDaily_ReleasesMaturedEscrow(t *testing.T) {
	f, cleanup := setupScheduler(t, models.SettlementConfig{
		PlatformFeeRate: decimal.RequireFromString("0.10"),
		EscrowHoldDays:  15,
		AutoCancelAfter: 24 * time.Hour,
		ReminderWindow:  24 * time.Hour,
	})
	defer cleanup()

	ctx := context.Background()
	seedPaidCompleted(t, f, time.Now().UTC().Add(-time.Hour))
	seedPaidCompleted(t, f, time.Now().UTC().Add(-2*time.Hour))
	seedPaidCompleted(t, f, time.Now().UTC().AddDate(0, 0, 15))

	f.scheduler.RunDaily(ctx)

	balance, err := f.db.GetUserBalance(ctx, "provider1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(360)) {
		t.Errorf("Expected two releases crediting 360, got %s", balance.String())
	}

	// Idempotent: a second run releases nothing more.
	f.scheduler.RunDaily(ctx)
	balance, err = f.db.GetUserBalance(ctx, "provider1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(360)) {
		t.Errorf("Expected balance to stay 360, got %s", balance.String())
	}
	if f.notifier.count(notify.TypeFundsReleased) != 2 {
		t.Errorf("Expected 2 release notifications, got %d", f.notifier.count(notify.TypeFundsReleased))
	}
}

// releaseFailingStore fails the release of one payment and delegates
// everything else.
type releaseFailingStore struct {
	store.Store
	failPaymentId string
}

func (s *releaseFailingStore) ReleaseFunds(ctx context.Context, paymentId string, now time.Time) (*store.ReleaseResult, error) {
	if paymentId == s.failPaymentId {
		return nil, errors.New("disk I/O error")
	}
	return s.Store.ReleaseFunds(ctx, paymentId, now)
}

func TestRunDaily_ReleaseFailureDoesNotStopBatch(t *testing.T) {
	settlement := models.SettlementConfig{
		PlatformFeeRate: decimal.RequireFromString("0.10"),
		EscrowHoldDays:  15,
		AutoCancelAfter: 24 * time.Hour,
		ReminderWindow:  24 * time.Hour,
	}
	f, cleanup := setupScheduler(t, settlement)
	defer cleanup()

	ctx := context.Background()
	// The failing payment matures first, so the batch hits it before the
	// healthy one.
	failingId := seedPaidCompleted(t, f, time.Now().UTC().Add(-2*time.Hour))
	healthyId := seedPaidCompleted(t, f, time.Now().UTC().Add(-time.Hour))

	wrapped := &releaseFailingStore{Store: f.db, failPaymentId: failingId}
	policy := ledger.DefaultRefundPolicy()
	sched := New(Config{
		Store:          wrapped,
		BookingService: booking.NewService(wrapped, f.notifier, settlement, policy),
		PaymentService: payment.NewService(wrapped, &gateway.Fake{}, f.notifier, settlement, policy),
		Notifier:       f.notifier,
		Settlement:     settlement,
		Scheduler: models.SchedulerConfig{
			HourlyInterval: time.Hour,
			DailyInterval:  24 * time.Hour,
			WeeklyInterval: 7 * 24 * time.Hour,
		},
	})

	sched.RunDaily(ctx)

	healthy, err := f.db.GetPaymentById(ctx, healthyId)
	if err != nil {
		t.Fatalf("GetPaymentById failed: %v", err)
	}
	if healthy.Status != models.PaymentStatusReleased {
		t.Errorf("Expected healthy payment released, got %s", healthy.Status)
	}

	failing, err := f.db.GetPaymentById(ctx, failingId)
	if err != nil {
		t.Fatalf("GetPaymentById failed: %v", err)
	}
	if failing.Status != models.PaymentStatusPaid || failing.ReleasedAt != nil {
		t.Errorf("Expected failing payment untouched, got status %s released_at %v",
			failing.Status, failing.ReleasedAt)
	}

	balance, err := f.db.GetUserBalance(ctx, "provider1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(180)) {
		t.Errorf("Expected a single release crediting 180, got %s", balance.String())
	}
	if f.notifier.count(notify.TypeFundsReleased) != 1 {
		t.Errorf("Expected 1 release notification, got %d", f.notifier.count(notify.TypeFundsReleased))
	}
}

func TestRunDaily_SendsReminders(t *testing.T) {
	f, cleanup := setupScheduler(t, models.SettlementConfig{
		PlatformFeeRate: decimal.RequireFromString("0.10"),
		EscrowHoldDays:  15,
		AutoCancelAfter: 24 * time.Hour,
		ReminderWindow:  24 * time.Hour,
	})
	defer cleanup()

	ctx := context.Background()
	b, _, err := f.db.CreateBookingWithPayment(ctx, store.CreateBookingParams{
		ServiceId:   "svc1",
		ClientId:    "client1",
		ProviderId:  "provider1",
		BookingDate: time.Now().UTC().Add(6 * time.Hour),
		TotalPrice:  decimal.NewFromInt(200),
		ServiceFee:  decimal.NewFromInt(20),
		NetAmount:   decimal.NewFromInt(180),
	})
	if err != nil {
		t.Fatalf("CreateBookingWithPayment failed: %v", err)
	}
	if err := f.db.AcceptBooking(ctx, b.Id); err != nil {
		t.Fatalf("AcceptBooking failed: %v", err)
	}

	f.scheduler.RunDaily(ctx)

	if f.notifier.count(notify.TypeBookingReminder) != 2 {
		t.Errorf("Expected reminders to both parties, got %d", f.notifier.count(notify.TypeBookingReminder))
	}
}

func TestRunWeekly_PurgesReadNotifications(t *testing.T) {
	f, cleanup := setupScheduler(t, models.SettlementConfig{
		NotificationMaxAge: -time.Minute,
	})
	defer cleanup()

	ctx := context.Background()
	read := models.Notification{UserId: "client1", Type: "booking_created", Title: "t", Message: "m"}
	if err := f.db.InsertNotification(ctx, &read); err != nil {
		t.Fatalf("InsertNotification failed: %v", err)
	}
	if err := f.db.MarkNotificationRead(ctx, read.Id); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}
	unread := models.Notification{UserId: "client1", Type: "booking_created", Title: "t", Message: "m"}
	if err := f.db.InsertNotification(ctx, &unread); err != nil {
		t.Fatalf("InsertNotification failed: %v", err)
	}

	// A negative retention puts the cutoff in the future: everything read is
	// purgeable, unread rows never are.
	f.scheduler.RunWeekly(ctx)

	purged, err := f.db.PurgeReadNotifications(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeReadNotifications failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("Expected weekly job to have already purged the read notification, got %d more", purged)
	}
}
