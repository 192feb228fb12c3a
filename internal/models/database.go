package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking statuses. Terminal: declined, completed, cancelled.
const (
	BookingStatusPending   = "pending"
	BookingStatusAccepted  = "accepted"
	BookingStatusDeclined  = "declined"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
)

// Payment statuses. Terminal: failed, refunded, released.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusPaid       = "paid"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusReleased   = "released"
)

// Withdrawal statuses. Terminal: completed, failed.
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
)

// Payment methods accepted at capture.
const (
	PaymentMethodCard   = "card"
	PaymentMethodPix    = "pix"
	PaymentMethodBoleto = "boleto"
)

// SystemActor is the actor id recorded on scheduler-driven transitions.
const SystemActor = "system"

// User represents a platform user. Balance is the provider's withdrawable
// funds; it is only ever mutated inside a release or withdrawal transaction.
type User struct {
	Id             string          `db:"id"`
	Name           string          `db:"name"`
	Email          string          `db:"email"`
	Balance        decimal.Decimal `db:"balance"`
	BalanceVersion int64           `db:"balance_version"`
	Active         bool            `db:"active"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Service represents a bookable service offered by a provider.
type Service struct {
	Id           string           `db:"id"`
	ProviderId   string           `db:"provider_id"`
	Title        string           `db:"title"`
	Price        decimal.Decimal  `db:"price"`
	HourlyRate   *decimal.Decimal `db:"hourly_rate"`
	MaxBookings  *int64           `db:"max_bookings"`
	BookingCount int64            `db:"booking_count"`
	Active       bool             `db:"active"`
	CreatedAt    time.Time        `db:"created_at"`
}

// Booking represents one reservation of a Service by a client.
type Booking struct {
	Id                 string          `db:"id"`
	ServiceId          string          `db:"service_id"`
	ClientId           string          `db:"client_id"`
	ProviderId         string          `db:"provider_id"`
	BookingDate        time.Time       `db:"booking_date"`
	EndDate            *time.Time      `db:"end_date"`
	TotalPrice         decimal.Decimal `db:"total_price"`
	Status             string          `db:"status"`
	Notes              string          `db:"notes"`
	Address            string          `db:"address"`
	CancellationReason string          `db:"cancellation_reason"`
	CancelledBy        string          `db:"cancelled_by"`
	CompletedAt        *time.Time      `db:"completed_at"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// IsTerminal reports whether no further booking transition is permitted.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case BookingStatusDeclined, BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// Payment represents the monetary side of exactly one booking.
type Payment struct {
	Id                   string          `db:"id"`
	BookingId            string          `db:"booking_id"`
	Amount               decimal.Decimal `db:"amount"`
	ServiceFee           decimal.Decimal `db:"service_fee"`
	NetAmount            decimal.Decimal `db:"net_amount"`
	Status               string          `db:"status"`
	PaymentMethod        string          `db:"payment_method"`
	GatewayTransactionId string          `db:"gateway_transaction_id"`

	// Method-specific artifacts returned by the gateway for deferred
	// settlement methods.
	PixCode       string     `db:"pix_code"`
	PixQRCode     string     `db:"pix_qr_code"`
	PixExpiresAt  *time.Time `db:"pix_expires_at"`
	BoletoBarcode string     `db:"boleto_barcode"`
	BoletoURL     string     `db:"boleto_url"`
	BoletoDueDate *time.Time `db:"boleto_due_date"`

	EscrowReleaseDate *time.Time       `db:"escrow_release_date"`
	ReleasedAt        *time.Time       `db:"released_at"`
	RefundAmount      *decimal.Decimal `db:"refund_amount"`
	RefundedAt        *time.Time       `db:"refunded_at"`
	DisputeReason     string           `db:"dispute_reason"`
	CreatedAt         time.Time        `db:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at"`
}

// Withdrawal represents a provider's request to move settled balance to a
// bank account. The balance is debited when the row is created; a failed
// transfer credits it back.
type Withdrawal struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	Amount            decimal.Decimal `db:"amount"`
	BankAccountId     string          `db:"bank_account_id"`
	Status            string          `db:"status"`
	FailureReason     string          `db:"failure_reason"`
	GatewayTransferId string          `db:"gateway_transfer_id"`
	CreatedAt         time.Time       `db:"created_at"`
	ProcessedAt       *time.Time      `db:"processed_at"`
}

// BankAccount is a withdrawal destination owned by exactly one user.
type BankAccount struct {
	Id             string    `db:"id"`
	UserId         string    `db:"user_id"`
	BankCode       string    `db:"bank_code"`
	BankName       string    `db:"bank_name"`
	Branch         string    `db:"branch"`
	AccountNumber  string    `db:"account_number"`
	HolderName     string    `db:"holder_name"`
	HolderDocument string    `db:"holder_document"`
	IsDefault      bool      `db:"is_default"`
	CreatedAt      time.Time `db:"created_at"`
}

// Notification is an emitted notification request; delivery is external.
type Notification struct {
	Id        string    `db:"id"`
	UserId    string    `db:"user_id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}
