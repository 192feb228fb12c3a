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

package database

const (
	// User queries
	queryGetUserById = `
		SELECT id, name, email, balance, balance_version, active, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email, balance, balance_version) VALUES (?, ?, ?, ?, 1)`

	queryGetUserBalance = `
		SELECT balance, balance_version
		FROM users
		WHERE id = ?`

	queryUpdateUserBalance = `
		UPDATE users
		SET balance = ?, balance_version = balance_version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND balance_version = ?`

	// Service queries
	queryGetServiceById = `
		SELECT id, provider_id, title, price, hourly_rate, max_bookings, booking_count, active, created_at
		FROM services
		WHERE id = ?`

	queryInsertService = `
		INSERT INTO services (id, provider_id, title, price, hourly_rate, max_bookings, booking_count, active)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`

	queryAdjustServiceBookingCount = `
		UPDATE services
		SET booking_count = booking_count + ?
		WHERE id = ?`

	// Booking queries
	bookingColumns = `id, service_id, client_id, provider_id, booking_date, end_date, total_price, status,
		notes, address, cancellation_reason, cancelled_by, completed_at, created_at, updated_at`

	// Only non-terminal bookings hold a capacity slot.
	queryCountActiveBookingsForDay = `
		SELECT COUNT(*)
		FROM bookings
		WHERE service_id = ?
		  AND status IN ('pending', 'accepted')
		  AND date(booking_date) = date(?)`

	queryInsertBooking = `
		INSERT INTO bookings (id, service_id, client_id, provider_id, booking_date, end_date,
			total_price, status, notes, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)`

	queryGetBookingById = `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE id = ?`

	queryListBookingsByClient = `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE client_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryListBookingsByProvider = `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE provider_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryAcceptBooking = `
		UPDATE bookings
		SET status = 'accepted', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`

	queryDeclineBooking = `
		UPDATE bookings
		SET status = 'declined', cancellation_reason = ?, cancelled_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`

	queryCompleteBooking = `
		UPDATE bookings
		SET status = 'completed', completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'accepted'`

	queryCancelBooking = `
		UPDATE bookings
		SET status = 'cancelled', cancellation_reason = ?, cancelled_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'accepted')`

	queryStalePendingBookings = `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND created_at < ?
		ORDER BY created_at`

	queryUpcomingAcceptedBookings = `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'accepted' AND booking_date >= ? AND booking_date < ?
		ORDER BY booking_date`

	// Payment queries
	paymentColumns = `id, booking_id, amount, service_fee, net_amount, status, payment_method,
		gateway_transaction_id, pix_code, pix_qr_code, pix_expires_at, boleto_barcode, boleto_url,
		boleto_due_date, escrow_release_date, released_at, refund_amount, refunded_at, dispute_reason,
		created_at, updated_at`

	queryInsertPayment = `
		INSERT INTO payments (id, booking_id, amount, service_fee, net_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`

	queryGetPaymentById = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = ?`

	queryGetPaymentByBookingId = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = ?`

	queryMarkPaymentPaid = `
		UPDATE payments
		SET status = 'paid',
			payment_method = CASE WHEN ? != '' THEN ? ELSE payment_method END,
			gateway_transaction_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'processing')`

	querySetPaymentArtifacts = `
		UPDATE payments
		SET payment_method = ?, gateway_transaction_id = ?, pix_code = ?, pix_qr_code = ?, pix_expires_at = ?,
			boleto_barcode = ?, boleto_url = ?, boleto_due_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`

	queryMarkPaymentFailed = `
		UPDATE payments
		SET status = 'failed', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'processing')`

	queryMarkPaymentRefunded = `
		UPDATE payments
		SET status = 'refunded', refund_amount = ?, refunded_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'paid'`

	// Completing a booking marks its payment captured and starts the escrow
	// hold. Terminal payment states are never touched.
	queryHoldPaymentInEscrow = `
		UPDATE payments
		SET status = 'paid', escrow_release_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE booking_id = ? AND status IN ('pending', 'processing', 'paid')`

	// The released_at IS NULL guard is the release idempotency barrier.
	queryReleasePayment = `
		UPDATE payments
		SET status = 'released', released_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		  AND status = 'paid'
		  AND released_at IS NULL
		  AND escrow_release_date IS NOT NULL
		  AND escrow_release_date <= ?`

	queryListReleasablePayments = `
		SELECT p.id, p.booking_id, p.amount, p.service_fee, p.net_amount, p.status, p.payment_method,
		       p.gateway_transaction_id, p.pix_code, p.pix_qr_code, p.pix_expires_at, p.boleto_barcode,
		       p.boleto_url, p.boleto_due_date, p.escrow_release_date, p.released_at, p.refund_amount,
		       p.refunded_at, p.dispute_reason, p.created_at, p.updated_at
		FROM payments p
		JOIN bookings b ON b.id = p.booking_id
		WHERE p.status = 'paid'
		  AND p.released_at IS NULL
		  AND p.escrow_release_date IS NOT NULL
		  AND p.escrow_release_date <= ?
		  AND b.status = 'completed'
		ORDER BY p.escrow_release_date`

	queryExtendEscrowForDispute = `
		UPDATE payments
		SET escrow_release_date = ?, dispute_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND released_at IS NULL AND status IN ('paid', 'pending', 'processing')`

	// Withdrawal queries
	withdrawalColumns = `id, user_id, amount, bank_account_id, status, failure_reason,
		gateway_transfer_id, created_at, processed_at`

	queryCheckActiveWithdrawal = `
		SELECT id FROM withdrawals
		WHERE user_id = ? AND status IN ('pending', 'processing')
		LIMIT 1`

	queryInsertWithdrawal = `
		INSERT INTO withdrawals (id, user_id, amount, bank_account_id, status, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?)`

	queryGetWithdrawalById = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE id = ?`

	queryListWithdrawals = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	querySetWithdrawalProcessing = `
		UPDATE withdrawals
		SET status = 'processing', gateway_transfer_id = ?
		WHERE id = ? AND status = 'pending'`

	queryCompleteWithdrawal = `
		UPDATE withdrawals
		SET status = 'completed', processed_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')`

	queryFailWithdrawal = `
		UPDATE withdrawals
		SET status = 'failed', failure_reason = ?, processed_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')`

	queryCountActiveWithdrawalsForAccount = `
		SELECT COUNT(*) FROM withdrawals
		WHERE bank_account_id = ? AND status IN ('pending', 'processing')`

	// Bank account queries
	bankAccountColumns = `id, user_id, bank_code, bank_name, branch, account_number,
		holder_name, holder_document, is_default, created_at`

	queryInsertBankAccount = `
		INSERT INTO bank_accounts (id, user_id, bank_code, bank_name, branch, account_number,
			holder_name, holder_document, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBankAccount = `
		SELECT ` + bankAccountColumns + `
		FROM bank_accounts
		WHERE id = ?`

	queryListBankAccounts = `
		SELECT ` + bankAccountColumns + `
		FROM bank_accounts
		WHERE user_id = ?
		ORDER BY created_at`

	queryCountBankAccounts = `
		SELECT COUNT(*) FROM bank_accounts WHERE user_id = ?`

	queryDeleteBankAccount = `
		DELETE FROM bank_accounts WHERE id = ? AND user_id = ?`

	queryOldestBankAccount = `
		SELECT id FROM bank_accounts
		WHERE user_id = ?
		ORDER BY created_at, id
		LIMIT 1`

	querySetDefaultBankAccount = `
		UPDATE bank_accounts SET is_default = 1 WHERE id = ?`

	// Notification queries
	queryInsertNotification = `
		INSERT INTO notifications (id, user_id, type, title, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`

	queryMarkNotificationRead = `
		UPDATE notifications SET read = 1 WHERE id = ?`

	queryPurgeReadNotifications = `
		DELETE FROM notifications
		WHERE read = 1 AND created_at < ?`
)
