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

package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ComputeFees splits a payment amount into the platform service fee and the
// net amount settled to the provider. The fee is derived from the net amount
// so the two always sum back to the original amount exactly.
func ComputeFees(amount, feeRate decimal.Decimal) (serviceFee, netAmount decimal.Decimal) {
	netAmount = amount.Mul(decimal.NewFromInt(1).Sub(feeRate)).Round(2)
	serviceFee = amount.Sub(netAmount)
	return serviceFee, netAmount
}

// ComputeEscrowReleaseDate returns the date captured funds become releasable
// to the provider after a booking completes.
func ComputeEscrowReleaseDate(completedAt time.Time, holdDays int) time.Time {
	return completedAt.AddDate(0, 0, holdDays)
}

// RefundTier maps a minimum notice period (hours before service start) to the
// fraction of the payment amount refunded when cancelling inside that window.
type RefundTier struct {
	MinHoursBefore decimal.Decimal
	Fraction       decimal.Decimal
}

// RefundPolicy is an ordered set of refund tiers, highest notice first. A
// cancellation matches the first tier whose threshold is met; no match means
// no refund.
type RefundPolicy struct {
	Tiers []RefundTier
}

// DefaultRefundPolicy returns the platform default: full refund with 24h or
// more notice, half refund between 2h and 24h, nothing under 2h.
func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{
		Tiers: []RefundTier{
			{MinHoursBefore: decimal.NewFromInt(24), Fraction: decimal.NewFromInt(1)},
			{MinHoursBefore: decimal.NewFromInt(2), Fraction: decimal.NewFromFloat(0.5)},
		},
	}
}

// Validate checks that fractions are within [0, 1] and thresholds strictly
// decrease, so tier matching is unambiguous.
func (p RefundPolicy) Validate() error {
	if len(p.Tiers) == 0 {
		return fmt.Errorf("refund policy must define at least one tier")
	}
	one := decimal.NewFromInt(1)
	for i, tier := range p.Tiers {
		if tier.Fraction.IsNegative() || tier.Fraction.GreaterThan(one) {
			return fmt.Errorf("tier %d: fraction %s outside [0, 1]", i, tier.Fraction.String())
		}
		if tier.MinHoursBefore.IsNegative() {
			return fmt.Errorf("tier %d: negative notice threshold %s", i, tier.MinHoursBefore.String())
		}
		if i > 0 && !tier.MinHoursBefore.LessThan(p.Tiers[i-1].MinHoursBefore) {
			return fmt.Errorf("tier %d: threshold %s must be below previous threshold %s",
				i, tier.MinHoursBefore.String(), p.Tiers[i-1].MinHoursBefore.String())
		}
	}
	return nil
}

// RefundFraction returns the refundable fraction for a cancellation made the
// given number of hours before the booked service starts. Elapsed start times
// (negative hours) never qualify for a refund.
func (p RefundPolicy) RefundFraction(hoursUntilStart decimal.Decimal) decimal.Decimal {
	for _, tier := range p.Tiers {
		if hoursUntilStart.GreaterThanOrEqual(tier.MinHoursBefore) {
			return tier.Fraction
		}
	}
	return decimal.Zero
}

// ComputeRefund applies a refund fraction to a payment amount.
func ComputeRefund(amount, fraction decimal.Decimal) decimal.Decimal {
	return amount.Mul(fraction).Round(2)
}

// HoursUntil returns the signed number of hours between now and the service
// start as a decimal, so sub-hour precision survives tier matching.
func HoursUntil(start, now time.Time) decimal.Decimal {
	return decimal.NewFromFloat(start.Sub(now).Hours())
}
