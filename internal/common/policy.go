package common

import (
	"fmt"
	"os"
	"path/filepath"

	"booking-settlement-go/internal/ledger"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type refundTierConfig struct {
	MinHoursBefore string `yaml:"min_hours_before"`
	Fraction       string `yaml:"fraction"`
}

type refundPolicyConfig struct {
	Tiers []refundTierConfig `yaml:"tiers"`
}

// LoadRefundPolicy reads a refund tier table from a yaml file. An empty path
// returns the platform default policy.
func LoadRefundPolicy(policyFile string) (ledger.RefundPolicy, error) {
	if policyFile == "" {
		return ledger.DefaultRefundPolicy(), nil
	}

	policyPath := policyFile
	if !filepath.IsAbs(policyFile) {
		wd, err := os.Getwd()
		if err != nil {
			return ledger.RefundPolicy{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		policyPath = filepath.Join(wd, policyFile)
	}

	data, err := os.ReadFile(policyPath)
	if err != nil {
		return ledger.RefundPolicy{}, fmt.Errorf("unable to read %s: %w", policyFile, err)
	}

	var config refundPolicyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return ledger.RefundPolicy{}, fmt.Errorf("unable to parse %s: %w", policyFile, err)
	}

	policy := ledger.RefundPolicy{}
	for i, tier := range config.Tiers {
		minHours, err := decimal.NewFromString(tier.MinHoursBefore)
		if err != nil {
			return ledger.RefundPolicy{}, fmt.Errorf("tier %d: invalid min_hours_before %q: %w", i, tier.MinHoursBefore, err)
		}
		fraction, err := decimal.NewFromString(tier.Fraction)
		if err != nil {
			return ledger.RefundPolicy{}, fmt.Errorf("tier %d: invalid fraction %q: %w", i, tier.Fraction, err)
		}
		policy.Tiers = append(policy.Tiers, ledger.RefundTier{
			MinHoursBefore: minHours,
			Fraction:       fraction,
		})
	}

	if err := policy.Validate(); err != nil {
		return ledger.RefundPolicy{}, fmt.Errorf("invalid refund policy %s: %w", policyFile, err)
	}
	return policy, nil
}
