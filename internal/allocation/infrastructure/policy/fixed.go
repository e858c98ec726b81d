package policy

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	allocation "payroll-cloud/internal/allocation/domain"
)

// FixedPolicyProvider returns the same contribution policy for every branch.
// Used when the core banking API does not expose per-branch policies.
type FixedPolicyProvider struct {
	policy allocation.ContributionPolicy
}

// NewFixedPolicyProvider constructs the provider.
func NewFixedPolicyProvider(savingsRate, shareAmount decimal.Decimal) (*FixedPolicyProvider, error) {
	if savingsRate.IsNegative() || shareAmount.IsNegative() {
		return nil, errors.New("policy provider: negative policy value")
	}
	if savingsRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errors.New("policy provider: savings rate above 1")
	}
	return &FixedPolicyProvider{policy: allocation.ContributionPolicy{
		SavingsRate: savingsRate,
		ShareAmount: shareAmount,
	}}, nil
}

// Policy returns the configured fixed policy.
func (p *FixedPolicyProvider) Policy(ctx context.Context, branchID string) (allocation.ContributionPolicy, error) {
	_ = ctx
	_ = branchID
	// TODO: replace with per-branch policies once the lookup API exposes them.
	return p.policy, nil
}
