package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/adbridge/app/services"
)

// AdAccountStatusActive is the account_status of an account that can spend
const AdAccountStatusActive = 1

// PaymentEligibilityResult is a live read of the ad account's funding state
type PaymentEligibilityResult struct {
	Eligible      bool
	AdAccountID   string
	Status        int
	StatusName    string
	Capabilities  []string
	DisableReason int
	Currency      string
	Reason        string
}

// PaymentEligibilityChecker decides whether an ad account can fund spend
type PaymentEligibilityChecker interface {
	CheckEligibility(ctx context.Context, token, adAccountID string) (PaymentEligibilityResult, error)
}

// PaymentEligibilityCheckerImpl implements PaymentEligibilityChecker over the Graph API
type PaymentEligibilityCheckerImpl struct {
	graph services.GraphClient
}

// NewPaymentEligibilityChecker creates a new payment eligibility checker
func NewPaymentEligibilityChecker(graph services.GraphClient) PaymentEligibilityChecker {
	return &PaymentEligibilityCheckerImpl{graph: graph}
}

// CheckEligibility requires an active account and, when the platform reports
// capabilities at all, at least one payment or ad creation capability. An
// empty capability list is inconclusive and passes; the platform does not
// always populate it.
func (c *PaymentEligibilityCheckerImpl) CheckEligibility(ctx context.Context, token, adAccountID string) (PaymentEligibilityResult, error) {
	account, err := c.graph.GetAdAccount(ctx, token, adAccountID)
	if err != nil {
		return PaymentEligibilityResult{}, err
	}

	capabilities := account.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}
	result := PaymentEligibilityResult{
		AdAccountID:   services.AdAccountNode(account.ID),
		Status:        account.AccountStatus,
		StatusName:    services.AdAccountStatusName(account.AccountStatus),
		Capabilities:  capabilities,
		DisableReason: account.DisableReason,
		Currency:      account.Currency,
	}

	switch {
	case account.AccountStatus != AdAccountStatusActive:
		result.Reason = fmt.Sprintf("ad account status is %s", result.StatusName)
	case len(capabilities) > 0 && !hasPaymentCapability(capabilities):
		result.Reason = "ad account has no payment or ad creation capability"
	default:
		result.Eligible = true
	}

	return result, nil
}

// hasPaymentCapability matches capability names that imply funding or ad creation
func hasPaymentCapability(capabilities []string) bool {
	for _, capability := range capabilities {
		name := strings.ToUpper(capability)
		switch {
		case strings.Contains(name, "PAY"),
			strings.Contains(name, "BILLING"),
			strings.Contains(name, "FUNDING"),
			strings.Contains(name, "CREATE") && strings.Contains(name, "AD"):
			return true
		}
	}
	return false
}
