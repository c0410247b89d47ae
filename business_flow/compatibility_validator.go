package businessflow

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/amirphl/adbridge/app/services"
	"golang.org/x/sync/errgroup"
)

// Compatibility check names
const (
	CheckAdAccountInBusiness   = "ad_account_in_business"
	CheckAdAccountForPage      = "ad_account_for_page"
	CheckInstagramLinkedToPage = "instagram_linked_to_page"
)

// CompatibilityCheck is the outcome of one structural check
type CompatibilityCheck struct {
	Name   string
	OK     bool
	Reason string
}

// CompatibilityResult combines every check. Reason is the first failure.
type CompatibilityResult struct {
	OK     bool
	Reason string
	Checks []CompatibilityCheck
}

// AssetSelection is the set of remote ids to validate together
type AssetSelection struct {
	BusinessID  string
	PageID      string
	AdAccountID string
	IGUserID    string
}

// CompatibilityValidator checks that selected assets are structurally allowed
// to advertise together. Results are never cached.
type CompatibilityValidator interface {
	AdAccountBelongsToBusiness(ctx context.Context, token, adAccountID, businessID string) (bool, error)
	AdAccountCanAdvertiseForPage(ctx context.Context, token, pageID, adAccountID string) (CompatibilityCheck, error)
	InstagramAccountLinkedToPage(ctx context.Context, token, pageID, igUserID string) (CompatibilityCheck, error)
	ValidateSelection(ctx context.Context, token string, selection AssetSelection) (CompatibilityResult, error)
}

// CompatibilityValidatorImpl implements CompatibilityValidator over the Graph API
type CompatibilityValidatorImpl struct {
	graph services.GraphClient
}

// NewCompatibilityValidator creates a new compatibility validator
func NewCompatibilityValidator(graph services.GraphClient) CompatibilityValidator {
	return &CompatibilityValidatorImpl{graph: graph}
}

// AdAccountBelongsToBusiness compares the account's owning business id exactly
func (v *CompatibilityValidatorImpl) AdAccountBelongsToBusiness(ctx context.Context, token, adAccountID, businessID string) (bool, error) {
	account, err := v.graph.GetAdAccount(ctx, token, adAccountID)
	if err != nil {
		return false, err
	}
	if account.Business == nil {
		return false, nil
	}
	return strings.TrimSpace(account.Business.ID) == strings.TrimSpace(businessID), nil
}

// AdAccountCanAdvertiseForPage checks membership of the account in the set of
// accounts the page has authorized. Ids are compared whole after act_
// normalization so that a prefix or substring of an authorized id never matches.
func (v *CompatibilityValidatorImpl) AdAccountCanAdvertiseForPage(ctx context.Context, token, pageID, adAccountID string) (CompatibilityCheck, error) {
	check := CompatibilityCheck{Name: CheckAdAccountForPage}

	authorized, err := v.graph.ListPageAdAccounts(ctx, token, pageID)
	if err != nil {
		return rejectedByPlatform(check, err)
	}

	want := services.CanonicalAdAccountID(adAccountID)
	for _, account := range authorized {
		if services.CanonicalAdAccountID(account.ID) == want {
			check.OK = true
			return check, nil
		}
	}

	check.Reason = fmt.Sprintf("ad account %s is not authorized to advertise for page %s", services.AdAccountNode(adAccountID), pageID)
	return check, nil
}

// InstagramAccountLinkedToPage checks that the Instagram account is the one linked to the page
func (v *CompatibilityValidatorImpl) InstagramAccountLinkedToPage(ctx context.Context, token, pageID, igUserID string) (CompatibilityCheck, error) {
	check := CompatibilityCheck{Name: CheckInstagramLinkedToPage}

	linked, err := v.graph.GetPageInstagramAccount(ctx, token, pageID)
	if err != nil {
		return rejectedByPlatform(check, err)
	}
	if linked == nil || linked.ID != strings.TrimSpace(igUserID) {
		check.Reason = fmt.Sprintf("instagram account %s is not linked to page %s", igUserID, pageID)
		return check, nil
	}

	check.OK = true
	return check, nil
}

// ValidateSelection runs every applicable check concurrently. Checks are
// independent; the combined result is OK only if all of them pass.
func (v *CompatibilityValidatorImpl) ValidateSelection(ctx context.Context, token string, selection AssetSelection) (CompatibilityResult, error) {
	var (
		businessCheck  *CompatibilityCheck
		pageCheck      *CompatibilityCheck
		instagramCheck *CompatibilityCheck
	)

	g, gctx := errgroup.WithContext(ctx)

	if selection.BusinessID != "" && selection.AdAccountID != "" {
		g.Go(func() error {
			check := CompatibilityCheck{Name: CheckAdAccountInBusiness}
			ok, err := v.AdAccountBelongsToBusiness(gctx, token, selection.AdAccountID, selection.BusinessID)
			if err != nil {
				rejected, err := rejectedByPlatform(check, err)
				if err != nil {
					return err
				}
				businessCheck = &rejected
				return nil
			}
			check.OK = ok
			if !ok {
				check.Reason = fmt.Sprintf("ad account %s does not belong to business %s", services.AdAccountNode(selection.AdAccountID), selection.BusinessID)
			}
			businessCheck = &check
			return nil
		})
	}

	if selection.PageID != "" && selection.AdAccountID != "" {
		g.Go(func() error {
			check, err := v.AdAccountCanAdvertiseForPage(gctx, token, selection.PageID, selection.AdAccountID)
			if err != nil {
				return err
			}
			pageCheck = &check
			return nil
		})
	}

	if selection.PageID != "" && selection.IGUserID != "" {
		g.Go(func() error {
			check, err := v.InstagramAccountLinkedToPage(gctx, token, selection.PageID, selection.IGUserID)
			if err != nil {
				return err
			}
			instagramCheck = &check
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return CompatibilityResult{}, err
	}

	result := CompatibilityResult{OK: true, Checks: []CompatibilityCheck{}}
	for _, check := range []*CompatibilityCheck{businessCheck, pageCheck, instagramCheck} {
		if check == nil {
			continue
		}
		result.Checks = append(result.Checks, *check)
		if !check.OK && result.OK {
			result.OK = false
			result.Reason = check.Reason
		}
	}
	return result, nil
}

// rejectedByPlatform turns a client-side Graph rejection into a failed check.
// Token faults, server faults and transport errors are returned as errors.
func rejectedByPlatform(check CompatibilityCheck, err error) (CompatibilityCheck, error) {
	remote, ok := services.AsRemoteAPIError(err)
	if !ok || remote.IsTokenInvalid() || remote.HTTPStatus >= http.StatusInternalServerError {
		return check, err
	}

	check.OK = false
	check.Reason = "ad platform refused the check: " + remote.Message
	return check, nil
}
