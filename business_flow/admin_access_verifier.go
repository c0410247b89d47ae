package businessflow

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/amirphl/adbridge/app/services"
	"golang.org/x/sync/errgroup"
)

// AccessRole is the caller's effective role on a remote asset
type AccessRole string

const (
	AccessRoleOwner      AccessRole = "owner"
	AccessRoleAdmin      AccessRole = "admin"
	AccessRoleAdvertiser AccessRole = "advertiser"
	AccessRoleNone       AccessRole = "none"
)

func (r AccessRole) rank() int {
	switch r {
	case AccessRoleOwner:
		return 3
	case AccessRoleAdmin:
		return 2
	case AccessRoleAdvertiser:
		return 1
	default:
		return 0
	}
}

func maxRole(a, b AccessRole) AccessRole {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// AdminAccessResult reports the caller's roles on the selected business and ad account
type AdminAccessResult struct {
	AdminConnected bool
	FBUserID       string
	BusinessRole   AccessRole
	AdAccountRole  AccessRole
	Reason         string
}

// AdminAccessVerifier determines whether the connected user may spend on the selection
type AdminAccessVerifier interface {
	Verify(ctx context.Context, token, fbUserID, businessID, adAccountID string) (AdminAccessResult, error)
}

// AdminAccessVerifierImpl implements AdminAccessVerifier over the Graph API
type AdminAccessVerifierImpl struct {
	graph services.GraphClient
}

// NewAdminAccessVerifier creates a new admin access verifier
func NewAdminAccessVerifier(graph services.GraphClient) AdminAccessVerifier {
	return &AdminAccessVerifierImpl{graph: graph}
}

// Verify queries both role lists concurrently. The user is admin-connected
// when they can advertise on the ad account and, if a business is selected,
// administer that business.
func (v *AdminAccessVerifierImpl) Verify(ctx context.Context, token, fbUserID, businessID, adAccountID string) (AdminAccessResult, error) {
	if strings.TrimSpace(token) == "" {
		return AdminAccessResult{}, ErrTokenRequired
	}

	result := AdminAccessResult{
		FBUserID:      fbUserID,
		BusinessRole:  AccessRoleNone,
		AdAccountRole: AccessRoleNone,
	}
	var businessReason, adAccountReason string

	g, gctx := errgroup.WithContext(ctx)

	if businessID != "" {
		g.Go(func() error {
			users, err := v.graph.ListBusinessUsers(gctx, token, businessID)
			if err != nil {
				reason, err := roleLookupRejected(err)
				businessReason = reason
				return err
			}
			for _, u := range users {
				if u.ID == fbUserID {
					result.BusinessRole = maxRole(result.BusinessRole, businessUserRole(u.Role))
				}
			}
			return nil
		})
	}

	if adAccountID != "" {
		g.Go(func() error {
			users, err := v.graph.ListAdAccountUsers(gctx, token, adAccountID)
			if err != nil {
				reason, err := roleLookupRejected(err)
				adAccountReason = reason
				return err
			}
			for _, u := range users {
				if u.ID == fbUserID {
					result.AdAccountRole = maxRole(result.AdAccountRole, adAccountUserRole(string(u.Role), u.Tasks))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return AdminAccessResult{}, err
	}

	adAccountOK := result.AdAccountRole.rank() >= AccessRoleAdvertiser.rank()
	businessOK := businessID == "" || result.BusinessRole.rank() >= AccessRoleAdmin.rank()
	result.AdminConnected = adAccountID != "" && adAccountOK && businessOK

	switch {
	case adAccountID == "":
		result.Reason = "no ad account selected"
	case adAccountReason != "":
		result.Reason = adAccountReason
	case !adAccountOK:
		result.Reason = "user has no advertising role on the ad account"
	case businessReason != "":
		result.Reason = businessReason
	case !businessOK:
		result.Reason = "user is not an admin of the selected business"
	}

	return result, nil
}

// roleLookupRejected downgrades a client-side rejection to role none with a
// reason. Token, server and transport failures stay errors.
func roleLookupRejected(err error) (string, error) {
	remote, ok := services.AsRemoteAPIError(err)
	if !ok || remote.IsTokenInvalid() || remote.HTTPStatus >= http.StatusInternalServerError {
		return "", err
	}
	return "ad platform refused the role lookup: " + remote.Message, nil
}

func businessUserRole(role string) AccessRole {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case "OWNER":
		return AccessRoleOwner
	case "ADMIN":
		return AccessRoleAdmin
	case "EMPLOYEE", "ADVERTISER":
		return AccessRoleAdvertiser
	default:
		return AccessRoleNone
	}
}

// adAccountUserRole maps the legacy numeric role (1001 admin, 1002
// advertiser, 1003 analyst) or its name, then upgrades by granted tasks
func adAccountUserRole(role string, tasks []string) AccessRole {
	var r AccessRole
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case "OWNER":
		r = AccessRoleOwner
	case "1001", "ADMIN", "ADMINISTRATOR":
		r = AccessRoleAdmin
	case "1002", "ADVERTISER", "GENERAL_USER":
		r = AccessRoleAdvertiser
	default:
		r = AccessRoleNone
	}

	if slices.Contains(tasks, "MANAGE") {
		r = maxRole(r, AccessRoleAdmin)
	} else if slices.Contains(tasks, "ADVERTISE") {
		r = maxRole(r, AccessRoleAdvertiser)
	}
	return r
}
