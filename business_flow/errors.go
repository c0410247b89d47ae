// Package businessflow contains the core business logic and use cases for the ad platform publishing pipeline
package businessflow

import (
	"errors"
	"fmt"

	"github.com/amirphl/adbridge/app/services"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound         = errors.New("campaign not found")
	ErrCampaignAccessDenied     = errors.New("campaign access denied")
	ErrCampaignUpdateNotAllowed = errors.New("campaign update not allowed")
	ErrCampaignUpdateRequired   = errors.New("at least one field must be provided for update")
	ErrCampaignUUIDRequired     = errors.New("campaign UUID is required")
	ErrCampaignAgeRangeInvalid  = errors.New("minimum age cannot exceed maximum age")
	ErrCampaignScheduleInvalid  = errors.New("end time must be after start time")

	// Token lifecycle errors
	ErrCredentialsMissing = errors.New("ad platform app credentials are not configured")
	ErrExchangeRejected   = errors.New("ad platform rejected the token exchange")
	ErrTokenMissing       = errors.New("ad platform is not connected")
	ErrTokenExpired       = errors.New("ad platform token has expired")
	ErrTokenUnreadable    = errors.New("stored ad platform token cannot be read")

	// ErrTokenRequired is returned by the admin access check; it is the same condition as ErrTokenMissing
	ErrTokenRequired = ErrTokenMissing

	// Selection errors
	ErrSelectionIncomplete = errors.New("ad platform selection is incomplete")
	ErrSelectionEmpty      = errors.New("at least one selection field must be provided")
	ErrPageNotAccessible   = errors.New("selected page is not accessible with the connected account")
	ErrSelectionChanged    = errors.New("ad platform selection changed while the check was running")

	// Delivery errors
	ErrDeliveryBudgetRequired  = errors.New("campaign daily budget is required")
	ErrDeliveryImageRequired   = errors.New("an image url or image hash is required")
	ErrDeliveryImageURLInvalid = errors.New("image url must be an absolute http or https url")
	ErrDeliveryIncomplete      = errors.New("remote campaign chain is incomplete")
	ErrInvalidPublishTarget    = errors.New("publish target must be campaign or ad")
	ErrPublishTargetMismatch   = errors.New("publish target does not match the stored remote object")

	// Concurrency errors
	ErrLockUnavailable = errors.New("another operation is in progress for this campaign")

	// Filter errors
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// CompatibilityError is returned when the selected assets cannot advertise together
type CompatibilityError struct {
	Reason string
}

func (e *CompatibilityError) Error() string {
	return "incompatible ad platform selection: " + e.Reason
}

// PaymentIneligibleError is returned when the ad account cannot fund spend
type PaymentIneligibleError struct {
	Reason string
}

func (e *PaymentIneligibleError) Error() string {
	return "ad account is not eligible for payment: " + e.Reason
}

// PipelineStepFailed wraps the failure of one orchestration step
type PipelineStepFailed struct {
	Step  string
	Cause error
}

func (e *PipelineStepFailed) Error() string {
	return fmt.Sprintf("delivery step %s failed: %v", e.Step, e.Cause)
}

func (e *PipelineStepFailed) Unwrap() error {
	return e.Cause
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsCredentialsMissing(err error) bool {
	return errors.Is(err, ErrCredentialsMissing)
}

func IsExchangeRejected(err error) bool {
	return errors.Is(err, ErrExchangeRejected)
}

func IsTokenMissing(err error) bool {
	return errors.Is(err, ErrTokenMissing)
}

func IsTokenExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

func IsSelectionIncomplete(err error) bool {
	return errors.Is(err, ErrSelectionIncomplete)
}

func IsLockUnavailable(err error) bool {
	return errors.Is(err, ErrLockUnavailable)
}

func IsPublishTargetMismatch(err error) bool {
	return errors.Is(err, ErrPublishTargetMismatch)
}

func IsCompatibilityError(err error) bool {
	var target *CompatibilityError
	return errors.As(err, &target)
}

func IsPaymentIneligible(err error) bool {
	var target *PaymentIneligibleError
	return errors.As(err, &target)
}

// AsPipelineStepFailed extracts the failed step from an error chain
func AsPipelineStepFailed(err error) (*PipelineStepFailed, bool) {
	var target *PipelineStepFailed
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsRemoteError reports whether the error chain carries a Graph API failure
func IsRemoteError(err error) bool {
	_, ok := services.AsRemoteAPIError(err)
	return ok
}
