// Package errors provides the standardized error type shared by the HTTP API
// and the job workers, with HTTP status and BPMN error mappings.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeUnknownFeature   ErrorCode = "UNKNOWN_FEATURE"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeWebhookSignature ErrorCode = "WEBHOOK_SIGNATURE_INVALID"
	ErrCodeWebhookPayload   ErrorCode = "WEBHOOK_PAYLOAD_INVALID"

	ErrCodeInsufficientCredits  ErrorCode = "INSUFFICIENT_CREDITS"
	ErrCodeFeatureNotInPlan     ErrorCode = "FEATURE_NOT_IN_PLAN"
	ErrCodeSubscriptionInactive ErrorCode = "SUBSCRIPTION_INACTIVE"

	ErrCodeBillingLookupFailed    ErrorCode = "BILLING_LOOKUP_FAILED"
	ErrCodeLedgerQueryFailed      ErrorCode = "LEDGER_QUERY_FAILED"
	ErrCodeLedgerWriteFailed      ErrorCode = "LEDGER_WRITE_FAILED"
	ErrCodeSubscriptionSyncFailed ErrorCode = "SUBSCRIPTION_SYNC_FAILED"
	ErrCodeCreditResolutionFailed ErrorCode = "CREDIT_RESOLUTION_FAILED"

	ErrCodeGenerationFailed  ErrorCode = "GENERATION_FAILED"
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e after setting key.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for Camunda job variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func NewUnauthenticatedError(details string) *StandardError {
	return newError(ErrCodeUnauthenticated, "Authentication required", details, false, nil)
}

func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false, nil)
}

func NewUnknownFeatureError(feature string) *StandardError {
	return newError(ErrCodeUnknownFeature, "Unknown feature", fmt.Sprintf("feature: %s", feature), false, nil).
		WithMetadata("feature", feature)
}

// NewValidationFailedError carries one message per failed field.
func NewValidationFailedError(fieldErrors []string) *StandardError {
	return newError(ErrCodeValidationFailed, "Request validation failed", strings.Join(fieldErrors, "; "), false, nil).
		WithMetadata("fields", fieldErrors)
}

func NewWebhookSignatureError(err error) *StandardError {
	return newError(ErrCodeWebhookSignature, "Webhook signature verification failed", errDetails(err), false, err)
}

func NewWebhookPayloadError(eventType string, err error) *StandardError {
	return newError(ErrCodeWebhookPayload, "Webhook payload could not be decoded",
		fmt.Sprintf("eventType: %s, error: %s", eventType, errDetails(err)), false, err)
}

// NewInsufficientCreditsError reports a denied consumption.
func NewInsufficientCreditsError(feature string, required, remaining int) *StandardError {
	return newError(ErrCodeInsufficientCredits, "Insufficient credits",
		fmt.Sprintf("feature %s requires %d credits, %d remaining", feature, required, remaining), false, nil).
		WithMetadata("requiredCredits", required).
		WithMetadata("remainingCredits", remaining)
}

func NewFeatureNotInPlanError(feature, planID string) *StandardError {
	return newError(ErrCodeFeatureNotInPlan, "Feature not included in plan",
		fmt.Sprintf("feature %s is not available on the %s plan", feature, planID), false, nil).
		WithMetadata("plan", planID)
}

func NewSubscriptionInactiveError(status string) *StandardError {
	return newError(ErrCodeSubscriptionInactive, "Subscription is not active",
		fmt.Sprintf("status: %s", status), false, nil)
}

func NewBillingLookupFailedError(err error) *StandardError {
	return newError(ErrCodeBillingLookupFailed, "Billing provider lookup failed", errDetails(err), true, err)
}

func NewLedgerQueryFailedError(err error) *StandardError {
	return newError(ErrCodeLedgerQueryFailed, "Usage ledger query failed", errDetails(err), true, err)
}

func NewLedgerWriteFailedError(err error) *StandardError {
	return newError(ErrCodeLedgerWriteFailed, "Usage ledger write failed", errDetails(err), true, err)
}

func NewSubscriptionSyncFailedError(eventType string, err error) *StandardError {
	return newError(ErrCodeSubscriptionSyncFailed, "Subscription record update failed",
		fmt.Sprintf("eventType: %s, error: %s", eventType, errDetails(err)), true, err)
}

func NewCreditResolutionFailedError(err error) *StandardError {
	return newError(ErrCodeCreditResolutionFailed, "Credit balance could not be resolved", errDetails(err), true, err)
}

func NewGenerationFailedError(err error) *StandardError {
	return newError(ErrCodeGenerationFailed, "Generation backend error", errDetails(err), true, err)
}

func NewGenerationTimeoutError() *StandardError {
	return newError(ErrCodeGenerationTimeout, "Generation backend timeout", "request exceeded timeout", true, nil)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, errDetails(err)), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", errDetails(err), false, err)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// AsStandardError unwraps err to a *StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// HTTPStatus maps an error code to the status the API responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeInvalidRequest, ErrCodeUnknownFeature, ErrCodeValidationFailed,
		ErrCodeWebhookSignature, ErrCodeWebhookPayload:
		return http.StatusBadRequest
	case ErrCodeInsufficientCredits, ErrCodeFeatureNotInPlan, ErrCodeSubscriptionInactive:
		return http.StatusPaymentRequired
	case ErrCodeGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidRequest:         "INVALID_REQUEST",
	ErrCodeUnknownFeature:         "UNKNOWN_FEATURE",
	ErrCodeValidationFailed:       "INVALID_REQUEST",
	ErrCodeInsufficientCredits:    "INSUFFICIENT_CREDITS",
	ErrCodeFeatureNotInPlan:       "UPGRADE_REQUIRED",
	ErrCodeSubscriptionInactive:   "UPGRADE_REQUIRED",
	ErrCodeBillingLookupFailed:    "BILLING_LOOKUP_FAILED",
	ErrCodeLedgerQueryFailed:      "LEDGER_UNAVAILABLE",
	ErrCodeLedgerWriteFailed:      "LEDGER_UNAVAILABLE",
	ErrCodeCreditResolutionFailed: "CREDIT_RESOLUTION_FAILED",
	ErrCodeGenerationFailed:       "GENERATION_FAILED",
	ErrCodeGenerationTimeout:      "GENERATION_TIMEOUT",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeBillingLookupFailed,
		ErrCodeLedgerQueryFailed,
		ErrCodeLedgerWriteFailed,
		ErrCodeSubscriptionSyncFailed,
		ErrCodeCreditResolutionFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeGenerationFailed:
		return 3
	case ErrCodeGenerationTimeout:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CREDIT") || strings.Contains(codeStr, "PLAN") || strings.Contains(codeStr, "SUBSCRIPTION"):
		return "ENTITLEMENT"
	case strings.Contains(codeStr, "BILLING") || strings.Contains(codeStr, "WEBHOOK"):
		return "BILLING"
	case strings.Contains(codeStr, "LEDGER"):
		return "DATABASE"
	case strings.Contains(codeStr, "GENERATION"):
		return "AI"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "AUTH"):
		return "AUTH"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "UNKNOWN"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
