package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeUnauthenticated, http.StatusUnauthorized},
		{ErrCodeInvalidRequest, http.StatusBadRequest},
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeWebhookSignature, http.StatusBadRequest},
		{ErrCodeInsufficientCredits, http.StatusPaymentRequired},
		{ErrCodeFeatureNotInPlan, http.StatusPaymentRequired},
		{ErrCodeSubscriptionInactive, http.StatusPaymentRequired},
		{ErrCodeLedgerWriteFailed, http.StatusInternalServerError},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.code), string(tt.code))
	}
}

func TestInsufficientCreditsMetadata(t *testing.T) {
	err := NewInsufficientCreditsError("mock_interview", 6, 2)
	assert.Equal(t, ErrCodeInsufficientCredits, err.Code)
	assert.False(t, err.Retryable)
	assert.Equal(t, 6, err.Metadata["requiredCredits"])
	assert.Equal(t, 2, err.Metadata["remainingCredits"])
}

func TestAsStandardError_ThroughWrapping(t *testing.T) {
	cause := stderrors.New("connection refused")
	wrapped := fmt.Errorf("resolve balance: %w", NewLedgerQueryFailedError(cause))

	stdErr, ok := AsStandardError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeLedgerQueryFailed, stdErr.Code)
	assert.True(t, HasCode(wrapped, ErrCodeLedgerQueryFailed))
	assert.True(t, stderrors.Is(wrapped, cause))

	_, ok = AsStandardError(cause)
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	plain := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)

	orig := NewGenerationTimeoutError()
	assert.Same(t, orig, Normalize(fmt.Errorf("wrap: %w", orig)))
}

func TestConvertToBPMNError(t *testing.T) {
	bpmn := ConvertToBPMNError(NewInsufficientCreditsError("resume_generation", 5, 3))
	assert.Equal(t, "INSUFFICIENT_CREDITS", bpmn.Code)
	assert.Equal(t, 0, bpmn.Retries)
	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "INSUFFICIENT_CREDITS", vars["errorCode"])
	assert.Equal(t, 3, vars["remainingCredits"])
	assert.Equal(t, "INSUFFICIENT_CREDITS", vars["originalErrorCode"])

	retryable := ConvertToBPMNError(NewLedgerWriteFailedError(stderrors.New("tx aborted")))
	assert.Equal(t, "LEDGER_UNAVAILABLE", retryable.Code)
	assert.Equal(t, 3, retryable.Retries)

	unmapped := ConvertToBPMNError(NewSubscriptionSyncFailedError("invoice.payment_failed", stderrors.New("x")))
	assert.Equal(t, string(ErrCodeSubscriptionSyncFailed), unmapped.Code)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "ENTITLEMENT", GetErrorCategory(ErrCodeInsufficientCredits))
	assert.Equal(t, "ENTITLEMENT", GetErrorCategory(ErrCodeFeatureNotInPlan))
	assert.Equal(t, "BILLING", GetErrorCategory(ErrCodeBillingLookupFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeLedgerWriteFailed))
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeGenerationFailed))
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeUnauthenticated))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeUnknownFeature))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeBillingLookupFailed))
	assert.True(t, IsRetryableErrorCode(ErrCodeGenerationTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeInsufficientCredits))
}
