package consumecredits

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/credits/gate"
	"careerkit-credits/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGate struct {
	mock.Mock
}

func (m *MockGate) Consume(ctx context.Context, req gate.Request) (*gate.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gate.Result), args.Error(1)
}

func newHandler(t *testing.T, g Consumer) *Handler {
	return NewHandler(&Config{Timeout: time.Second}, g, nil, logger.NewTestLogger(t))
}

func TestHandler_Execute_Success(t *testing.T) {
	g := &MockGate{}
	g.On("Consume", mock.Anything, gate.Request{Identifier: "user-1", Feature: "job_tailoring"}).Return(&gate.Result{
		Success:   true,
		Feature:   "job_tailoring",
		Cost:      3,
		Remaining: 17,
		Balance:   models.Balance{UserKey: "user-1", TotalCredits: 20, UsedCredits: 3, RemainingCredits: 17},
		Event:     &models.UsageEvent{ID: "ev-1"},
	}, nil)

	out, err := newHandler(t, g).Execute(context.Background(), &Input{UserID: "user-1", Feature: "job_tailoring"})

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.CreditsCharged)
	assert.Equal(t, 17, out.RemainingCredits)
	assert.Equal(t, "ev-1", out.UsageEventID)
	g.AssertExpectations(t)
}

func TestHandler_Execute_Denials(t *testing.T) {
	tests := []struct {
		name     string
		result   *gate.Result
		wantCode string
	}{
		{
			name:     "insufficient credits",
			result:   &gate.Result{Feature: "mock_interview", Cost: 6, Remaining: 2, Reason: gate.ReasonInsufficientCredits},
			wantCode: "INSUFFICIENT_CREDITS",
		},
		{
			name:     "feature not in plan",
			result:   &gate.Result{Feature: "mock_interview", Cost: 6, Reason: gate.ReasonFeatureNotInPlan, Balance: models.Balance{Plan: "basic"}},
			wantCode: "UPGRADE_REQUIRED",
		},
		{
			name:     "inactive subscription",
			result:   &gate.Result{Feature: "mock_interview", Cost: 6, Reason: gate.ReasonSubscriptionInactive, Balance: models.Balance{Status: models.StatusPastDue}},
			wantCode: "UPGRADE_REQUIRED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &MockGate{}
			g.On("Consume", mock.Anything, mock.Anything).Return(tt.result, nil)

			_, err := newHandler(t, g).Execute(context.Background(), &Input{UserID: "user-1", Feature: "mock_interview"})

			require.Error(t, err)
			stdErr, ok := apperrors.AsStandardError(err)
			require.True(t, ok)
			bpmn := apperrors.ConvertToBPMNError(stdErr)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Zero(t, bpmn.Retries)
		})
	}
}

func TestHandler_Execute_InsufficientCarriesAmounts(t *testing.T) {
	g := &MockGate{}
	g.On("Consume", mock.Anything, mock.Anything).Return(&gate.Result{
		Feature: "cover_letter", Cost: 3, Remaining: 1, Reason: gate.ReasonInsufficientCredits,
	}, nil)

	_, err := newHandler(t, g).Execute(context.Background(), &Input{UserID: "user-1", Feature: "cover_letter"})

	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	vars := apperrors.ConvertToBPMNError(stdErr).ErrorVariables
	assert.Equal(t, 3, vars["requiredCredits"])
	assert.Equal(t, 1, vars["remainingCredits"])
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	g := &MockGate{}
	h := newHandler(t, g)

	_, err := h.Execute(context.Background(), &Input{Feature: "cover_letter"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))

	_, err = h.Execute(context.Background(), &Input{UserID: "u", Feature: "cover_letter", Amount: -1})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))

	g.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestHandler_Execute_LedgerFailureIsRetryable(t *testing.T) {
	g := &MockGate{}
	g.On("Consume", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewLedgerWriteFailedError(errors.New("connection reset")))

	_, err := newHandler(t, g).Execute(context.Background(), &Input{UserID: "user-1", Feature: "cover_letter"})

	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, 3, apperrors.ConvertToBPMNError(stdErr).Retries)
}
