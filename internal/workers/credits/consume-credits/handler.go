// internal/workers/credits/consume-credits/handler.go
package consumecredits

import (
	"context"
	"strings"

	"careerkit-credits/internal/common/camunda"
	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/credits/gate"
	"careerkit-credits/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "consume-credits"
)

type Consumer interface {
	Consume(ctx context.Context, req gate.Request) (*gate.Result, error)
}

type Handler struct {
	config   *Config
	gate     Consumer
	activity *registry.Activity
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, g Consumer, activity *registry.Activity, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		gate:     g,
		activity: activity,
		errors:   apperrors.NewErrorHandler(l),
		logger:   l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := camunda.DecodeVariables(job, h.activity, &input); err != nil {
		h.errors.HandleJobError(context.Background(), client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(context.Background(), client, job, err)
		return
	}

	if err := camunda.CompleteJob(context.Background(), client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
	}
}

// Execute charges the feature. A denied charge is returned as the typed
// denial error so the process can branch on INSUFFICIENT_CREDITS or
// UPGRADE_REQUIRED.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewInvalidRequestError("userId is required")
	}
	if input.Amount < 0 {
		return nil, apperrors.NewInvalidRequestError("amount must be positive")
	}

	res, err := h.gate.Consume(ctx, gate.Request{
		Identifier: userID,
		Feature:    strings.TrimSpace(input.Feature),
		Cost:       input.Amount,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, res.DenialError()
	}

	out := &Output{
		Success:          true,
		Feature:          res.Feature,
		CreditsCharged:   res.Cost,
		RemainingCredits: res.Remaining,
		Subscription:     res.Balance,
	}
	if res.Event != nil {
		out.UsageEventID = res.Event.ID
	}

	h.logger.Info("credits consumed", map[string]interface{}{
		"userKey":   res.Balance.UserKey,
		"feature":   res.Feature,
		"cost":      res.Cost,
		"remaining": res.Remaining,
	})
	return out, nil
}
