// internal/workers/credits/resolve-balance/handler.go
package resolvebalance

import (
	"context"
	"strings"

	"careerkit-credits/internal/common/camunda"
	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/credits/resolver"
	"careerkit-credits/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "resolve-credit-balance"
)

type BalanceResolver interface {
	Resolve(ctx context.Context, identifier string) (*resolver.Result, error)
}

type Handler struct {
	config   *Config
	resolver BalanceResolver
	activity *registry.Activity
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

// NewHandler builds the handler. activity may be nil, in which case job
// variables are not schema checked.
func NewHandler(config *Config, res BalanceResolver, activity *registry.Activity, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		resolver: res,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewInvalidRequestError("userId is required")
	}

	res, err := h.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	if res.Outcome == resolver.OutcomeDegraded {
		h.logger.Warn("balance resolved in degraded mode", map[string]interface{}{
			"userKey": res.Balance.UserKey,
		})
	}
	return &Output{Subscription: res.Balance, Degraded: res.Outcome == resolver.OutcomeDegraded}, nil
}
