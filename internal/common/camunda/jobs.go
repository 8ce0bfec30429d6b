package camunda

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/metrics"
	"careerkit-credits/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// DecodeVariables checks the job variables against the activity's input
// schema, when one is registered, and decodes them into out.
func DecodeVariables(job entities.Job, activity *registry.Activity, out interface{}) error {
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &vars); err != nil {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("parse variables: %v", err))
	}

	if activity != nil {
		res, err := activity.ValidateInput(vars)
		if err != nil {
			return apperrors.NewInvalidRequestError(err.Error())
		}
		if !res.Valid {
			return apperrors.NewValidationFailedError(res.GetErrorMessages())
		}
	}

	if err := json.Unmarshal([]byte(job.Variables), out); err != nil {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("decode variables: %v", err))
	}
	return nil
}

// CompleteJob completes job with output as its variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("send complete job command: %w", err)
	}
	metrics.WorkerJobsCompleted.WithLabelValues(job.Type).Inc()
	return nil
}
