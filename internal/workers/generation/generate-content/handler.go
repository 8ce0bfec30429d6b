// internal/workers/generation/generate-content/handler.go
package generatecontent

import (
	"context"
	"strings"
	"time"

	"careerkit-credits/internal/common/camunda"
	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/generation"
	"careerkit-credits/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "generate-content"
)

type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// Handler generates the document for a feature already charged earlier in
// the process. It never charges credits itself.
type Handler struct {
	config    *Config
	generator Generator
	activity  *registry.Activity
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(config *Config, gen Generator, activity *registry.Activity, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		generator: gen,
		activity:  activity,
		errors:    apperrors.NewErrorHandler(l),
		logger:    l,
		now:       time.Now,
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
	feature := strings.TrimSpace(input.Feature)
	if feature == "" {
		return nil, apperrors.NewInvalidRequestError("feature is required")
	}

	doc, err := h.generator.Generate(ctx, generation.Request{Feature: feature, Input: input.Input})
	if err != nil {
		return nil, err
	}

	if doc.Fallback {
		h.logger.Warn("served fallback document", map[string]interface{}{
			"feature": doc.Feature,
			"reason":  doc.Reason,
		})
	}
	return &Output{
		Feature:          doc.Feature,
		Format:           string(doc.Format),
		Content:          doc.Content,
		Fallback:         doc.Fallback,
		FallbackReason:   doc.Reason,
		GeneratedAtEpoch: h.now().Unix(),
	}, nil
}
