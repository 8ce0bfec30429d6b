// cmd/tools/worker-generator/generator.go
package main

import (
	"bytes"
	"fmt"
	"go/format"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"careerkit-credits/pkg/registry"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name         string
	PackageName  string
	TaskType     string
	Category     string
	Description  string
	Timeout      string
	ErrorCodes   []string
	InputFields  []Field
	OutputFields []Field
	Required     []Field
}

// Field is one top level property of an activity schema.
type Field struct {
	GoName  string
	GoType  string
	JSONTag string
}

func newWorkerData(a *registry.Activity) WorkerData {
	d := WorkerData{
		Name:         a.DisplayName,
		PackageName:  strings.ReplaceAll(a.TaskType, "-", ""),
		TaskType:     a.TaskType,
		Category:     a.Category,
		Description:  a.Description,
		Timeout:      a.Timeout,
		ErrorCodes:   a.ErrorCodes,
		InputFields:  schemaFields(a.InputSchema),
		OutputFields: schemaFields(a.OutputSchema),
	}

	required := map[string]bool{}
	if req, ok := a.InputSchema["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}
	for _, f := range d.InputFields {
		if required[f.JSONTag] && f.GoType == "string" {
			d.Required = append(d.Required, f)
		}
	}
	return d
}

// schemaFields extracts properties from a JSON schema object, sorted by name
// so generated code is stable.
func schemaFields(schema map[string]interface{}) []Field {
	props, _ := schema["properties"].(map[string]interface{})
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		details, _ := props[name].(map[string]interface{})
		fields = append(fields, Field{
			GoName:  upperFirst(name),
			GoType:  goTypeFromJSONType(details["type"]),
			JSONTag: name,
		})
	}
	return fields
}

// goTypeFromJSONType maps JSON schema types to Go types
func goTypeFromJSONType(jsonType interface{}) string {
	jt, _ := jsonType.(string)
	switch jt {
	case "string":
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	if strings.HasSuffix(s, "Id") {
		s = strings.TrimSuffix(s, "Id") + "ID"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// WorkerDir is where a worker for the activity lives below root.
func WorkerDir(root string, a *registry.Activity) string {
	return filepath.Join(root, a.Category, a.TaskType)
}

// Render produces gofmt'ed sources for every scaffold file, keyed by file
// name.
func Render(a *registry.Activity) (map[string][]byte, error) {
	data := newWorkerData(a)
	files := map[string]string{
		"config.go":       configTemplate,
		"models.go":       modelsTemplate,
		"handler.go":      handlerTemplate,
		"handler_test.go": testTemplate,
	}

	out := make(map[string][]byte, len(files))
	for name, text := range files {
		tmpl, err := template.New(name).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", name, err)
		}
		out[name] = src
	}
	return out, nil
}

const configTemplate = `// Scaffolded by worker-generator from the activity registry.
package {{ .PackageName }}

import (
	"time"

	"careerkit-credits/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Config{Timeout: timeout}
}
`

const modelsTemplate = `// Scaffolded by worker-generator from the activity registry.
package {{ .PackageName }}

type Input struct {
{{- range .InputFields }}
	{{ .GoName }} {{ .GoType }} ` + "`json:\"{{ .JSONTag }}\"`" + `
{{- end }}
}

type Output struct {
{{- range .OutputFields }}
	{{ .GoName }} {{ .GoType }} ` + "`json:\"{{ .JSONTag }}\"`" + `
{{- end }}
}
`

const handlerTemplate = `// Scaffolded by worker-generator from the activity registry.
package {{ .PackageName }}

import (
	"context"

	"careerkit-credits/internal/common/camunda"
	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// TaskType for {{ .Name }}: {{ .Description }}
const TaskType = "{{ .TaskType }}"

type Handler struct {
	config   *Config
	activity *registry.Activity
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, activity *registry.Activity, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		activity: activity,
		errors:   apperrors.NewErrorHandler(l),
		logger:   l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
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
{{- range .Required }}
	if input.{{ .GoName }} == "" {
		return nil, apperrors.NewInvalidRequestError("{{ .JSONTag }} is required")
	}
{{- end }}
	return &Output{}, nil
}
`

const testTemplate = `// Scaffolded by worker-generator from the activity registry.
package {{ .PackageName }}

import (
	"context"
	"testing"
	"time"

	"careerkit-credits/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(&Config{Timeout: time.Second}, nil, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
{{- range .Required }}
		{{ .GoName }}: "x",
{{- end }}
	})
	require.NoError(t, err)
	assert.NotNil(t, out)
}
`
