package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRegistry() *ActivityRegistry {
	return &ActivityRegistry{
		Version: "1.0.0",
		Activities: []Activity{
			{
				ID:          "credits.consume.charge",
				DisplayName: "Consume Credits",
				Category:    "credits",
				TaskType:    "consume-credits",
				InputSchema: map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"userId", "feature"},
					"properties": map[string]interface{}{
						"userId":  map[string]interface{}{"type": "string", "minLength": 1},
						"feature": map[string]interface{}{"type": "string"},
					},
				},
			},
			{ID: "credits.balance.resolve", DisplayName: "Resolve Balance", Category: "credits", TaskType: "resolve-credit-balance"},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "activity-registry.json")
	require.NoError(t, sampleRegistry().Save(path))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Len(t, reg.Activities, 2)
	assert.NoError(t, reg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ActivityRegistry)
		want   string
	}{
		{"empty", func(r *ActivityRegistry) { r.Activities = nil }, "no activities"},
		{"duplicate id", func(r *ActivityRegistry) { r.Activities[1].ID = r.Activities[0].ID }, "duplicate activity ID"},
		{"bad naming", func(r *ActivityRegistry) { r.Activities[0].ID = "Consume_Credits" }, "domain.subdomain.action"},
		{"duplicate task type", func(r *ActivityRegistry) { r.Activities[1].TaskType = "consume-credits" }, "duplicate task type"},
		{"missing category", func(r *ActivityRegistry) { r.Activities[0].Category = "" }, "Category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := sampleRegistry()
			tt.mutate(reg)
			err := reg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestActivityValidateInput(t *testing.T) {
	reg := sampleRegistry()
	a, ok := reg.ByTaskType("consume-credits")
	require.True(t, ok)

	res, err := a.ValidateInput(map[string]interface{}{"userId": "u1", "feature": "cover_letter"})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = a.ValidateInput(map[string]interface{}{"feature": "cover_letter"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, res.HasErrors("userId"))

	noSchema, ok := reg.ByTaskType("resolve-credit-balance")
	require.True(t, ok)
	res, err = noSchema.ValidateInput(map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	_, ok = reg.ByTaskType("unknown")
	assert.False(t, ok)
}
