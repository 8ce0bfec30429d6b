// internal/workers/generation/generate-content/models.go
package generatecontent

type Input struct {
	Feature string                 `json:"feature"`
	Input   map[string]interface{} `json:"input"`
}

type Output struct {
	Feature          string      `json:"feature"`
	Format           string      `json:"format"`
	Content          interface{} `json:"content"`
	Fallback         bool        `json:"fallback"`
	FallbackReason   string      `json:"fallbackReason,omitempty"`
	GeneratedAtEpoch int64       `json:"generatedAt"`
}
