// internal/workers/generation/generate-content/config.go
package generatecontent

import (
	"time"

	"careerkit-credits/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig defaults to a longer timeout than the credit workers since the
// generation backend is slow.
func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Config{Timeout: timeout}
}
