// cmd/tools/worker-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"careerkit-credits/pkg/registry"
)

func main() {
	activity := flag.String("activity", "", "Activity ID from registry (e.g., credits.balance.resolve)")
	outputDir := flag.String("output", "./internal/workers/", "Root directory for generated workers")
	registryPath := flag.String("registry", "configs/activity-registry.json", "Path to the activity registry JSON file")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *activity == "" {
		fmt.Println("Usage: worker-generator --activity <id> [--output <dir>] [--registry <path>] [--force]")
		os.Exit(1)
	}

	if err := run(*registryPath, *activity, *outputDir, *force); err != nil {
		fmt.Fprintf(os.Stderr, "worker-generator: %v\n", err)
		os.Exit(1)
	}
}

func run(registryPath, activityID, outputDir string, force bool) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("load registry %s: %w", registryPath, err)
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("invalid registry: %w", err)
	}

	var found *registry.Activity
	for i := range reg.Activities {
		if reg.Activities[i].ID == activityID {
			found = &reg.Activities[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("activity %q not found in %s", activityID, registryPath)
	}

	files, err := Render(found)
	if err != nil {
		return err
	}

	dir := WorkerDir(outputDir, found)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for name, src := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil && !force {
			fmt.Printf("skip %s (exists)\n", path)
			continue
		}
		if err := os.WriteFile(path, src, 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}
