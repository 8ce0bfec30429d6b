// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"careerkit-credits/pkg/registry"
)

const usage = `Usage: registry-updater <command> [flags]

Commands:
  add       Add an activity
  update    Change one field of an activity
  list      Print task types with their status
  validate  Validate the registry file

Examples:
  registry-updater add -id credits.refund.issue -displayName "Refund Credits" -description "Refunds credits for a failed generation" -category credits -taskType refund-credits
  registry-updater update -id credits.consume.charge -field status -value verified
  registry-updater list -path configs/activity-registry.json
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "registry-updater: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return fmt.Errorf("missing command")
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("path", "configs/activity-registry.json", "Path to registry file")

	switch args[0] {
	case "add":
		a := registry.Activity{Timeout: "10s", Version: "1.0.0"}
		fs.StringVar(&a.ID, "id", "", "Activity ID (e.g., credits.consume.charge)")
		fs.StringVar(&a.DisplayName, "displayName", "", "Display name")
		fs.StringVar(&a.Description, "description", "", "Description")
		fs.StringVar(&a.Category, "category", "", "Category (e.g., credits)")
		fs.StringVar(&a.TaskType, "taskType", "", "Zeebe task type (e.g., consume-credits)")
		fs.StringVar(&a.Version, "version", a.Version, "Version")
		fs.StringVar(&a.ImplementationStatus, "status", "planned", "planned, in-progress, completed or verified")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := addActivity(*path, a, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s\n", a.ID)
		return nil

	case "update":
		id := fs.String("id", "", "Activity ID to update")
		field := fs.String("field", "", "Field to update")
		value := fs.String("value", "", "New value")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" || *field == "" {
			return fmt.Errorf("update needs -id and -field")
		}
		if err := updateActivity(*path, *id, *field, *value, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(out, "updated %s.%s\n", *id, *field)
		return nil

	case "list":
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		reg, err := registry.LoadRegistry(*path)
		if err != nil {
			return err
		}
		return listActivities(reg, out)

	case "validate":
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		reg, err := registry.LoadRegistry(*path)
		if err != nil {
			return err
		}
		if err := reg.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(out, "registry ok, %d activities\n", len(reg.Activities))
		return nil

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// addActivity appends a and saves, creating the registry if needed. The
// result must still validate.
func addActivity(path string, a registry.Activity, now time.Time) error {
	reg, err := registry.LoadRegistry(path)
	if os.IsNotExist(err) {
		reg = &registry.ActivityRegistry{Version: "1.0.0"}
	} else if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	if a.InputSchema == nil {
		a.InputSchema = map[string]interface{}{"type": "object"}
	}
	if a.OutputSchema == nil {
		a.OutputSchema = map[string]interface{}{"type": "object"}
	}
	reg.Activities = append(reg.Activities, a)
	return save(reg, path, now)
}

func updateActivity(path, id, field, value string, now time.Time) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	var a *registry.Activity
	for i := range reg.Activities {
		if reg.Activities[i].ID == id {
			a = &reg.Activities[i]
			break
		}
	}
	if a == nil {
		return fmt.Errorf("activity %s not found", id)
	}

	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}
		a.Timeout = value
	case "retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid retries %q", value)
		}
		a.Retries = n
	case "errorCodes":
		a.ErrorCodes = splitList(value)
	case "workflows":
		a.Workflows = splitList(value)
	case "tags":
		a.Tags = splitList(value)
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return save(reg, path, now)
}

func save(reg *registry.ActivityRegistry, path string, now time.Time) error {
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}
	reg.LastUpdated = now.UTC().Format(time.RFC3339)
	return reg.Save(path)
}

func listActivities(reg *registry.ActivityRegistry, out io.Writer) error {
	acts := append([]registry.Activity(nil), reg.Activities...)
	sort.Slice(acts, func(i, j int) bool { return acts[i].TaskType < acts[j].TaskType })
	for _, a := range acts {
		if _, err := fmt.Fprintf(out, "%-28s %-12s %s\n", a.TaskType, a.ImplementationStatus, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
