// Package doctor diagnoses the environment a project indexes in:
// configuration, permissions, disk space, process limits, and the
// embedding provider. Checks report, they never repair; index
// consistency is the verify command's job.
package doctor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/weftlabs/weft/internal/config"
)

// Status classifies one check's outcome.
type Status string

const (
	Pass Status = "pass"
	Warn Status = "warn"
	Fail Status = "fail"
)

// Result is one check's outcome.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
	Required bool   `json:"required"`
}

// Critical reports whether a required check failed.
func (r Result) Critical() bool {
	return r.Required && r.Status == Fail
}

// Report is the outcome of a full diagnosis.
type Report struct {
	Results []Result `json:"results"`

	// Summary is "ready", "ready with warnings", or "not ready".
	Summary string `json:"summary"`

	// Healthy is false when any required check failed.
	Healthy bool `json:"healthy"`
}

// Run diagnoses the project at root. It loads the configuration itself
// so a broken config file surfaces as a finding instead of aborting the
// diagnosis.
func Run(ctx context.Context, root string, logger *slog.Logger) Report {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, cfgResult := checkConfig(root)

	results := []Result{
		cfgResult,
		checkWritable(root),
		checkDiskSpace(root),
		checkFileLimit(),
	}
	if r, ok := checkMemory(); ok {
		results = append(results, r)
	}
	if cfg != nil {
		results = append(results, checkEmbedder(ctx, cfg, logger))
	}

	report := Report{Results: results, Healthy: true}
	warnings := false
	for _, r := range results {
		if r.Critical() {
			report.Healthy = false
		}
		if r.Status == Warn || (r.Status == Fail && !r.Required) {
			warnings = true
		}
	}
	switch {
	case !report.Healthy:
		report.Summary = "not ready"
	case warnings:
		report.Summary = "ready with warnings"
	default:
		report.Summary = "ready"
	}

	logger.Debug("doctor_complete",
		slog.String("summary", report.Summary),
		slog.Int("checks", len(results)))
	return report
}

// checkConfig loads the effective configuration. The loaded config is
// returned so later checks can use it; nil when loading failed.
func checkConfig(root string) (*config.Config, Result) {
	r := Result{Name: "config", Required: true}

	cfg, err := config.Load(root)
	if err != nil {
		r.Status = Fail
		r.Message = err.Error()
		r.Detail = fmt.Sprintf("fix or remove %s", filepath.Join(root, config.ProjectConfigName))
		return nil, r
	}

	r.Status = Pass
	if _, statErr := os.Stat(filepath.Join(root, config.ProjectConfigName)); statErr != nil {
		r.Message = "defaults (no " + config.ProjectConfigName + ")"
		r.Detail = "run 'weft init' to create one"
	} else {
		r.Message = config.ProjectConfigName + " loaded"
	}
	return cfg, r
}

// checkWritable verifies the index can be written: the project root
// must accept new files, and an existing data directory must too.
func checkWritable(root string) Result {
	r := Result{Name: "write_permissions", Required: true}

	dirs := []string{root}
	dataDir := config.DataDir(root)
	if _, err := os.Stat(dataDir); err == nil {
		dirs = append(dirs, dataDir)
	}

	for _, dir := range dirs {
		f, err := os.CreateTemp(dir, ".weft-doctor-*")
		if err != nil {
			r.Status = Fail
			r.Message = fmt.Sprintf("cannot write to %s", dir)
			r.Detail = err.Error()
			return r
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
	}

	r.Status = Pass
	r.Message = "OK"
	return r
}
