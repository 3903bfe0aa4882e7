package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/doctor"
	"github.com/weftlabs/weft/internal/output"
)

// newDoctorCmd creates the doctor command.
func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Diagnose the indexing environment",
		Long: `Check that indexing can work here: configuration, write
permissions, disk space, file descriptor limits, and the embedding
provider.

Doctor never changes anything. For index data problems, see
'weft verify'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runDoctor(ctx, cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	return cmd
}

// runDoctor resolves the root by hand instead of via resolveProject; a
// project whose config no longer loads is exactly what doctor is for.
func runDoctor(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path %s: %w", path, err)
	}
	root := config.FindProjectRoot(abs)

	report := doctor.Run(ctx, root, slog.Default())

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(output.New(cmd.OutOrStdout()), root, report)
	}

	if !report.Healthy {
		return fmt.Errorf("environment is not ready")
	}
	return nil
}

func printReport(out *output.Writer, root string, report doctor.Report) {
	out.Linef("Doctor: %s", root)
	out.Newline()

	for _, r := range report.Results {
		out.Linef("[%s] %s: %s", strings.ToUpper(string(r.Status)), r.Name, r.Message)
		if r.Detail != "" {
			out.Detail(r.Detail)
		}
	}

	out.Newline()
	switch report.Summary {
	case "ready":
		out.Success("environment is ready")
	case "ready with warnings":
		out.Warning("environment is ready, with warnings")
	default:
		out.Error("environment is not ready")
	}
}
