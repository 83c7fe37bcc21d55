package cli

import (
	"autoservice/internal/models"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

const (
	outputHuman = "human"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputHuman, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (human, json, yaml)", format)
	}
}

// writeStructured encodes v as json or yaml
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func statusColor(status models.ResultStatus) *color.Color {
	switch status {
	case models.ResultSuccess:
		return color.New(color.FgGreen, color.Bold)
	case models.ResultWarning:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func severityColor(severity models.Severity) *color.Color {
	switch severity {
	case models.SeverityCritical:
		return color.New(color.FgRed)
	case models.SeverityWarning:
		return color.New(color.FgYellow)
	case models.SeveritySuccess:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgCyan)
	}
}

func printResult(w io.Writer, r models.ServiceResult) {
	fmt.Fprintf(w, "%s %-18s %s\n",
		statusColor(r.Status).Sprintf("%-8s", r.Status),
		r.ServiceID,
		color.HiBlackString(r.Duration.Round(100*time.Millisecond).String()))
	for _, f := range r.Findings {
		fmt.Fprintf(w, "         %s %s\n", severityColor(f.Severity).Sprintf("[%s]", f.Severity), f.Message)
	}
}

func printRunSummary(w io.Writer, state models.ServiceRunState) {
	fmt.Fprintln(w)
	var c *color.Color
	switch state.Status {
	case models.RunCompleted:
		c = color.New(color.FgGreen, color.Bold)
	case models.RunCancelled:
		c = color.New(color.FgYellow, color.Bold)
	default:
		c = color.New(color.FgRed, color.Bold)
	}
	took := state.EndedAt.Sub(state.StartedAt).Round(time.Second)
	c.Fprintf(w, "Run %s: %d service(s) in %s\n", state.Status, len(state.Completed), took)
	fmt.Fprintf(w, "💡 %s\n", color.HiBlackString("Run with -o json or -o yaml for machine-readable output"))
}

func roughDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}
