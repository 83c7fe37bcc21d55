package cli

import (
	"autoservice/internal/models"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("run finished with failures")

type runOptions struct {
	preset   string
	services []string
	set      []string
	output   string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Run a preset or a list of services in the foreground",
		Long: `Run a preset or a list of services one at a time and print their results.

Examples:
  # Run the diagnostics preset
  autoservice run --preset diagnostics

  # Run two services, pinging a custom host
  autoservice run --service disk_space --service ping_test --set ping_test.host=1.1.1.1

  # Machine-readable result
  autoservice run --preset general -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServices(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "", "Preset to run")
	cmd.Flags().StringSliceVarP(&opts.services, "service", "s", nil, "Service to run, in order (repeatable)")
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "Option override as service.key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputHuman, "Output format (human, json, yaml)")
	return cmd
}

// planRequest turns the run flags into a plan request
func (o *runOptions) planRequest() (models.PlanRequest, error) {
	if o.preset != "" && len(o.services) > 0 {
		return models.PlanRequest{}, errors.New("use either --preset or --service, not both")
	}
	req := models.PlanRequest{PresetID: o.preset}
	for _, id := range o.services {
		req.Services = append(req.Services, models.PresetItem{ServiceID: strings.TrimSpace(id)})
	}
	overrides, err := parseOverrides(o.set)
	if err != nil {
		return models.PlanRequest{}, err
	}
	req.Overrides = overrides
	return req, nil
}

// parseOverrides parses service.key=value pairs. Values stay strings and are
// coerced against the option schema when the plan is resolved.
func parseOverrides(pairs []string) (map[string]models.OptionValues, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]models.OptionValues, len(pairs))
	for _, pair := range pairs {
		target, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: expected service.key=value", pair)
		}
		serviceID, key, ok := strings.Cut(strings.TrimSpace(target), ".")
		if !ok || serviceID == "" || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected service.key=value", pair)
		}
		if out[serviceID] == nil {
			out[serviceID] = models.OptionValues{}
		}
		out[serviceID][key] = value
	}
	return out, nil
}

func runServices(cmd *cobra.Command, opts *runOptions) error {
	if err := validateOutput(opts.output); err != nil {
		return err
	}
	req, err := opts.planRequest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	plan, err := app.Presets.Resolve(req)
	if err != nil {
		return err
	}

	sub := app.Hub.Subscribe("cli", 512)
	defer app.Hub.Unsubscribe(sub.ID)

	if _, err := app.Coordinator.Start(ctx, plan); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	human := opts.output == outputHuman
	if human {
		printPlanHeader(ctx, out, app, plan)
	}
	printed := watchRun(ctx, out, sub.Send, human, app.Coordinator)

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := app.Coordinator.Wait(waitCtx); err != nil {
		return fmt.Errorf("waiting for run to finish: %w", err)
	}

	final := app.Coordinator.CurrentState()
	if human {
		for _, r := range final.Completed[min(printed, len(final.Completed)):] {
			printResult(out, r)
		}
		printRunSummary(out, final)
	} else if err := writeStructured(out, opts.output, final); err != nil {
		return err
	}
	if final.Status == models.RunFailed {
		return errRunFailed
	}
	return nil
}

func printPlanHeader(ctx context.Context, w io.Writer, app *App, plan models.RunPlan) {
	cyan := color.New(color.FgCyan, color.Bold)
	title := "custom selection"
	if plan.PresetID != "" {
		title = "preset " + plan.PresetID
	}
	cyan.Fprintf(w, "🔧 Running %s (%d services)\n", title, len(plan.Items))

	fp, err := app.Fingerprint.Fingerprint(ctx)
	if err != nil {
		return
	}
	var total time.Duration
	for _, item := range plan.Items {
		total += app.Estimator.Predict(ctx, item.ServiceID, fp).Duration
	}
	fmt.Fprintf(w, "   Estimated time: %s\n\n", roughDuration(total))
}

// runControl is the part of the coordinator the run command drives
type runControl interface {
	Cancel() bool
	CurrentState() models.ServiceRunState
}

// watchRun renders events until the run reaches a terminal status. An
// interrupt cancels the run and keeps watching so partial results are shown.
// The state is polled too, since events may be dropped. It returns how many
// results were printed.
func watchRun(ctx context.Context, w io.Writer, events <-chan models.Event, human bool, run runControl) (printed int) {
	var s *spinner.Spinner
	if human {
		s = spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		defer s.Stop()
	}
	interrupted := ctx.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if run.CurrentState().Status.Terminal() {
				return
			}

		case <-interrupted:
			interrupted = nil
			run.Cancel()
			if human {
				color.New(color.FgYellow).Fprintln(w, "Cancelling...")
			}

		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Type {
			case models.EventServiceStarted:
				if human {
					s.Suffix = " " + event.ServiceID
					s.Start()
				}
			case models.EventProgress:
				if human && event.Progress != nil && event.Progress.Percent != nil {
					s.Suffix = fmt.Sprintf(" %s %.0f%%", event.ServiceID, *event.Progress.Percent)
				}
			case models.EventServiceCompleted:
				if human {
					s.Stop()
					if event.Result != nil {
						printResult(w, *event.Result)
						printed++
					}
				}
			case models.EventStatusChanged:
				if event.Status.Terminal() {
					return
				}
			}
		}
	}
}
