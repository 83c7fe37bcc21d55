package cli

import (
	"autoservice/internal/models"
	"autoservice/internal/services"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newPredictCmd() *cobra.Command {
	var (
		output string
		preset bool
	)
	cmd := &cobra.Command{
		Use:   "predict ID",
		Short: "Estimate how long a service or preset takes on this machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			target := args[0]
			if preset {
				p, err := app.Presets.Preset(target)
				if err != nil {
					return err
				}
				target = services.PresetTargetID(p.ID)
			} else if _, err := app.Registry.DefinitionFor(target); err != nil {
				return err
			}

			fp, err := app.Fingerprint.Fingerprint(ctx)
			if err != nil {
				return fmt.Errorf("collecting fingerprint: %w", err)
			}
			prediction := app.Estimator.Predict(ctx, target, fp)

			out := cmd.OutOrStdout()
			if output != outputHuman {
				return writeStructured(out, output, prediction)
			}
			printPrediction(out, prediction)
			return nil
		},
	}
	cmd.Flags().BoolVar(&preset, "preset", false, "Treat ID as a preset id")
	cmd.Flags().StringVarP(&output, "output", "o", outputHuman, "Output format (human, json, yaml)")
	return cmd
}

func printPrediction(w io.Writer, p models.Prediction) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgCyan, color.Bold).Sprint(p.TargetID), roughDuration(p.Duration))
	switch p.Method {
	case models.PredictionModel:
		fmt.Fprintf(w, "   fitted model over %d of %d samples\n", p.UsedSamples, p.SampleCount)
	case models.PredictionMean:
		fmt.Fprintf(w, "   mean of %d samples\n", p.SampleCount)
	default:
		fmt.Fprintln(w, color.HiBlackString("   no samples yet, default estimate"))
	}
}
