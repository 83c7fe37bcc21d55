package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List services, presets and required programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			catalog, err := NewCatalog(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output != outputHuman {
				return writeStructured(out, output, map[string]any{
					"services": catalog.Registry.Definitions(),
					"presets":  catalog.Presets.Presets(),
					"programs": catalog.Registry.Programs(),
				})
			}
			return printCatalog(out, catalog)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputHuman, "Output format (human, json, yaml)")
	return cmd
}

func printCatalog(w io.Writer, catalog *Catalog) error {
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Fprintln(w, "Services")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, def := range catalog.Registry.Definitions() {
		missing := ""
		if err := catalog.Registry.CheckRequirements(def.ID); err != nil {
			missing = color.RedString("missing: %s", strings.Join(def.Requirements, ", "))
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", def.ID, def.Category, def.Name, missing)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	cyan.Fprintln(w, "Presets")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range catalog.Presets.Presets() {
		ids := make([]string, 0, len(p.Items))
		for _, item := range p.Items {
			ids = append(ids, item.ServiceID)
		}
		kind := "custom"
		if p.BuiltIn {
			kind = "built-in"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", p.ID, kind, strings.Join(ids, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	cyan.Fprintln(w, "Programs")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range catalog.Registry.Programs() {
		state := color.GreenString("found")
		if !p.Available {
			state = color.RedString("not found")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", p.ID, p.Name, state, p.Path)
	}
	return tw.Flush()
}
