package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(out, "autoservice: version info not available")
				return
			}
			fmt.Fprintf(out, "autoservice: %s\n", info.Main.Version)
			fmt.Fprintf(out, "go:          %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(out, "commit:      %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(out, "date:        %s\n", s.Value)
				case "vcs.modified":
					fmt.Fprintf(out, "dirty:       %s\n", s.Value)
				}
			}
		},
	}
}
