package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/ShareFrame/internal/capture"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List capture backends",
	Long: `List every capture backend and whether it can run on this machine.

"auto" picks the first available of x11 and screenshot. The pipewire
backend asks the desktop portal for permission, so it is only used when
selected explicitly.`,
	Example: `  # Table output (default)
  shareframe backends

  # JSON output
  shareframe backends --format json`,
	RunE: runBackends,
}

var backendsFormat string

func init() {
	rootCmd.AddCommand(backendsCmd)
	backendsCmd.Flags().StringVarP(&backendsFormat, "format", "f", "table", "output format (table or json)")
}

func runBackends(cmd *cobra.Command, args []string) error {
	list := capture.Backends()

	switch backendsFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tAVAILABLE\tREASON")
		for _, b := range list {
			avail := "yes"
			if !b.Available {
				avail = "no"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Name, b.Kind, avail, b.Reason)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", backendsFormat)
	}
}
