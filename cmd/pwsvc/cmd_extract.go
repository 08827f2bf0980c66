package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"pwsvc/internal/service"
)

var (
	extractDays   int
	extractPretty bool
)

// extractCmd previews the extraction of a local document.
var extractCmd = &cobra.Command{
	Use:   "extract [docx]",
	Short: "Print the recent sections of a local LEFT-OFF document",
	Long: `Runs the date-bounded extraction on a local .docx file and prints the retained
markdown. Statistics go to stderr. Defaults to the downloaded copy in the data directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().IntVar(&extractDays, "days", 0, "Retention window in days (default from config)")
	extractCmd.Flags().BoolVar(&extractPretty, "pretty", false, "Render the markdown for the terminal")
}

func runExtract(cmd *cobra.Command, args []string) error {
	path := cfg.LeftOffFilePath()
	if len(args) == 1 {
		path = args[0]
	}
	days := extractDays
	if days <= 0 {
		days = cfg.LeftOff.RetentionDays
	}

	res, err := service.ReadLocal(path, clock(), days)
	if err != nil {
		return fail(err)
	}

	markup := res.Markup()
	if extractPretty {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			if rendered, rerr := renderer.Render(markup); rerr == nil {
				markup = rendered
			}
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), markup)

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "cutoff: %s  sections: %d  blocks: %d/%d\n",
		res.CutoffString(), res.SectionsIncluded, res.BlocksRetained, res.BlocksTotal)
	if res.Fallback {
		fmt.Fprintln(errOut, styles.Warning.Render("no dated heading older than the window; whole document retained"))
	}
	return nil
}
