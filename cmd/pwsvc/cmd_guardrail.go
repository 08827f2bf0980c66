package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pwsvc/internal/guardrail"
)

// guardrailCmd reports the time window decision without running anything.
var guardrailCmd = &cobra.Command{
	Use:   "guardrail",
	Short: "Check whether now is inside the execution window",
	Long: `Evaluates the execution window for the current time and exits with the
status a scheduled run would use: 0 to proceed, 2 when blocked.`,
	RunE: runGuardrail,
}

func init() {
	guardrailCmd.Flags().BoolVar(&runAnyway, "run-anyway", false, "Report the bypass outcome")
}

func runGuardrail(cmd *cobra.Command, args []string) error {
	d, err := decide(guardrail.Overrides{ExplicitBypass: runAnyway})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	style := styles.Success
	if !d.Allowed() {
		style = styles.Error
	}
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("outcome:"), style.Render(d.Outcome.String()))
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("now:"), d.Now.Format("2006-01-02 15:04:05 Mon"))
	fmt.Fprintf(out, "%s %s - %s\n", styles.Label.Render("window:"),
		d.WindowStart.Format("2006-01-02 15:04"), d.WindowEnd.Format("15:04"))
	if d.Reason != "" {
		fmt.Fprintf(out, "%s %s\n", styles.Label.Render("reason:"), d.Reason)
	}

	if !d.Allowed() {
		return &exitError{code: d.ExitCode(), err: fmt.Errorf("outside the allowed time window")}
	}
	return nil
}
