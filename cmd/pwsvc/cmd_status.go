package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pwsvc/internal/store"
	"pwsvc/internal/usage"
)

// statusCmd prints the latest artifacts.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest digest, project totals and runs",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if !cfg.Store.Enabled {
		fmt.Fprintln(out, styles.Muted.Render("artifact store disabled (store.enabled: false)"))
		return nil
	}

	s, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return fail(err)
	}
	defer s.Close()
	ctx := cmd.Context()

	fmt.Fprintln(out, styles.Title.Render("Latest digest"))
	sum, err := s.LatestSummary(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintln(out, styles.Muted.Render("  none yet"))
	case err != nil:
		return fail(err)
	default:
		fmt.Fprintln(out, styles.Box.Render(sum.Summary))
		fmt.Fprintf(out, "  %s %s  %s %s  %s %d  %s %s/%s\n",
			styles.Label.Render("at"), sum.DatetimeSummary,
			styles.Label.Render("cutoff"), sum.Cutoff,
			styles.Label.Render("sections"), sum.SectionsIncluded,
			styles.Label.Render("model"), sum.Provider, sum.Model)
		if sum.Fallback {
			fmt.Fprintln(out, styles.Warning.Render("  extraction fell back to the whole document"))
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, styles.Title.Render("Latest project totals"))
	totals, err := s.LatestProjectTotals(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintln(out, styles.Muted.Render("  none yet"))
	case err != nil:
		return fail(err)
	default:
		writeTotals(out, totals)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, styles.Title.Render("Runs"))
	runs, err := s.LatestRuns(ctx)
	if err != nil {
		return fail(err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, styles.Muted.Render("  none yet"))
	}
	for _, r := range runs {
		state := styles.Success.Render("ok")
		if r.Err != "" {
			state = styles.Error.Render("failed: " + r.Err)
		}
		fmt.Fprintf(out, "  %-9s %s  %s  %s\n", r.Service,
			r.FinishedAt.Format("2006-01-02 15:04:05"), state, styles.Muted.Render(r.RunID))
	}

	if tracker, err := usage.NewTracker(cfg.UsagePath()); err == nil {
		stats := tracker.Stats()
		if stats.Total.Calls > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, styles.Title.Render("LLM usage"))
			models := make([]string, 0, len(stats.ByModel))
			for m := range stats.ByModel {
				models = append(models, m)
			}
			sort.Strings(models)
			for _, m := range models {
				c := stats.ByModel[m]
				fmt.Fprintf(out, "  %-24s %6d calls %10d tokens\n", m, c.Calls, c.Total)
			}
		}
	}
	return nil
}

func writeTotals(out io.Writer, r store.ProjectTotalsRecord) {
	if len(r.Totals) == 0 {
		fmt.Fprintln(out, styles.Muted.Render("  no tracked time, collected "+r.DatetimeCollected))
		return
	}
	width := 0
	for _, t := range r.Totals {
		width = max(width, lipgloss.Width(t.ProjectName))
	}
	var sum float64
	for _, t := range r.Totals {
		pad := strings.Repeat(" ", width-lipgloss.Width(t.ProjectName))
		fmt.Fprintf(out, "  %s%s  %7.2f h\n", t.ProjectName, pad, t.Hours)
		sum += t.Hours
	}
	fmt.Fprintf(out, "  %s  %7.2f h  %s\n", strings.Repeat(" ", width), sum,
		styles.Muted.Render("collected "+r.DatetimeCollected))
}
