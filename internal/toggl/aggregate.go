package toggl

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"pwsvc/internal/datefmt"
)

// NoProjectName labels entries without a project.
const NoProjectName = "No Project"

// ProjectTotal is the hours logged against one project.
type ProjectTotal struct {
	ProjectName string  `json:"project_name"`
	Hours       float64 `json:"hours_worked"`
}

// Aggregate sums positive durations per project id, rounds to hundredths of an
// hour and sorts by hours descending. Running timers (negative durations) are skipped.
func Aggregate(entries []TimeEntry, projects []Project) []ProjectTotal {
	names := make(map[int64]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}

	type key struct {
		id    int64
		valid bool
	}
	seconds := make(map[key]int64)
	var order []key
	for _, e := range entries {
		if e.Duration <= 0 {
			continue
		}
		k := key{}
		if e.ProjectID != nil {
			k = key{id: *e.ProjectID, valid: true}
		}
		if _, seen := seconds[k]; !seen {
			order = append(order, k)
		}
		seconds[k] += e.Duration
	}

	totals := make([]ProjectTotal, 0, len(order))
	for _, k := range order {
		name := NoProjectName
		if k.valid {
			var ok bool
			if name, ok = names[k.id]; !ok {
				name = fmt.Sprintf("Unknown Project (%d)", k.id)
			}
		}
		totals = append(totals, ProjectTotal{
			ProjectName: name,
			Hours:       math.Round(float64(seconds[k])/3600*100) / 100,
		})
	}

	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Hours > totals[j].Hours
	})
	return totals
}

// TotalHours sums the rounded project totals.
func TotalHours(totals []ProjectTotal) float64 {
	var sum float64
	for _, t := range totals {
		sum += t.Hours
	}
	return math.Round(sum*100) / 100
}

// WriteCSV writes totals to path with the collection timestamp on every row.
func WriteCSV(path string, totals []ProjectTotal, collected time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	stamp := datefmt.Timestamp(collected)
	if err := w.Write([]string{"project_name", "hours_worked", "datetime_collected"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range totals {
		row := []string{t.ProjectName, strconv.FormatFloat(t.Hours, 'f', -1, 64), stamp}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return f.Close()
}
