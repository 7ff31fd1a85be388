package render

import (
	"time"

	"github.com/mlindgren/vaultagent/internal/store"
)

// Runs renders execution history from the audit store.
type Runs struct {
	*Writer
}

// NewRuns creates a Runs renderer writing to stdout.
func NewRuns() *Runs {
	return &Runs{Writer: Stdout()}
}

// History renders a list of recorded runs.
func (r *Runs) History(runs []store.Run) {
	if len(runs) == 0 {
		r.Empty("No recorded runs")
		return
	}

	r.Header("RUN HISTORY (%d runs)", len(runs))

	for _, run := range runs {
		icon := StatusIcon(run.Status)
		r.Println("%s [%s] %s %s",
			icon,
			run.CompletedAt.Format("2006-01-02 15:04:05"),
			run.AgentPath,
			FormatDuration(time.Duration(run.DurationMs)*time.Millisecond),
		)
		if run.SpawnedBy != "" {
			r.Nested("spawned by %s (depth %d)", shortID(run.SpawnedBy), run.Depth)
		}
		if run.Error != "" {
			r.Nested("%s", Truncate(run.Error, 70))
		}
	}
}

// Summary renders aggregate run statistics.
func (r *Runs) Summary(stats store.RunStats) {
	r.Header("RUN STATISTICS")

	r.Item("Total runs:     %d", stats.Processed)
	r.Item("Failed:         %d", stats.Failed)
	if stats.AvgDurationMs > 0 {
		r.Item("Avg duration:   %.0fms", stats.AvgDurationMs)
	}
	if stats.TotalCost > 0 {
		r.Item("Total cost:     $%.4f", stats.TotalCost)
	}
}
