package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer. Pretty output is intended for terminals;
// plain output for pipes and scripts.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Queue formats a queue snapshot.
func (r *Renderer) Queue(state orchestrator.QueueState) string {
	total := len(state.Pending) + len(state.Running) + len(state.Completed)
	if total == 0 {
		return "Queue is empty"
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(titleStyle.Render("Execution Queue") + "\n")
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	r.section(&sb, "Running", state.Running)
	r.section(&sb, "Pending", state.Pending)
	r.section(&sb, "Completed", state.Completed)

	return sb.String()
}

func (r *Renderer) section(sb *strings.Builder, name string, items []domain.QueueItem) {
	if len(items) == 0 {
		return
	}
	if r.pretty {
		fmt.Fprintf(sb, "\n%s (%d)\n", dimStyle.Render(name), len(items))
	} else {
		fmt.Fprintf(sb, "\n%s (%d)\n", name, len(items))
	}
	for _, item := range items {
		r.formatItem(sb, item)
	}
}

func (r *Renderer) formatItem(sb *strings.Builder, item domain.QueueItem) {
	icon := StatusIcon(string(item.Status))
	if r.pretty {
		switch item.Status {
		case domain.StatusCompleted:
			icon = color.GreenString(icon)
		case domain.StatusFailed:
			icon = color.RedString(icon)
		case domain.StatusRunning:
			icon = color.CyanString(icon)
		}
	}

	depth := ""
	if item.Depth > 0 {
		depth = fmt.Sprintf(" depth=%d", item.Depth)
	}

	dur := ""
	if item.Result != nil && item.Result.Duration > 0 {
		dur = " (" + FormatDuration(item.Result.Duration) + ")"
	}

	fmt.Fprintf(sb, "%s %s%s %s%s%s\n",
		icon, PriorityIcon(int(item.Priority)), shortID(item.ID),
		item.AgentPath, depth, dur)

	if item.Error != "" {
		msg := Truncate(item.Error, 70)
		if r.pretty {
			msg = failStyle.Render(msg)
		}
		fmt.Fprintf(sb, "    └─ %s\n", msg)
	}
}

// Agents formats the loaded agent definitions.
func (r *Renderer) Agents(agents []*domain.AgentDefinition) string {
	if len(agents) == 0 {
		return "No agents found"
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(titleStyle.Render(fmt.Sprintf("Agents (%d)", len(agents))) + "\n")
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, a := range agents {
		fmt.Fprintf(&sb, "%s  %s\n", a.Name, dimmed(r.pretty, a.Path))
		if a.Description != "" {
			fmt.Fprintf(&sb, "    %s\n", Truncate(a.Description, 70))
		}
		fmt.Fprintf(&sb, "    triggers: %s\n", describeTriggers(a.Triggers))
	}

	return sb.String()
}

func describeTriggers(t domain.TriggerConfig) string {
	var parts []string
	if len(t.OnCreate) > 0 {
		parts = append(parts, "create:"+strings.Join(t.OnCreate, ","))
	}
	if len(t.OnModify) > 0 {
		parts = append(parts, "modify:"+strings.Join(t.OnModify, ","))
	}
	if t.Cron != "" {
		parts = append(parts, "cron:"+t.Cron)
	}
	if t.Manual {
		parts = append(parts, "manual")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// Permissions formats pending permission requests.
func (r *Renderer) Permissions(reqs []domain.PermissionRequest) string {
	if len(reqs) == 0 {
		return "No pending permission requests"
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(titleStyle.Render(fmt.Sprintf("Pending Permissions (%d)", len(reqs))) + "\n")
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, req := range reqs {
		age := time.Since(req.CreatedAt).Round(time.Second)
		fmt.Fprintf(&sb, "%s  %s %s %s\n",
			shortID(req.ID), req.Action, req.Target, dimmed(r.pretty, age.String()+" ago"))
	}

	return sb.String()
}

// Stats formats orchestrator statistics.
func (r *Renderer) Stats(stats orchestrator.Stats) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(titleStyle.Render("Statistics") + "\n")
		sb.WriteString(strings.Repeat("─", 40) + "\n")
	}

	fmt.Fprintf(&sb, "  Processed:    %d\n", stats.Processed)
	fmt.Fprintf(&sb, "  Failed:       %d\n", stats.Failed)
	if stats.AverageDuration > 0 {
		fmt.Fprintf(&sb, "  Avg duration: %s\n", FormatDuration(stats.AverageDuration))
	}
	if stats.TotalCost > 0 {
		fmt.Fprintf(&sb, "  Total cost:   $%.4f\n", stats.TotalCost)
	}

	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dimmed(pretty bool, s string) string {
	if pretty {
		return dimStyle.Render(s)
	}
	return s
}
