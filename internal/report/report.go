// Package report renders the operator report printed by the CLI: current
// risks, open alerts and recent batch jobs.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stocksense/stocksense/internal/models"
)

// DefaultRows caps each section.
const DefaultRows = 20

// Source supplies the data shown in the report.
type Source interface {
	ListRisks(ctx context.Context, filter models.RiskFilter) ([]*models.SpoilageRisk, error)
	TierCounts(ctx context.Context) (map[models.RiskTier]int, error)
	ListOpenAlerts(ctx context.Context) ([]*models.CriticalAlert, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.BatchJob, error)
}

// Report is a point-in-time view of the engine.
type Report struct {
	GeneratedAt time.Time
	TierCounts  map[models.RiskTier]int
	Risks       []*models.SpoilageRisk
	Alerts      []*models.CriticalAlert
	Jobs        []*models.BatchJob
}

// Build gathers the report data, up to rows entries per section.
func Build(ctx context.Context, src Source, now time.Time, rows int) (*Report, error) {
	if rows <= 0 {
		rows = DefaultRows
	}

	counts, err := src.TierCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting tiers: %w", err)
	}
	risks, err := src.ListRisks(ctx, models.RiskFilter{Limit: rows})
	if err != nil {
		return nil, fmt.Errorf("listing risks: %w", err)
	}
	alerts, err := src.ListOpenAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	if len(alerts) > rows {
		alerts = alerts[:rows]
	}
	jobs, err := src.ListJobs(ctx, models.JobFilter{Limit: rows})
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	return &Report{GeneratedAt: now, TierCounts: counts, Risks: risks, Alerts: alerts, Jobs: jobs}, nil
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	criticalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF4444"))
	highStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
)

func tierStyle(t models.RiskTier) (lipgloss.Style, bool) {
	switch t {
	case models.TierCritical:
		return criticalStyle, true
	case models.TierHigh:
		return highStyle, true
	}
	return lipgloss.Style{}, false
}

// Render writes the report to w.
func (r *Report) Render(w io.Writer) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render("StockSense spoilage report"))
	b.WriteString(mutedStyle.Render("  generated " + r.GeneratedAt.UTC().Format(time.RFC3339)))
	b.WriteString("\n\n")

	counts := make([]string, 0, len(models.AllTiers))
	for i := len(models.AllTiers) - 1; i >= 0; i-- {
		t := models.AllTiers[i]
		counts = append(counts, fmt.Sprintf("%s %d", t, r.TierCounts[t]))
	}
	b.WriteString("Tiers: " + strings.Join(counts, "  ") + "\n\n")

	b.WriteString(titleStyle.Render("Highest risks") + "\n")
	if len(r.Risks) == 0 {
		b.WriteString(mutedStyle.Render("No items scored yet.") + "\n")
	} else {
		b.WriteString(r.riskTable().Render())
	}
	b.WriteString("\n")

	b.WriteString(titleStyle.Render("Open alerts") + "\n")
	if len(r.Alerts) == 0 {
		b.WriteString(mutedStyle.Render("No open alerts.") + "\n")
	} else {
		b.WriteString(r.alertTable().Render())
	}
	b.WriteString("\n")

	b.WriteString(titleStyle.Render("Recent batch jobs") + "\n")
	if len(r.Jobs) == 0 {
		b.WriteString(mutedStyle.Render("No batch jobs.") + "\n")
	} else {
		b.WriteString(r.jobTable().Render())
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Report) riskTable() *Table {
	t := NewTable([]Column{
		{Title: "Product", Width: 24},
		{Title: "Category", Width: 10},
		{Title: "Days", Width: 5, Align: lipgloss.Right},
		{Title: "Score", Width: 6, Align: lipgloss.Right},
		{Title: "Tier", Width: 8},
		{Title: "Spoils", Width: 10},
		{Title: "Action", Width: 40},
	})
	for _, risk := range r.Risks {
		cells := []string{
			risk.ProductName,
			risk.Category,
			fmt.Sprintf("%d", risk.DaysUntilExpiry),
			fmt.Sprintf("%.2f", risk.RiskScore),
			risk.SpoilageRisk.String(),
			risk.PredictedSpoilageDate.String(),
			risk.RecommendedAction,
		}
		if style, ok := tierStyle(risk.SpoilageRisk); ok {
			t.AddStyledRow(style, cells...)
		} else {
			t.AddRow(cells...)
		}
	}
	return t
}

func (r *Report) alertTable() *Table {
	t := NewTable([]Column{
		{Title: "Opened", Width: 16},
		{Title: "Category", Width: 10},
		{Title: "Severity", Width: 8},
		{Title: "Items", Width: 5, Align: lipgloss.Right},
		{Title: "Title", Width: 40},
	})
	for _, a := range r.Alerts {
		cells := []string{
			a.CreatedAt.UTC().Format("2006-01-02 15:04"),
			a.Category,
			a.Severity.String(),
			fmt.Sprintf("%d", len(a.ProductIDs)),
			a.Title,
		}
		if style, ok := tierStyle(a.Severity); ok {
			t.AddStyledRow(style, cells...)
		} else {
			t.AddRow(cells...)
		}
	}
	return t
}

func (r *Report) jobTable() *Table {
	t := NewTable([]Column{
		{Title: "Created", Width: 16},
		{Title: "Scope", Width: 18},
		{Title: "Trigger", Width: 8},
		{Title: "Status", Width: 9},
		{Title: "Done", Width: 5, Align: lipgloss.Right},
		{Title: "Failed", Width: 6, Align: lipgloss.Right},
		{Title: "Summary", Width: 30},
	})
	for _, j := range r.Jobs {
		summary := ""
		if j.ErrorSummary != nil {
			summary = *j.ErrorSummary
		}
		cells := []string{
			j.CreatedAt.UTC().Format("2006-01-02 15:04"),
			j.Scope,
			string(j.Trigger),
			j.Status.String(),
			fmt.Sprintf("%d", j.ItemsProcessed),
			fmt.Sprintf("%d", j.ItemsFailed),
			summary,
		}
		if j.Status == models.JobStatusFailed {
			t.AddStyledRow(criticalStyle, cells...)
		} else {
			t.AddRow(cells...)
		}
	}
	return t
}
