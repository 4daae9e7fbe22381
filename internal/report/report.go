package report

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lox/hruclean/internal/models"
)

// Style holds the colours used when rendering tables.
type Style struct {
	Border lipgloss.Style
	Title  lipgloss.Style
}

func DefaultStyle() Style {
	return Style{
		Border: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
	}
}

func PlainStyle() Style {
	return Style{Border: lipgloss.NewStyle(), Title: lipgloss.NewStyle()}
}

func (st Style) table(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.Border).
		Headers(headers...)
}

// Comparison renders runs side by side, one column per run.
func Comparison(runs []models.Run, st Style) string {
	headers := []string{""}
	for _, r := range runs {
		headers = append(headers, Name(r))
	}

	row := func(label string, value func(models.Run) string) []string {
		cells := []string{label}
		for _, r := range runs {
			cells = append(cells, value(r))
		}
		return cells
	}

	t := st.table(headers...).Rows(
		row("area tolerance", func(r models.Run) string { return Percent(r.AreaTol) }),
		row("mode", func(r models.Run) string { return mode(r.Merge) }),
		row("lock policy", func(r models.Run) string { return r.LockPolicy }),
		row("protected", func(r models.Run) string { return strconv.Itoa(r.Protected) }),
		row("locked", func(r models.Run) string { return strconv.Itoa(r.Locked) }),
		row("HRUs in", func(r models.Run) string { return strconv.Itoa(r.HRUsIn) }),
		row("HRUs out", func(r models.Run) string { return strconv.Itoa(r.HRUsOut) }),
		row("area in (km²)", func(r models.Run) string { return Area(r.AreaIn) }),
		row("area out (km²)", func(r models.Run) string { return Area(r.AreaOut) }),
		row("warnings", func(r models.Run) string { return strconv.Itoa(r.Warnings) }),
	)
	return st.Title.Render("Scenario comparison") + "\n" + t.String()
}

// Runs renders a run history listing, one row per run.
func Runs(runs []models.Run, st Style) string {
	t := st.table("ID", "Label", "Started", "Tol", "HRUs", "Warnings", "Status")
	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			r.Label,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			Percent(r.AreaTol),
			fmt.Sprintf("%d → %d", r.HRUsIn, r.HRUsOut),
			strconv.Itoa(r.Warnings),
			status(r),
		)
	}
	return t.String()
}

// Summary renders the per-sub-basin summary of a single run.
func Summary(summary []models.SubBasinSummary, st Style) string {
	t := st.table("SBID", "HRUs in", "HRUs out", "Area (km²)", "Threshold", "Merged", "Dropped", "Unmerged")
	for _, sb := range summary {
		t.Row(
			strconv.FormatInt(sb.SBID, 10),
			strconv.Itoa(sb.HRUsIn),
			strconv.Itoa(sb.HRUsOut),
			Area(sb.AreaOut),
			Area(sb.Threshold),
			strconv.Itoa(sb.Merged),
			strconv.Itoa(sb.Dropped),
			strconv.Itoa(sb.Unmerged),
		)
	}
	return t.String()
}

// Name labels a run by its label, falling back to the short ID.
func Name(r models.Run) string {
	if r.Label != "" {
		return r.Label
	}
	return shortID(r.ID)
}

func Percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', -1, 64) + "%"
}

func Area(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func mode(merge bool) string {
	if merge {
		return "merge"
	}
	return "drop"
}

func status(r models.Run) string {
	switch {
	case r.Success:
		return "ok"
	case r.FinishedAt.IsZero():
		return "running"
	default:
		return "failed"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
