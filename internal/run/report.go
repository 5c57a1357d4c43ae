package run

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// FormatReport renders the hierarchical report as an ASCII table: one row
// per case, indented rows per scenario and step, and a totals footer. A
// failed run without a breakdown renders a single error card instead.
func FormatReport(rep *Report) string {
	if rep == nil {
		return ""
	}
	if len(rep.Cases) == 0 && rep.Failure != "" {
		return formatErrorCard(rep)
	}

	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle("Test Run Report")

	t.AppendHeader(table.Row{"Case / Scenario / Step", "Result", "Duration", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Case / Scenario / Step", WidthMax: 70, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, c := range rep.Cases {
		t.AppendRow(table.Row{c.Name, "", "", ""})
		for _, sc := range c.Scenarios {
			t.AppendRow(table.Row{fmt.Sprintf("├── %s", sc.Name), "", "", ""})
			for _, st := range sc.Steps {
				t.AppendRow(table.Row{
					fmt.Sprintf("│   └── %s", st.Definition),
					resultString(st.Passed),
					formatDuration(st.Duration),
					st.Error,
				})
			}
		}
		t.AppendSeparator()
	}

	if rep.FailedSteps > 0 {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	overall := "PASS"
	if rep.FailedSteps > 0 {
		overall = "FAIL"
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("TOTAL  %d passed / %d failed", rep.PassedSteps, rep.FailedSteps),
		overall,
		formatDuration(rep.Duration),
		"",
	})

	t.Render()
	return buf.String()
}

func formatErrorCard(rep *Report) string {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle("Test Run Failed")
	t.SetStyle(table.StyleColoredBlackOnRedWhite)
	t.AppendRow(table.Row{rep.Failure})
	if rep.Inconclusive {
		t.AppendRow(table.Row{"no step results are available for this run"})
	}
	t.Render()
	return buf.String()
}

func resultString(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
