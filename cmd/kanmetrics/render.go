package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/evanschultz/kanmetrics/internal/app"
	"github.com/evanschultz/kanmetrics/internal/kpi"
)

// palette styles report output for the terminal behind w.
// Non-terminal writers get plain text.
type palette struct {
	heading lipgloss.Style
	glyphs  map[byte]lipgloss.Style
	warn    lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		heading: r.NewStyle().Bold(true),
		glyphs: map[byte]lipgloss.Style{
			'N': r.NewStyle().Foreground(lipgloss.Color("12")),
			'I': r.NewStyle().Foreground(lipgloss.Color("11")),
			'D': r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
			'.': r.NewStyle().Foreground(lipgloss.Color("8")),
		},
		warn: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// bar colours each glyph run of a progress bar.
func (p palette) bar(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); {
		j := i
		for j < len(raw) && raw[j] == raw[i] {
			j++
		}
		run := raw[i:j]
		if style, ok := p.glyphs[raw[i]]; ok {
			run = style.Render(run)
		}
		b.WriteString(run)
		i = j
	}
	return b.String()
}

func renderBars(w io.Writer, bars []app.ProgressBar) error {
	p := newPalette(w)
	for _, bar := range bars {
		if _, err := fmt.Fprintf(w, "%6d %-4s %-11s %-8s %5.1f%% %s %s\n",
			bar.ID, bar.Kind, bar.Status, bar.FixedVersion, bar.PercentDone, p.bar(bar.Bar), bar.Subject); err != nil {
			return err
		}
	}
	return nil
}

func renderReport(w io.Writer, report app.Report) error {
	p := newPalette(w)
	s := report.Statistics
	lines := []string{
		p.heading.Render("kanmetrics report") + " " + report.RunID,
		fmt.Sprintf("today: %s  items: %d  timeline: %d working days", day(report.Today), report.Items, len(report.Timeline)),
		fmt.Sprintf("start: %s  last month: %s  expected: %s", day(s.StartDate), day(s.LastMonth), day(s.ETAExpected)),
		"",
		p.heading.Render("work items"),
		bucketLine("stories", s.Stories),
		bucketLine("defects", s.Defects),
		fmt.Sprintf("defects per story: %.2f", s.DefectsPerStory),
		"",
		p.heading.Render("velocity and lead time"),
		fmt.Sprintf("story velocity: %.2f/day (month ago %.2f, trend %s)", s.StoryVelocity, s.StoryVelocityLastMonth, orNA(s.StoryVelocityTrend)),
		fmt.Sprintf("defect velocity: %.2f/day (month ago %.2f, trend %s)", s.DefectVelocity, s.DefectVelocityLastMonth, orNA(s.DefectVelocityTrend)),
		fmt.Sprintf("story lead time: %.1f days (month ago %.1f, trend %s)", s.StoryLeadTime, s.StoryLeadTimeLastMonth, orNA(s.StoryLeadTimeTrend)),
		fmt.Sprintf("defect lead time: %.1f days (month ago %.1f, trend %s)", s.DefectLeadTime, s.DefectLeadTimeLastMonth, orNA(s.DefectLeadTimeTrend)),
	}
	if n := len(report.WIP); n > 0 {
		last := report.WIP[n-1]
		lines = append(lines, fmt.Sprintf("wip today: planned %d, in progress %d, done %d", last.Planned, last.InProgress, last.Done))
	}

	lines = append(lines, "", p.heading.Render("forecast"))
	if f := report.Forecast; f != nil {
		lines = append(lines,
			fmt.Sprintf("backlog: %d stories (%d incoming), %d future defects", f.BacklogSize, f.IncomingStories, f.EstimatedFutureDefects),
			fmt.Sprintf("eta very optimistic: %s", day(f.ETAVeryOptimistic)),
			fmt.Sprintf("eta optimistic: %s", day(f.ETAOptimistic)),
			fmt.Sprintf("eta probable: %s (%+d days vs expected)", day(f.ETAProbable), f.DeltaETA),
			fmt.Sprintf("eta pessimistic: %s", day(f.ETAPessimistic)),
			fmt.Sprintf("complete: %.1f%%  duration consumed: %.1f%%  overrun: %.1f%%", f.PercentComplete, f.PercentExpectedDurationConsumed, f.PercentOverrun),
		)
	} else {
		lines = append(lines, p.warn.Render("unavailable: "+report.ForecastError))
	}

	if len(report.UseCases) > 0 {
		lines = append(lines, "", p.heading.Render("use cases"))
		for _, uc := range report.UseCases {
			c := uc.Counts
			lines = append(lines, fmt.Sprintf("%6d %5.1f%% stories %d/%d done, %d unplanned, defects %d/%d done  %s",
				uc.ID, c.PercentDone, c.StoriesDone, c.Stories-c.StoriesUnplanned, c.StoriesUnplanned, c.Defects.Done, c.Defects.Total, uc.Subject))
		}
	}

	if len(s.Failures) > 0 {
		lines = append(lines, "", p.heading.Render("unavailable kpis"))
		for _, failure := range s.Failures {
			lines = append(lines, p.warn.Render(failure.KPI+": "+failure.Error))
		}
	}
	if len(report.Orphans) > 0 {
		lines = append(lines, "", fmt.Sprintf("orphans (unknown parent): %v", report.Orphans))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func bucketLine(name string, b kpi.Bucket) string {
	return fmt.Sprintf("%s: %d known, %d new, %d in progress, %d delivered, %d unplanned",
		name, b.Known, b.New, b.InProgress, b.Delivered, b.Unplanned)
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func orNA(trend string) string {
	if trend == "" {
		return "n/a"
	}
	return trend
}
