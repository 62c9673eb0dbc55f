package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/liamcoop/storecheck/rules"
)

var (
	colorPass    = lipgloss.AdaptiveColor{Light: "#5F7A3A", Dark: "#A8B545"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFD93D"}
	colorFail    = lipgloss.AdaptiveColor{Light: "#B5382A", Dark: "#E05A3A"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A89984"}

	styleTitle = lipgloss.NewStyle().Bold(true)
	styleName  = lipgloss.NewStyle().Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)
	styleBadge = lipgloss.NewStyle().Bold(true).Width(10)
	styleBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

func badgeColor(r rules.Result) lipgloss.TerminalColor {
	if r.Locked {
		return colorMuted
	}
	switch r.Severity {
	case rules.SeverityPass:
		return colorPass
	case rules.SeverityFail:
		return colorFail
	default:
		return colorWarning
	}
}

// Terminal renders a report with colour badges inside a rounded box
func Terminal(rep rules.Report) string {
	var lines []string
	lines = append(lines, styleTitle.Render("Store page check"), "")

	for _, r := range rep.Results {
		badge := styleBadge.Foreground(badgeColor(r)).Render(Label(r))
		msg := r.Message
		if r.Locked {
			msg = styleMuted.Render(LockedHint)
		}
		lines = append(lines, fmt.Sprintf("%s %s  %s", badge, styleName.Render(r.Name), msg))
	}

	c := rep.Counts
	summary := strings.Join([]string{
		lipgloss.NewStyle().Foreground(colorPass).Render(fmt.Sprintf("%d pass", c.Pass)),
		lipgloss.NewStyle().Foreground(colorWarning).Render(fmt.Sprintf("%d warning", c.Warning)),
		lipgloss.NewStyle().Foreground(colorFail).Render(fmt.Sprintf("%d fail", c.Fail)),
		styleMuted.Render(fmt.Sprintf("%d locked", c.Locked)),
	}, styleMuted.Render(" · "))
	lines = append(lines, "", summary)

	return styleBox.Render(strings.Join(lines, "\n")) + "\n"
}
