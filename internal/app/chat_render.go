package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"

	"vantage/internal/types"
)

var (
	styleUserLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleAgentLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	stylePlanLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	styleDim        = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleFailed     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	styleCompleted  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleArtifact   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("238")).
			PaddingLeft(1)
	stylePlanBlock = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("11")).
			Padding(0, 1)
)

const timestampLayout = "15:04"

// renderActivities turns the engine's window into viewport content,
// oldest first.
func renderActivities(activities []types.Activity, width int) string {
	if len(activities) == 0 {
		return styleDim.Render("No activity yet.")
	}
	blocks := make([]string, 0, len(activities))
	for _, act := range activities {
		blocks = append(blocks, renderActivity(act, width))
	}
	return strings.Join(blocks, "\n\n")
}

func renderActivity(act types.Activity, width int) string {
	header := activityHeader(act, width)
	switch act.Kind {
	case types.ActivityAgentMessage:
		return header + "\n" + renderMarkdown(act.Text, width)
	case types.ActivityUserMessage:
		return header + "\n" + wrapText(act.Text, width)
	case types.ActivityPlanGenerated:
		body := stylePlanBlock.Width(min(width, 100)).Render(wrapText(act.Text, min(width, 96)))
		return header + "\n" + body
	case types.ActivityPlanApproved:
		return header + "\n" + styleDim.Render("plan approved")
	case types.ActivityProgressUpdate:
		parts := []string{header}
		if text := strings.TrimSpace(act.Text); text != "" {
			parts = append(parts, wrapText(text, width))
		}
		if act.Diff != "" {
			parts = append(parts, styleArtifact.Render(wrapText(act.Diff, width-2)))
		}
		if act.Output != "" {
			parts = append(parts, styleArtifact.Render(wrapText(act.Output, width-2)))
		}
		return strings.Join(parts, "\n")
	case types.ActivitySessionCompleted:
		return header + "\n" + styleCompleted.Render("session completed")
	case types.ActivitySessionFailed:
		reason := strings.TrimSpace(act.Text)
		if reason == "" {
			reason = "session failed"
		}
		return header + "\n" + styleFailed.Render(reason)
	default:
		// Kinds newer than this build still render, just without styling.
		return header + "\n" + styleDim.Render(wrapText(act.Text, width))
	}
}

func activityHeader(act types.Activity, width int) string {
	var label string
	switch act.Kind {
	case types.ActivityUserMessage:
		label = styleUserLabel.Render("you")
	case types.ActivityAgentMessage:
		label = styleAgentLabel.Render("agent")
	case types.ActivityPlanGenerated, types.ActivityPlanApproved:
		label = stylePlanLabel.Render("plan")
	default:
		label = styleDim.Render(string(act.Kind))
	}
	ts := ""
	if !act.CreatedAt.IsZero() {
		ts = act.CreatedAt.Local().Format(timestampLayout)
	}
	if ts == "" {
		return label
	}
	gap := width - lipgloss.Width(label) - runewidth.StringWidth(ts)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + styleDim.Render(ts)
}

func wrapText(text string, width int) string {
	if width < 8 {
		width = 8
	}
	var b strings.Builder
	for i, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(wrapLine(line, width))
	}
	return b.String()
}

func wrapLine(line string, width int) string {
	if runewidth.StringWidth(line) <= width {
		return line
	}
	var b strings.Builder
	current := 0
	for _, r := range line {
		w := runewidth.RuneWidth(r)
		if current+w > width {
			b.WriteString("\n")
			current = 0
		}
		b.WriteRune(r)
		current += w
	}
	return b.String()
}

// pendingPlan returns the newest generated plan that has no later approval
// activity in the window.
func pendingPlan(activities []types.Activity) (string, bool) {
	for i := len(activities) - 1; i >= 0; i-- {
		switch activities[i].Kind {
		case types.ActivityPlanApproved:
			return "", false
		case types.ActivityPlanGenerated:
			return activities[i].PlanID, true
		case types.ActivitySessionCompleted, types.ActivitySessionFailed:
			return "", false
		}
	}
	return "", false
}

// lastAgentMessage is the copy target for the clipboard binding.
func lastAgentMessage(activities []types.Activity) (string, bool) {
	for i := len(activities) - 1; i >= 0; i-- {
		if activities[i].Kind == types.ActivityAgentMessage {
			return activities[i].Text, true
		}
	}
	return "", false
}
