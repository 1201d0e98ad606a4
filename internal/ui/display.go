package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"strategic-advisor/internal/session"
)

// Display renders the conversation to a terminal
type Display struct {
	out        io.Writer
	width      int
	showTraces bool
	traceCount int
	startTime  time.Time
	renderer   *glamour.TermRenderer
}

// NewDisplay creates a display writing to stdout
func NewDisplay(showTraces bool) *Display {
	return NewDisplayTo(os.Stdout, getTerminalWidth(), showTraces)
}

// NewDisplayTo creates a display writing to out at the given width
func NewDisplayTo(out io.Writer, width int, showTraces bool) *Display {
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-10, 20)),
	)

	return &Display{
		out:        out,
		width:      width,
		showTraces: showTraces,
		renderer:   renderer,
	}
}

// Color codes
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorGray    = "\033[90m"
)

// TracesExpanded reports whether the reasoning log is shown
func (d *Display) TracesExpanded() bool {
	return d.showTraces
}

// ToggleTraces expands or collapses the reasoning log
func (d *Display) ToggleTraces() bool {
	d.showTraces = !d.showTraces
	return d.showTraces
}

// ClearScreen clears the terminal
func (d *Display) ClearScreen() {
	fmt.Fprint(d.out, "\033[2J\033[H")
}

// PrintWelcome displays the banner and current routing
func (d *Display) PrintWelcome(endpoint string, threadID string) {
	fmt.Fprintf(d.out, "%s%s╔════════════════════════════════════════╗%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(d.out, "%s%s║   Strategic Meeting Assistant          ║%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(d.out, "%s%s╚════════════════════════════════════════╝%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(d.out, "\n%s%sEndpoint:%s %s\n", colorBold, colorGray, colorReset, endpoint)
	fmt.Fprintf(d.out, "%sSession:%s %s\n", colorGray, colorReset, threadID)
	fmt.Fprintf(d.out, "%sCommands:%s /exit | /clear | /history | /traces | /mode advisor|executive | /mock | /reset\n", colorGray, colorReset)
	fmt.Fprintln(d.out)
}

// PrintSeparator prints a visual separator
func (d *Display) PrintSeparator() {
	line := strings.Repeat("─", min(d.width, 80))
	fmt.Fprintf(d.out, "%s%s%s\n", colorDim, line, colorReset)
}

// PrintPrompt displays user input prompt
func (d *Display) PrintPrompt() {
	fmt.Fprintf(d.out, "\n%s%s❯%s ", colorBold, colorGreen, colorReset)
}

// PrintUserMessage displays a user turn
func (d *Display) PrintUserMessage(turn session.Turn) {
	fmt.Fprintf(d.out, "\n%s┌─ You · %s%s\n", colorGray, turn.CreatedAt.Format("15:04:05"), colorReset)
	fmt.Fprintf(d.out, "%s│%s %s\n", colorGray, colorReset, turn.Content)
	fmt.Fprintf(d.out, "%s└%s\n", colorGray, colorReset)
}

// TurnStarted opens the assistant bubble
func (d *Display) TurnStarted(turn session.Turn) {
	d.startTime = time.Now()
	d.traceCount = 0
	fmt.Fprintf(d.out, "\n%s┌─ Advisor · %s%s\n", colorGray, turn.CreatedAt.Format("15:04:05"), colorReset)
	if d.showTraces {
		fmt.Fprintf(d.out, "%s│ ▼ Agent Reasoning Stream%s\n", colorCyan, colorReset)
	}
}

// ContentReplaced marks each final-answer update. The content itself is
// rendered once the turn completes.
func (d *Display) ContentReplaced(_ string, content string) {
	if content == "" {
		return
	}
	fmt.Fprintf(d.out, "%s│ … answer updated%s\n", colorDim, colorReset)
}

// TraceAppended prints one reasoning log entry as it arrives
func (d *Display) TraceAppended(_ string, tr session.TraceEvent) {
	d.traceCount++
	if !d.showTraces {
		return
	}
	d.printTrace(tr)
}

// TurnCompleted renders the final assistant content as markdown
func (d *Display) TurnCompleted(turn session.Turn) {
	if !d.showTraces && len(turn.Traces) > 0 {
		fmt.Fprintf(d.out, "%s│ ▶ Agent Reasoning Stream (%d entries, /traces to expand)%s\n", colorCyan, len(turn.Traces), colorReset)
	}
	fmt.Fprintf(d.out, "%s│%s\n", colorGray, colorReset)

	if turn.Content == "" {
		fmt.Fprintf(d.out, "%s│ ...%s\n", colorDim, colorReset)
	} else {
		for _, line := range strings.Split(d.renderMarkdown(turn.Content), "\n") {
			fmt.Fprintf(d.out, "%s│%s %s\n", colorGray, colorReset, line)
		}
	}

	fmt.Fprintf(d.out, "%s│ ⏱  %s · %d trace events%s\n", colorGray, formatDuration(time.Since(d.startTime)), d.traceCount, colorReset)
	fmt.Fprintf(d.out, "%s└%s\n", colorGray, colorReset)
}

// SystemMessage prints an error-channel turn
func (d *Display) SystemMessage(turn session.Turn) {
	fmt.Fprintf(d.out, "\n%s✗ %s%s\n", colorRed, turn.Content, colorReset)
}

// PrintTurns replays a stored conversation
func (d *Display) PrintTurns(turns []session.Turn) {
	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			d.PrintUserMessage(t)
		case session.RoleSystem:
			d.SystemMessage(t)
		default:
			fmt.Fprintf(d.out, "\n%s┌─ Advisor · %s%s\n", colorGray, t.CreatedAt.Format("15:04:05"), colorReset)
			if d.showTraces {
				for _, tr := range t.Traces {
					d.printTrace(tr)
				}
			}
			for _, line := range strings.Split(d.renderMarkdown(t.Content), "\n") {
				fmt.Fprintf(d.out, "%s│%s %s\n", colorGray, colorReset, line)
			}
			fmt.Fprintf(d.out, "%s└%s\n", colorGray, colorReset)
		}
	}
}

// PrintInfo displays info message
func (d *Display) PrintInfo(msg string) {
	fmt.Fprintf(d.out, "%sℹ %s%s\n", colorCyan, msg, colorReset)
}

// PrintWarning displays warning message
func (d *Display) PrintWarning(msg string) {
	fmt.Fprintf(d.out, "%s⚠ %s%s\n", colorYellow, msg, colorReset)
}

// PrintError displays error message
func (d *Display) PrintError(err error) {
	fmt.Fprintf(d.out, "%s✗ Error: %v%s\n", colorRed, err, colorReset)
}

// PrintSuccess displays success message
func (d *Display) PrintSuccess(msg string) {
	fmt.Fprintf(d.out, "%s✓ %s%s\n", colorGreen, msg, colorReset)
}

// PrintGoodbye displays goodbye message
func (d *Display) PrintGoodbye() {
	fmt.Fprintf(d.out, "\n%s%sSession closed.%s\n", colorBold, colorCyan, colorReset)
}

func (d *Display) printTrace(tr session.TraceEvent) {
	fmt.Fprintf(d.out, "%s│  %s[%s]%s %s%s%s\n", colorGray, nodeColor(tr.Node), strings.ToUpper(tr.Node), colorReset, colorDim, tr.Type, colorReset)
	if text := strings.TrimSpace(tr.Content.PlainText()); text != "" {
		for _, line := range strings.Split(truncate(text, 600), "\n") {
			fmt.Fprintf(d.out, "%s│    %s%s\n", colorGray, line, colorReset)
		}
	}
	for _, tc := range tr.ToolCalls {
		args, _ := json.Marshal(tc.Args)
		fmt.Fprintf(d.out, "%s│    → %s %s%s\n", colorGray, tc.ToolName, args, colorReset)
	}
}

func (d *Display) renderMarkdown(content string) string {
	if d.renderer == nil {
		return content
	}
	rendered, err := d.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}

// Helper functions

func nodeColor(node string) string {
	switch node {
	case "Supervisor", "model":
		return colorMagenta
	case "Critic", "backend":
		return colorRed
	default:
		return colorBlue
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
