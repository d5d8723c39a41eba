package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

var (
	colorPrimary = lipgloss.Color("#1cc2e3")
	colorGreen   = lipgloss.Color("#10B981")
	colorRed     = lipgloss.Color("#EF4444")
	colorYellow  = lipgloss.Color("#F59E0B")
	colorGray    = lipgloss.Color("#6B7280")

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	labelStyle   = lipgloss.NewStyle().Foreground(colorGray)
	successStyle = lipgloss.NewStyle().Foreground(colorGreen)
	failureStyle = lipgloss.NewStyle().Foreground(colorRed)
	pendingStyle = lipgloss.NewStyle().Foreground(colorYellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorGray)
)

const progressWidth = 24

func statusStyle(s account.Status) lipgloss.Style {
	switch {
	case s.IsCompleted():
		return successStyle
	case s.IsFailed():
		return failureStyle
	default:
		return pendingStyle
	}
}

// progressPrinter renders one progress line per finished attempt.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

// Update matches orchestrator.ProgressFunc.
func (p *progressPrinter) Update(done, total int, snap account.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, renderProgress(done, total, snap))
}

func renderProgress(done, total int, snap account.Snapshot) string {
	if total < 1 {
		total = 1
	}
	if done > total {
		done = total
	}
	filled := progressWidth * done / total
	bar := successStyle.Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", progressWidth-filled))
	return fmt.Sprintf("%s %d/%d %s %s", bar, done, total, snap.Email,
		statusStyle(snap.Status).Render(snap.Status.String()))
}

// printStatistics writes the aggregate block of a result.
func printStatistics(out io.Writer, title string, stats account.Statistics) {
	fmt.Fprintln(out, headerStyle.Render(title))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Environment:"), stats.Environment)
	fmt.Fprintf(out, "%s %d   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Total:"), stats.Total,
		labelStyle.Render("Success:"), successStyle.Render(fmt.Sprint(stats.Success)),
		labelStyle.Render("Failed:"), failureStyle.Render(fmt.Sprint(stats.Failed)),
		labelStyle.Render("Pending:"), pendingStyle.Render(fmt.Sprint(stats.Pending)))
	fmt.Fprintf(out, "%s %.1f%% (%s)\n", labelStyle.Render("Success rate:"), stats.SuccessRate, stats.Grade())

	if len(stats.ByStatus) == 0 {
		return
	}
	statuses := make([]account.Status, 0, len(stats.ByStatus))
	for s := range stats.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = statusStyle(s).Render(fmt.Sprintf("%s=%d", s, stats.ByStatus[s]))
	}
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("By status:"), strings.Join(parts, " "))
}

type column struct {
	header string
	width  int
}

var accountColumns = []column{
	{header: "EMAIL", width: 32},
	{header: "PASSWORD", width: 14},
	{header: "NICKNAME", width: 18},
	{header: "WID", width: 14},
	{header: "STATUS", width: 0},
}

// printAccounts writes one aligned row per snapshot. Passwords are masked
// unless reveal is set.
func printAccounts(out io.Writer, snaps []account.Snapshot, reveal bool) {
	headers := make([]string, len(accountColumns))
	total := 0
	for i, col := range accountColumns {
		headers[i] = headerStyle.Render(pad(col.header, col.width))
		total += max(col.width, len(col.header)) + 2
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Join(headers, "  "))
	fmt.Fprintln(out, mutedStyle.Render(strings.Repeat("-", total)))

	for _, s := range snaps {
		password := s.Password
		if !reveal {
			password = observability.Mask(password)
		}
		wid := s.WID()
		if wid == "" {
			wid = "N/A"
		}
		cells := []string{
			pad(truncate(s.Email, accountColumns[0].width), accountColumns[0].width),
			pad(truncate(password, accountColumns[1].width), accountColumns[1].width),
			pad(truncate(s.Nickname, accountColumns[2].width), accountColumns[2].width),
			pad(truncate(wid, accountColumns[3].width), accountColumns[3].width),
			statusStyle(s.Status).Render(s.Status.String()),
		}
		fmt.Fprintln(out, strings.Join(cells, "  "))
	}
}

// pad right-pads s to width runes.
func pad(s string, width int) string {
	n := len([]rune(s))
	if width <= 0 || n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// truncate shortens s to width runes with an ellipsis.
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
