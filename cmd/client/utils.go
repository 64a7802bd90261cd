package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/vaultsync/internal/client"
	"github.com/openmined/vaultsync/internal/client/sync"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	// https://github.com/fidian/ansi
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))

	label = lipgloss.NewStyle().Width(12).Foreground(lipgloss.Color("248"))
	box   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("242")).Padding(0, 1)
)

func row(name, value string) string {
	return label.Render(name) + value
}

// renderResult prints the summary of one pass.
func renderResult(w io.Writer, op string, res *sync.SyncResult) {
	status := green.Render("ok")
	if !res.Success() {
		status = red.Render("failed")
	}

	lines := []string{
		row("Operation", cyan.Render(op)+" "+status),
		row("Added", fmt.Sprint(res.Added)),
		row("Modified", fmt.Sprint(res.Modified)),
		row("Deleted", fmt.Sprint(res.Deleted)),
		row("Took", res.Duration.Round(time.Millisecond).String()),
	}
	if len(res.Conflicts) > 0 {
		lines = append(lines, row("Conflicts", yellow.Render(fmt.Sprint(len(res.Conflicts)))))
		for _, p := range res.Conflicts {
			lines = append(lines, "  "+yellow.Render(p))
		}
	}
	if len(res.Errors) > 0 {
		lines = append(lines, row("Errors", red.Render(fmt.Sprint(len(res.Errors)))))
		for _, e := range res.Errors {
			lines = append(lines, "  "+red.Render(e))
		}
	}

	fmt.Fprintln(w, box.Render(strings.Join(lines, "\n")))
}

// renderDiff prints what push or pull would transfer.
func renderDiff(w io.Writer, diff *sync.DiffResult) {
	if diff.Empty() {
		fmt.Fprintln(w, green.Render("Vault and remote are identical"))
		return
	}

	section := func(title string, style lipgloss.Style, marker string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Fprintf(w, "%s (%d)\n", lightGray.Render(title), len(paths))
		for _, p := range paths {
			fmt.Fprintf(w, "  %s %s\n", style.Render(marker), p)
		}
	}

	section("Only in vault", green, "+", diff.LocalOnly)
	section("Only on remote", cyan, "-", diff.RemoteOnly)
	section("Different on both sides", yellow, "~", diff.Conflicts)
}

func renderStatus(w io.Writer, serverURL string, st *client.Status) {
	remote := green.Render("reachable")
	if st.RemoteErr != nil {
		remote = red.Render("unreachable") + " " + gray.Render(st.RemoteErr.Error())
	}

	lines := []string{
		row("State", cyan.Render(st.State.String())),
		row("Remote", remote),
	}
	if serverURL != "" {
		lines = append(lines, row("Server", serverURL))
	}
	lines = append(lines,
		row("Tracked", fmt.Sprintf("%d files", st.Tracked)),
		row("Local", fmt.Sprintf("%d files, %s", st.LocalFiles, humanize.Bytes(uint64(st.LocalBytes)))),
	)
	if st.LastResult != nil {
		lines = append(lines, row("Last sync", st.LastResult.String()))
	}

	fmt.Fprintln(w, box.Render(strings.Join(lines, "\n")))
}
