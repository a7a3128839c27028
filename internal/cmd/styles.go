package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	colorsOn   = !shouldDisableColors()
	ellipsis   = "…"
)

// Route column bounds for model tables.
const (
	minRouteColumn = 12
	maxRouteColumn = 48
)

// paint renders s with style unless colors are off.
func paint(style lipgloss.Style, s string) string {
	if !colorsOn {
		return s
	}
	return style.Render(s)
}

func applyColorMode() error {
	switch colorMode {
	case "", "auto":
		colorsOn = !shouldDisableColors()
	case "always":
		colorsOn = true
		// lipgloss drops styling when stdout is not a terminal.
		lipgloss.SetColorProfile(termenv.ANSI256)
	case "never":
		colorsOn = false
	default:
		return fmt.Errorf("invalid --color %q (must be auto, always, or never)", colorMode)
	}
	return nil
}

func shouldDisableColors() bool {
	// NO_COLOR (https://no-color.org/) and CLICOLOR=0
	if termenv.EnvNoColor() {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return true
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return true
	}
	if runtime.GOOS == "windows" {
		if os.Getenv("WT_SESSION") != "" || os.Getenv("TERM_PROGRAM") != "" {
			return false
		}
		return os.Getenv("ANSICON") == "" && os.Getenv("ConEmuANSI") != "ON"
	}
	return false
}

// truncate shortens s to maxWidth display columns, keeping the head.
func truncate(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 1 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, ellipsis)
}

// padRight pads s with spaces to width display columns.
func padRight(s string, width int) string {
	if w := runewidth.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// column truncates then pads s so route tables line up with wide runes.
func column(s string, width int) string {
	return padRight(truncate(s, width), width)
}

// termWidth returns the terminal width, falling back to $COLUMNS and then 80.
func termWidth() int {
	if w := getTermWidthIoctl(); w > 0 {
		return w
	}
	if w, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && w > 0 {
		return w
	}
	return 80
}

// routeColumnWidth sizes each route column of a two-route table row,
// leaving room for the arrow and score columns.
func routeColumnWidth(width int) int {
	w := (width - 36) / 2
	if w < minRouteColumn {
		return minRouteColumn
	}
	if w > maxRouteColumn {
		return maxRouteColumn
	}
	return w
}
