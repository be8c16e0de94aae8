package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"wpmcp/internal/protocol"
)

var (
	colorAccent = lipgloss.Color("214")
	colorOK     = lipgloss.Color("114")
	colorFail   = lipgloss.Color("203")
	colorWarn   = lipgloss.Color("220")
	colorLink   = lipgloss.Color("81")
	colorMuted  = lipgloss.Color("245")
)

// styles renders the serve banner, tool listings and check reports. Every
// renderer is a no-op unless the writer is a terminal.
type styles struct {
	enabled bool

	accent lipgloss.Style
	ok     lipgloss.Style
	fail   lipgloss.Style
	warn   lipgloss.Style
	link   lipgloss.Style
	muted  lipgloss.Style
	name   lipgloss.Style
}

func newStyles(w io.Writer, jsonMode bool) styles {
	enabled := false
	if !jsonMode {
		if f, ok := w.(*os.File); ok {
			enabled = term.IsTerminal(int(f.Fd()))
		}
	}
	s := styles{enabled: enabled}
	plain := lipgloss.NewStyle()
	s.accent, s.ok, s.fail, s.warn, s.link, s.muted, s.name = plain, plain, plain, plain, plain, plain, plain
	if !enabled {
		return s
	}
	s.accent = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	s.ok = lipgloss.NewStyle().Foreground(colorOK)
	s.fail = lipgloss.NewStyle().Bold(true).Foreground(colorFail)
	s.warn = lipgloss.NewStyle().Bold(true).Foreground(colorWarn)
	s.link = lipgloss.NewStyle().Foreground(colorLink).Underline(true)
	s.muted = lipgloss.NewStyle().Foreground(colorMuted)
	s.name = lipgloss.NewStyle().Bold(true)
	return s
}

func (s styles) banner(version string) string {
	return s.accent.Render(protocol.ServerName) + " " + s.muted.Render(version)
}

// kv pads the label so serve and check output line up in one column.
func (s styles) kv(key, value string) string {
	return "  " + s.muted.Render(fmt.Sprintf("%-14s", key+":")) + " " + value
}

func (s styles) sectionHeader(title string) string {
	return s.accent.Render(title)
}

func (s styles) dim(text string) string {
	return s.muted.Render(text)
}

func (s styles) url(u string) string {
	return s.link.Render(u)
}

func (s styles) success(text string) string {
	return s.ok.Render(text)
}

func (s styles) errPrefix() string {
	return s.fail.Render("ERROR:")
}

func (s styles) warnPrefix() string {
	return s.warn.Render("WARNING:")
}

// toolLine is one row of a tool listing: the registered name and the first
// line of its description.
func (s styles) toolLine(name, description string) string {
	return fmt.Sprintf("  %s  %s", s.name.Render(name), s.muted.Render(firstLine(description)))
}

// httpStatus renders a status code with its reason phrase, green for 2xx and
// red otherwise.
func (s styles) httpStatus(code int) string {
	text := fmt.Sprintf("%d %s", code, http.StatusText(code))
	if code >= 200 && code < 300 {
		return s.ok.Render(strings.TrimSpace(text))
	}
	return s.fail.Render(strings.TrimSpace(text))
}

func (s styles) separator(width int) string {
	if width <= 0 {
		width = 40
	}
	return s.muted.Render(strings.Repeat("─", width))
}
