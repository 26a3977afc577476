// Package output renders run progress and the final run report, as colored
// console text or as JSON.
package output

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Latency   *color.Color
	Phase     *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Dim       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	s := &ColorScheme{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Latency:   color.New(color.FgBlue),
		Phase:     color.New(color.FgMagenta),
		Success:   color.New(color.FgGreen, color.Bold),
		Warn:      color.New(color.FgYellow, color.Bold),
		Error:     color.New(color.FgRed, color.Bold),
		Dim:       color.New(color.Faint),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
	// Colors are decided per writer, not by fatih/color's stdout probe.
	s.each((*color.Color).EnableColor)
	return s
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	s := DefaultColorScheme()
	s.each((*color.Color).DisableColor)
	return s
}

// SchemeFor picks the scheme for w: colored on a terminal that supports
// it, plain otherwise. NO_COLOR always wins over force.
func SchemeFor(w io.Writer, force bool) *ColorScheme {
	if os.Getenv("NO_COLOR") != "" {
		return NoColorScheme()
	}
	if force || (IsTerminal(w) && supportsColors()) {
		return DefaultColorScheme()
	}
	return NoColorScheme()
}

func (s *ColorScheme) each(fn func(*color.Color)) {
	for _, c := range []*color.Color{
		s.Title, s.Rule, s.Label, s.Value, s.Latency, s.Phase,
		s.Success, s.Warn, s.Error, s.Dim, s.Highlight,
	} {
		fn(c)
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func supportsColors() bool {
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// SuccessIcon returns a checkmark symbol in the scheme's success color
func (s *ColorScheme) SuccessIcon() string { return s.Success.Sprint("✓") }

// ErrorIcon returns an X symbol in the scheme's error color
func (s *ColorScheme) ErrorIcon() string { return s.Error.Sprint("✗") }

// WarningIcon returns a warning symbol in the scheme's warn color
func (s *ColorScheme) WarningIcon() string { return s.Warn.Sprint("⚠") }
