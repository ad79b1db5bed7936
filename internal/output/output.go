// Package output provides consistent CLI output formatting with colors
// applied only when writing to a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/codesweep/codesweep/internal/metrics"
	"github.com/codesweep/codesweep/internal/search"
)

// Color palette, 256-color codes.
const (
	colorCyan   = "45"
	colorWhite  = "255"
	colorGray   = "245"
	colorRed    = "196"
	colorYellow = "220"
	colorGreen  = "114"
)

// Styles holds the render styles for one Writer.
type Styles struct {
	Header  lipgloss.Style
	Repo    lipgloss.Style
	Link    lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

func defaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorWhite)),
		Repo:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorCyan)),
		Link:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
	}
}

func plainStyles() Styles {
	return Styles{}
}

// Writer provides formatted output for the CLI.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a Writer; colors activate only when out is a terminal.
func New(out io.Writer) *Writer {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	styles := plainStyles()
	if useColor {
		styles = defaultStyles()
	}
	return &Writer{out: out, styles: styles}
}

// Printf writes a formatted line. Write errors on console output are
// intentionally ignored.
func (w *Writer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}

// Println writes a line.
func (w *Writer) Println(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Println(w.styles.Success.Render("✓ " + msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Println(w.styles.Warning.Render("⚠ " + msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Println(w.styles.Error.Render("✗ " + msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Response renders a search response as human-readable text.
func (w *Writer) Response(resp *search.Response) {
	header := fmt.Sprintf("%d results in %dms", resp.Total, resp.TotalElapsedMs)
	if resp.ServedFromCache {
		header += " (cached)"
	}
	w.Println(w.styles.Header.Render(header))
	w.Newline()

	for i, r := range resp.Results {
		location := fmt.Sprintf("%s:%s", r.Repo, r.FilePath)
		if r.StartLine > 0 {
			location += fmt.Sprintf(":%d", r.StartLine)
		}
		w.Printf("%2d. %s  %s\n", i+1, w.styles.Repo.Render(location),
			w.styles.Dim.Render(fmt.Sprintf("★%d %s", r.Stars, r.Provider)))
		if r.Snippet != "" {
			for _, line := range strings.Split(r.Snippet, "\n") {
				w.Printf("    %s\n", line)
			}
		}
		w.Printf("    %s\n", w.styles.Link.Render(r.PermalinkURL))
		w.Newline()
	}

	for _, f := range resp.Failures {
		w.Warningf("%s: %s (%s)", f.Provider, f.Message, f.Kind)
	}
}

// CacheStats renders cache statistics.
func (w *Writer) CacheStats(entries int, sizeBytes int64, oldest string) {
	w.Println(w.styles.Header.Render("Cache"))
	w.Printf("  entries: %d\n", entries)
	w.Printf("  approx size: %s\n", formatBytes(sizeBytes))
	if oldest != "" {
		w.Printf("  oldest entry: %s\n", oldest)
	}
}

// ProviderStats renders per-provider latency and hit-rate metrics.
func (w *Writer) ProviderStats(stats map[string]metrics.ProviderStats) {
	if len(stats) == 0 {
		w.Println(w.styles.Dim.Render("no recorded requests in window"))
		return
	}

	providers := make([]string, 0, len(stats))
	for provider := range stats {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	w.Printf("%-14s %8s %7s %7s %7s %7s %9s\n",
		"PROVIDER", "REQUESTS", "ERRORS", "P50", "P95", "P99", "HIT RATE")
	for _, provider := range providers {
		s := stats[provider]
		w.Printf("%-14s %8d %7d %5dms %5dms %5dms %8.1f%%\n",
			provider, s.RequestCount, s.ErrorCount, s.P50, s.P95, s.P99, s.CacheHitRate*100)
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
