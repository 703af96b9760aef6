package render

import (
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/seuros/scalex/internal/chart"
)

const defaultTerminalWidth = 100

var (
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtitleStyle = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	seriesStyle   = lipgloss.NewStyle().Underline(true)
	barStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	auxStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type terminalHandle struct {
	id uuid.UUID
}

// Terminal is a chart.Drawer that prints every create and update as a boxed
// bar chart.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	live  map[uuid.UUID]chart.Container
}

// NewTerminal draws to out, sized to the terminal when out is one.
func NewTerminal(out io.Writer) *Terminal {
	width := defaultTerminalWidth
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			width = w
		}
	}
	return &Terminal{out: out, width: width, live: make(map[uuid.UUID]chart.Container)}
}

func (t *Terminal) CreateHandle(container chart.Container, payload chart.Payload, meta chart.DisplayMeta) (chart.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := terminalHandle{id: uuid.New()}
	t.live[h.id] = container
	_, err := fmt.Fprintln(t.out, Text(payload, meta, t.width))
	return h, err
}

func (t *Terminal) UpdateHandle(handle chart.Handle, payload chart.Payload, meta chart.DisplayMeta) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := handle.(terminalHandle)
	if !ok {
		return fmt.Errorf("not a terminal handle: %T", handle)
	}
	if _, ok := t.live[h.id]; !ok {
		return fmt.Errorf("terminal handle %s already destroyed", h.id)
	}
	_, err := fmt.Fprintln(t.out, Text(payload, meta, t.width))
	return err
}

func (t *Terminal) DestroyHandle(handle chart.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := handle.(terminalHandle)
	if !ok {
		return fmt.Errorf("not a terminal handle: %T", handle)
	}
	if _, ok := t.live[h.id]; !ok {
		return fmt.Errorf("terminal handle %s already destroyed", h.id)
	}
	delete(t.live, h.id)
	return nil
}

// Live returns the number of handles not yet destroyed.
func (t *Terminal) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Text renders one chart as a boxed block no wider than width.
func Text(p chart.Payload, meta chart.DisplayMeta, width int) string {
	inner := max(width-4, 20)

	lines := []string{titleStyle.Render(meta.Title)}
	if meta.Subtitle != "" {
		lines = append(lines, subtitleStyle.Render(meta.Subtitle))
	}
	if meta.Error != "" {
		lines = append(lines, errorStyle.Render("error: "+meta.Error))
		return boxStyle.Width(inner).Render(strings.Join(lines, "\n"))
	}
	if p.Empty() {
		lines = append(lines, subtitleStyle.Render("no data"))
		return boxStyle.Width(inner).Render(strings.Join(lines, "\n"))
	}

	labelWidth := 0
	for _, l := range p.Labels {
		labelWidth = max(labelWidth, lipgloss.Width(l))
	}
	labelWidth = min(labelWidth, inner/3)

	for _, s := range p.Series {
		peak := 0.0
		for _, v := range s.Values {
			if v != nil {
				peak = math.Max(peak, math.Abs(*v))
			}
		}
		style := barStyle
		if s.StyleHints["role"] == "auxiliary" {
			style = auxStyle
		}

		lines = append(lines, "", seriesStyle.Render(s.Name))
		barWidth := max(inner-labelWidth-16, 4)
		for i, label := range p.Labels {
			var v *float64
			if i < len(s.Values) {
				v = s.Values[i]
			}
			lines = append(lines, row(label, labelWidth, v, peak, barWidth, style))
		}
		if hints := hintLine(s.StyleHints); hints != "" {
			lines = append(lines, subtitleStyle.Render(hints))
		}
	}
	return boxStyle.Width(inner).Render(strings.Join(lines, "\n"))
}

func row(label string, labelWidth int, v *float64, peak float64, barWidth int, style lipgloss.Style) string {
	name := lipgloss.NewStyle().Width(labelWidth).MaxWidth(labelWidth).Render(label)
	if v == nil {
		return name + " " + subtitleStyle.Render("n/a")
	}
	n := 0
	if peak > 0 {
		n = int(math.Round(math.Abs(*v) / peak * float64(barWidth)))
	}
	return name + " " + style.Render(strings.Repeat("█", n)) + " " + FormatValue(*v)
}

func hintLine(hints map[string]string) string {
	parts := make([]string, 0, len(hints))
	for _, k := range slices.Sorted(maps.Keys(hints)) {
		if k == "role" {
			continue
		}
		parts = append(parts, k+": "+hints[k])
	}
	return strings.Join(parts, "  ")
}

// FormatValue prints v without exponent and trailing zeros.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
