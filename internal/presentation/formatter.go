package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/zjrosen/kiln/internal/hook"
)

// noMarginStyle removes glamour's document margins.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Formatter writes command output as JSON or as terminal tables.
type Formatter struct {
	writer io.Writer
	style  string
	width  int
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithMarkdownStyle sets the glamour style ("dark", "light", "notty").
func WithMarkdownStyle(style string) FormatterOption {
	return func(f *Formatter) { f.style = style }
}

// WithWidth sets the word wrap width for rendered markdown.
func WithWidth(width int) FormatterOption {
	return func(f *Formatter) { f.width = width }
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer, opts ...FormatterOption) *Formatter {
	f := &Formatter{writer: writer, style: "dark", width: 80}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FormatJSON writes v as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatPlugins writes a plugin table.
func (f *Formatter) FormatPlugins(plugins []PluginDTO) error {
	if len(plugins) == 0 {
		_, err := fmt.Fprintln(f.writer, "No plugins found.")
		return err
	}
	rows := make([][]string, 0, len(plugins))
	for _, p := range plugins {
		status := p.Status
		if p.Error != "" {
			status += ": " + p.Error
		}
		rows = append(rows, []string{p.Name, p.Type, p.Version, status})
	}
	return f.table([]string{"NAME", "TYPE", "VERSION", "STATUS"}, rows)
}

// FormatHooks writes a hook table in the given order.
func (f *Formatter) FormatHooks(hooks []hook.Descriptor) error {
	if len(hooks) == 0 {
		_, err := fmt.Fprintln(f.writer, "No hooks declared.")
		return err
	}
	rows := make([][]string, 0, len(hooks))
	for _, h := range hooks {
		rows = append(rows, []string{h.Event, h.Handler, strconv.Itoa(h.Priority), h.Plugin})
	}
	return f.table([]string{"EVENT", "HANDLER", "PRIORITY", "PLUGIN"}, rows)
}

// FormatComponent writes a resolved component as key/value lines.
func (f *Formatter) FormatComponent(c ComponentDTO) error {
	var b strings.Builder
	fmt.Fprintf(&b, "key:     %s\n", c.Key)
	fmt.Fprintf(&b, "factory: %s\n", c.Factory)
	if len(c.Defaults) > 0 {
		b.WriteString("defaults:\n")
		keys := make([]string, 0, len(c.Defaults))
		for k := range c.Defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, c.Defaults[k])
		}
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatMarkdown renders markdown (a plugin README) for the terminal.
func (f *Formatter) FormatMarkdown(markdown string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(f.style),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(f.width),
	)
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	_, err = io.WriteString(f.writer, out)
	return err
}

func (f *Formatter) table(headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(f.writer, t.String())
	return err
}
