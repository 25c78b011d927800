package analysis

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	maxMarkdownSamples = 5
	maxCellWidth       = 80
)

// Markdown renders the profile as compact prompt context: a header block,
// one schema line per column, the first few sample rows and any warnings.
func (d *Dataset) Markdown() string {
	var b strings.Builder
	d.writeHeader(&b)
	b.WriteString("\n[SCHEMA]\n")
	for _, s := range d.Summaries {
		b.WriteString("- ")
		b.WriteString(describeColumn(s))
		b.WriteByte('\n')
	}
	if len(d.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString(d.sampleTable())
		b.WriteByte('\n')
	}
	if len(d.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range d.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func (d *Dataset) writeHeader(b *strings.Builder) {
	b.WriteString("[DATASET SUMMARY]\n")
	if d.Name != "" {
		fmt.Fprintf(b, "File: %s\n", d.Name)
	}
	switch {
	case d.Rows == 0:
	case d.Processed > 0 && d.Processed < d.Rows:
		fmt.Fprintf(b, "Rows: ~%d (processed %d)\n", d.Rows, d.Processed)
	default:
		fmt.Fprintf(b, "Rows: %d\n", d.Rows)
	}
	fmt.Fprintf(b, "Columns: %d\n", len(d.Summaries))
}

// describeColumn renders "name [unit]: kind (counts) details".
func describeColumn(s ColumnSummary) string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = "(unnamed)"
	}
	if s.Unit != "" && !strings.Contains(name, s.Unit) {
		name += " [" + s.Unit + "]"
	}
	missing := 0.0
	if total := s.NonNull + s.Missing; total > 0 {
		missing = 100 * float64(s.Missing) / float64(total)
	}
	line := fmt.Sprintf("%s: %s (non-null %d, missing %.1f%%, distinct %d)", name, s.Kind, s.NonNull, missing, s.Unique)

	var detail []string
	switch s.Kind {
	case "numeric":
		detail = append(detail, fmt.Sprintf("min %.4g, max %.4g, mean %.4g, std %.4g", s.Min, s.Max, s.Mean, s.Std))
	case "categorical":
		for _, tv := range s.TopValues {
			detail = append(detail, fmt.Sprintf("%s(%d)", flatten(tv.Value), tv.Count))
		}
		if len(detail) > 0 {
			return line + "; top: " + strings.Join(detail, ", ")
		}
	case "text":
		for _, ex := range s.ExampleTexts {
			detail = append(detail, flatten(ex))
		}
		if len(detail) > 0 {
			return line + "; e.g. " + strings.Join(detail, " / ")
		}
	}
	if len(detail) == 0 {
		return line
	}
	return line + "; " + detail[0]
}

func (d *Dataset) sampleTable() string {
	t := table.NewWriter()
	header := make(table.Row, len(d.Columns))
	for i, c := range d.Columns {
		header[i] = c.Name
	}
	t.AppendHeader(header)
	for _, row := range d.Samples[:min(len(d.Samples), maxMarkdownSamples)] {
		r := make(table.Row, len(d.Columns))
		for i, c := range d.Columns {
			r[i] = ""
			if v := row[c.Name]; v != nil {
				r[i] = flatten(fmt.Sprint(v))
			}
		}
		t.AppendRow(r)
	}
	return t.RenderMarkdown()
}

// flatten keeps a value on one short line.
func flatten(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxCellWidth {
		s = string(r[:maxCellWidth-3]) + "..."
	}
	return s
}
