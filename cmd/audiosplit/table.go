package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// partTable is the summary printed after a split. Rows shorter than the
// header are padded with empty cells.
type partTable struct {
	headers []string
	aligns  []columnAlignment
	rows    [][]string
}

func (p partTable) writer() table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(p.cells(p.headers))
	for _, row := range p.rows {
		tw.AppendRow(p.cells(row))
	}
	return tw
}

func (p partTable) cells(values []string) table.Row {
	out := make(table.Row, len(p.headers))
	for i := range out {
		out[i] = ""
		if i < len(values) {
			out[i] = values[i]
		}
	}
	return out
}

// renderTable draws p with rounded borders for a terminal.
func renderTable(p partTable) string {
	if len(p.headers) == 0 {
		return ""
	}
	tw := p.writer()
	tw.SetStyle(table.StyleRounded)

	configs := make([]table.ColumnConfig, len(p.headers))
	for i := range configs {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(p.aligns) && p.aligns[i] == alignRight {
			configs[i].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// renderCSV writes p as CSV for pipes and scripts.
func renderCSV(p partTable) string {
	if len(p.headers) == 0 {
		return ""
	}
	return p.writer().RenderCSV()
}

// printTable writes p to w, as a table on a terminal and CSV otherwise.
func printTable(w io.Writer, p partTable) {
	if isTerminal(w) {
		fmt.Fprintln(w, renderTable(p))
		return
	}
	fmt.Fprintln(w, renderCSV(p))
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
