package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"

	"github.com/oxford-data-processes/aws-utils/query"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printTable writes a tab-aligned table. An empty cell is shown as "-".
func printTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			if c == "" {
				c = "-"
			}
			cells[i] = c
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// printRows renders query rows. Columns are sorted by name since a Row does
// not keep result-set order; NULL cells print as "NULL".
func (a *app) printRows(rows []query.Row) error {
	if a.output == "json" {
		return printJSON(a.stdout, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(a.stdout, "(no rows)")
		return err
	}

	header := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		header = append(header, col)
	}
	sort.Strings(header)

	table := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(header))
		for j, col := range header {
			if v := row[col]; v != nil {
				cells[j] = *v
			} else {
				cells[j] = "NULL"
			}
		}
		table[i] = cells
	}
	return printTable(a.stdout, header, table)
}
