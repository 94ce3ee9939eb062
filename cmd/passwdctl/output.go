package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// tableRenderer is implemented by results that can be shown as a table.
type tableRenderer interface {
	Headers() []string
	Rows() [][]string
}

func printOutput(w io.Writer, format string, data any) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		if r, ok := data.(tableRenderer); ok {
			printTable(w, r)
			return nil
		}
		return printJSON(w, data)
	case "json":
		return printJSON(w, data)
	case "yaml", "yml":
		return printYAML(w, data)
	}
	return fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", format)
}

func printTable(w io.Writer, data tableRenderer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(data.Rows())
	table.Render()
}

func printJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(data)
}
