package compute

import (
	"strings"
)

// FormatOutput renders a query result as an aligned text table.
func FormatOutput(output *QueryOutput) string {
	widths := make([]int, len(output.FieldNames))
	for i, field := range output.FieldNames {
		widths[i] = len(field)
	}
	for _, row := range output.Values {
		for i, value := range row {
			if len(value) > widths[i] {
				widths[i] = len(value)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(row []string) {
		for i, value := range row {
			sb.WriteString(value)
			sb.WriteString(strings.Repeat(" ", widths[i]-len(value)+3))
		}
		sb.WriteString("\n")
	}

	writeRow(output.FieldNames)
	separators := make([]string, len(widths))
	for i, w := range widths {
		separators[i] = strings.Repeat("=", w)
	}
	writeRow(separators)
	for _, row := range output.Values {
		writeRow(row)
	}
	return sb.String()
}
