package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/liamcoop/prcycle/rules"
)

const maxCellWidth = 80

// writeTable renders rows as a markdown table.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	alignment := make([]tw.Align, len(header))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(header)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxCellWidth {
		return s
	}
	return string(runes[:maxCellWidth-3]) + "..."
}

func outcomeString(o rules.Outcome) string {
	switch o {
	case rules.OutcomeMatched:
		return color.YellowString(string(o))
	case rules.OutcomeError:
		return color.RedString(string(o))
	default:
		return color.GreenString(string(o))
	}
}

// summary prints "N matched, N not matched, N errors" with colour.
func summary(w io.Writer, matched, notMatched, errored int) {
	fmt.Fprintf(w, "\n%s matched, %s not matched, %s errors\n",
		color.YellowString("%d", matched),
		color.GreenString("%d", notMatched),
		errorCount(errored),
	)
}

func errorCount(n int) string {
	if n == 0 {
		return color.GreenString("%d", n)
	}
	return color.RedString("%d", n)
}
