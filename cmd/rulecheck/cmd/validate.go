package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liamcoop/prcycle/rules"
)

// ErrInvalidRules is returned by validate when at least one rule fails.
var ErrInvalidRules = errors.New("invalid rules found")

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every rule's condition and query template against the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.load()
			if err != nil {
				return err
			}
			en, err := ws.engine(opts.logger(cmd.ErrOrStderr()), false)
			if err != nil {
				return err
			}
			defer en.Close()

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(ws.rules))
			invalid := 0
			for _, r := range ws.rules {
				status, field, msg := color.GreenString("valid"), "", ""
				cond, err := en.Validate(r)
				if err != nil {
					invalid++
					status = color.RedString("invalid")
					msg = err.Error()
					var verr *rules.ValidationError
					if errors.As(err, &verr) {
						field = verr.Field
						msg = verr.Err.Error()
					}
				} else {
					msg = "uses " + strings.Join(cond.Dependencies(), ", ")
				}
				rows = append(rows, []string{r.ID, r.Name, status, field, truncate(msg)})
			}

			if err := writeTable(out, []string{"ID", "Name", "Status", "Field", "Detail"}, rows); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d rules, %s invalid\n", len(ws.rules), errorCount(invalid))
			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d", ErrInvalidRules, invalid, len(ws.rules))
			}
			return nil
		},
	}
}
