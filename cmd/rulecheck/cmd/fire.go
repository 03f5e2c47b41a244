package cmd

import (
	"github.com/spf13/cobra"

	"github.com/liamcoop/prcycle/rules"
)

func newFireCommand(opts *options) *cobra.Command {
	var showQueries bool

	cmd := &cobra.Command{
		Use:   "fire [rule-id]",
		Short: "Fire one rule, or every active rule, against the company records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.load()
			if err != nil {
				return err
			}
			en, err := ws.engine(opts.logger(cmd.ErrOrStderr()), true)
			if err != nil {
				return err
			}
			defer en.Close()

			var results []*rules.FireResult
			if len(args) == 1 {
				res, err := en.FireFromSource(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				results = []*rules.FireResult{res}
			} else {
				results, err = en.FireAllFromSource(cmd.Context())
				if err != nil {
					return err
				}
			}

			names := make(map[string]string, len(ws.companies))
			for _, c := range ws.companies {
				names[c.ID] = c.Name
			}

			var rows [][]string
			matched, notMatched, errored := 0, 0, 0
			for _, res := range results {
				queries := make(map[string]string, len(res.Queries))
				for _, q := range res.Queries {
					queries[q.RecordID] = q.RenderedText
				}
				for _, d := range res.Diagnostics {
					detail := d.Reason
					switch d.Outcome {
					case rules.OutcomeMatched:
						matched++
						if showQueries {
							detail = queries[d.RecordID]
						}
					case rules.OutcomeError:
						errored++
						if d.Err != nil {
							detail = d.Err.Error()
						}
					default:
						notMatched++
					}
					company := names[d.RecordID]
					if company == "" {
						company = d.RecordID
					}
					rows = append(rows, []string{d.RuleID, company, outcomeString(d.Outcome), truncate(detail)})
				}
			}

			out := cmd.OutOrStdout()
			if err := writeTable(out, []string{"Rule", "Company", "Outcome", "Detail"}, rows); err != nil {
				return err
			}
			summary(out, matched, notMatched, errored)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showQueries, "queries", "q", false, "show the generated query text for matches")
	return cmd
}
