package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liamcoop/prcycle/digest"
	"github.com/liamcoop/prcycle/internal/fixtures"
	"github.com/liamcoop/prcycle/rules"
)

const defaultDueIn = 14 * 24 * time.Hour

func newDigestCommand(opts *options) *cobra.Command {
	var (
		templateID string
		due        string
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Fire every active rule and print one email draft per company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.load()
			if err != nil {
				return err
			}

			tpl, ok := fixtures.Template(ws.templates, templateID)
			if !ok {
				return fmt.Errorf("template %q not found", templateID)
			}
			dueDate := time.Now().Add(defaultDueIn)
			if due != "" {
				if dueDate, err = time.Parse(digest.DueDateLayout, due); err != nil {
					return fmt.Errorf("invalid --due %q: expected YYYY-MM-DD", due)
				}
			}

			en, err := ws.engine(opts.logger(cmd.ErrOrStderr()), true)
			if err != nil {
				return err
			}
			defer en.Close()

			results, err := en.FireAllFromSource(cmd.Context())
			if err != nil {
				return err
			}
			var queries []rules.GeneratedQuery
			for _, res := range results {
				queries = append(queries, res.Queries...)
			}

			drafts, composeErr := digest.ComposeAll(tpl, fixtures.Recipients(ws.companies), queries, dueDate)

			out := cmd.OutOrStdout()
			for _, d := range drafts {
				fmt.Fprintf(out, "%s %s\n", color.CyanString("To:"), d.To)
				fmt.Fprintf(out, "%s %s\n\n%s\n", color.CyanString("Subject:"), d.Subject, d.Body)
				fmt.Fprintln(out, "----")
			}
			fmt.Fprintf(out, "%d drafts\n", len(drafts))

			if composeErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("some drafts failed: %v", composeErr))
				return errors.New("digest incomplete")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateID, "template", "t", "1", "email template ID")
	cmd.Flags().StringVar(&due, "due", "", "response deadline, YYYY-MM-DD (default: 14 days from now)")
	return cmd
}
