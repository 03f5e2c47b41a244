// Package cmd implements the rulecheck CLI: validate, fire and digest rules
// from YAML files without running the server.
package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liamcoop/prcycle/digest"
	"github.com/liamcoop/prcycle/internal/config"
	"github.com/liamcoop/prcycle/internal/fixtures"
	"github.com/liamcoop/prcycle/internal/logger"
	"github.com/liamcoop/prcycle/rules"
	"github.com/liamcoop/prcycle/schema"
)

type options struct {
	configFile    string
	schemaFile    string
	rulesFile     string
	recordsFile   string
	templatesFile string
	logLevel      string
	noColor       bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "rulecheck",
		Short:         "Validate and fire PR-cycle rules against company data",
		Long:          `rulecheck loads a field schema, rules and company records from YAML (or the built-in sample data) and reports what each rule would generate.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file path")
	flags.StringVar(&opts.schemaFile, "schema", "", "schema YAML (default: config or built-in sample)")
	flags.StringVar(&opts.rulesFile, "rules", "", "rules YAML (default: config or built-in sample)")
	flags.StringVar(&opts.recordsFile, "records", "", "companies YAML (default: config or built-in sample)")
	flags.StringVar(&opts.templatesFile, "templates", "", "email templates YAML (default: config or built-in sample)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(newValidateCommand(opts))
	root.AddCommand(newFireCommand(opts))
	root.AddCommand(newDigestCommand(opts))
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// workspace is everything a subcommand needs, loaded once per run.
type workspace struct {
	cfg       *config.Config
	def       schema.Definition
	rules     []*rules.Rule
	companies []fixtures.CompanyData
	templates []digest.EmailTemplate
}

func (o *options) load() (*workspace, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	override(&cfg.Data.SchemaFile, o.schemaFile)
	override(&cfg.Data.RulesFile, o.rulesFile)
	override(&cfg.Data.RecordsFile, o.recordsFile)
	override(&cfg.Data.TemplatesFile, o.templatesFile)

	ws := &workspace{cfg: cfg}
	if ws.def, err = fixtures.LoadDefinition(cfg.Data.SchemaFile); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if ws.rules, err = fixtures.LoadRules(cfg.Data.RulesFile); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if ws.companies, err = fixtures.LoadCompanies(cfg.Data.RecordsFile); err != nil {
		return nil, fmt.Errorf("failed to load companies: %w", err)
	}
	if ws.templates, err = fixtures.LoadTemplates(cfg.Data.TemplatesFile); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return ws, nil
}

func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}

// logger writes diagnostics to stderr so they never mix with report output.
func (o *options) logger(stderr io.Writer) *slog.Logger {
	l := logger.NewWithWriter(logger.Config{Format: "text", ServiceName: "rulecheck"}, stderr)
	if level, err := logger.ParseLevel(o.logLevel); err == nil {
		logger.SetLevel(level)
	}
	return l
}

// engine builds an engine over ws.rules. With stored=false the rules are not
// added, so invalid rules can still be reported one by one.
func (ws *workspace) engine(log *slog.Logger, stored bool) (*rules.Engine, error) {
	store := rules.NewInMemoryRuleStore()
	if stored {
		for _, r := range ws.rules {
			if err := store.Add(r.Clone()); err != nil {
				return nil, err
			}
		}
	}
	conditions, err := rules.NewConditionCache(ws.cfg.Engine.CacheCapacity, 0)
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(ws.def, store,
		rules.WithLogger(log),
		rules.WithWorkers(ws.cfg.Engine.Workers),
		rules.WithConditionCache(conditions),
		rules.WithRecordSource(rules.NewStaticRecordSource(fixtures.Records(ws.companies))),
	)
}
