package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/account-consolidation/cmd/consolctl/cli"
)

func newRootCommand() (*cobra.Command, *environment) {
	env := &environment{}
	root := &cobra.Command{
		Use:           "consolctl",
		Short:         "Consolidate subsidiary ledgers into a holding chart of accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.open(cmd.Context(), cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().BoolVar(&env.demo, "demo", false, "use the in-memory reference companies instead of PostgreSQL")

	root.AddCommand(
		newCheckCommand(env),
		newRunCommand(env),
		newFXCommand(env),
		newQueueCommand(env),
		newMigrateCommand(env),
	)
	return root, env
}

func newCheckCommand(env *environment) *cobra.Command {
	var opts cli.CheckOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report subsidiary accounts whose consolidation mapping is invalid",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := cli.NewConsolOpsCLI(env.service, nil)
			if err != nil {
				return err
			}
			opts.HoldingID = env.holdingOr(opts.HoldingID)
			opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return exitCode(ops.CheckCommand(cmd.Context(), opts))
		},
	}
	cmd.Flags().Int64Var(&opts.HoldingID, "holding", 0, "holding company id")
	cmd.Flags().Int64SliceVar(&opts.SubsidiaryIDs, "subsidiary", nil, "restrict to these subsidiaries")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	return cmd
}

func newRunCommand(env *environment) *cobra.Command {
	var opts cli.RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate consolidation moves for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			var enqueuer cli.RunEnqueuer
			if opts.Async {
				jobs, err := env.jobsCLI()
				if err != nil {
					return err
				}
				enqueuer = jobs
			}
			ops, err := cli.NewConsolOpsCLI(env.service, enqueuer)
			if err != nil {
				return err
			}
			opts.HoldingID = env.holdingOr(opts.HoldingID)
			opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return exitCode(ops.RunCommand(cmd.Context(), opts))
		},
	}
	cmd.Flags().Int64Var(&opts.HoldingID, "holding", 0, "holding company id")
	cmd.Flags().Int64SliceVar(&opts.SubsidiaryIDs, "subsidiary", nil, "restrict to these subsidiaries")
	cmd.Flags().StringVar(&opts.From, "from", "", "first day of the period (YYYY-MM-DD), defaults to the previous month")
	cmd.Flags().StringVar(&opts.To, "to", "", "last day of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.TargetMove, "target", "posted", "moves to consolidate: posted or all")
	cmd.Flags().Int64Var(&opts.JournalID, "journal", 0, "journal id, defaults to the holding's consolidation journal")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "enqueue the run for the worker")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	return cmd
}

func newFXCommand(env *environment) *cobra.Command {
	fxCmd := &cobra.Command{
		Use:   "fx",
		Short: "Inspect and import FX rates",
	}

	var validate cli.FXValidateOptions
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every pair a run needs is quoted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := cli.NewFXOpsCLI(env.store, cli.WithQuoteCache(env.quotes), cli.WithCurrencySource(env.service))
			if err != nil {
				return err
			}
			if len(validate.Pairs) == 0 {
				validate.HoldingID = env.holdingOr(validate.HoldingID)
			}
			validate.Stdout, validate.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return exitCode(ops.ValidateCommand(cmd.Context(), validate))
		},
	}
	validateCmd.Flags().Int64Var(&validate.HoldingID, "holding", 0, "holding company id")
	validateCmd.Flags().Int64SliceVar(&validate.SubsidiaryIDs, "subsidiary", nil, "restrict to these subsidiaries")
	validateCmd.Flags().StringVar(&validate.Date, "date", "", "conversion date (YYYY-MM-DD)")
	validateCmd.Flags().StringSliceVar(&validate.Pairs, "pair", nil, "explicit pairs such as CHFUSD")
	validateCmd.Flags().BoolVar(&validate.JSONOutput, "json", false, "print JSON")
	_ = validateCmd.MarkFlagRequired("date")

	var imp cli.FXImportOptions
	var mode string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import FX rates from a CSV file with date, pair, average and spot columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := cli.NewFXOpsCLI(env.store, cli.WithQuoteCache(env.quotes))
			if err != nil {
				return err
			}
			imp.Mode = cli.FXImportMode(mode)
			imp.Stdout, imp.Stderr, imp.Stdin = cmd.OutOrStdout(), cmd.ErrOrStderr(), cmd.InOrStdin()
			return exitCode(ops.ImportCommand(cmd.Context(), imp))
		},
	}
	importCmd.Flags().StringVar(&imp.Pair, "pair", "", "pair to import, e.g. USDCHF")
	importCmd.Flags().StringVar(&imp.From, "from", "", "first month (YYYY-MM)")
	importCmd.Flags().StringVar(&imp.To, "to", "", "last month (YYYY-MM)")
	importCmd.Flags().StringVar(&mode, "mode", string(cli.FXImportModeDry), "dry or apply")
	importCmd.Flags().StringVar(&imp.Source, "source", "", "CSV file, - for stdin")
	importCmd.Flags().BoolVar(&imp.Yes, "yes", false, "skip the confirmation prompt")
	importCmd.Flags().BoolVar(&imp.JSONOutput, "json", false, "print JSON")

	fxCmd.AddCommand(validateCmd, importCmd)
	return fxCmd
}

func newQueueCommand(env *environment) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the consolidation queue",
	}
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := env.jobsCLI()
			if err != nil {
				return err
			}
			stats, err := jobs.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		},
	}
	var size int
	scheduledCmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled consolidation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := env.jobsCLI()
			if err != nil {
				return err
			}
			tasks, err := jobs.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, task := range tasks {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", task.ID, task.NextProcessAt.Format("2006-01-02 15:04"), string(task.Payload))
			}
			return nil
		},
	}
	scheduledCmd.Flags().IntVar(&size, "size", 10, "page size")
	queueCmd.AddCommand(statsCmd, scheduledCmd)
	return queueCmd
}

func newMigrateCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the consolidation tables when missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.migrate(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
