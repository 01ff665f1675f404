package cli

import (
	"github.com/spf13/cobra"

	"github.com/querylens-labs/querylens/internal/aggregate"
	qerrors "github.com/querylens-labs/querylens/internal/errors"
)

func (c *CLI) newStatsCmd() *cobra.Command {
	var platform, project, database, schema, table, period, startFlag, endFlag string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregated usage statistics for a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if platform == "" {
				return qerrors.NewMissingIdentifier("platform")
			}
			if project == "" {
				return qerrors.NewMissingIdentifier("project")
			}
			if table == "" {
				return qerrors.NewMissingIdentifier("table")
			}
			start, err := parseTimeFlag(startFlag)
			if err != nil {
				return err
			}
			end, err := parseTimeFlag(endFlag)
			if err != nil {
				return err
			}
			p := aggregate.PeriodWeekly
			if period == "monthly" {
				p = aggregate.PeriodMonthly
			}

			store, err := c.openStorage(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			readFacts, err := store.LoadReadTableFacts(ctx, platform, project, start, end)
			if err != nil {
				return err
			}
			wideFacts, err := store.LoadWideScanFacts(ctx, platform, project, start, end)
			if err != nil {
				return err
			}
			partitionFacts, err := store.LoadPartitionFacts(ctx, platform, project, start, end)
			if err != nil {
				return err
			}
			tables, err := store.LoadTables(ctx)
			if err != nil {
				return err
			}

			read := aggregate.ReadFactsForTable(readFacts, database, schema, table)
			wide := aggregate.WideScanFactsForTable(wideFacts, database, schema, table)
			partition := aggregate.PartitionFactsForTable(partitionFacts, database, schema, table)
			if len(read) == 0 && len(wide) == 0 && len(partition) == 0 {
				return qerrors.NewNoData(platform, project, table)
			}

			meta := aggregate.FindTableMetadata(tables, platform, project, database, schema, table)
			stats := aggregate.TableStats(p, read, wide, partition, meta)
			return c.outputJSON(stats)
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "source platform")
	cmd.Flags().StringVar(&project, "project", "", "source project or account")
	cmd.Flags().StringVar(&database, "database", "", "database name")
	cmd.Flags().StringVar(&schema, "schema", "", "schema name")
	cmd.Flags().StringVar(&table, "table", "", "table name")
	cmd.Flags().StringVar(&period, "period", "weekly", "aggregation period (weekly or monthly)")
	cmd.Flags().StringVar(&startFlag, "start", "", "range start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&endFlag, "end", "", "range end (RFC 3339 or YYYY-MM-DD)")
	return cmd
}
