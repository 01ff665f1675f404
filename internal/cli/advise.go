package cli

import (
	"github.com/spf13/cobra"

	"github.com/querylens-labs/querylens/internal/advisor"
	"github.com/querylens-labs/querylens/internal/aggregate"
	qerrors "github.com/querylens-labs/querylens/internal/errors"
)

func (c *CLI) newAdviseCmd() *cobra.Command {
	var platform, project, database, schema, table, target, startFlag, endFlag string

	cmd := &cobra.Command{
		Use:   "advise",
		Short: "Request an AI advisory for a table's usage patterns",
		Long: `Aggregate the table's facts into weekly and monthly statistics,
anonymize every identifier, and ask the configured generator for layout
advice. Identifiers are restored locally before the advisory is printed;
real names never leave the process.`,
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

			gen, err := advisor.NewGemini(c.cfg.Gemini.APIKey, advisor.ModelParams{
				Model:           c.cfg.Gemini.Model,
				Temperature:     c.cfg.Gemini.Temperature,
				MaxOutputTokens: c.cfg.Gemini.MaxOutputTokens,
			})
			if err != nil {
				return err
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

			weekly := aggregate.TableStats(aggregate.PeriodWeekly, read, wide, partition, meta)
			monthly := aggregate.TableStats(aggregate.PeriodMonthly, read, wide, partition, meta)

			result, err := advisor.New(gen, c.logger).Advise(ctx, advisor.Scope{
				Platform:        platform,
				Project:         project,
				Database:        database,
				Schema:          schema,
				Table:           table,
				TargetWarehouse: target,
			}, weekly, monthly)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.outputJSON(struct {
					Tier string `json:"tier"`
					Text string `json:"text"`
				}{Tier: result.Tier, Text: result.Text})
			}
			c.printf("Advisory (%s statistics):\n\n", result.Tier)
			c.println(result.Text)
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "source platform")
	cmd.Flags().StringVar(&project, "project", "", "source project or account")
	cmd.Flags().StringVar(&database, "database", "", "database name")
	cmd.Flags().StringVar(&schema, "schema", "", "schema name")
	cmd.Flags().StringVar(&table, "table", "", "table name")
	cmd.Flags().StringVar(&target, "target", "", "target warehouse for recommendations")
	cmd.Flags().StringVar(&startFlag, "start", "", "range start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&endFlag, "end", "", "range end (RFC 3339 or YYYY-MM-DD)")
	return cmd
}
