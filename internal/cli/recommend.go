package cli

import (
	"github.com/spf13/cobra"

	"github.com/querylens-labs/querylens/internal/analyzer"
	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/sqlast/vitess"
)

func (c *CLI) newRecommendCmd() *cobra.Command {
	var platform, project, table, startFlag, endFlag string

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Suggest a partitioning or clustering layout for a table",
		Long: `Rank the table's partition-candidate columns by how often queries
filter on them and apply the platform's layout strategy.`,
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

			store, err := c.openStorage(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			a, err := analyzer.New(analyzer.Config{
				Platform: platform,
				Storage:  store,
				Parser:   &vitess.Parser{},
				Logger:   c.logger,
			})
			if err != nil {
				return err
			}

			suggestions, err := a.Recommend(cmd.Context(), project, table, start, end)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.outputJSON(suggestions)
			}
			for _, s := range suggestions {
				c.printf("%s: %s\n", s.Table, s.Recommendation)
				c.printf("  %s\n", s.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "source platform")
	cmd.Flags().StringVar(&project, "project", "", "source project or account")
	cmd.Flags().StringVar(&table, "table", "", "table name")
	cmd.Flags().StringVar(&startFlag, "start", "", "range start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&endFlag, "end", "", "range end (RFC 3339 or YYYY-MM-DD)")
	return cmd
}
