package cli

import (
	"github.com/spf13/cobra"

	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/extract"
	"github.com/querylens-labs/querylens/internal/refresh"
)

func (c *CLI) newRefreshCmd() *cobra.Command {
	var connectionName, startFlag, endFlag string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Pull query history and table metadata from a warehouse",
	}
	cmd.PersistentFlags().StringVar(&connectionName, "connection", "", "connection name from the connections file")
	cmd.PersistentFlags().StringVar(&startFlag, "start", "", "range start (RFC 3339 or YYYY-MM-DD)")
	cmd.PersistentFlags().StringVar(&endFlag, "end", "", "range end (RFC 3339 or YYYY-MM-DD)")

	run := func(cmd *cobra.Command, mode string) error {
		if connectionName == "" {
			return qerrors.NewMissingIdentifier("connection")
		}
		start, err := parseTimeFlag(startFlag)
		if err != nil {
			return err
		}
		end, err := parseTimeFlag(endFlag)
		if err != nil {
			return err
		}

		conns, err := extract.LoadConnections(c.cfg.Connections)
		if err != nil {
			return err
		}
		conn, err := extract.FindConnection(conns, connectionName)
		if err != nil {
			return err
		}

		ex, err := extract.New(cmd.Context(), conn, c.logger)
		if err != nil {
			return err
		}
		defer ex.Close()

		store, err := c.openStorage(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		svc := refresh.NewService(store, c.logger)
		switch mode {
		case "queries":
			n, err := svc.RefreshQueryHistory(cmd.Context(), ex, start, end)
			if err != nil {
				return err
			}
			c.printf("Stored %d queries from %s\n", n, connectionName)
		case "tables":
			n, err := svc.RefreshTables(cmd.Context(), ex)
			if err != nil {
				return err
			}
			c.printf("Stored metadata for %d tables from %s\n", n, connectionName)
		default:
			queries, tables, err := svc.RefreshAll(cmd.Context(), ex, start, end)
			if err != nil {
				return err
			}
			c.printf("Stored %d queries and %d tables from %s\n", queries, tables, connectionName)
		}
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "queries",
		Short: "Refresh query history only",
		RunE:  func(cmd *cobra.Command, args []string) error { return run(cmd, "queries") },
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "tables",
		Short: "Refresh table metadata only",
		RunE:  func(cmd *cobra.Command, args []string) error { return run(cmd, "tables") },
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Refresh query history and table metadata",
		RunE:  func(cmd *cobra.Command, args []string) error { return run(cmd, "all") },
	})
	return cmd
}
