// Package cli provides the command-line interface for querylens.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/querylens-labs/querylens/internal/config"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/internal/storage"
)

// Exit codes, matching the error taxonomy.
const (
	ExitSuccess    = 0
	ExitValidation = 1
	ExitConfig     = 2
	ExitExternal   = 3
	ExitInternal   = 4
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// CLI holds the command-line interface state.
type CLI struct {
	rootCmd *cobra.Command
	cfg     *config.Config
	logger  observability.Logger

	// Global flags
	configPath string
	jsonOutput bool
	quiet      bool
	debug      bool
}

// New creates a new CLI instance.
func New() *CLI {
	cli := &CLI{}
	cli.rootCmd = cli.newRootCmd()
	return cli
}

// Execute runs the CLI and returns the process exit code.
func (c *CLI) Execute() int {
	if err := c.rootCmd.Execute(); err != nil {
		c.errorf("querylens: %v\n", err)
		if coded, ok := err.(interface{ ExitCode() int }); ok {
			return coded.ExitCode()
		}
		return ExitInternal
	}
	return ExitSuccess
}

func (c *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "querylens",
		Short: "QueryLens - Query pattern analysis for data warehouses",
		Long: `QueryLens analyzes warehouse query history to find optimization
opportunities.

It provides:
  • Query history and table metadata extraction (Snowflake, BigQuery, Trino)
  • Read-table, wide-scan, and partition-candidate fact streams
  • Weekly and monthly usage statistics per table
  • Anonymized AI-backed layout advisories with local name restoration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ~/.querylens/config.yaml)")
	cmd.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "machine-readable JSON output")
	cmd.PersistentFlags().BoolVar(&c.quiet, "quiet", false, "suppress non-essential output")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "verbose debug logs")

	cmd.AddCommand(c.newRefreshCmd())
	cmd.AddCommand(c.newAnalyzeCmd())
	cmd.AddCommand(c.newStatsCmd())
	cmd.AddCommand(c.newRecommendCmd())
	cmd.AddCommand(c.newAdviseCmd())
	cmd.AddCommand(c.newVersionCmd())

	return cmd
}

func (c *CLI) initConfig() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	if c.quiet && !c.debug {
		c.logger = observability.NewNoopLogger()
	} else {
		c.logger = observability.NewJSONLogger(os.Stderr)
	}
	return nil
}

// openStorage builds the configured storage backend.
func (c *CLI) openStorage(cmd *cobra.Command) (storage.Storage, error) {
	switch c.cfg.Storage.Backend {
	case "postgres":
		return storage.NewPostgres(cmd.Context(), storage.PostgresConfig{
			ConnectionString: c.cfg.Storage.Postgres.ConnectionString(),
		}, c.logger)
	default:
		return storage.NewDuckDB(c.cfg.Storage.Path, c.logger)
	}
}

// parseTimeFlag accepts RFC 3339 timestamps or bare dates. Empty means the
// zero time (unbounded).
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", value)
	}
	return t, nil
}

// Helper functions for output

func (c *CLI) printf(format string, args ...interface{}) {
	if !c.quiet {
		fmt.Printf(format, args...)
	}
}

func (c *CLI) println(args ...interface{}) {
	if !c.quiet {
		fmt.Println(args...)
	}
}

func (c *CLI) errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}

func (c *CLI) outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
