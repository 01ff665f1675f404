// Package extract pulls query history and table metadata out of warehouse
// system catalogs. One extractor per platform; connection definitions come
// from a YAML file.
package extract

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

// Extractor reads a warehouse's own metadata about past queries and tables.
type Extractor interface {
	// Platform returns the warehouse identifier ("snowflake", "bigquery", "trino").
	Platform() string

	// ExtractQueryHistory returns the queries executed in the time range.
	// Zero times mean unbounded.
	ExtractQueryHistory(ctx context.Context, start, end time.Time) ([]models.QueryRecord, error)

	// ExtractTables returns metadata for every visible table.
	ExtractTables(ctx context.Context) ([]models.TableMetadata, error)

	// Close releases the underlying connection.
	Close() error
}

// Connection is one entry of the connections file.
type Connection struct {
	Name        string            `yaml:"name"`
	Platform    string            `yaml:"platform"`
	Project     string            `yaml:"project"`
	Parameters  map[string]string `yaml:"parameters"`
	Credentials map[string]string `yaml:"credentials"`
}

// ConnectionsFile is the YAML document listing warehouse connections.
type ConnectionsFile struct {
	Connections []Connection `yaml:"connections"`
}

// LoadConnections reads and validates a connections YAML file.
func LoadConnections(path string) ([]Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: failed to read connections file: %w", err)
	}
	var file ConnectionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("extract: failed to parse connections file: %w", err)
	}
	for i, conn := range file.Connections {
		if conn.Name == "" {
			return nil, qerrors.NewMissingIdentifier(fmt.Sprintf("connections[%d].name", i))
		}
		if conn.Platform == "" {
			return nil, qerrors.NewMissingIdentifier(fmt.Sprintf("connections[%d].platform", i))
		}
	}
	return file.Connections, nil
}

// FindConnection returns the named connection.
func FindConnection(conns []Connection, name string) (Connection, error) {
	for _, c := range conns {
		if c.Name == name {
			return c, nil
		}
	}
	return Connection{}, qerrors.NewMissingConfiguration(
		"connection "+name, "add the connection to the connections file")
}

// SupportedPlatforms lists the platforms New can build an extractor for.
func SupportedPlatforms() []string {
	return []string{"bigquery", "snowflake", "trino"}
}

// New builds the extractor for a connection definition.
func New(ctx context.Context, conn Connection, logger observability.Logger) (Extractor, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	switch conn.Platform {
	case "snowflake":
		return newSnowflake(ctx, conn, logger)
	case "bigquery":
		return newBigQuery(ctx, conn, logger)
	case "trino":
		return newTrino(ctx, conn, logger)
	default:
		return nil, qerrors.NewUnknownPlatform(conn.Platform, SupportedPlatforms())
	}
}
