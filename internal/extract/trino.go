package extract

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/trinodb/trino-go-client/trino" // Trino driver

	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

// trinoExtractor reads recent queries from system.runtime.queries and table
// metadata from the configured catalog's information_schema. Trino only
// retains queries from the current coordinator session, so history coverage
// depends on refresh frequency.
type trinoExtractor struct {
	db      Querier
	project string
	catalog string
	schema  string
	logger  observability.Logger
}

func newTrino(ctx context.Context, conn Connection, logger observability.Logger) (*trinoExtractor, error) {
	host := conn.Parameters["host"]
	if host == "" {
		return nil, qerrors.NewMissingConfiguration("trino host",
			"set parameters.host on the connection")
	}
	user := conn.Credentials["user"]
	if user == "" {
		user = "querylens"
	}
	scheme := conn.Parameters["scheme"]
	if scheme == "" {
		scheme = "http"
	}
	port := 8080
	if p := conn.Parameters["port"]; p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("trino: invalid port %q: %w", p, err)
		}
		port = parsed
	}

	dsn := fmt.Sprintf("%s://%s@%s:%d?catalog=%s&schema=%s",
		scheme, user, host, port, conn.Parameters["catalog"], conn.Parameters["schema"])
	db, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, fmt.Errorf("trino: failed to open connection: %w", err)
	}

	project := conn.Project
	if project == "" {
		project = host
	}
	return &trinoExtractor{
		db:      db,
		project: project,
		catalog: conn.Parameters["catalog"],
		schema:  conn.Parameters["schema"],
		logger:  logger,
	}, nil
}

func (e *trinoExtractor) Platform() string { return "trino" }

// ExtractQueryHistory reads system.runtime.queries. Elapsed time comes from
// the created/end pair because the runtime view has no elapsed column.
func (e *trinoExtractor) ExtractQueryHistory(ctx context.Context, start, end time.Time) ([]models.QueryRecord, error) {
	query := `
		SELECT
			query_id,
			"user",
			created,
			"end",
			state,
			query
		FROM system.runtime.queries
		WHERE query IS NOT NULL`
	var args []any
	if !start.IsZero() {
		query += " AND created >= ?"
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		query += " AND created <= ?"
		args = append(args, end.UTC())
	}
	query += " ORDER BY created"

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trino: query history failed: %w", err)
	}
	defer rows.Close()

	var out []models.QueryRecord
	for rows.Next() {
		var q models.QueryRecord
		var user, state, queryText sql.NullString
		var created, ended sql.NullTime
		if err := rows.Scan(&q.QueryID, &user, &created, &ended, &state, &queryText); err != nil {
			return nil, fmt.Errorf("trino: scan query history row: %w", err)
		}
		q.User = user.String
		q.StartTime = created.Time
		q.EndTime = ended.Time
		q.ExecutionStatus = state.String
		q.QueryText = queryText.String
		if created.Valid && ended.Valid {
			q.ExecutionTimeMS = ended.Time.Sub(created.Time).Milliseconds()
		}
		q.Platform = "trino"
		q.Project = e.project
		out = append(out, q)
	}
	return out, rows.Err()
}

// ExtractTables lists the configured catalog's columns grouped per table.
// Trino's information_schema has no size or row-count view that works
// across connectors, so those fields stay zero.
func (e *trinoExtractor) ExtractTables(ctx context.Context) ([]models.TableMetadata, error) {
	if e.catalog == "" {
		return nil, qerrors.NewMissingConfiguration("trino catalog",
			"set parameters.catalog on the connection")
	}

	query := fmt.Sprintf(`
		SELECT table_schema, table_name, column_name, data_type
		FROM %s.information_schema.columns
		WHERE table_schema NOT IN ('information_schema')
		ORDER BY table_schema, table_name, ordinal_position`, e.catalog)
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("trino: column listing failed: %w", err)
	}
	defer rows.Close()

	byTable := make(map[string]*models.TableMetadata)
	var order []string
	for rows.Next() {
		var schema, table, column, dataType string
		if err := rows.Scan(&schema, &table, &column, &dataType); err != nil {
			return nil, fmt.Errorf("trino: scan column row: %w", err)
		}
		key := schema + "." + table
		meta, ok := byTable[key]
		if !ok {
			meta = &models.TableMetadata{
				Platform: "trino",
				Project:  e.project,
				Database: e.catalog,
				Schema:   schema,
				Table:    table,
			}
			byTable[key] = meta
			order = append(order, key)
		}
		meta.Columns = append(meta.Columns, models.TableColumn{Name: column, Type: dataType})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.TableMetadata, 0, len(order))
	for _, key := range order {
		out = append(out, *byTable[key])
	}
	return out, nil
}

func (e *trinoExtractor) Close() error {
	return e.db.Close()
}

var _ Extractor = (*trinoExtractor)(nil)
