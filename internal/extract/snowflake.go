package extract

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Import gosnowflake driver - registers as "snowflake"
	_ "github.com/snowflakedb/gosnowflake"

	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

// snowflakeExtractor reads query history from ACCOUNT_USAGE and table
// metadata from INFORMATION_SCHEMA.
type snowflakeExtractor struct {
	db      Querier
	account string
	project string
	dbName  string
	schema  string
	logger  observability.Logger
}

// Querier is the database/sql surface the extractors use. Narrowed so tests
// can substitute a fake without a live warehouse.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

func newSnowflake(ctx context.Context, conn Connection, logger observability.Logger) (*snowflakeExtractor, error) {
	account := conn.Parameters["account"]
	user := conn.Credentials["user"]
	password := conn.Credentials["password"]
	if account == "" {
		return nil, qerrors.NewMissingConfiguration("snowflake account",
			"set parameters.account on the connection")
	}
	if user == "" || password == "" {
		return nil, qerrors.NewMissingConfiguration("snowflake credentials",
			"set credentials.user and credentials.password on the connection")
	}

	// Format: user:password@account/database/schema?warehouse=X&role=Y
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s",
		user, password, account,
		conn.Parameters["database"], conn.Parameters["schema"], conn.Parameters["warehouse"])
	if role := conn.Parameters["role"]; role != "" {
		dsn += "&role=" + role
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("snowflake: failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	project := conn.Project
	if project == "" {
		project = account
	}
	return &snowflakeExtractor{
		db:      db,
		account: account,
		project: project,
		dbName:  conn.Parameters["database"],
		schema:  conn.Parameters["schema"],
		logger:  logger,
	}, nil
}

func (e *snowflakeExtractor) Platform() string { return "snowflake" }

// ExtractQueryHistory reads SNOWFLAKE.ACCOUNT_USAGE.QUERY_HISTORY.
func (e *snowflakeExtractor) ExtractQueryHistory(ctx context.Context, start, end time.Time) ([]models.QueryRecord, error) {
	query := `
		SELECT
			query_id,
			user_name,
			start_time,
			end_time,
			execution_status,
			query_text,
			query_type,
			bytes_scanned,
			total_elapsed_time
		FROM SNOWFLAKE.ACCOUNT_USAGE.QUERY_HISTORY
		WHERE query_text IS NOT NULL`
	var args []any
	if !start.IsZero() {
		query += " AND start_time >= ?"
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		query += " AND start_time <= ?"
		args = append(args, end.UTC())
	}
	query += " ORDER BY start_time"

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snowflake: query history failed: %w", err)
	}
	defer rows.Close()

	var out []models.QueryRecord
	for rows.Next() {
		var q models.QueryRecord
		var user, status, queryText, stmtType sql.NullString
		var startT, endT sql.NullTime
		var bytesScanned, elapsed sql.NullInt64
		if err := rows.Scan(&q.QueryID, &user, &startT, &endT, &status,
			&queryText, &stmtType, &bytesScanned, &elapsed); err != nil {
			return nil, fmt.Errorf("snowflake: scan query history row: %w", err)
		}
		q.User = user.String
		q.StartTime = startT.Time
		q.EndTime = endT.Time
		q.ExecutionStatus = status.String
		q.QueryText = queryText.String
		q.StatementType = stmtType.String
		q.BytesScanned = bytesScanned.Int64
		q.ExecutionTimeMS = elapsed.Int64
		q.Platform = "snowflake"
		q.Project = e.project
		out = append(out, q)
	}
	return out, rows.Err()
}

// ExtractTables joins INFORMATION_SCHEMA.COLUMNS with the active-bytes view
// of TABLE_STORAGE_METRICS for the configured database and schema.
func (e *snowflakeExtractor) ExtractTables(ctx context.Context) ([]models.TableMetadata, error) {
	if e.dbName == "" || e.schema == "" {
		return nil, qerrors.NewMissingConfiguration("snowflake database/schema",
			"set parameters.database and parameters.schema on the connection")
	}

	colQuery := fmt.Sprintf(`
		SELECT table_name, column_name, data_type
		FROM %s.INFORMATION_SCHEMA.COLUMNS
		WHERE table_schema = ?
		ORDER BY table_name, ordinal_position`, e.dbName)
	rows, err := e.db.QueryContext(ctx, colQuery, e.schema)
	if err != nil {
		return nil, fmt.Errorf("snowflake: column listing failed: %w", err)
	}
	defer rows.Close()

	byTable := make(map[string]*models.TableMetadata)
	var order []string
	for rows.Next() {
		var table, column string
		var dataType sql.NullString
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, fmt.Errorf("snowflake: scan column row: %w", err)
		}
		meta, ok := byTable[table]
		if !ok {
			meta = &models.TableMetadata{
				Platform: "snowflake",
				Project:  e.project,
				Database: e.dbName,
				Schema:   e.schema,
				Table:    table,
			}
			byTable[table] = meta
			order = append(order, table)
		}
		meta.Columns = append(meta.Columns, models.TableColumn{Name: column, Type: dataType.String})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sizeQuery := fmt.Sprintf(`
		WITH ranked_metrics AS (
			SELECT table_name, active_bytes,
				ROW_NUMBER() OVER (PARTITION BY table_name ORDER BY active_bytes DESC) AS rn
			FROM %s.INFORMATION_SCHEMA.TABLE_STORAGE_METRICS
			WHERE table_schema = ? AND NOT is_transient
		)
		SELECT table_name, active_bytes
		FROM ranked_metrics
		WHERE rn = 1`, e.dbName)
	sizeRows, err := e.db.QueryContext(ctx, sizeQuery, e.schema)
	if err != nil {
		// Storage metrics need elevated privileges; metadata without sizes
		// is still useful.
		e.logger.LogEvent(ctx, observability.Entry{
			Operation: "extract_tables",
			Platform:  "snowflake",
			Project:   e.project,
			Outcome:   "partial",
			Error:     "storage metrics unavailable: " + err.Error(),
		})
	} else {
		defer sizeRows.Close()
		for sizeRows.Next() {
			var table string
			var activeBytes sql.NullInt64
			if err := sizeRows.Scan(&table, &activeBytes); err != nil {
				return nil, fmt.Errorf("snowflake: scan storage metrics row: %w", err)
			}
			if meta, ok := byTable[table]; ok {
				meta.SizeBytes = activeBytes.Int64
			}
		}
		if err := sizeRows.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]models.TableMetadata, 0, len(order))
	for _, table := range order {
		out = append(out, *byTable[table])
	}
	return out, nil
}

func (e *snowflakeExtractor) Close() error {
	return e.db.Close()
}

var _ Extractor = (*snowflakeExtractor)(nil)
