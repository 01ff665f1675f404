package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

// PostgresRepository implements Storage using PostgreSQL. This is the
// production backend for shared deployments; DuckDB covers the single-host
// case.
type PostgresRepository struct {
	db     *sql.DB
	logger observability.Logger
}

// PostgresConfig configures the PostgreSQL repository.
type PostgresConfig struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime.
	ConnMaxLifetime time.Duration
}

// NewPostgres opens a PostgreSQL connection, runs pending migrations, and
// returns the repository. Startup fails when a migration cannot be applied.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger observability.Logger) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := NewMigrationRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &PostgresRepository{db: db, logger: logger}, nil
}

// NewPostgresRepository wraps an existing connection without running
// migrations. Intended for tests that manage schema themselves.
func NewPostgresRepository(db *sql.DB, logger observability.Logger) *PostgresRepository {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &PostgresRepository{db: db, logger: logger}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func (r *PostgresRepository) warnSkippedSave(ctx context.Context, operation string) {
	r.logger.LogEvent(ctx, observability.Entry{
		Operation: operation,
		Platform:  "unknown",
		Outcome:   "skipped",
		Error:     "no record carries platform and project; nothing saved",
	})
}

// SaveQueries upserts raw query-history records keyed by (query_id, platform, project).
func (r *PostgresRepository) SaveQueries(ctx context.Context, queries []models.QueryRecord) error {
	if len(queries) == 0 {
		return nil
	}
	if queries[0].Platform == "" || queries[0].Project == "" {
		r.warnSkippedSave(ctx, "save_queries")
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin save_queries: %w", err)
	}
	defer tx.Rollback()

	for _, q := range queries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queries (query_id, user_name, start_time, end_time, execution_status,
				query_text, statement_type, bytes_scanned, execution_time_ms, platform, project)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (query_id, platform, project) DO UPDATE SET
				user_name = EXCLUDED.user_name,
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				execution_status = EXCLUDED.execution_status,
				query_text = EXCLUDED.query_text,
				statement_type = EXCLUDED.statement_type,
				bytes_scanned = EXCLUDED.bytes_scanned,
				execution_time_ms = EXCLUDED.execution_time_ms`,
			q.QueryID, q.User, nullTime(q.StartTime), nullTime(q.EndTime), q.ExecutionStatus,
			q.QueryText, q.StatementType, q.BytesScanned, q.ExecutionTimeMS, q.Platform, q.Project); err != nil {
			return fmt.Errorf("storage: upsert query %s: %w", q.QueryID, err)
		}
	}
	return tx.Commit()
}

// LoadQueries returns raw queries for a platform/project and optional time range.
func (r *PostgresRepository) LoadQueries(ctx context.Context, platform, project string, start, end time.Time) ([]models.QueryRecord, error) {
	query := `SELECT query_id, user_name, start_time, end_time, execution_status,
			query_text, statement_type, bytes_scanned, execution_time_ms, platform, project
		FROM queries WHERE platform = $1 AND project = $2`
	args := []any{platform, project}
	if !start.IsZero() {
		args = append(args, start.UTC())
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		query += fmt.Sprintf(" AND start_time <= $%d", len(args))
	}
	query += " ORDER BY start_time, query_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: load queries: %w", err)
	}
	defer rows.Close()

	var out []models.QueryRecord
	for rows.Next() {
		var q models.QueryRecord
		var user, status, stmtType sql.NullString
		var startT, endT sql.NullTime
		var bytesScanned, execMS sql.NullInt64
		if err := rows.Scan(&q.QueryID, &user, &startT, &endT, &status,
			&q.QueryText, &stmtType, &bytesScanned, &execMS, &q.Platform, &q.Project); err != nil {
			return nil, fmt.Errorf("storage: scan query: %w", err)
		}
		q.User = user.String
		q.StartTime = startT.Time
		q.EndTime = endT.Time
		q.ExecutionStatus = status.String
		q.StatementType = stmtType.String
		q.BytesScanned = bytesScanned.Int64
		q.ExecutionTimeMS = execMS.Int64
		out = append(out, q)
	}
	return out, rows.Err()
}

// SaveTables replaces the stored metadata for the platform/project carried by
// the first record.
func (r *PostgresRepository) SaveTables(ctx context.Context, tables []models.TableMetadata) error {
	if len(tables) == 0 {
		return nil
	}
	platform, project := tables[0].Platform, tables[0].Project
	if platform == "" || project == "" {
		r.warnSkippedSave(ctx, "save_tables")
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin save_tables: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM warehouse_tables WHERE platform = $1 AND project = $2`,
		platform, project); err != nil {
		return fmt.Errorf("storage: delete tables: %w", err)
	}
	for _, t := range tables {
		columnsJSON, err := json.Marshal(t.Columns)
		if err != nil {
			return fmt.Errorf("storage: marshal columns for %s: %w", t.Table, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO warehouse_tables (database_name, schema_name, table_name,
				columns_json, size_bytes, row_count, platform, project)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.Database, t.Schema, t.Table, string(columnsJSON),
			t.SizeBytes, t.RowCount, t.Platform, t.Project); err != nil {
			return fmt.Errorf("storage: insert table %s: %w", t.Table, err)
		}
	}
	return tx.Commit()
}

// LoadTables returns all stored table metadata.
func (r *PostgresRepository) LoadTables(ctx context.Context) ([]models.TableMetadata, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT database_name, schema_name, table_name, columns_json,
			size_bytes, row_count, platform, project
		 FROM warehouse_tables ORDER BY platform, project, database_name, schema_name, table_name`)
	if err != nil {
		return nil, fmt.Errorf("storage: load tables: %w", err)
	}
	defer rows.Close()

	var out []models.TableMetadata
	for rows.Next() {
		var t models.TableMetadata
		var db, schema, columnsJSON sql.NullString
		var sizeBytes, rowCount sql.NullInt64
		if err := rows.Scan(&db, &schema, &t.Table, &columnsJSON,
			&sizeBytes, &rowCount, &t.Platform, &t.Project); err != nil {
			return nil, fmt.Errorf("storage: scan table: %w", err)
		}
		t.Database = db.String
		t.Schema = schema.String
		t.SizeBytes = sizeBytes.Int64
		t.RowCount = rowCount.Int64
		if columnsJSON.Valid && columnsJSON.String != "" {
			if err := json.Unmarshal([]byte(columnsJSON.String), &t.Columns); err != nil {
				return nil, fmt.Errorf("storage: unmarshal columns for %s: %w", t.Table, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// replaceFacts deletes existing fact rows per (query_id, platform, project)
// and re-inserts. Shared shape between the three fact tables.
func (r *PostgresRepository) replaceFacts(ctx context.Context, table string, keys []string, insert func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin save %s: %w", table, err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool)
	for i := 0; i < len(keys); i += 3 {
		key := keys[i] + "\x00" + keys[i+1] + "\x00" + keys[i+2]
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE query_id = $1 AND platform = $2 AND project = $3`, table),
			keys[i], keys[i+1], keys[i+2]); err != nil {
			return fmt.Errorf("storage: delete %s for %s: %w", table, keys[i], err)
		}
	}
	if err := insert(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveReadTableFacts upserts read-table facts by (query_id, platform, project).
func (r *PostgresRepository) SaveReadTableFacts(ctx context.Context, facts []models.ReadTableFact) error {
	if len(facts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(facts)*3)
	scoped := false
	for _, f := range facts {
		keys = append(keys, f.QueryID, f.Platform, f.Project)
		if f.Platform != "" && f.Project != "" {
			scoped = true
		}
	}
	if !scoped {
		r.warnSkippedSave(ctx, "save_read_table_facts")
		return nil
	}
	return r.replaceFacts(ctx, "read_table_facts", keys, func(tx *sql.Tx) error {
		for _, f := range facts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO read_table_facts (query_id, start_time, platform, project,
					database_name, schema_name, table_name, fact_count, error_text)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				f.QueryID, nullTime(f.StartTime), f.Platform, f.Project,
				f.Database, f.Schema, f.Table, f.Count, f.Error); err != nil {
				return fmt.Errorf("storage: insert read-table fact for %s: %w", f.QueryID, err)
			}
		}
		return nil
	})
}

// LoadReadTableFacts returns read-table facts for a platform/project and range.
func (r *PostgresRepository) LoadReadTableFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.ReadTableFact, error) {
	query := `SELECT query_id, start_time, platform, project,
			database_name, schema_name, table_name, fact_count, error_text
		FROM read_table_facts WHERE platform = $1 AND project = $2`
	args := []any{platform, project}
	if !start.IsZero() {
		args = append(args, start.UTC())
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		query += fmt.Sprintf(" AND start_time <= $%d", len(args))
	}
	query += " ORDER BY start_time, query_id, database_name, schema_name, table_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: load read-table facts: %w", err)
	}
	defer rows.Close()

	var out []models.ReadTableFact
	for rows.Next() {
		var f models.ReadTableFact
		var startT sql.NullTime
		var db, schema, table, errText sql.NullString
		var count sql.NullInt64
		if err := rows.Scan(&f.QueryID, &startT, &f.Platform, &f.Project,
			&db, &schema, &table, &count, &errText); err != nil {
			return nil, fmt.Errorf("storage: scan read-table fact: %w", err)
		}
		f.StartTime = startT.Time
		f.Database = db.String
		f.Schema = schema.String
		f.Table = table.String
		f.Count = int(count.Int64)
		f.Error = errText.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveWideScanFacts upserts wide-scan facts by (query_id, platform, project).
func (r *PostgresRepository) SaveWideScanFacts(ctx context.Context, facts []models.WideScanFact) error {
	if len(facts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(facts)*3)
	scoped := false
	for _, f := range facts {
		keys = append(keys, f.QueryID, f.Platform, f.Project)
		if f.Platform != "" && f.Project != "" {
			scoped = true
		}
	}
	if !scoped {
		r.warnSkippedSave(ctx, "save_wide_scan_facts")
		return nil
	}
	return r.replaceFacts(ctx, "wide_scan_facts", keys, func(tx *sql.Tx) error {
		for _, f := range facts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO wide_scan_facts (query_id, start_time, platform, project,
					database_name, schema_name, table_name, fact_count, error_text)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				f.QueryID, nullTime(f.StartTime), f.Platform, f.Project,
				f.Database, f.Schema, f.Table, f.Count, f.Error); err != nil {
				return fmt.Errorf("storage: insert wide-scan fact for %s: %w", f.QueryID, err)
			}
		}
		return nil
	})
}

// LoadWideScanFacts returns wide-scan facts for a platform/project and range.
func (r *PostgresRepository) LoadWideScanFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.WideScanFact, error) {
	query := `SELECT query_id, start_time, platform, project,
			database_name, schema_name, table_name, fact_count, error_text
		FROM wide_scan_facts WHERE platform = $1 AND project = $2`
	args := []any{platform, project}
	if !start.IsZero() {
		args = append(args, start.UTC())
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		query += fmt.Sprintf(" AND start_time <= $%d", len(args))
	}
	query += " ORDER BY start_time, query_id, database_name, schema_name, table_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: load wide-scan facts: %w", err)
	}
	defer rows.Close()

	var out []models.WideScanFact
	for rows.Next() {
		var f models.WideScanFact
		var startT sql.NullTime
		var db, schema, table, errText sql.NullString
		var count sql.NullInt64
		if err := rows.Scan(&f.QueryID, &startT, &f.Platform, &f.Project,
			&db, &schema, &table, &count, &errText); err != nil {
			return nil, fmt.Errorf("storage: scan wide-scan fact: %w", err)
		}
		f.StartTime = startT.Time
		f.Database = db.String
		f.Schema = schema.String
		f.Table = table.String
		f.Count = int(count.Int64)
		f.Error = errText.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// SavePartitionFacts upserts partition-candidate facts by (query_id, platform, project).
func (r *PostgresRepository) SavePartitionFacts(ctx context.Context, facts []models.PartitionFact) error {
	if len(facts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(facts)*3)
	scoped := false
	for _, f := range facts {
		keys = append(keys, f.QueryID, f.Platform, f.Project)
		if f.Platform != "" && f.Project != "" {
			scoped = true
		}
	}
	if !scoped {
		r.warnSkippedSave(ctx, "save_partition_facts")
		return nil
	}
	return r.replaceFacts(ctx, "partition_facts", keys, func(tx *sql.Tx) error {
		for _, f := range facts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO partition_facts (query_id, start_time, platform, project,
					database_name, schema_name, table_name, filter_type, column_name, fact_count, error_text)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				f.QueryID, nullTime(f.StartTime), f.Platform, f.Project,
				f.Database, f.Schema, f.Table, f.FilterType, f.Column, f.Count, f.Error); err != nil {
				return fmt.Errorf("storage: insert partition fact for %s: %w", f.QueryID, err)
			}
		}
		return nil
	})
}

// LoadPartitionFacts returns partition-candidate facts for a platform/project and range.
func (r *PostgresRepository) LoadPartitionFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.PartitionFact, error) {
	query := `SELECT query_id, start_time, platform, project,
			database_name, schema_name, table_name, filter_type, column_name, fact_count, error_text
		FROM partition_facts WHERE platform = $1 AND project = $2`
	args := []any{platform, project}
	if !start.IsZero() {
		args = append(args, start.UTC())
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		query += fmt.Sprintf(" AND start_time <= $%d", len(args))
	}
	query += " ORDER BY start_time, query_id, table_name, filter_type, column_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: load partition facts: %w", err)
	}
	defer rows.Close()

	var out []models.PartitionFact
	for rows.Next() {
		var f models.PartitionFact
		var startT sql.NullTime
		var db, schema, table, filterType, column, errText sql.NullString
		var count sql.NullInt64
		if err := rows.Scan(&f.QueryID, &startT, &f.Platform, &f.Project,
			&db, &schema, &table, &filterType, &column, &count, &errText); err != nil {
			return nil, fmt.Errorf("storage: scan partition fact: %w", err)
		}
		f.StartTime = startT.Time
		f.Database = db.String
		f.Schema = schema.String
		f.Table = table.String
		f.FilterType = filterType.String
		f.Column = column.String
		f.Count = int(count.Int64)
		f.Error = errText.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

var _ Storage = (*PostgresRepository)(nil)
