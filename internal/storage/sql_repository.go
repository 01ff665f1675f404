package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

// SQLRepository implements Storage over a database/sql connection using `?`
// placeholders. The default backend is DuckDB; the pure-Go sqlite driver
// works for tests through NewWithDB.
//
// Timestamps are stored as RFC 3339 UTC text so the same schema works across
// embedded engines; the fixed format keeps lexical and chronological order
// identical for range filters.
type SQLRepository struct {
	db     *sql.DB
	logger observability.Logger
}

// NewDuckDB opens (or creates) a DuckDB database at the given path and
// initializes the schema. Use ":memory:" for an in-memory database.
func NewDuckDB(path string, logger observability.Logger) (*SQLRepository, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open duckdb at %s: %w", path, err)
	}
	repo, err := NewWithDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewWithDB wraps an existing database/sql connection and initializes the
// schema. The connection must use `?` placeholders (DuckDB, SQLite).
func NewWithDB(db *sql.DB, logger observability.Logger) (*SQLRepository, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	repo := &SQLRepository{db: db, logger: logger}
	if err := repo.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *SQLRepository) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS queries (
			query_id TEXT NOT NULL,
			user_name TEXT,
			start_time TEXT,
			end_time TEXT,
			execution_status TEXT,
			query_text TEXT NOT NULL,
			statement_type TEXT,
			bytes_scanned BIGINT,
			execution_time_ms BIGINT,
			platform TEXT NOT NULL,
			project TEXT NOT NULL,
			PRIMARY KEY (query_id, platform, project)
		)`,
		`CREATE TABLE IF NOT EXISTS warehouse_tables (
			database_name TEXT,
			schema_name TEXT,
			table_name TEXT NOT NULL,
			columns_json TEXT,
			size_bytes BIGINT,
			row_count BIGINT,
			platform TEXT NOT NULL,
			project TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS read_table_facts (
			query_id TEXT NOT NULL,
			start_time TEXT,
			platform TEXT NOT NULL,
			project TEXT NOT NULL,
			database_name TEXT,
			schema_name TEXT,
			table_name TEXT,
			fact_count BIGINT,
			error_text TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS wide_scan_facts (
			query_id TEXT NOT NULL,
			start_time TEXT,
			platform TEXT NOT NULL,
			project TEXT NOT NULL,
			database_name TEXT,
			schema_name TEXT,
			table_name TEXT,
			fact_count BIGINT,
			error_text TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS partition_facts (
			query_id TEXT NOT NULL,
			start_time TEXT,
			platform TEXT NOT NULL,
			project TEXT NOT NULL,
			database_name TEXT,
			schema_name TEXT,
			table_name TEXT,
			filter_type TEXT,
			column_name TEXT,
			fact_count BIGINT,
			error_text TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: schema init failed: %w", err)
		}
	}
	return nil
}

func encodeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// timeRangeClause appends start/end predicates for the given column.
// Zero times mean unbounded.
func timeRangeClause(column string, start, end time.Time, args []any) (string, []any) {
	clause := ""
	if !start.IsZero() {
		clause += fmt.Sprintf(" AND %s >= ?", column)
		args = append(args, start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		clause += fmt.Sprintf(" AND %s <= ?", column)
		args = append(args, end.UTC().Format(time.RFC3339))
	}
	return clause, args
}

// warnSkippedSave records the no-op warning for a fact save that carried no
// platform/project scope.
func (r *SQLRepository) warnSkippedSave(ctx context.Context, operation string) {
	r.logger.LogEvent(ctx, observability.Entry{
		Operation: operation,
		Platform:  "unknown",
		Outcome:   "skipped",
		Error:     "no record carries platform and project; nothing saved",
	})
}

// SaveQueries upserts raw query-history records keyed by (query_id, platform, project).
func (r *SQLRepository) SaveQueries(ctx context.Context, queries []models.QueryRecord) error {
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
			`DELETE FROM queries WHERE query_id = ? AND platform = ? AND project = ?`,
			q.QueryID, q.Platform, q.Project); err != nil {
			return fmt.Errorf("storage: delete query %s: %w", q.QueryID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queries (query_id, user_name, start_time, end_time, execution_status,
				query_text, statement_type, bytes_scanned, execution_time_ms, platform, project)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.QueryID, q.User, encodeTime(q.StartTime), encodeTime(q.EndTime), q.ExecutionStatus,
			q.QueryText, q.StatementType, q.BytesScanned, q.ExecutionTimeMS, q.Platform, q.Project); err != nil {
			return fmt.Errorf("storage: insert query %s: %w", q.QueryID, err)
		}
	}
	return tx.Commit()
}

// LoadQueries returns raw queries for a platform/project and optional time range.
func (r *SQLRepository) LoadQueries(ctx context.Context, platform, project string, start, end time.Time) ([]models.QueryRecord, error) {
	query := `SELECT query_id, user_name, start_time, end_time, execution_status,
			query_text, statement_type, bytes_scanned, execution_time_ms, platform, project
		FROM queries WHERE platform = ? AND project = ?`
	args := []any{platform, project}
	clause, args := timeRangeClause("start_time", start, end, args)
	query += clause + " ORDER BY start_time, query_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: load queries: %w", err)
	}
	defer rows.Close()

	var out []models.QueryRecord
	for rows.Next() {
		var q models.QueryRecord
		var user, startT, endT, status, stmtType sql.NullString
		var bytesScanned, execMS sql.NullInt64
		if err := rows.Scan(&q.QueryID, &user, &startT, &endT, &status,
			&q.QueryText, &stmtType, &bytesScanned, &execMS, &q.Platform, &q.Project); err != nil {
			return nil, fmt.Errorf("storage: scan query: %w", err)
		}
		q.User = user.String
		q.StartTime = decodeTime(startT)
		q.EndTime = decodeTime(endT)
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
func (r *SQLRepository) SaveTables(ctx context.Context, tables []models.TableMetadata) error {
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
		`DELETE FROM warehouse_tables WHERE platform = ? AND project = ?`,
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
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.Database, t.Schema, t.Table, string(columnsJSON),
			t.SizeBytes, t.RowCount, t.Platform, t.Project); err != nil {
			return fmt.Errorf("storage: insert table %s: %w", t.Table, err)
		}
	}
	return tx.Commit()
}

// LoadTables returns all stored table metadata.
func (r *SQLRepository) LoadTables(ctx context.Context) ([]models.TableMetadata, error) {
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

// factScope finds the first platform/project pair carried by the facts.
func factScope(platforms, projects []string) (string, string, bool) {
	for i := range platforms {
		if platforms[i] != "" && projects[i] != "" {
			return platforms[i], projects[i], true
		}
	}
	return "", "", false
}

// SaveReadTableFacts upserts read-table facts by (query_id, platform, project).
func (r *SQLRepository) SaveReadTableFacts(ctx context.Context, facts []models.ReadTableFact) error {
	if len(facts) == 0 {
		return nil
	}
	platforms := make([]string, len(facts))
	projects := make([]string, len(facts))
	for i, f := range facts {
		platforms[i], projects[i] = f.Platform, f.Project
	}
	if _, _, ok := factScope(platforms, projects); !ok {
		r.warnSkippedSave(ctx, "save_read_table_facts")
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin save_read_table_facts: %w", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool)
	for _, f := range facts {
		key := f.QueryID + "\x00" + f.Platform + "\x00" + f.Project
		if !seen[key] {
			seen[key] = true
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM read_table_facts WHERE query_id = ? AND platform = ? AND project = ?`,
				f.QueryID, f.Platform, f.Project); err != nil {
				return fmt.Errorf("storage: delete read-table facts for %s: %w", f.QueryID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO read_table_facts (query_id, start_time, platform, project,
				database_name, schema_name, table_name, fact_count, error_text)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.QueryID, encodeTime(f.StartTime), f.Platform, f.Project,
			f.Database, f.Schema, f.Table, f.Count, f.Error); err != nil {
			return fmt.Errorf("storage: insert read-table fact for %s: %w", f.QueryID, err)
		}
	}
	return tx.Commit()
}

// LoadReadTableFacts returns read-table facts for a platform/project and range.
func (r *SQLRepository) LoadReadTableFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.ReadTableFact, error) {
	query := `SELECT query_id, start_time, platform, project,
			database_name, schema_name, table_name, fact_count, error_text
		FROM read_table_facts WHERE platform = ? AND project = ?`
	args := []any{platform, project}
	clause, args := timeRangeClause("start_time", start, end, args)
	query += clause + " ORDER BY start_time, query_id, database_name, schema_name, table_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: load read-table facts: %w", err)
	}
	defer rows.Close()

	var out []models.ReadTableFact
	for rows.Next() {
		f, err := scanReadTableFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanReadTableFact(rows *sql.Rows) (models.ReadTableFact, error) {
	var f models.ReadTableFact
	var startT, db, schema, table, errText sql.NullString
	var count sql.NullInt64
	if err := rows.Scan(&f.QueryID, &startT, &f.Platform, &f.Project,
		&db, &schema, &table, &count, &errText); err != nil {
		return f, fmt.Errorf("storage: scan read-table fact: %w", err)
	}
	f.StartTime = decodeTime(startT)
	f.Database = db.String
	f.Schema = schema.String
	f.Table = table.String
	f.Count = int(count.Int64)
	f.Error = errText.String
	return f, nil
}

// SaveWideScanFacts upserts wide-scan facts by (query_id, platform, project).
func (r *SQLRepository) SaveWideScanFacts(ctx context.Context, facts []models.WideScanFact) error {
	if len(facts) == 0 {
		return nil
	}
	platforms := make([]string, len(facts))
	projects := make([]string, len(facts))
	for i, f := range facts {
		platforms[i], projects[i] = f.Platform, f.Project
	}
	if _, _, ok := factScope(platforms, projects); !ok {
		r.warnSkippedSave(ctx, "save_wide_scan_facts")
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin save_wide_scan_facts: %w", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool)
	for _, f := range facts {
		key := f.QueryID + "\x00" + f.Platform + "\x00" + f.Project
		if !seen[key] {
			seen[key] = true
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM wide_scan_facts WHERE query_id = ? AND platform = ? AND project = ?`,
				f.QueryID, f.Platform, f.Project); err != nil {
				return fmt.Errorf("storage: delete wide-scan facts for %s: %w", f.QueryID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO wide_scan_facts (query_id, start_time, platform, project,
				database_name, schema_name, table_name, fact_count, error_text)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.QueryID, encodeTime(f.StartTime), f.Platform, f.Project,
			f.Database, f.Schema, f.Table, f.Count, f.Error); err != nil {
			return fmt.Errorf("storage: insert wide-scan fact for %s: %w", f.QueryID, err)
		}
	}
	return tx.Commit()
}

// LoadWideScanFacts returns wide-scan facts for a platform/project and range.
func (r *SQLRepository) LoadWideScanFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.WideScanFact, error) {
	query := `SELECT query_id, start_time, platform, project,
			database_name, schema_name, table_name, fact_count, error_text
		FROM wide_scan_facts WHERE platform = ? AND project = ?`
	args := []any{platform, project}
	clause, args := timeRangeClause("start_time", start, end, args)
	query += clause + " ORDER BY start_time, query_id, database_name, schema_name, table_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: load wide-scan facts: %w", err)
	}
	defer rows.Close()

	var out []models.WideScanFact
	for rows.Next() {
		var f models.WideScanFact
		var startT, db, schema, table, errText sql.NullString
		var count sql.NullInt64
		if err := rows.Scan(&f.QueryID, &startT, &f.Platform, &f.Project,
			&db, &schema, &table, &count, &errText); err != nil {
			return nil, fmt.Errorf("storage: scan wide-scan fact: %w", err)
		}
		f.StartTime = decodeTime(startT)
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
func (r *SQLRepository) SavePartitionFacts(ctx context.Context, facts []models.PartitionFact) error {
	if len(facts) == 0 {
		return nil
	}
	platforms := make([]string, len(facts))
	projects := make([]string, len(facts))
	for i, f := range facts {
		platforms[i], projects[i] = f.Platform, f.Project
	}
	if _, _, ok := factScope(platforms, projects); !ok {
		r.warnSkippedSave(ctx, "save_partition_facts")
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin save_partition_facts: %w", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool)
	for _, f := range facts {
		key := f.QueryID + "\x00" + f.Platform + "\x00" + f.Project
		if !seen[key] {
			seen[key] = true
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM partition_facts WHERE query_id = ? AND platform = ? AND project = ?`,
				f.QueryID, f.Platform, f.Project); err != nil {
				return fmt.Errorf("storage: delete partition facts for %s: %w", f.QueryID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO partition_facts (query_id, start_time, platform, project,
				database_name, schema_name, table_name, filter_type, column_name, fact_count, error_text)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.QueryID, encodeTime(f.StartTime), f.Platform, f.Project,
			f.Database, f.Schema, f.Table, f.FilterType, f.Column, f.Count, f.Error); err != nil {
			return fmt.Errorf("storage: insert partition fact for %s: %w", f.QueryID, err)
		}
	}
	return tx.Commit()
}

// LoadPartitionFacts returns partition-candidate facts for a platform/project and range.
func (r *SQLRepository) LoadPartitionFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.PartitionFact, error) {
	query := `SELECT query_id, start_time, platform, project,
			database_name, schema_name, table_name, filter_type, column_name, fact_count, error_text
		FROM partition_facts WHERE platform = ? AND project = ?`
	args := []any{platform, project}
	clause, args := timeRangeClause("start_time", start, end, args)
	query += clause + " ORDER BY start_time, query_id, table_name, filter_type, column_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: load partition facts: %w", err)
	}
	defer rows.Close()

	var out []models.PartitionFact
	for rows.Next() {
		var f models.PartitionFact
		var startT, db, schema, table, filterType, column, errText sql.NullString
		var count sql.NullInt64
		if err := rows.Scan(&f.QueryID, &startT, &f.Platform, &f.Project,
			&db, &schema, &table, &filterType, &column, &count, &errText); err != nil {
			return nil, fmt.Errorf("storage: scan partition fact: %w", err)
		}
		f.StartTime = decodeTime(startT)
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
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

var _ Storage = (*SQLRepository)(nil)
