package extract

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

// bigQueryExtractor reads job history from the region-scoped
// INFORMATION_SCHEMA.JOBS_BY_PROJECT view and table metadata through the
// dataset API.
type bigQueryExtractor struct {
	client  *bigquery.Client
	project string
	region  string
	logger  observability.Logger
}

func newBigQuery(ctx context.Context, conn Connection, logger observability.Logger) (*bigQueryExtractor, error) {
	project := conn.Project
	if project == "" {
		project = conn.Parameters["project_id"]
	}
	if project == "" {
		return nil, qerrors.NewMissingConfiguration("bigquery project",
			"set project or parameters.project_id on the connection")
	}
	region := conn.Parameters["region"]
	if region == "" {
		region = "region-us"
	}

	var opts []option.ClientOption
	if creds := conn.Credentials["service_account_json"]; creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else if path := conn.Credentials["service_account_file"]; path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}

	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: failed to create client: %w", err)
	}
	return &bigQueryExtractor{
		client:  client,
		project: project,
		region:  region,
		logger:  logger,
	}, nil
}

func (e *bigQueryExtractor) Platform() string { return "bigquery" }

type bigQueryJobRow struct {
	CreationTime        time.Time            `bigquery:"creation_time"`
	JobID               string               `bigquery:"job_id"`
	UserEmail           bigquery.NullString  `bigquery:"user_email"`
	Query               bigquery.NullString  `bigquery:"query"`
	StatementType       bigquery.NullString  `bigquery:"statement_type"`
	State               bigquery.NullString  `bigquery:"state"`
	TotalBytesProcessed bigquery.NullInt64   `bigquery:"total_bytes_processed"`
	TotalSlotMS         bigquery.NullInt64   `bigquery:"total_slot_ms"`
}

// ExtractQueryHistory reads QUERY jobs from JOBS_BY_PROJECT. The end time of
// each record is estimated from the slot milliseconds, since the view does
// not expose a wall-clock end per job.
func (e *bigQueryExtractor) ExtractQueryHistory(ctx context.Context, start, end time.Time) ([]models.QueryRecord, error) {
	sql := fmt.Sprintf(`
		SELECT
			creation_time,
			job_id,
			user_email,
			query,
			statement_type,
			state,
			total_bytes_processed,
			total_slot_ms
		FROM `+"`%s.%s.INFORMATION_SCHEMA.JOBS_BY_PROJECT`"+`
		WHERE job_type = 'QUERY'
		  AND creation_time IS NOT NULL`, e.project, e.region)
	var params []bigquery.QueryParameter
	if !start.IsZero() {
		sql += " AND creation_time >= @start_time"
		params = append(params, bigquery.QueryParameter{Name: "start_time", Value: start.UTC()})
	}
	if !end.IsZero() {
		sql += " AND creation_time <= @end_time"
		params = append(params, bigquery.QueryParameter{Name: "end_time", Value: end.UTC()})
	}
	sql += " ORDER BY creation_time"

	q := e.client.Query(sql)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: job history query failed: %w", err)
	}

	var out []models.QueryRecord
	for {
		var row bigQueryJobRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: iterate job history: %w", err)
		}
		record := models.QueryRecord{
			QueryID:         row.JobID,
			User:            row.UserEmail.StringVal,
			StartTime:       row.CreationTime,
			ExecutionStatus: row.State.StringVal,
			QueryText:       row.Query.StringVal,
			StatementType:   row.StatementType.StringVal,
			BytesScanned:    row.TotalBytesProcessed.Int64,
			ExecutionTimeMS: row.TotalSlotMS.Int64,
			Platform:        "bigquery",
			Project:         e.project,
		}
		if !row.CreationTime.IsZero() {
			record.EndTime = row.CreationTime.Add(time.Duration(row.TotalSlotMS.Int64) * time.Millisecond)
		}
		out = append(out, record)
	}
	return out, nil
}

// ExtractTables lists every table of every dataset with its schema and size.
// Tables that fail metadata lookup are logged and skipped so one revoked
// dataset does not sink the whole refresh.
func (e *bigQueryExtractor) ExtractTables(ctx context.Context) ([]models.TableMetadata, error) {
	var out []models.TableMetadata

	datasets := e.client.Datasets(ctx)
	for {
		ds, err := datasets.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: list datasets: %w", err)
		}

		tables := ds.Tables(ctx)
		for {
			table, err := tables.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				e.logger.LogEvent(ctx, observability.Entry{
					Operation: "extract_tables",
					Platform:  "bigquery",
					Project:   e.project,
					Outcome:   "partial",
					Error:     fmt.Sprintf("dataset %s: %v", ds.DatasetID, err),
				})
				break
			}
			meta, err := table.Metadata(ctx)
			if err != nil {
				e.logger.LogEvent(ctx, observability.Entry{
					Operation: "extract_tables",
					Platform:  "bigquery",
					Project:   e.project,
					Table:     table.TableID,
					Outcome:   "partial",
					Error:     err.Error(),
				})
				continue
			}

			record := models.TableMetadata{
				Platform:  "bigquery",
				Project:   e.project,
				Database:  e.project,
				Schema:    ds.DatasetID,
				Table:     table.TableID,
				SizeBytes: meta.NumBytes,
				RowCount:  int64(meta.NumRows),
			}
			for _, field := range meta.Schema {
				record.Columns = append(record.Columns, models.TableColumn{
					Name: field.Name,
					Type: string(field.Type),
				})
			}
			out = append(out, record)
		}
	}
	return out, nil
}

func (e *bigQueryExtractor) Close() error {
	return e.client.Close()
}

var _ Extractor = (*bigQueryExtractor)(nil)
