package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"

	"ga4-export/internal/ga4"
	"ga4-export/internal/model"
)

const (
	// PageSize is the Data API's maximum rows per runReport call; the
	// executor requests pages of this size unless overridden.
	PageSize = 100000

	// MaxPages guards against an API that never returns a short page;
	// hitting it ends the property's fetch as partially complete.
	MaxPages = 100
)

// QueryStats summarizes one query's execution across all properties
type QueryStats struct {
	SuccessProps int
	FailedProps  int
	RowsFetched  int
	Succeeded    []model.Property
}

// Executor issues paginated report requests per property, normalizes rows
// into flat records and funnels them to the streaming writer. Properties
// run in parallel under a bounded worker pool; a failure for one property
// is recorded to the error log and never stops the others.
type Executor struct {
	data        ga4.DataAPI
	retry       ga4.RetryConfig
	maxWorkers  int
	batchSize   int
	pageSize    int
	maxPages    int
	callTimeout time.Duration
	errorLog    *ErrorLog
}

// NewExecutor wires the executor. Properties are processed in sequential
// batches of batchSize, parallel within a batch. callTimeout bounds one
// property's whole paginated fetch; a timed-out property is a failure for
// that property only.
func NewExecutor(data ga4.DataAPI, retry ga4.RetryConfig, maxWorkers, batchSize int, callTimeout time.Duration, errorLog *ErrorLog) *Executor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	if batchSize < 1 {
		batchSize = model.DefaultBatchSize
	}

	if callTimeout <= 0 {
		callTimeout = 5 * time.Minute
	}

	return &Executor{
		data:        data,
		retry:       retry,
		maxWorkers:  maxWorkers,
		batchSize:   batchSize,
		pageSize:    PageSize,
		maxPages:    MaxPages,
		callTimeout: callTimeout,
		errorLog:    errorLog,
	}
}

// RunQuery executes one query definition against every property and
// writes arriving records to w. Properties run in sequential batches;
// cross-property ordering within a batch is not guaranteed, pages within
// a property are strictly ordered.
func (e *Executor) RunQuery(ctx context.Context, query model.QueryDefinition, props []model.Property, dates model.DateRange, w *StreamingWriter) QueryStats {
	filter := ga4.BuildDimensionFilter(query.DimensionFilter)

	var (
		mu    sync.Mutex
		stats QueryStats
	)

	for start := 0; start < len(props); start += e.batchSize {
		end := start + e.batchSize
		if end > len(props) {
			end = len(props)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.maxWorkers)

		for _, prop := range props[start:end] {
			prop := prop
			g.Go(func() error {
				pctx, cancel := context.WithTimeout(gctx, e.callTimeout)
				defer cancel()

				rows, err := e.fetchProperty(pctx, query, filter, prop, dates, w)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					stats.FailedProps++
					e.errorLog.Record(model.QueryError{
						QueryName:  query.Name,
						PropertyID: prop.PropertyID,
						Error:      err.Error(),
						Context:    fmt.Sprintf("account=%s range=%s..%s", prop.AccountID, dates.StartDate, dates.EndDate),
					})

					log.Printf("❌ Query %s failed for property %s: %v", query.Name, prop.PropertyID, err)

					return nil // other properties continue
				}

				stats.SuccessProps++
				stats.RowsFetched += rows
				stats.Succeeded = append(stats.Succeeded, prop)

				return nil
			})
		}

		// Workers report failures through the error log, never as errors
		_ = g.Wait()
	}

	return stats
}

// fetchProperty pages through one property's report. Page N+1 is only
// requested after page N completes because its offset depends on the
// rows already received; a page shorter than the limit is the last one.
func (e *Executor) fetchProperty(ctx context.Context, query model.QueryDefinition, filter *analyticsdata.FilterExpression, prop model.Property, dates model.DateRange, w *StreamingWriter) (int, error) {
	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{
			{StartDate: dates.StartDate, EndDate: dates.EndDate},
		},
		Dimensions:      make([]*analyticsdata.Dimension, 0, len(query.Dimensions)),
		Metrics:         make([]*analyticsdata.Metric, 0, len(query.Metrics)),
		DimensionFilter: filter,
		Limit:           int64(e.pageSize),
	}

	for _, d := range query.Dimensions {
		req.Dimensions = append(req.Dimensions, &analyticsdata.Dimension{Name: d})
	}

	for _, m := range query.Metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}

	propertyName := "properties/" + prop.PropertyID
	total := 0

	for page := 0; page < e.maxPages; page++ {
		req.Offset = int64(total)

		var resp *analyticsdata.RunReportResponse

		err := ga4.Retry(ctx, e.retry, func() error {
			var reportErr error
			resp, reportErr = e.data.RunReport(ctx, propertyName, req)
			return reportErr
		})
		if err != nil {
			return total, err
		}

		if len(resp.Rows) > 0 {
			records := make([]model.Record, 0, len(resp.Rows))
			for _, row := range resp.Rows {
				records = append(records, normalizeRow(row, query, prop))
			}

			if err := w.Add(records); err != nil {
				return total, err
			}

			total += len(resp.Rows)
		}

		if len(resp.Rows) < e.pageSize {
			return total, nil
		}
	}

	log.Printf("⚠️ Property %s hit the %d-page ceiling for query %s; result is partial",
		prop.PropertyID, e.maxPages, query.Name)

	return total, nil
}

// normalizeRow flattens one API row: entity metadata first, then one
// field per dimension and metric in declared order. A missing positional
// value becomes "" for dimensions and "0" for metrics instead of failing
// the row.
func normalizeRow(row *analyticsdata.Row, query model.QueryDefinition, prop model.Property) model.Record {
	rec := model.Record(prop.Fields())

	for i, dim := range query.Dimensions {
		if i < len(row.DimensionValues) && row.DimensionValues[i] != nil {
			rec[dim] = row.DimensionValues[i].Value
		} else {
			rec[dim] = ""
		}
	}

	for i, metric := range query.Metrics {
		if i < len(row.MetricValues) && row.MetricValues[i] != nil {
			rec[metric] = row.MetricValues[i].Value
		} else {
			rec[metric] = "0"
		}
	}

	return rec
}
