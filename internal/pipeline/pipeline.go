package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"

	"ga4-export/internal/ga4"
	"ga4-export/internal/model"
	"ga4-export/internal/store"
	"ga4-export/pkg/utils"
)

// ------------------- Export Run Driver -------------------

// Run executes one full export: resolve dates and properties, inject the
// mandatory date dimension, execute every query definition against every
// property, finalize a writer and manifest per query. Only
// configuration-time failures are returned as errors; per-property and
// per-query failures are recorded and the run continues.
func Run(ctx context.Context, runID string, spec model.ExportJobSpec) (err error) {
	start := time.Now()
	fmt.Printf("🚀 Starting export run: %s\n", runID)

	store.UpdateRunStatus(runID, "running")

	defer func() {
		if err != nil {
			store.UpdateRunStatus(runID, "failed")
			store.SaveRunError(runID, err)
		}
	}()

	spec.ApplyDefaults()

	// Configuration errors abort before any API call
	if err = spec.Validate(); err != nil {
		return err
	}

	timeout := utils.ParseDuration(spec.Parameters.JobTimeout, 30*time.Minute)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	credentialsJSON, err := json.Marshal(spec.Parameters.ServiceAccountJSON)
	if err != nil {
		return fmt.Errorf("cannot serialize service account credentials: %w", err)
	}

	delay := time.Duration(spec.Parameters.RateLimitDelay * float64(time.Second))

	client, err := ga4.NewClient(ctx, credentialsJSON, delay)
	if err != nil {
		return fmt.Errorf("cannot create GA4 client: %w", err)
	}

	if err = runWithAPIs(ctx, runID, spec, client, client); err != nil {
		return err
	}

	fmt.Printf("🏁 Export run %s finished in %v\n", runID, time.Since(start))

	return nil
}

// runWithAPIs is the driver body behind the GA4 service boundary. The
// admin and data surfaces are injected so the orchestration is testable
// without network access.
func runWithAPIs(ctx context.Context, runID string, spec model.ExportJobSpec, admin ga4.AdminAPI, data ga4.DataAPI) error {
	dates := spec.ResolveDateRange(time.Now())
	if spec.Parameters.StartDate == "" || spec.Parameters.EndDate == "" {
		fmt.Printf("ℹ️ No date range provided. Using default range: %s to %s\n", dates.StartDate, dates.EndDate)
	}

	store.SaveRunLog(runID, "config", "info", "Resolved date range", map[string]interface{}{
		"start_date": dates.StartDate,
		"end_date":   dates.EndDate,
	})

	retryCfg := ga4.DefaultRetryConfig(spec.Parameters.MaxRetries)

	properties, err := resolveProperties(ctx, runID, spec, admin, retryCfg)
	if err != nil {
		return err
	}

	queries := InjectDateDimension(spec.Parameters.QueryDefinitions)

	if len(properties) == 0 || len(queries) == 0 {
		fmt.Printf("🏁 Nothing to export (%d properties, %d queries); run %s ends with no artifacts\n",
			len(properties), len(queries), runID)

		store.SaveRunLog(runID, "export", "info", "Nothing to export", map[string]interface{}{
			"properties": len(properties),
			"queries":    len(queries),
		})
		store.UpdateRunStatus(runID, "completed")

		return nil
	}

	errorLog, err := OpenErrorLog(filepath.Join(spec.Parameters.OutputDir, "query_errors.csv"))
	if err != nil {
		return err
	}
	defer errorLog.Close()

	executor := NewExecutor(data, retryCfg, spec.Parameters.MaxWorkers, spec.Parameters.BatchSize, 5*time.Minute, errorLog)

	store.UpdateRunStatus(runID, "exporting")

	runDate := time.Now().Format("2006-01-02")

	var partial *multierror.Error

	for _, query := range queries {
		result, qerr := runOneQuery(ctx, runID, spec, query, properties, dates, executor, runDate)
		if qerr != nil {
			partial = multierror.Append(partial, fmt.Errorf("query %s: %w", query.Name, qerr))
			continue
		}

		fmt.Printf("✅ Query %s: %d rows written to %s (%.1f%% success, %d/%d properties)\n",
			query.Name, result.Stats.TotalRows, result.Filename, result.Stats.SuccessRate,
			result.SuccessProps, len(properties))
	}

	if perr := partial.ErrorOrNil(); perr != nil {
		// Write-path failures degrade the run, they do not fail it
		store.SaveRunError(runID, perr)
		store.UpdateRunStatus(runID, "completed_with_errors")
		fmt.Printf("⚠️ Export run %s completed with errors: %v\n", runID, perr)

		return nil
	}

	store.UpdateRunStatus(runID, "completed")

	return nil
}

// resolveProperties discovers all accessible properties, or enriches the
// configured list with Admin API metadata.
func resolveProperties(ctx context.Context, runID string, spec model.ExportJobSpec, admin ga4.AdminAPI, retryCfg ga4.RetryConfig) ([]model.Property, error) {
	resolver := ga4.NewResolver(admin, retryCfg)

	if len(spec.Parameters.PropertyList) == 0 {
		fmt.Println("ℹ️ No property list provided. Discovering all accessible GA4 properties...")
		store.UpdateRunStatus(runID, "discovering")

		properties, err := resolver.Discover(ctx)
		if err != nil {
			return nil, err
		}

		store.SaveRunLog(runID, "discovery", "info", "Discovery completed", map[string]interface{}{
			"properties": len(properties),
		})

		return properties, nil
	}

	fmt.Println("ℹ️ Enriching configured property list with Admin API metadata...")
	store.UpdateRunStatus(runID, "enriching")

	properties := resolver.Enrich(ctx, spec.Parameters.PropertyList, spec.Parameters.MaxWorkers)

	store.SaveRunLog(runID, "enrichment", "info", "Enrichment completed", map[string]interface{}{
		"properties": len(properties),
	})

	return properties, nil
}

// runOneQuery executes a single query definition end to end: writer,
// executor, finalize, manifest, output file registration.
func runOneQuery(ctx context.Context, runID string, spec model.ExportJobSpec, query model.QueryDefinition, properties []model.Property, dates model.DateRange, executor *Executor, runDate string) (model.QueryResult, error) {
	started := time.Now()

	columns := append([]string{}, model.EntityColumns...)
	columns = append(columns, query.Dimensions...)
	columns = append(columns, query.Metrics...)

	format := spec.Parameters.OutputFormat
	filename := OutputFilename(spec.Parameters.OutputDir, spec.Parameters.Destination, query.Name, format, runDate)

	writer, err := NewStreamingWriter(filename, columns, WriterOptions{
		ChunkSize: spec.Parameters.ChunkSize,
		Format:    format,
	})
	if err != nil {
		return model.QueryResult{}, err
	}

	qstats := executor.RunQuery(ctx, query, properties, dates, writer)

	stats, err := writer.Finalize()
	if err != nil {
		return model.QueryResult{}, err
	}

	store.SaveRunLog(runID, "export", "info", "Query finished", map[string]interface{}{
		"query":           query.Name,
		"rows":            stats.TotalRows,
		"success_rate":    stats.SuccessRate,
		"failed_props":    qstats.FailedProps,
		"succeeded_props": qstats.SuccessProps,
		"duration_ms":     time.Since(started).Milliseconds(),
		"filename":        filename,
	})

	// An empty result set leaves no artifacts: no manifest, no file
	if stats.TotalRows == 0 {
		os.Remove(filename)

		return model.QueryResult{
			QueryName:    query.Name,
			Filename:     filename,
			Stats:        stats,
			FailedProps:  qstats.FailedProps,
			SuccessProps: qstats.SuccessProps,
		}, nil
	}

	manifest := BuildManifest(query, filename, format, stats, qstats.Succeeded, started)
	if err := WriteManifest(filename+".manifest.json", manifest); err != nil {
		return model.QueryResult{}, err
	}

	store.SaveOutputFile(model.OutputFile{
		RunID:     runID,
		QueryName: query.Name,
		Filename:  filename,
		Format:    format,
		RowCount:  stats.TotalRows,
		CreatedAt: time.Now().UTC(),
	})

	return model.QueryResult{
		QueryName:    query.Name,
		Filename:     filename,
		Stats:        stats,
		FailedProps:  qstats.FailedProps,
		SuccessProps: qstats.SuccessProps,
	}, nil
}
