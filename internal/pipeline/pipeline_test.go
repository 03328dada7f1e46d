package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	analyticsadmin "google.golang.org/api/analyticsadmin/v1beta"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"

	"ga4-export/internal/model"
	"ga4-export/internal/store"
)

type fakeAdmin struct {
	accounts   []*analyticsadmin.GoogleAnalyticsAdminV1betaAccount
	properties map[string][]*analyticsadmin.GoogleAnalyticsAdminV1betaProperty
	metadata   map[string]*analyticsadmin.GoogleAnalyticsAdminV1betaProperty
}

func (f *fakeAdmin) ListAccounts(ctx context.Context) ([]*analyticsadmin.GoogleAnalyticsAdminV1betaAccount, error) {
	return f.accounts, nil
}

func (f *fakeAdmin) ListProperties(ctx context.Context, accountName string) ([]*analyticsadmin.GoogleAnalyticsAdminV1betaProperty, error) {
	return f.properties[accountName], nil
}

func (f *fakeAdmin) GetProperty(ctx context.Context, name string) (*analyticsadmin.GoogleAnalyticsAdminV1betaProperty, error) {
	return f.metadata[name], nil
}

func todaysDate() string {
	return time.Now().Format("2006-01-02")
}

func initTestStore(t *testing.T) {
	t.Helper()
	require.NoError(t, store.InitDB(filepath.Join(t.TempDir(), "test.db")))
}

func runSpec(t *testing.T, outputDir string) model.ExportJobSpec {
	t.Helper()

	return model.ExportJobSpec{
		Parameters: model.Parameters{
			ServiceAccountJSON: map[string]interface{}{"private_key": "k", "client_email": "svc@example.com"},
			Destination:        "analytics",
			StartDate:          "2026-08-17",
			EndDate:            "2026-08-24",
			OutputDir:          outputDir,
			PropertyList: []model.Property{
				{PropertyID: "1", PropertyName: "Web", AccountID: "9", AccountName: "Acme"},
			},
			QueryDefinitions: []model.QueryDefinition{
				{Name: "daily", Dimensions: []string{"date"}, Metrics: []string{"sessions"}},
			},
		},
	}
}

func TestRunWithAPIsProducesArtifacts(t *testing.T) {
	initTestStore(t)

	outputDir := filepath.Join(t.TempDir(), "outputs")
	spec := runSpec(t, outputDir)
	spec.ApplyDefaults()

	runID := "test-run-1"
	require.NoError(t, store.SaveRun(runID, spec))

	data := &fakeData{
		handler: func(property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
			return &analyticsdata.RunReportResponse{
				Rows: []*analyticsdata.Row{
					reportRow([]string{"20260820"}, []string{"42"}),
					reportRow([]string{"20260821"}, []string{"7"}),
				},
			}, nil
		},
	}

	require.NoError(t, runWithAPIs(context.Background(), runID, spec, &fakeAdmin{}, data))

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "completed", run["status"])

	csvPath := OutputFilename(outputDir, "analytics", "daily", model.FormatDefault, todaysDate())
	rows := readCSV(t, csvPath)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "Web", "9", "Acme", "20260820", "42"}, rows[1])

	_, err = os.Stat(csvPath + ".manifest.json")
	require.NoError(t, err)

	files, err := store.GetOutputFiles(runID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "daily", files[0].QueryName)
	assert.Equal(t, 2, files[0].RowCount)
}

func TestRunWithAPIsNoPropertiesEndsEarly(t *testing.T) {
	initTestStore(t)

	outputDir := filepath.Join(t.TempDir(), "outputs")
	spec := runSpec(t, outputDir)
	spec.Parameters.PropertyList = nil // forces discovery
	spec.ApplyDefaults()

	runID := "test-run-2"
	require.NoError(t, store.SaveRun(runID, spec))

	// Discovery against credentials that can see nothing
	require.NoError(t, runWithAPIs(context.Background(), runID, spec, &fakeAdmin{}, &fakeData{}))

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "completed", run["status"])

	// No artifacts at all, not even the error log
	_, err = os.Stat(outputDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRunWithAPIsZeroRowsLeavesNoArtifacts(t *testing.T) {
	initTestStore(t)

	outputDir := filepath.Join(t.TempDir(), "outputs")
	spec := runSpec(t, outputDir)
	spec.ApplyDefaults()

	runID := "test-run-3"
	require.NoError(t, store.SaveRun(runID, spec))

	data := &fakeData{
		handler: func(property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
			return &analyticsdata.RunReportResponse{}, nil
		},
	}

	require.NoError(t, runWithAPIs(context.Background(), runID, spec, &fakeAdmin{}, data))

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "completed", run["status"])

	csvPath := OutputFilename(outputDir, "analytics", "daily", model.FormatDefault, todaysDate())

	_, err = os.Stat(csvPath)
	assert.True(t, os.IsNotExist(err), "empty result must leave no output file")

	_, err = os.Stat(csvPath + ".manifest.json")
	assert.True(t, os.IsNotExist(err), "empty result must leave no manifest")

	files, err := store.GetOutputFiles(runID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunWithAPIsDiscoversProperties(t *testing.T) {
	initTestStore(t)

	outputDir := filepath.Join(t.TempDir(), "outputs")
	spec := runSpec(t, outputDir)
	spec.Parameters.PropertyList = nil
	spec.ApplyDefaults()

	runID := "test-run-4"
	require.NoError(t, store.SaveRun(runID, spec))

	admin := &fakeAdmin{
		accounts: []*analyticsadmin.GoogleAnalyticsAdminV1betaAccount{
			{Name: "accounts/9", DisplayName: "Acme"},
		},
		properties: map[string][]*analyticsadmin.GoogleAnalyticsAdminV1betaProperty{
			"accounts/9": {
				{Name: "properties/1", DisplayName: "Web", Parent: "accounts/9"},
			},
		},
	}

	data := &fakeData{
		handler: func(property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
			return &analyticsdata.RunReportResponse{
				Rows: []*analyticsdata.Row{reportRow([]string{"20260820"}, []string{"42"})},
			}, nil
		},
	}

	require.NoError(t, runWithAPIs(context.Background(), runID, spec, admin, data))

	csvPath := OutputFilename(outputDir, "analytics", "daily", model.FormatDefault, todaysDate())
	rows := readCSV(t, csvPath)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "Web", "9", "Acme", "20260820", "42"}, rows[1])
}
