package ga4

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	analyticsadmin "google.golang.org/api/analyticsadmin/v1beta"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"
)

const readonlyScope = "https://www.googleapis.com/auth/analytics.readonly"

// listPageSize is the page size for Admin API listing calls
const listPageSize = 200

// AdminAPI is the account/property discovery surface of GA4
type AdminAPI interface {
	ListAccounts(ctx context.Context) ([]*analyticsadmin.GoogleAnalyticsAdminV1betaAccount, error)
	ListProperties(ctx context.Context, accountName string) ([]*analyticsadmin.GoogleAnalyticsAdminV1betaProperty, error)
	GetProperty(ctx context.Context, name string) (*analyticsadmin.GoogleAnalyticsAdminV1betaProperty, error)
}

// DataAPI is the report querying surface of GA4
type DataAPI interface {
	RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error)
}

// Client wraps the GA4 Admin and Data services behind a shared rate
// limiter. The limiter is owned by the client and safe for concurrent
// workers; every outbound call waits on it.
type Client struct {
	admin   *analyticsadmin.Service
	data    *analyticsdata.Service
	limiter *rate.Limiter
}

// NewClient builds both GA4 services from a service account JSON payload.
// delay is the minimum spacing between consecutive API calls.
func NewClient(ctx context.Context, credentialsJSON []byte, delay time.Duration) (*Client, error) {
	opts := []option.ClientOption{
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(readonlyScope),
	}

	adminSvc, err := analyticsadmin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin service: %w", err)
	}

	dataSvc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create data service: %w", err)
	}

	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	return &Client{
		admin:   adminSvc,
		data:    dataSvc,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}, nil
}

// ListAccounts returns every account the credentials can see, following
// page tokens until exhausted.
func (c *Client) ListAccounts(ctx context.Context) ([]*analyticsadmin.GoogleAnalyticsAdminV1betaAccount, error) {
	var accounts []*analyticsadmin.GoogleAnalyticsAdminV1betaAccount

	pageToken := ""

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.admin.Accounts.List().
			PageSize(listPageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("accounts.list failed: %w", err)
		}

		accounts = append(accounts, resp.Accounts...)

		if resp.NextPageToken == "" {
			return accounts, nil
		}

		pageToken = resp.NextPageToken
	}
}

// ListProperties returns every property under one account resource name
// (e.g. "accounts/123").
func (c *Client) ListProperties(ctx context.Context, accountName string) ([]*analyticsadmin.GoogleAnalyticsAdminV1betaProperty, error) {
	var properties []*analyticsadmin.GoogleAnalyticsAdminV1betaProperty

	pageToken := ""

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.admin.Properties.List().
			Filter("parent:" + accountName).
			PageSize(listPageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("properties.list failed for %s: %w", accountName, err)
		}

		properties = append(properties, resp.Properties...)

		if resp.NextPageToken == "" {
			return properties, nil
		}

		pageToken = resp.NextPageToken
	}
}

// GetProperty fetches metadata for one property resource name
// (e.g. "properties/456").
func (c *Client) GetProperty(ctx context.Context, name string) (*analyticsadmin.GoogleAnalyticsAdminV1betaProperty, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	prop, err := c.admin.Properties.Get(name).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("properties.get failed for %s: %w", name, err)
	}

	return prop, nil
}

// RunReport issues one report request against a property resource name
func (c *Client) RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.data.Properties.RunReport(property, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("runReport failed for %s: %w", property, err)
	}

	return resp, nil
}
