package ga4

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	analyticsadmin "google.golang.org/api/analyticsadmin/v1beta"

	"ga4-export/internal/model"
)

// Resolver discovers and enriches the property list through the Admin
// API. Account names and property metadata are cached for the lifetime
// of the process; the cache is mutex-protected because Enrich runs
// across a worker pool.
type Resolver struct {
	admin AdminAPI
	retry RetryConfig

	mu           sync.Mutex
	accountNames map[string]string // account id -> display name
	properties   map[string]*analyticsadmin.GoogleAnalyticsAdminV1betaProperty
}

// NewResolver creates a resolver with empty caches
func NewResolver(admin AdminAPI, retry RetryConfig) *Resolver {
	return &Resolver{
		admin:        admin,
		retry:        retry,
		accountNames: make(map[string]string),
		properties:   make(map[string]*analyticsadmin.GoogleAnalyticsAdminV1betaProperty),
	}
}

// Discover lists every accessible account, then every property per
// account. A failure listing one account's properties is logged and
// skipped; only the initial account listing is fatal.
func (r *Resolver) Discover(ctx context.Context) ([]model.Property, error) {
	var accounts []*analyticsadmin.GoogleAnalyticsAdminV1betaAccount

	err := Retry(ctx, r.retry, func() error {
		var listErr error
		accounts, listErr = r.admin.ListAccounts(ctx)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("account discovery failed: %w", err)
	}

	fmt.Printf("🔍 Discovery: found %d accessible accounts\n", len(accounts))

	var discovered []model.Property

	for _, account := range accounts {
		accountID := trimResourceID(account.Name, "accounts/")
		r.cacheAccountName(accountID, account.DisplayName)

		var props []*analyticsadmin.GoogleAnalyticsAdminV1betaProperty

		err := Retry(ctx, r.retry, func() error {
			var listErr error
			props, listErr = r.admin.ListProperties(ctx, account.Name)
			return listErr
		})
		if err != nil {
			log.Printf("❌ Skipping account %s: property listing failed: %v", account.Name, err)
			continue
		}

		for _, prop := range props {
			discovered = append(discovered, model.Property{
				PropertyID:   trimResourceID(prop.Name, "properties/"),
				PropertyName: prop.DisplayName,
				AccountID:    accountID,
				AccountName:  account.DisplayName,
			})
		}
	}

	fmt.Printf("🔍 Discovery: resolved %d properties\n", len(discovered))

	return discovered, nil
}

// Enrich fills missing account metadata for caller-supplied properties
// across a bounded worker pool. A property whose metadata cannot be
// fetched is retained with "unknown" account fields rather than dropped.
func (r *Resolver) Enrich(ctx context.Context, props []model.Property, workers int) []model.Property {
	if workers < 1 {
		workers = 1
	}

	enriched := make([]model.Property, len(props))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, prop := range props {
		i, prop := i, prop
		g.Go(func() error {
			enriched[i] = r.enrichOne(gctx, prop)
			return nil
		})
	}

	// Workers never return errors; failures degrade to "unknown"
	_ = g.Wait()

	return enriched
}

func (r *Resolver) enrichOne(ctx context.Context, prop model.Property) model.Property {
	if prop.AccountID != "" && prop.AccountName != "" {
		return prop
	}

	name := "properties/" + prop.PropertyID

	metadata, err := r.getPropertyCached(ctx, name)
	if err != nil {
		log.Printf("❌ Failed to enrich property %s: %v", prop.PropertyID, err)

		prop.AccountID = model.UnknownAccount
		prop.AccountName = model.UnknownAccount

		return prop
	}

	accountID := trimResourceID(metadata.Parent, "accounts/")

	prop.PropertyName = metadata.DisplayName
	prop.AccountID = accountID
	prop.AccountName = r.accountName(accountID)

	return prop
}

// getPropertyCached returns property metadata, fetching at most once per
// property id for the lifetime of the process.
func (r *Resolver) getPropertyCached(ctx context.Context, name string) (*analyticsadmin.GoogleAnalyticsAdminV1betaProperty, error) {
	r.mu.Lock()
	if cached, ok := r.properties[name]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	var metadata *analyticsadmin.GoogleAnalyticsAdminV1betaProperty

	err := Retry(ctx, r.retry, func() error {
		var getErr error
		metadata, getErr = r.admin.GetProperty(ctx, name)
		return getErr
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.properties[name] = metadata
	r.mu.Unlock()

	return metadata, nil
}

func (r *Resolver) cacheAccountName(accountID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if displayName != "" {
		r.accountNames[accountID] = displayName
	}
}

// accountName returns the cached display name, or the derived
// "account_<id>" placeholder when the account was never listed.
func (r *Resolver) accountName(accountID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.accountNames[accountID]; ok {
		return name
	}

	name := "account_" + accountID
	r.accountNames[accountID] = name

	return name
}

func trimResourceID(name, prefix string) string {
	if strings.HasPrefix(name, prefix) {
		return name[len(prefix):]
	}

	// Fall back to the last path segment
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}

	return name
}
