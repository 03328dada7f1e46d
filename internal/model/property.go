package model

// UnknownAccount marks entities whose account metadata could not be fetched
const UnknownAccount = "unknown"

// Property is one GA4 property with its owning account. Identity is
// PropertyID. Enrichment fills the account fields in place; after that
// the value is treated as immutable for the rest of the run.
type Property struct {
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name"`
	AccountID    string `json:"account_id"`
	AccountName  string `json:"account_name"`
}

// EntityColumns is the fixed metadata prefix of every output row, before
// the query's dimensions and metrics.
var EntityColumns = []string{"property_id", "property_name", "account_id", "account_name"}

// Fields returns the property as record fields keyed by EntityColumns
func (p Property) Fields() map[string]string {
	return map[string]string{
		"property_id":   p.PropertyID,
		"property_name": p.PropertyName,
		"account_id":    p.AccountID,
		"account_name":  p.AccountName,
	}
}
