package ga4

import (
	"log"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"

	"ga4-export/internal/model"
)

// BuildDimensionFilter translates a declarative AND group into the Data
// API's filter expression. Malformed conditions (missing field name or
// value) are skipped with a warning; nil is returned when nothing usable
// remains, which means an unrestricted query.
func BuildDimensionFilter(cfg *model.DimensionFilter) *analyticsdata.FilterExpression {
	if cfg == nil || len(cfg.AndGroup) == 0 {
		return nil
	}

	expressions := make([]*analyticsdata.FilterExpression, 0, len(cfg.AndGroup))

	for _, cond := range cfg.AndGroup {
		if cond.FieldName == "" || cond.StringFilter.Value == "" {
			log.Printf("⚠️ Skipping malformed filter condition (field=%q value=%q)",
				cond.FieldName, cond.StringFilter.Value)
			continue
		}

		expressions = append(expressions, &analyticsdata.FilterExpression{
			Filter: &analyticsdata.Filter{
				FieldName: cond.FieldName,
				StringFilter: &analyticsdata.StringFilter{
					MatchType: "EXACT",
					Value:     cond.StringFilter.Value,
				},
			},
		})
	}

	if len(expressions) == 0 {
		return nil
	}

	return &analyticsdata.FilterExpression{
		AndGroup: &analyticsdata.FilterExpressionList{
			Expressions: expressions,
		},
	}
}
