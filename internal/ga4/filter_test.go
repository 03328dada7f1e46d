package ga4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga4-export/internal/model"
)

func TestBuildDimensionFilterNil(t *testing.T) {
	assert.Nil(t, BuildDimensionFilter(nil))
	assert.Nil(t, BuildDimensionFilter(&model.DimensionFilter{}))
}

func TestBuildDimensionFilterAndGroup(t *testing.T) {
	expr := BuildDimensionFilter(&model.DimensionFilter{
		AndGroup: []model.FilterCondition{
			{FieldName: "country", StringFilter: model.StringFilter{Value: "US"}},
			{FieldName: "deviceCategory", StringFilter: model.StringFilter{Value: "mobile"}},
		},
	})

	require.NotNil(t, expr)
	require.NotNil(t, expr.AndGroup)
	require.Len(t, expr.AndGroup.Expressions, 2)

	first := expr.AndGroup.Expressions[0].Filter
	require.NotNil(t, first)
	assert.Equal(t, "country", first.FieldName)
	assert.Equal(t, "US", first.StringFilter.Value)
	assert.Equal(t, "EXACT", first.StringFilter.MatchType)
}

func TestBuildDimensionFilterSkipsMalformed(t *testing.T) {
	expr := BuildDimensionFilter(&model.DimensionFilter{
		AndGroup: []model.FilterCondition{
			{FieldName: "", StringFilter: model.StringFilter{Value: "US"}},
			{FieldName: "country", StringFilter: model.StringFilter{Value: ""}},
			{FieldName: "country", StringFilter: model.StringFilter{Value: "DE"}},
		},
	})

	require.NotNil(t, expr)
	require.Len(t, expr.AndGroup.Expressions, 1)
	assert.Equal(t, "DE", expr.AndGroup.Expressions[0].Filter.StringFilter.Value)
}

func TestBuildDimensionFilterAllMalformed(t *testing.T) {
	expr := BuildDimensionFilter(&model.DimensionFilter{
		AndGroup: []model.FilterCondition{
			{FieldName: "", StringFilter: model.StringFilter{Value: ""}},
		},
	})

	assert.Nil(t, expr)
}
