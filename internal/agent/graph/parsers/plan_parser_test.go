package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanFullOutput(t *testing.T) {
	content := strings.Join([]string{
		"(reasoning<||>User wants to download CTD data as csv; dates are missing.)",
		"##(tool<||>generate_download_codes<||>1)",
		"##(provided<||>generate_download_codes.deviceCategoryCode<||>CTD)",
		"##(provided<||>generate_download_codes.extension<||>csv)",
		"##(missing<||>generate_download_codes.dateFrom<||>no start date given)",
		"##(missing<||>generate_download_codes.dateTo<||>no end date given)",
		"##<|COMPLETE|>",
	}, "")

	plan, err := ParsePlan(content)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Contains(t, plan.Reasoning, "download CTD data")
	require.Len(t, plan.ToolsNeeded, 1)
	assert.Equal(t, "generate_download_codes", plan.ToolsNeeded[0].Name)
	assert.Equal(t, 1, plan.ToolsNeeded[0].CallCount)

	assert.Equal(t, "CTD", plan.InputsProvided["generate_download_codes.deviceCategoryCode"])
	assert.Equal(t, "csv", plan.InputsProvided["generate_download_codes.extension"])
	assert.Len(t, plan.InputsMissing, 2)
	assert.Empty(t, plan.InputsUncertain)
	assert.False(t, plan.NeedsClarification())
}

func TestParsePlanUncertainInputs(t *testing.T) {
	content := "(reasoning<||>Temperature is ambiguous here.)" +
		"##(tool<||>get_scalar_data<||>1)" +
		"##(uncertain<||>get_scalar_data.propertyCode<||>could be seawatertemperature or airtemperature)"

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	require.Len(t, plan.InputsUncertain, 1)
	assert.True(t, plan.NeedsClarification())
}

func TestParsePlanDropsUnknownTool(t *testing.T) {
	content := "(tool<||>delete_all_data<||>1)##(tool<||>get_scalar_data<||>2)"

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	require.Len(t, plan.ToolsNeeded, 1)
	assert.Equal(t, "get_scalar_data", plan.ToolsNeeded[0].Name)
	assert.Equal(t, 2, plan.ToolsNeeded[0].CallCount)

	errs, _ := plan.ParsingMetadata["parsing_errors"].([]string)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "unknown name")
}

func TestParsePlanSkipsMalformedRecords(t *testing.T) {
	content := "not a tuple##(tool<||>get_deployed_devices)##(provided<||>onlykey)"

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	// The well-formed tool record survives; a tool tuple without a count
	// defaults to one call.
	require.Len(t, plan.ToolsNeeded, 1)
	assert.Equal(t, 1, plan.ToolsNeeded[0].CallCount)

	errs, _ := plan.ParsingMetadata["parsing_errors"].([]string)
	assert.Len(t, errs, 2)
}

func TestParsePlanIgnoresContentAfterEndDelimiter(t *testing.T) {
	content := "(tool<||>get_scalar_data<||>1)<|COMPLETE|>(tool<||>generate_download_codes<||>1)"

	plan, err := ParsePlan(content)
	require.NoError(t, err)
	require.Len(t, plan.ToolsNeeded, 1)
	assert.Equal(t, "get_scalar_data", plan.ToolsNeeded[0].Name)
}

func TestParsePlanTruncatesOversizedContent(t *testing.T) {
	content := "(reasoning<||>ok)" + strings.Repeat("x", maxContentLen+10)

	plan, err := ParsePlan(content)
	require.NoError(t, err)
	assert.Equal(t, true, plan.ParsingMetadata["truncated"])
}

func TestParsePlanEmptyContent(t *testing.T) {
	plan, err := ParsePlan("")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Empty(t, plan.ToolsNeeded)
	assert.Empty(t, plan.Reasoning)
}
