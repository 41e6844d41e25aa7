package nodes

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanchat-core/server/internal/agent/model"
)

func TestFoldStatus(t *testing.T) {
	assert.Equal(t, model.StatusRegularMessage, foldStatus(nil))

	assert.Equal(t, model.StatusRegularMessage, foldStatus([]model.ToolExecutionResult{
		{Tool: "get_scalar_data", Status: model.StatusRegularMessage},
	}))

	// The first non-regular status wins.
	assert.Equal(t, model.StatusParamsNeeded, foldStatus([]model.ToolExecutionResult{
		{Tool: "get_scalar_data", Status: model.StatusRegularMessage},
		{Tool: "generate_download_codes", Status: model.StatusParamsNeeded},
		{Tool: "get_scalar_data", Status: model.StatusNoData},
	}))
}

func TestStatusMessagePicksOwningResult(t *testing.T) {
	results := []model.ToolExecutionResult{
		{Status: model.StatusRegularMessage, Response: "data payload"},
		{Status: model.StatusParamsNeeded, Response: "I still need: dateFrom."},
	}

	assert.Equal(t, "I still need: dateFrom.", statusMessage(model.StatusParamsNeeded, results))
	assert.NotEmpty(t, statusMessage(model.StatusDownloadError, results))
}

func TestEnsureToolCallIDs(t *testing.T) {
	state := &model.AppState{}
	out := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{ID: "existing", Function: schema.FunctionCall{Name: "get_scalar_data"}},
			{Function: schema.FunctionCall{Name: "generate_download_codes"}},
		},
	}

	ensureToolCallIDs(state, out)

	assert.Equal(t, "existing", out.ToolCalls[0].ID)
	assert.Equal(t, "call_1", out.ToolCalls[1].ID)
}

func TestFormatPlanAnalysis(t *testing.T) {
	plan := &model.PlanningResult{
		Reasoning:   "user wants a download",
		ToolsNeeded: []model.ToolNeeded{{Name: "generate_download_codes", CallCount: 1}},
		InputsProvided: map[string]string{
			"generate_download_codes.locationCode": "CBYIP",
		},
		InputsMissing: map[string]string{
			"generate_download_codes.dateFrom": "no start date",
		},
	}

	out := formatPlanAnalysis(plan)
	assert.Contains(t, out, "user wants a download")
	assert.Contains(t, out, "generate_download_codes (calls: 1)")
	assert.Contains(t, out, "Inputs provided:")
	assert.Contains(t, out, "Inputs missing:")

	assert.Equal(t, "(no planner analysis)", formatPlanAnalysis(nil))
}

func TestClarificationQuestion(t *testing.T) {
	q := clarificationQuestion(map[string]string{
		"get_scalar_data.propertyCode": "temperature could mean air or seawater",
	})

	require.Contains(t, q, "get_scalar_data.propertyCode")
	assert.Contains(t, q, "Could you be more specific?")
}

func TestClarifierOutputIsRegularMessage(t *testing.T) {
	// Asking back runs no tool, so the turn stays a regular exchange.
	out := clarifierOutput("Which temperature did you mean?", map[string]string{
		model.FieldLocationCode: "CBYIP",
	})

	require.NotNil(t, out.Extra)
	assert.Equal(t, string(model.StatusRegularMessage), out.Extra[ExtraTurnStatus])
	assert.Equal(t, map[string]string{model.FieldLocationCode: "CBYIP"},
		out.Extra[ExtraObtainedParams])
	assert.Equal(t, "Which temperature did you mean?", out.Content)

	bare := clarifierOutput("Which day?", nil)
	_, hasParams := bare.Extra[ExtraObtainedParams]
	assert.False(t, hasParams)
}
