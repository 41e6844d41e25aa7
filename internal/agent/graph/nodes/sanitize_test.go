package nodes

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanchat-core/server/internal/agent/graph/tools"
	"github.com/oceanchat-core/server/internal/agent/model"
)

func call(name, args string) schema.ToolCall {
	return schema.ToolCall{
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}
}

func decodedArgs(t *testing.T, c schema.ToolCall) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(c.Function.Arguments), &m))
	return m
}

func TestSanitizeToolCallsDedupLastWins(t *testing.T) {
	calls := []schema.ToolCall{
		call(tools.ToolGetScalarData, `{"locationCode":"CBYIP","deviceCategoryCode":"CTD","propertyCode":"salinity","dateFrom":"2023-06-01","dateTo":"2023-06-02"}`),
		call(tools.ToolGetDeployedDevices, `{"locationCode":"CBYIP"}`),
		call(tools.ToolGetScalarData, `{"locationCode":"BACAX","deviceCategoryCode":"CTD","propertyCode":"salinity","dateFrom":"2023-06-01","dateTo":"2023-06-02"}`),
	}

	out := SanitizeToolCalls(calls, "salinity at BACAX", model.NewParameterStore())

	require.Len(t, out, 2)
	// First occurrence keeps its position, last call's arguments win.
	assert.Equal(t, tools.ToolGetScalarData, out[0].Function.Name)
	assert.Equal(t, "BACAX", decodedArgs(t, out[0])["locationCode"])
	assert.Equal(t, tools.ToolGetDeployedDevices, out[1].Function.Name)
}

func TestSanitizeToolCallsDropsUnknownTool(t *testing.T) {
	calls := []schema.ToolCall{
		call("rm_rf_everything", `{}`),
		call(tools.ToolGetActiveInstrumentCount, `{"locationCode":"CBYIP"}`),
	}

	out := SanitizeToolCalls(calls, "how many instruments are active?", model.NewParameterStore())

	require.Len(t, out, 1)
	assert.Equal(t, tools.ToolGetActiveInstrumentCount, out[0].Function.Name)
}

func TestSanitizeToolCallsStripsUnstatedExtension(t *testing.T) {
	calls := []schema.ToolCall{
		call(tools.ToolGenerateDownloadCodes, `{"locationCode":"CBYIP","extension":"csv","dataProductCode":"TSSD"}`),
	}

	// The user never said csv; the model guessed it.
	out := SanitizeToolCalls(calls, "download the CTD data from Cambridge Bay", model.NewParameterStore())

	require.Len(t, out, 1)
	args := decodedArgs(t, out[0])
	assert.NotContains(t, args, "extension")
	assert.NotContains(t, args, "dataProductCode")
}

func TestSanitizeToolCallsExtensionNeedsWholeWord(t *testing.T) {
	// "format" contains "mat" and "jsonl" contains "json"; neither states
	// the extension.
	for _, tt := range []struct {
		extension string
		utterance string
	}{
		{"mat", "download the data in whatever format works"},
		{"json", "give me the jsonl export"},
	} {
		calls := []schema.ToolCall{
			call(tools.ToolGenerateDownloadCodes,
				`{"locationCode":"CBYIP","extension":"`+tt.extension+`"}`),
		}

		out := SanitizeToolCalls(calls, tt.utterance, model.NewParameterStore())

		require.Len(t, out, 1, "utterance=%q", tt.utterance)
		args := decodedArgs(t, out[0])
		assert.NotContains(t, args, "extension", "utterance=%q", tt.utterance)
	}

	// A punctuation-adjacent mention still counts as stated.
	calls := []schema.ToolCall{
		call(tools.ToolGenerateDownloadCodes, `{"locationCode":"CBYIP","extension":"csv"}`),
	}
	out := SanitizeToolCalls(calls, "download it (csv, please)", model.NewParameterStore())
	require.Len(t, out, 1)
	assert.Equal(t, "csv", decodedArgs(t, out[0])["extension"])
}

func TestSanitizeToolCallsDerivesProductCode(t *testing.T) {
	calls := []schema.ToolCall{
		// Wrong product code from the model; the extension decides.
		call(tools.ToolGenerateDownloadCodes, `{"locationCode":"CBYIP","extension":"png","dataProductCode":"TSSD"}`),
	}

	out := SanitizeToolCalls(calls, "export a png plot of the data", model.NewParameterStore())

	require.Len(t, out, 1)
	args := decodedArgs(t, out[0])
	assert.Equal(t, "png", args["extension"])
	assert.Equal(t, "TSSP", args["dataProductCode"])
}

func TestSanitizeToolCallsResampleFollowsUserWording(t *testing.T) {
	calls := []schema.ToolCall{
		call(tools.ToolGenerateDownloadCodes, `{"locationCode":"CBYIP","dpo_resample":"minMax"}`),
	}

	out := SanitizeToolCalls(calls, "download daily averaged values as csv", model.NewParameterStore())

	require.Len(t, out, 1)
	assert.Equal(t, "average", decodedArgs(t, out[0])["dpo_resample"])
}

func TestSanitizeToolCallsClearsUnrequestedResample(t *testing.T) {
	calls := []schema.ToolCall{
		call(tools.ToolGenerateDownloadCodes, `{"locationCode":"CBYIP","dpo_resample":"average","dpo_average":3600}`),
	}

	out := SanitizeToolCalls(calls, "download the raw data please", model.NewParameterStore())

	require.Len(t, out, 1)
	args := decodedArgs(t, out[0])
	assert.NotContains(t, args, "dpo_resample")
	assert.NotContains(t, args, "dpo_average")
}

func TestSanitizeToolCallsDropsIncompleteMetadataCall(t *testing.T) {
	calls := []schema.ToolCall{
		call(tools.ToolGetDeployedDevices, `{}`),
	}

	out := SanitizeToolCalls(calls, "what devices are there?", model.NewParameterStore())
	assert.Empty(t, out)

	// A stored location satisfies the requirement.
	store := model.NewParameterStore()
	store.Sync(model.FieldLocationCode, "CBYIP")
	out = SanitizeToolCalls(calls, "what devices are there?", store)
	assert.Len(t, out, 1)
}
