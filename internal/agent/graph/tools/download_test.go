package tools

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanchat-core/server/internal/agent/model"
)

func newDeliveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dataProductDelivery", r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("token"))

		switch r.URL.Query().Get("method") {
		case "request":
			fmt.Fprint(w, `{"dpRequestId":4321,"citations":[{"doi":"10.34943/example","citation":"Ocean Networks Canada Society. 2023."}]}`)
		case "run":
			fmt.Fprint(w, `[{"status":"complete","dpRunId":8765}]`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestGenerateDownloadCodesCollectsMissingParams(t *testing.T) {
	srv := newDeliveryServer(t)
	defer srv.Close()
	deps, repo := newTestDeps(t, srv.URL)

	result := runTool(t, deps, ToolGenerateDownloadCodes, map[string]any{
		"deviceCategoryCode": "CTD",
		"locationCode":       "CBYIP",
		"conversation_id":    "conv-1",
	})

	assert.Equal(t, model.StatusParamsNeeded, result.Status)
	assert.Contains(t, result.Response, "I still need: dataProductCode, extension, dateFrom, dateTo.")
	assert.Contains(t, result.Response, "deviceCategoryCode=CTD")
	assert.Equal(t, "CBYIP", result.ObtainedParams["locationCode"])

	// Partial parameters were persisted for the next turn.
	store, err := repo.Load(t.Context(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "CTD", store.Get(model.FieldDeviceCategoryCode))
	assert.Equal(t, "CBYIP", store.Get(model.FieldLocationCode))
}

func TestGenerateDownloadCodesMergesAcrossTurns(t *testing.T) {
	srv := newDeliveryServer(t)
	defer srv.Close()
	deps, _ := newTestDeps(t, srv.URL)

	// Turn one: device, location and format.
	first := runTool(t, deps, ToolGenerateDownloadCodes, map[string]any{
		"deviceCategoryCode": "CTD",
		"locationCode":       "CBYIP",
		"extension":          "csv",
		"dataProductCode":    "TSSD",
		"conversation_id":    "conv-2",
	})
	assert.Equal(t, model.StatusParamsNeeded, first.Status)
	assert.Contains(t, first.Response, "I still need: dateFrom, dateTo.")

	// Turn two: only the dates; the rest comes from the store.
	second := runTool(t, deps, ToolGenerateDownloadCodes, map[string]any{
		"dateFrom":        "2023-06-01T00:00:00.000Z",
		"dateTo":          "2023-06-10T00:00:00.000Z",
		"conversation_id": "conv-2",
	})

	assert.Equal(t, model.StatusProcessingDownload, second.Status)
	assert.Equal(t, 4321, second.DpRequestID)
	assert.Equal(t, 8765, second.DpRunID)
	assert.Equal(t, "10.34943/example", second.DOI)
	assert.NotEmpty(t, second.Citation)

	// The echoed URL parameters never include the access token.
	assert.NotContains(t, second.URLParamsUsed, "token")
	assert.Equal(t, "TSSD", second.URLParamsUsed["dataProductCode"])
	assert.Equal(t, "csv", second.URLParamsUsed["extension"])
}

func TestGenerateDownloadCodesAverageForcesQualityControl(t *testing.T) {
	srv := newDeliveryServer(t)
	defer srv.Close()
	deps, _ := newTestDeps(t, srv.URL)

	result := runTool(t, deps, ToolGenerateDownloadCodes, map[string]any{
		"deviceCategoryCode": "CTD",
		"locationCode":       "CBYIP",
		"dpo_resample":       "average",
		"dpo_average":        86400,
		"conversation_id":    "conv-3",
	})

	assert.Equal(t, model.StatusParamsNeeded, result.Status)
	assert.Equal(t, "1", result.ObtainedParams["dpo_qualityControl"])
}

func TestGenerateDownloadCodesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"errors":[{"errorCode":23,"errorMessage":"invalid parameter value"}]}`)
	}))
	defer srv.Close()
	deps, repo := newTestDeps(t, srv.URL)

	result := runTool(t, deps, ToolGenerateDownloadCodes, map[string]any{
		"deviceCategoryCode": "CTD",
		"locationCode":       "CBYIP",
		"extension":          "csv",
		"dataProductCode":    "TSSD",
		"dateFrom":           "2023-06-01T00:00:00.000Z",
		"dateTo":             "2023-06-10T00:00:00.000Z",
		"conversation_id":    "conv-4",
	})

	assert.Equal(t, model.StatusDownloadError, result.Status)
	// The user-facing text never leaks the raw upstream error.
	assert.NotContains(t, result.Response, "invalid parameter value")

	// The store survives the failure so the user can correct and retry.
	store, err := repo.Load(t.Context(), "conv-4")
	require.NoError(t, err)
	assert.Equal(t, "CTD", store.Get(model.FieldDeviceCategoryCode))
	assert.Equal(t, "2023-06-01T00:00:00.000Z", store.Get(model.FieldDateFrom))
}
