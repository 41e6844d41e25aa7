package tools

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanchat-core/server/internal/agent/model"
)

func TestGetDailyStatisticsWindowAndAggregate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scalardata/location", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "2023-06-01T00:00:00.000Z", q.Get("dateFrom"))
		// The window ends inside the day; the next midnight sample belongs
		// to June 2nd.
		require.Equal(t, "2023-06-01T23:59:59.999Z", q.Get("dateTo"))

		fmt.Fprint(w, `{"sensorData":[{"sensorName":"Temperature","sensorCode":"temp1",
			"propertyCode":"seawatertemperature","unitOfMeasure":"C",
			"data":{"sampleTimes":["2023-06-01T01:00:00.000Z","2023-06-01T13:00:00.000Z"],"values":[1.0,3.0]}}]}`)
	}))
	defer srv.Close()
	deps, _ := newTestDeps(t, srv.URL)

	result := runTool(t, deps, ToolGetDailyStatistics, map[string]any{
		"locationCode":       "CBYIP",
		"deviceCategoryCode": "CTD",
		"propertyCode":       "seawatertemperature",
		"date":               "2023-06-01",
	})

	assert.Equal(t, model.StatusRegularMessage, result.Status)
	assert.False(t, result.Failed)

	var stats struct {
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
		Avg     float64 `json:"avg"`
		Samples int     `json:"samples"`
		Unit    string  `json:"unit"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Response), &stats))
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 3.0, stats.Max)
	assert.Equal(t, 2.0, stats.Avg)
	assert.Equal(t, 2, stats.Samples)
	assert.Equal(t, "C", stats.Unit)
}

func TestGetDeployedDevicesFailureIsMarked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()
	deps, _ := newTestDeps(t, srv.URL)

	result := runTool(t, deps, ToolGetDeployedDevices, map[string]any{
		"locationCode": "CBYIP",
	})

	assert.Equal(t, model.StatusRegularMessage, result.Status)
	assert.True(t, result.Failed)
	assert.NotContains(t, result.Response, "upstream exploded")
}
