package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/model"
	errx "github.com/oceanchat-core/server/internal/core/error"
	"github.com/oceanchat-core/server/internal/onc"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

// ===================================
// Metadata / Listing Tools
// ===================================
// Read-only queries over the deployments and scalar endpoints. They are
// dispatched exactly like the core tools but keep no cross-turn state.

type GetDeployedDevicesInput struct {
	LocationCode       string `json:"locationCode"`
	DeviceCategoryCode string `json:"deviceCategoryCode,omitempty"`
	DateFrom           string `json:"dateFrom,omitempty"`
	DateTo             string `json:"dateTo,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
}

func createGetDeployedDevicesTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetDeployedDevices,
			Desc: "List devices deployed at a location, optionally filtered by device category and date window. Use for questions like 'what instruments were installed at CBYIP last year'.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"locationCode":       {Type: "string", Desc: "Observatory location code.", Required: true},
				"deviceCategoryCode": {Type: "string", Desc: "Optional device category filter."},
				"dateFrom":           {Type: "string", Desc: "Optional window start, ISO-8601 UTC."},
				"dateTo":             {Type: "string", Desc: "Optional window end, ISO-8601 UTC."},
			}),
		},
		func(ctx context.Context, in *GetDeployedDevicesInput) (*model.ToolExecutionResult, error) {
			if strings.TrimSpace(in.LocationCode) == "" {
				return &model.ToolExecutionResult{
					Tool:     ToolGetDeployedDevices,
					Status:   model.StatusParamsNeeded,
					Response: "I still need: locationCode.",
					BaseURL:  deps.Oceans.BaseURL(),
				}, nil
			}

			deployments, used, err := deps.Oceans.Deployments(ctx, in.LocationCode, in.DeviceCategoryCode, in.DateFrom, in.DateTo)
			if err != nil {
				logx.Error().Err(err).Str("location", in.LocationCode).Msg("deployments query failed")
				return &model.ToolExecutionResult{
					Tool:          ToolGetDeployedDevices,
					Status:        model.StatusRegularMessage,
					Response:      errx.OceansErrorMessage,
					Failed:        true,
					URLParamsUsed: used,
					BaseURL:       deps.Oceans.BaseURL(),
				}, nil
			}
			if len(deployments) == 0 {
				return &model.ToolExecutionResult{
					Tool:          ToolGetDeployedDevices,
					Status:        model.StatusNoData,
					Response:      "No deployments were recorded for this request.",
					URLParamsUsed: used,
					BaseURL:       deps.Oceans.BaseURL(),
				}, nil
			}

			body, err := json.Marshal(deployments)
			if err != nil {
				return nil, err
			}
			return &model.ToolExecutionResult{
				Tool:          ToolGetDeployedDevices,
				Status:        model.StatusRegularMessage,
				Response:      string(body),
				URLParamsUsed: used,
				BaseURL:       deps.Oceans.BaseURL(),
			}, nil
		},
	)
}

type GetActiveInstrumentCountInput struct {
	LocationCode string `json:"locationCode,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
}

func createGetActiveInstrumentCountTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetActiveInstrumentCount,
			Desc: "Count instruments currently deployed and reporting, optionally at one location. Use for 'how many instruments are active right now'.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"locationCode": {Type: "string", Desc: "Optional observatory location code; omit for all locations."},
			}),
		},
		func(ctx context.Context, in *GetActiveInstrumentCountInput) (*model.ToolExecutionResult, error) {
			deployments, used, err := deps.Oceans.Deployments(ctx, in.LocationCode, "", "", "")
			if err != nil {
				logx.Error().Err(err).Str("location", in.LocationCode).Msg("deployments query failed")
				return &model.ToolExecutionResult{
					Tool:          ToolGetActiveInstrumentCount,
					Status:        model.StatusRegularMessage,
					Response:      errx.OceansErrorMessage,
					Failed:        true,
					URLParamsUsed: used,
					BaseURL:       deps.Oceans.BaseURL(),
				}, nil
			}

			now := time.Now().UTC()
			active := 0
			for _, d := range deployments {
				if d.End == "" {
					active++
					continue
				}
				if end, err := parseAPITime(d.End); err == nil && end.After(now) {
					active++
				}
			}

			return &model.ToolExecutionResult{
				Tool:          ToolGetActiveInstrumentCount,
				Status:        model.StatusRegularMessage,
				Response:      fmt.Sprintf(`{"activeInstruments":%d}`, active),
				URLParamsUsed: used,
				BaseURL:       deps.Oceans.BaseURL(),
			}, nil
		},
	)
}

type GetDailyStatisticsInput struct {
	LocationCode       string `json:"locationCode"`
	DeviceCategoryCode string `json:"deviceCategoryCode"`
	PropertyCode       string `json:"propertyCode"`
	Date               string `json:"date"`

	ConversationID string `json:"conversation_id,omitempty"`
}

// dailyStats is the Response body of a daily-statistics result.
type dailyStats struct {
	Date     string  `json:"date"`
	Property string  `json:"property"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Avg      float64 `json:"avg"`
	Samples  int     `json:"samples"`
	Unit     string  `json:"unit,omitempty"`
}

func createGetDailyStatisticsTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetDailyStatistics,
			Desc: "Compute min/max/average of a scalar property for one calendar day. Use for 'what was the average temperature on ... at ...'.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"locationCode":       {Type: "string", Desc: "Observatory location code.", Required: true},
				"deviceCategoryCode": {Type: "string", Desc: "Device category code.", Required: true},
				"propertyCode":       {Type: "string", Desc: "Property code.", Required: true},
				"date":               {Type: "string", Desc: "Calendar day, YYYY-MM-DD.", Required: true},
			}),
		},
		func(ctx context.Context, in *GetDailyStatisticsInput) (*model.ToolExecutionResult, error) {
			day, err := time.Parse("2006-01-02", strings.TrimSpace(in.Date))
			if err != nil {
				return &model.ToolExecutionResult{
					Tool:     ToolGetDailyStatistics,
					Status:   model.StatusParamsNeeded,
					Response: "I still need: date (as YYYY-MM-DD).",
					BaseURL:  deps.Oceans.BaseURL(),
				}, nil
			}

			// End just inside the day so the next midnight sample stays out.
			dateFrom := day.Format("2006-01-02T15:04:05.000Z")
			dateTo := day.Add(24*time.Hour - time.Millisecond).Format("2006-01-02T15:04:05.000Z")

			data, used, err := deps.Oceans.ScalarDataByLocation(ctx,
				in.LocationCode, in.DeviceCategoryCode, in.PropertyCode, dateFrom, dateTo, 3600)
			if err != nil {
				logx.Error().Err(err).Str("location", in.LocationCode).Msg("daily statistics query failed")
				return &model.ToolExecutionResult{
					Tool:          ToolGetDailyStatistics,
					Status:        model.StatusRegularMessage,
					Response:      errx.OceansErrorMessage,
					Failed:        true,
					URLParamsUsed: used,
					BaseURL:       deps.Oceans.BaseURL(),
				}, nil
			}

			stats, ok := computeDailyStats(data, in.Date, in.PropertyCode)
			if !ok {
				return &model.ToolExecutionResult{
					Tool:          ToolGetDailyStatistics,
					Status:        model.StatusNoData,
					Response:      "No data was recorded for this property on that day.",
					URLParamsUsed: used,
					BaseURL:       deps.Oceans.BaseURL(),
				}, nil
			}

			body, err := json.Marshal(stats)
			if err != nil {
				return nil, err
			}
			return &model.ToolExecutionResult{
				Tool:          ToolGetDailyStatistics,
				Status:        model.StatusRegularMessage,
				Response:      string(body),
				URLParamsUsed: used,
				BaseURL:       deps.Oceans.BaseURL(),
			}, nil
		},
	)
}

func computeDailyStats(data *onc.ScalarDataResponse, date, property string) (dailyStats, bool) {
	stats := dailyStats{Date: date, Property: property}
	if data == nil {
		return stats, false
	}
	for _, sensor := range data.SensorData {
		if stats.Unit == "" {
			stats.Unit = sensor.UnitOfMeasure
		}
		for _, v := range sensor.Data.Values {
			if stats.Samples == 0 || v < stats.Min {
				stats.Min = v
			}
			if stats.Samples == 0 || v > stats.Max {
				stats.Max = v
			}
			stats.Avg += v
			stats.Samples++
		}
	}
	if stats.Samples == 0 {
		return stats, false
	}
	stats.Avg /= float64(stats.Samples)
	return stats, true
}
