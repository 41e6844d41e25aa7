package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/model"
	errx "github.com/oceanchat-core/server/internal/core/error"
	"github.com/oceanchat-core/server/internal/onc"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

// ===================================
// Scalar Data Tool
// ===================================

// maxScalarRows caps the rows a single result carries to the composer; the
// remainder is dropped with a truncation marker.
const maxScalarRows = 50

type GetScalarDataInput struct {
	DeviceCategoryCode string `json:"deviceCategoryCode,omitempty"`
	LocationCode       string `json:"locationCode,omitempty"`
	PropertyCode       string `json:"propertyCode,omitempty"`
	DateFrom           string `json:"dateFrom,omitempty"`
	DateTo             string `json:"dateTo,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
}

// ScalarRow is one rendered time-series sample.
type ScalarRow struct {
	Time   string  `json:"time"`
	Value  float64 `json:"value"`
	Sensor string  `json:"sensor"`
	Unit   string  `json:"unit"`
}

// scalarPayload is the Response body of a successful scalar request.
type scalarPayload struct {
	Property       string      `json:"property"`
	ResamplePeriod int         `json:"resamplePeriodSeconds"`
	Rows           []ScalarRow `json:"rows"`
	Truncated      bool        `json:"truncated,omitempty"`
	TotalRows      int         `json:"totalRows"`
}

var requiredScalarFields = []string{
	model.FieldDeviceCategoryCode,
	model.FieldLocationCode,
	model.FieldPropertyCode,
	model.FieldDateFrom,
	model.FieldDateTo,
}

func createGetScalarDataTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetScalarData,
			Desc: "Fetch point/time-series measurements for a device category, location and property over a date window. Use for questions about measured values (temperature, chlorophyll, salinity, oxygen...). Missing parameters are collected across turns.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"deviceCategoryCode": {Type: "string", Desc: "Device category code, e.g. CTD, FLUOROMETER."},
				"locationCode":       {Type: "string", Desc: "Observatory location code, e.g. CBYIP."},
				"propertyCode":       {Type: "string", Desc: "Property code, e.g. seawatertemperature, chlorophyll."},
				"dateFrom":           {Type: "string", Desc: "Window start, ISO-8601 UTC."},
				"dateTo":             {Type: "string", Desc: "Window end, ISO-8601 UTC."},
			}),
		},
		func(ctx context.Context, in *GetScalarDataInput) (*model.ToolExecutionResult, error) {
			store, err := deps.Params.Load(ctx, in.ConversationID)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("parameter store load failed; starting empty")
				store = model.NewParameterStore()
			}

			store.Sync(model.FieldDeviceCategoryCode, strings.TrimSpace(in.DeviceCategoryCode))
			store.Sync(model.FieldLocationCode, strings.TrimSpace(in.LocationCode))
			store.Sync(model.FieldPropertyCode, strings.TrimSpace(in.PropertyCode))
			store.Sync(model.FieldDateFrom, strings.TrimSpace(in.DateFrom))
			store.Sync(model.FieldDateTo, strings.TrimSpace(in.DateTo))

			missing := missingFields(store, requiredScalarFields)
			if len(missing) > 0 {
				if err := deps.Params.Save(ctx, in.ConversationID, store); err != nil {
					logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("parameter store save failed")
				}
				return &model.ToolExecutionResult{
					Tool:           ToolGetScalarData,
					Status:         model.StatusParamsNeeded,
					Response:       paramsNeededMessage(store, missing),
					BaseURL:        deps.Oceans.BaseURL(),
					ObtainedParams: store.Known(),
				}, nil
			}

			location := store.Get(model.FieldLocationCode)
			category := store.Get(model.FieldDeviceCategoryCode)
			dateFrom := store.Get(model.FieldDateFrom)
			dateTo := store.Get(model.FieldDateTo)
			period := ScalarResamplePeriod(dateFrom, dateTo)

			data, used, err := deps.Oceans.ScalarDataByLocation(ctx,
				location, category, store.Get(model.FieldPropertyCode), dateFrom, dateTo, period)
			if err != nil {
				if onc.IsNotDeployed(err) {
					return deploymentFallback(deps, ctx, in.ConversationID, store, used), nil
				}
				logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("scalar data request failed")
				return &model.ToolExecutionResult{
					Tool:           ToolGetScalarData,
					Status:         model.StatusRegularMessage,
					Response:       errx.OceansErrorMessage,
					Failed:         true,
					URLParamsUsed:  used,
					BaseURL:        deps.Oceans.BaseURL(),
					ObtainedParams: store.Known(),
				}, nil
			}

			payload := buildScalarPayload(data, store.Get(model.FieldPropertyCode), period)
			if payload.TotalRows == 0 {
				// Valid request, zero rows. Parameters stay so the user can
				// adjust the window.
				if err := deps.Params.Save(ctx, in.ConversationID, store); err != nil {
					logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("parameter store save failed")
				}
				return &model.ToolExecutionResult{
					Tool:           ToolGetScalarData,
					Status:         model.StatusNoData,
					Response:       "No data was recorded for this request in the given window.",
					URLParamsUsed:  used,
					BaseURL:        deps.Oceans.BaseURL(),
					ObtainedParams: store.Known(),
				}, nil
			}

			body, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			return &model.ToolExecutionResult{
				Tool:           ToolGetScalarData,
				Status:         model.StatusRegularMessage,
				Response:       string(body),
				URLParamsUsed:  used,
				BaseURL:        deps.Oceans.BaseURL(),
				ObtainedParams: store.Known(),
			}, nil
		},
	)
}

// deploymentFallback answers a "device not deployed in window" upstream error
// by listing the recorded deployment windows for the device/location pair.
// Dates are invalidated in the store; device and location are preserved.
func deploymentFallback(deps *Deps, ctx context.Context, conversationID string, store *model.ParameterStore, used map[string]string) *model.ToolExecutionResult {
	location := store.Get(model.FieldLocationCode)
	category := store.Get(model.FieldDeviceCategoryCode)

	deployments, _, err := deps.Oceans.Deployments(ctx, location, category, "", "")
	if err != nil {
		logx.Error().Err(err).Str("location", location).Str("category", category).Msg("deployment lookup failed")
	}

	store.ClearDates()
	if err := deps.Params.Save(ctx, conversationID, store); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("parameter store save failed")
	}

	windows := make([]model.DeploymentWindow, 0, len(deployments))
	for _, d := range deployments {
		windows = append(windows, model.DeploymentWindow{
			Begin:              d.Begin,
			End:                d.End,
			DeviceCode:         d.DeviceCode,
			DeviceCategoryCode: d.DeviceCategoryCode,
			LocationCode:       d.LocationCode,
			Citation:           d.Citation,
		})
	}

	return &model.ToolExecutionResult{
		Tool:           ToolGetScalarData,
		Status:         model.StatusDeploymentError,
		Response:       deploymentMessage(category, location, windows),
		URLParamsUsed:  used,
		BaseURL:        deps.Oceans.BaseURL(),
		ObtainedParams: store.Known(),
		Deployments:    windows,
	}
}

func deploymentMessage(category, location string, windows []model.DeploymentWindow) string {
	if len(windows) == 0 {
		return "The " + category + " at " + location + " was not deployed in the requested window, and no deployment records were found."
	}
	var b strings.Builder
	b.WriteString("The " + category + " at " + location + " was not deployed in the requested window. Recorded deployments:\n")
	for _, w := range windows {
		end := w.End
		if end == "" {
			end = "present"
		}
		b.WriteString("- " + w.Begin + " to " + end)
		if w.DeviceCode != "" {
			b.WriteString(" (" + w.DeviceCode + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString("Please pick a window inside one of these deployments.")
	return b.String()
}

// buildScalarPayload flattens sensorData into row records, capped at
// maxScalarRows with a truncation marker.
func buildScalarPayload(data *onc.ScalarDataResponse, property string, period int) scalarPayload {
	payload := scalarPayload{Property: property, ResamplePeriod: period}
	if data == nil {
		return payload
	}
	for _, sensor := range data.SensorData {
		n := len(sensor.Data.SampleTimes)
		if len(sensor.Data.Values) < n {
			n = len(sensor.Data.Values)
		}
		for i := 0; i < n; i++ {
			payload.TotalRows++
			if len(payload.Rows) >= maxScalarRows {
				payload.Truncated = true
				continue
			}
			payload.Rows = append(payload.Rows, ScalarRow{
				Time:   sensor.Data.SampleTimes[i],
				Value:  sensor.Data.Values[i],
				Sensor: sensor.SensorName,
				Unit:   sensor.UnitOfMeasure,
			})
		}
	}
	return payload
}
