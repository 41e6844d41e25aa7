package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/model"
	errx "github.com/oceanchat-core/server/internal/core/error"
	logx "github.com/oceanchat-core/server/pkg/logger"
)

// ===================================
// Generate Download Codes Tool
// ===================================

// GenerateDownloadCodesInput carries the caller-visible delivery parameters
// plus the conversation id injected by the executor's argument handler.
type GenerateDownloadCodesInput struct {
	DeviceCategoryCode string `json:"deviceCategoryCode,omitempty"`
	LocationCode       string `json:"locationCode,omitempty"`
	DataProductCode    string `json:"dataProductCode,omitempty"`
	Extension          string `json:"extension,omitempty"`
	DateFrom           string `json:"dateFrom,omitempty"`
	DateTo             string `json:"dateTo,omitempty"`
	QualityControl     *int   `json:"dpo_qualityControl,omitempty"`
	DataGaps           *int   `json:"dpo_dataGaps,omitempty"`
	Resample           string `json:"dpo_resample,omitempty"`
	Average            *int   `json:"dpo_average,omitempty"`
	MinMax             *int   `json:"dpo_minMax,omitempty"`
	MinMaxAvg          *int   `json:"dpo_minMaxAvg,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
}

// requiredDownloadFields is the minimal set a data-product request cannot be
// submitted without.
var requiredDownloadFields = []string{
	model.FieldDataProductCode,
	model.FieldExtension,
	model.FieldDateFrom,
	model.FieldDateTo,
	model.FieldLocationCode,
}

func createGenerateDownloadCodesTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGenerateDownloadCodes,
			Desc: "Queue an asynchronous download of ocean sensor data as a file. Only use when the user explicitly asks to download, export or retrieve data as a file. Missing parameters are collected across turns; call with whatever the user has provided so far.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"deviceCategoryCode": {Type: "string", Desc: "Device category code, e.g. CTD, FLUOROMETER, HYDROPHONE."},
				"locationCode":       {Type: "string", Desc: "Observatory location code, e.g. CBYIP."},
				"extension":          {Type: "string", Desc: "Requested file extension exactly as the user stated it (csv, json, txt, mat, png, pdf). Never guess."},
				"dateFrom":           {Type: "string", Desc: "Window start, ISO-8601 UTC, e.g. 2015-08-15T00:00:00.000Z."},
				"dateTo":             {Type: "string", Desc: "Window end, ISO-8601 UTC."},
				"dpo_qualityControl": {Type: "number", Desc: "1 to apply quality control, 0 to skip."},
				"dpo_dataGaps":       {Type: "number", Desc: "1 to fill data gaps, 0 to leave them."},
				"dpo_resample":       {Type: "string", Desc: "Resample mode: average, minMax or minMaxAvg."},
				"dpo_average":        {Type: "number", Desc: "Averaging interval in seconds when dpo_resample is average."},
				"dpo_minMax":         {Type: "number", Desc: "Min/max interval in seconds when dpo_resample is minMax."},
				"dpo_minMaxAvg":      {Type: "number", Desc: "Interval in seconds when dpo_resample is minMaxAvg."},
			}),
		},
		func(ctx context.Context, in *GenerateDownloadCodesInput) (*model.ToolExecutionResult, error) {
			store, err := deps.Params.Load(ctx, in.ConversationID)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("parameter store load failed; starting empty")
				store = model.NewParameterStore()
			}

			syncDownloadFields(store, in)

			// Averaging is only meaningful on quality-controlled data, so the
			// flag is forced on regardless of caller input.
			if store.Get(model.FieldResample) == ResampleAverage {
				store.Sync(model.FieldQualityControl, "1")
			}

			missing := missingFields(store, requiredDownloadFields)
			if len(missing) > 0 {
				// COLLECTING: persist what we have for the next turn.
				if err := deps.Params.Save(ctx, in.ConversationID, store); err != nil {
					logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("parameter store save failed")
				}
				return &model.ToolExecutionResult{
					Tool:           ToolGenerateDownloadCodes,
					Status:         model.StatusParamsNeeded,
					Response:       paramsNeededMessage(store, missing),
					BaseURL:        deps.Oceans.BaseURL(),
					ObtainedParams: store.Known(),
				}, nil
			}

			params := deliveryParams(store)
			req, used, err := deps.Oceans.RequestDataProduct(ctx, params)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("data product request failed")
				return downloadFailure(deps, ctx, in.ConversationID, store, used), nil
			}

			run, err := deps.Oceans.RunDataProduct(ctx, req.DpRequestID)
			if err != nil {
				logx.Error().Err(err).Int("dp_request_id", req.DpRequestID).Msg("data product run failed")
				return downloadFailure(deps, ctx, in.ConversationID, store, used), nil
			}

			var doi, citation string
			if len(req.Citations) > 0 {
				doi = req.Citations[0].DOI
				citation = req.Citations[0].Citation
			}

			// QUEUED: parameters stay available for follow-up downloads.
			if err := deps.Params.Save(ctx, in.ConversationID, store); err != nil {
				logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("parameter store save failed")
			}

			return &model.ToolExecutionResult{
				Tool:   ToolGenerateDownloadCodes,
				Status: model.StatusProcessingDownload,
				Response: fmt.Sprintf(
					"Your download request %d has been queued (run %d). The file will be ready shortly.",
					req.DpRequestID, run.DpRunID),
				URLParamsUsed:  used,
				BaseURL:        deps.Oceans.BaseURL(),
				DpRequestID:    req.DpRequestID,
				DpRunID:        run.DpRunID,
				DOI:            doi,
				Citation:       citation,
				ObtainedParams: store.Known(),
			}, nil
		},
	)
}

// downloadFailure is the FAILED transition: generic user-safe message, store
// persisted unchanged so the user can retry with corrected inputs.
func downloadFailure(deps *Deps, ctx context.Context, conversationID string, store *model.ParameterStore, used map[string]string) *model.ToolExecutionResult {
	if err := deps.Params.Save(ctx, conversationID, store); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("parameter store save failed")
	}
	return &model.ToolExecutionResult{
		Tool:           ToolGenerateDownloadCodes,
		Status:         model.StatusDownloadError,
		Response:       errx.OceansErrorMessage,
		URLParamsUsed:  used,
		BaseURL:        deps.Oceans.BaseURL(),
		ObtainedParams: store.Known(),
	}
}

func syncDownloadFields(store *model.ParameterStore, in *GenerateDownloadCodesInput) {
	store.Sync(model.FieldDeviceCategoryCode, strings.TrimSpace(in.DeviceCategoryCode))
	store.Sync(model.FieldLocationCode, strings.TrimSpace(in.LocationCode))
	store.Sync(model.FieldDataProductCode, strings.TrimSpace(in.DataProductCode))
	store.Sync(model.FieldExtension, strings.TrimSpace(in.Extension))
	store.Sync(model.FieldDateFrom, strings.TrimSpace(in.DateFrom))
	store.Sync(model.FieldDateTo, strings.TrimSpace(in.DateTo))
	store.Sync(model.FieldQualityControl, intArg(in.QualityControl))
	store.Sync(model.FieldDataGaps, intArg(in.DataGaps))
	store.Sync(model.FieldResample, strings.TrimSpace(in.Resample))
	store.Sync(model.FieldAverage, intArg(in.Average))
	store.Sync(model.FieldMinMax, intArg(in.MinMax))
	store.Sync(model.FieldMinMaxAvg, intArg(in.MinMaxAvg))
}

func intArg(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// deliveryParams flattens the store into dataProductDelivery URL parameters.
func deliveryParams(store *model.ParameterStore) map[string]string {
	params := map[string]string{
		model.FieldLocationCode:    store.Get(model.FieldLocationCode),
		model.FieldDataProductCode: store.Get(model.FieldDataProductCode),
		model.FieldExtension:       store.Get(model.FieldExtension),
		model.FieldDateFrom:        store.Get(model.FieldDateFrom),
		model.FieldDateTo:          store.Get(model.FieldDateTo),
	}
	for _, opt := range []string{
		model.FieldDeviceCategoryCode,
		model.FieldQualityControl,
		model.FieldDataGaps,
		model.FieldResample,
		model.FieldAverage,
		model.FieldMinMax,
		model.FieldMinMaxAvg,
	} {
		if v := store.Get(opt); v != "" {
			params[opt] = v
		}
	}
	return params
}

// missingFields returns required fields absent from the store, in the
// canonical display order.
func missingFields(store *model.ParameterStore, required []string) []string {
	var out []string
	for _, f := range required {
		if store.Get(f) == "" {
			out = append(out, f)
		}
	}
	return out
}

// paramsNeededMessage lists what is already known and what is still missing.
func paramsNeededMessage(store *model.ParameterStore, missing []string) string {
	var b strings.Builder
	known := store.Known()
	if len(known) > 0 {
		b.WriteString("So far I have: ")
		first := true
		for _, f := range model.CanonicalFields {
			v, ok := known[f]
			if !ok {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(f + "=" + v)
		}
		b.WriteString(". ")
	}
	b.WriteString("I still need: ")
	b.WriteString(strings.Join(missing, ", "))
	b.WriteString(".")
	return b.String()
}
