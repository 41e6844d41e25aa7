package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/oceanchat-core/server/internal/agent/model"
	"github.com/oceanchat-core/server/internal/onc"
)

// Registered tool names. The planner and synthesizer may only ever reference
// members of this set.
const (
	ToolGetScalarData            = "get_scalar_data"
	ToolGenerateDownloadCodes    = "generate_download_codes"
	ToolGetDeployedDevices       = "get_deployed_devices"
	ToolGetActiveInstrumentCount = "get_active_instrument_count"
	ToolGetDailyStatistics       = "get_daily_statistics"
)

// Deps carries the shared collaborators every tool closes over: the Oceans
// data-API client and the per-conversation parameter store. Both are
// constructed once at process start and injected, never cached globally.
type Deps struct {
	Oceans *onc.Client
	Params model.ParameterStoreRepository
}

// GetQueryTools returns the full registered tool set bound to deps.
func GetQueryTools(deps *Deps) []tool.BaseTool {
	return []tool.BaseTool{
		createGetScalarDataTool(deps),
		createGenerateDownloadCodesTool(deps),
		createGetDeployedDevicesTool(deps),
		createGetActiveInstrumentCountTool(deps),
		createGetDailyStatisticsTool(deps),
	}
}

// GetToolInfos resolves the ToolInfo of every registered tool.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// IsRegistered reports whether name is a member of the registered tool set.
func IsRegistered(name string) bool {
	switch name {
	case ToolGetScalarData, ToolGenerateDownloadCodes, ToolGetDeployedDevices,
		ToolGetActiveInstrumentCount, ToolGetDailyStatistics:
		return true
	}
	return false
}

// IsDownloadClass reports whether the tool queues an asynchronous
// data-product job rather than returning data inline.
func IsDownloadClass(name string) bool {
	return name == ToolGenerateDownloadCodes
}

// MinimalRequired returns the argument names a synthesized call must be able
// to resolve (from its own arguments or the stored parameters) for the tool
// to be invoked this turn. The scalar and download tools negotiate missing
// fields themselves via PARAMS_NEEDED, so their set here is empty.
func MinimalRequired(name string) []string {
	switch name {
	case ToolGetDeployedDevices:
		return []string{model.FieldLocationCode}
	case ToolGetDailyStatistics:
		return []string{model.FieldLocationCode, model.FieldDeviceCategoryCode, model.FieldPropertyCode, "date"}
	}
	return nil
}
