package model

// TurnStatus is the closed set of mutually exclusive terminal outcomes of a
// conversation turn. All comparisons are keyed off this type, never off raw
// strings from tool payloads.
type TurnStatus string

const (
	// StatusRegularMessage means the composer produced (or will produce) a
	// normal natural-language answer.
	StatusRegularMessage TurnStatus = "REGULAR_MESSAGE"
	// StatusParamsNeeded means a tool still lacks required inputs; the user
	// must supply more before it can run.
	StatusParamsNeeded TurnStatus = "PARAMS_NEEDED"
	// StatusProcessingDownload means an asynchronous data-product job was
	// queued successfully.
	StatusProcessingDownload TurnStatus = "PROCESSING_DATA_DOWNLOAD"
	// StatusDownloadError means the downstream API rejected or failed the
	// data-product request.
	StatusDownloadError TurnStatus = "ERROR_WITH_DATA_DOWNLOAD"
	// StatusNoData means the request was valid but returned zero rows.
	StatusNoData TurnStatus = "NO_DATA"
	// StatusDeploymentError means the device was not deployed in the
	// requested window; deployment intervals are reported instead.
	StatusDeploymentError TurnStatus = "DEPLOYMENT_ERROR"
	// StatusLLMError means the planning or composition call itself failed.
	StatusLLMError TurnStatus = "LLM_ERROR"
)

// IsFinalToUser reports whether a tool-level status bypasses the response
// composer and is returned to the caller directly.
func (s TurnStatus) IsFinalToUser() bool {
	return s != StatusRegularMessage && s != ""
}

// DeploymentWindow is a recorded begin/end interval during which a physical
// device was installed and reporting at a location.
type DeploymentWindow struct {
	Begin              string `json:"begin"`
	End                string `json:"end"`
	DeviceCode         string `json:"deviceCode"`
	DeviceCategoryCode string `json:"deviceCategoryCode"`
	LocationCode       string `json:"locationCode"`
	Citation           string `json:"citation,omitempty"`
}

// ToolExecutionResult is the single result shape every tool returns. Exactly
// one Status per result; BaseURL and URLParamsUsed are carried even on error
// paths for audit and reproducibility.
type ToolExecutionResult struct {
	Tool          string            `json:"tool"`
	Status        TurnStatus        `json:"status"`
	Response      string            `json:"response"`
	URLParamsUsed map[string]string `json:"urlParamsUsed,omitempty"`
	BaseURL       string            `json:"baseUrl,omitempty"`

	// Failed marks an upstream failure delivered as a plain message. The
	// request did not complete, so the parameter store must survive the turn.
	Failed bool `json:"failed,omitempty"`

	// Download-specific fields, set on PROCESSING_DATA_DOWNLOAD.
	DpRequestID int    `json:"dpRequestId,omitempty"`
	DpRunID     int    `json:"dpRunId,omitempty"`
	DOI         string `json:"doi,omitempty"`
	Citation    string `json:"citation,omitempty"`

	// ObtainedParams is the store snapshot after the call's arguments were
	// merged in, echoed so follow-up turns can show what is already known.
	ObtainedParams map[string]string `json:"obtainedParams,omitempty"`

	// Deployments is populated on DEPLOYMENT_ERROR, chronologically sorted.
	Deployments []DeploymentWindow `json:"deployments,omitempty"`
}

// TurnResult is the caller-facing outcome of one conversation turn.
type TurnResult struct {
	Status         TurnStatus            `json:"status"`
	Message        string                `json:"message"`
	Results        []ToolExecutionResult `json:"results,omitempty"`
	ObtainedParams map[string]string     `json:"obtained_params,omitempty"`
}
