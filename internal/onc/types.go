package onc

import (
	"fmt"
	"strings"
)

// Config holds connection settings for the Oceans data API, sourced from
// environment variables.
type Config struct {
	BaseURL string `envconfig:"ONC_BASE_URL" default:"https://data.oceannetworks.ca/api"`
	// Tokens is a comma-separated access-token list; requests rotate through
	// it round-robin.
	Tokens          string `envconfig:"ONC_TOKENS" required:"true"`
	TimeoutSeconds  int    `envconfig:"ONC_TIMEOUT" default:"30"`
	RunPollSeconds  int    `envconfig:"ONC_RUN_POLL_INTERVAL" default:"2"`
	RunPollAttempts int    `envconfig:"ONC_RUN_POLL_ATTEMPTS" default:"30"`
}

// APIError is a structured failure condition reported by the data API.
type APIError struct {
	Code    int    `json:"errorCode"`
	Message string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oceans api error %d: %s", e.Code, e.Message)
}

// notDeployedCode is the upstream error code signaling that no deployment of
// the device category exists at the location within the requested window.
const notDeployedCode = 127

// IsNotDeployed reports whether the error signals "device not deployed in
// requested window", which triggers the deployment-window fallback.
func IsNotDeployed(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	if apiErr.Code == notDeployedCode {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "not deployed") || strings.Contains(msg, "no deployment")
}

type errorEnvelope struct {
	Errors []APIError `json:"errors"`
}

// SensorReadings is one sensor's time-aligned sample arrays.
type SensorReadings struct {
	SampleTimes []string  `json:"sampleTimes"`
	Values      []float64 `json:"values"`
	QAQCFlags   []int     `json:"qaqcFlags,omitempty"`
}

// SensorData is one sensor's scalar time series at a location.
type SensorData struct {
	SensorName    string         `json:"sensorName"`
	SensorCode    string         `json:"sensorCode"`
	PropertyCode  string         `json:"propertyCode"`
	UnitOfMeasure string         `json:"unitOfMeasure"`
	Data          SensorReadings `json:"data"`
}

// ScalarDataResponse is the scalar-data-by-location payload. SensorData is
// null on an empty-but-successful result.
type ScalarDataResponse struct {
	SensorData []SensorData `json:"sensorData"`
}

// Deployment is one recorded deployment interval for a device at a location.
type Deployment struct {
	Begin              string `json:"begin"`
	End                string `json:"end"`
	DeviceCode         string `json:"deviceCode"`
	DeviceCategoryCode string `json:"deviceCategoryCode"`
	LocationCode       string `json:"locationCode"`
	Citation           string `json:"citation,omitempty"`
}

// DataProductCitation accompanies a queued data-product request.
type DataProductCitation struct {
	DOI      string `json:"doi"`
	Citation string `json:"citation"`
}

// DataProductRequest is the outcome of submitting a data-product request.
type DataProductRequest struct {
	DpRequestID int                   `json:"dpRequestId"`
	Citations   []DataProductCitation `json:"citations"`
}

// DataProductRun is one poll result for a queued data-product job.
type DataProductRun struct {
	Status  string `json:"status"`
	DpRunID int    `json:"dpRunId"`
}
