package tools

import (
	"math"
	"strings"
	"time"
)

// Resample modes a download can request. Mode selection matches user phrasing
// against a fixed three-way classification; anything else means no resampling.
const (
	ResampleAverage   = "average"
	ResampleMinMax    = "minMax"
	ResampleMinMaxAvg = "minMaxAvg"
	ResampleNone      = ""
)

// resampleIntervals is the fixed ordered set of valid resample bucket widths
// in seconds, from one second up to thirty days.
var resampleIntervals = []int{
	1, 5, 10, 15, 30, 60, 300, 600, 900, 1800, 3600, 7200, 14400,
	21600, 43200, 86400, 172800, 259200, 604800, 1209600, 2592000,
}

// NearestResampleInterval returns the member of the fixed interval set
// closest to target seconds. Ties resolve to the smaller interval.
func NearestResampleInterval(target float64) int {
	best := resampleIntervals[0]
	bestDist := math.Abs(float64(best) - target)
	for _, iv := range resampleIntervals[1:] {
		if d := math.Abs(float64(iv) - target); d < bestDist {
			best, bestDist = iv, d
		}
	}
	return best
}

// ScalarResamplePeriod chooses the bucket width for a scalar request so the
// span yields roughly ten samples.
func ScalarResamplePeriod(dateFrom, dateTo string) int {
	from, errFrom := parseAPITime(dateFrom)
	to, errTo := parseAPITime(dateTo)
	if errFrom != nil || errTo != nil || !to.After(from) {
		return 60
	}
	return NearestResampleInterval(to.Sub(from).Seconds() / 10)
}

// apiTimeLayouts are the timestamp shapes accepted from users and echoed by
// the data API.
var apiTimeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02",
}

func parseAPITime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range apiTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ClassifyResampleMode maps user phrasing to a resample mode. Phrases naming
// both extremes and an average win over either alone; no match means none.
func ClassifyResampleMode(text string) string {
	t := strings.ToLower(text)

	wantsAvg := strings.Contains(t, "average") || strings.Contains(t, "averaged") || strings.Contains(t, "mean")
	wantsMinMax := (strings.Contains(t, "min") && strings.Contains(t, "max")) || strings.Contains(t, "minmax")

	switch {
	case wantsAvg && wantsMinMax:
		return ResampleMinMaxAvg
	case wantsMinMax:
		return ResampleMinMax
	case wantsAvg:
		return ResampleAverage
	default:
		return ResampleNone
	}
}

// extensionProducts maps a user-supplied file extension to the data-product
// code submitted to the delivery endpoint. The product code is always derived
// here, never taken from the planning model.
var extensionProducts = map[string]string{
	"csv":  "TSSD",
	"json": "TSSD",
	"txt":  "TSSD",
	"mat":  "TSSD",
	"png":  "TSSP",
	"pdf":  "TSSP",
}

// DeriveDataProductCode returns the product code for an extension, or empty
// when the extension is not a supported download format.
func DeriveDataProductCode(extension string) string {
	return extensionProducts[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(extension), "."))]
}

// SupportedExtension reports whether ext maps to a known data product.
func SupportedExtension(ext string) bool {
	return DeriveDataProductCode(ext) != ""
}
