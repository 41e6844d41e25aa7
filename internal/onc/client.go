package onc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	logx "github.com/oceanchat-core/server/pkg/logger"
)

// Client talks to the Oceans data API. Access tokens rotate round-robin per
// request; tokens never appear in returned urlParamsUsed or in errors.
type Client struct {
	baseURL      string
	tokens       []string
	next         atomic.Uint64
	httpc        *http.Client
	pollInterval time.Duration
	pollAttempts int
}

// NewClient builds a Client from Config.
func NewClient(cfg Config) (*Client, error) {
	tokens := splitTokens(cfg.Tokens)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("onc: no access tokens configured")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("onc: base URL is empty")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := time.Duration(cfg.RunPollSeconds) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	attempts := cfg.RunPollAttempts
	if attempts <= 0 {
		attempts = 30
	}
	return &Client{
		baseURL:      base,
		tokens:       tokens,
		httpc:        &http.Client{Timeout: timeout},
		pollInterval: interval,
		pollAttempts: attempts,
	}, nil
}

func splitTokens(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// BaseURL returns the configured API root, for traceability fields.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) token() string {
	n := c.next.Add(1)
	return c.tokens[int(n-1)%len(c.tokens)]
}

// get performs one API call. params must not contain the token; it is added
// here and stripped from anything the caller can surface.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("token", c.token())

	u := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("onc: build request %s: %w", path, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// err may embed the tokenized URL; keep it for logs only.
		logx.Error().Err(err).Str("path", path).Msg("oceans api transport failure")
		return fmt.Errorf("onc: request %s failed", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("onc: read response %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		if jsonErr := json.Unmarshal(body, &env); jsonErr == nil && len(env.Errors) > 0 {
			apiErr := env.Errors[0]
			logx.Warn().
				Str("path", path).
				Int("status", resp.StatusCode).
				Int("error_code", apiErr.Code).
				Str("error_message", apiErr.Message).
				Msg("oceans api structured error")
			return &apiErr
		}
		logx.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("oceans api http error")
		return fmt.Errorf("onc: %s returned status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("onc: decode response %s: %w", path, err)
	}
	return nil
}

// ScalarDataByLocation fetches a scalar time series for a device category /
// location / property over a date window, resampled to resamplePeriod
// seconds. The returned map echoes the URL parameters used (token excluded).
func (c *Client) ScalarDataByLocation(ctx context.Context, locationCode, deviceCategoryCode, propertyCode, dateFrom, dateTo string, resamplePeriod int) (*ScalarDataResponse, map[string]string, error) {
	params := map[string]string{
		"method":             "getByLocation",
		"locationCode":       locationCode,
		"deviceCategoryCode": deviceCategoryCode,
		"propertyCode":       propertyCode,
		"dateFrom":           dateFrom,
		"dateTo":             dateTo,
		"resamplePeriod":     strconv.Itoa(resamplePeriod),
		"outputFormat":       "object",
	}
	var out ScalarDataResponse
	if err := c.get(ctx, "/scalardata/location", params, &out); err != nil {
		return nil, params, err
	}
	return &out, params, nil
}

// Deployments lists deployment windows for a location (optionally filtered by
// device category) over a date window, sorted chronologically by begin time.
func (c *Client) Deployments(ctx context.Context, locationCode, deviceCategoryCode, dateFrom, dateTo string) ([]Deployment, map[string]string, error) {
	params := map[string]string{
		"method":       "get",
		"locationCode": locationCode,
	}
	if deviceCategoryCode != "" {
		params["deviceCategoryCode"] = deviceCategoryCode
	}
	if dateFrom != "" {
		params["dateFrom"] = dateFrom
	}
	if dateTo != "" {
		params["dateTo"] = dateTo
	}
	var out []Deployment
	if err := c.get(ctx, "/deployments", params, &out); err != nil {
		return nil, params, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Begin < out[j].Begin })
	return out, params, nil
}

// RequestDataProduct submits an asynchronous data-product request. params are
// the dataProductDelivery URL parameters (location, product code, extension,
// dates, dpo_ flags); the method parameter is added here.
func (c *Client) RequestDataProduct(ctx context.Context, params map[string]string) (*DataProductRequest, map[string]string, error) {
	used := map[string]string{"method": "request"}
	for k, v := range params {
		used[k] = v
	}
	var out DataProductRequest
	if err := c.get(ctx, "/dataProductDelivery", used, &out); err != nil {
		return nil, used, err
	}
	return &out, used, nil
}

// RunDataProduct kicks off processing of a queued request and polls at a
// fixed interval (bounded attempts) until the job reports complete. It
// returns the last observed run on success and a timeout error when the job
// never completes within the attempt budget.
func (c *Client) RunDataProduct(ctx context.Context, dpRequestID int) (*DataProductRun, error) {
	params := map[string]string{
		"method":      "run",
		"dpRequestId": strconv.Itoa(dpRequestID),
	}

	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		var runs []DataProductRun
		if err := c.get(ctx, "/dataProductDelivery", params, &runs); err != nil {
			return nil, err
		}
		if len(runs) > 0 {
			run := runs[0]
			if strings.EqualFold(run.Status, "complete") {
				return &run, nil
			}
			logx.Debug().
				Int("dp_request_id", dpRequestID).
				Int("attempt", attempt).
				Str("status", run.Status).
				Msg("data product run not complete yet")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, fmt.Errorf("onc: data product run %d did not complete after %d attempts", dpRequestID, c.pollAttempts)
}
