package onc

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, baseURL, tokens string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:         baseURL,
		Tokens:          tokens,
		TimeoutSeconds:  5,
		RunPollSeconds:  1,
		RunPollAttempts: 2,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresTokens(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://example.invalid", Tokens: " , "})
	assert.Error(t, err)
}

func TestTokenRotation(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("token"))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "tok-a, tok-b")
	ctx := t.Context()
	for i := 0; i < 3; i++ {
		_, _, err := c.Deployments(ctx, "CBYIP", "", "", "")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"tok-a", "tok-b", "tok-a"}, seen)
}

func TestDeploymentsSortedChronologically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"begin":"2022-01-01T00:00:00.000Z","end":"","deviceCode":"B"},
			{"begin":"2020-01-01T00:00:00.000Z","end":"2021-01-01T00:00:00.000Z","deviceCode":"A"}
		]`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "tok")
	out, used, err := c.Deployments(t.Context(), "CBYIP", "CTD", "", "")
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].DeviceCode)
	assert.Equal(t, "B", out[1].DeviceCode)
	assert.NotContains(t, used, "token")
}

func TestStructuredAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"errors":[{"errorCode":127,"errorMessage":"device was not deployed"}]}`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "tok")
	_, _, err := c.ScalarDataByLocation(t.Context(), "CBYIP", "CTD", "salinity",
		"2023-06-01T00:00:00.000Z", "2023-06-02T00:00:00.000Z", 3600)
	require.Error(t, err)

	assert.True(t, IsNotDeployed(err))
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, 127, apiErr.Code)
}

func TestIsNotDeployedByMessage(t *testing.T) {
	assert.True(t, IsNotDeployed(&APIError{Code: 99, Message: "Device category not deployed at location"}))
	assert.False(t, IsNotDeployed(&APIError{Code: 23, Message: "invalid parameter"}))
	assert.False(t, IsNotDeployed(fmt.Errorf("plain error")))
}

func TestTransportErrorHidesURL(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1", "secret-token")
	_, _, err := c.Deployments(t.Context(), "CBYIP", "", "", "")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestRunDataProductPollsUntilComplete(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `[{"status":"queued","dpRunId":7}]`)
			return
		}
		fmt.Fprint(w, `[{"status":"complete","dpRunId":7}]`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "tok")
	run, err := c.RunDataProduct(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, 7, run.DpRunID)
	assert.Equal(t, 2, calls)
}

func TestRunDataProductTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"status":"queued","dpRunId":7}]`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "tok")
	_, err := c.RunDataProduct(t.Context(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not complete")
}
