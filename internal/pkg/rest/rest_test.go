package rest

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	c := New("https://api.example.com/", time.Second)
	httpmock.ActivateNonDefault(c.HTTPClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestDoSendsTokenAndDecodes(t *testing.T) {
	c := newMockedClient(t)
	c.SetToken(" secret ")

	httpmock.RegisterResponder(http.MethodPost, "https://api.example.com/v1/echo",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"ok": "yes"})
		})

	var out map[string]string
	require.NoError(t, c.Post(context.Background(), "v1/echo", map[string]int{"a": 1}, &out))
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestDoReturnsStatusError(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, "https://api.example.com/missing",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"nope"}`))

	err := c.Get(context.Background(), "/missing", nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Body, "nope")
}
