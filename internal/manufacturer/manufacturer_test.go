package manufacturer

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

const (
	apiURL  = "https://api.test"
	authURL = "https://auth.test"
	testVIN = "5YJ3E1EA7KF000001"
)

// mocked returns the named integration with both of its HTTP clients routed
// through httpmock.
func mocked(t *testing.T, name string, cfg Config) (Client, *httpmock.MockTransport) {
	t.Helper()
	cfg.BaseURL, cfg.AuthURL = apiURL, authURL
	c, err := New(name, cfg)
	require.NoError(t, err)

	var s *session
	switch v := c.(type) {
	case *tesla:
		s = v.session
	case *ford:
		s = v.session
	case *gm:
		s = v.session
	}
	require.NotNil(t, s)

	transport := httpmock.NewMockTransport()
	api, ok := s.api.HTTPClient.Transport.(*oauth2.Transport)
	require.True(t, ok)
	api.Base = transport
	s.auth.Transport = transport
	return c, transport
}

func TestNew(t *testing.T) {
	for _, name := range []string{"tesla", "Tesla", " FORD ", "gm"} {
		c, err := New(name, Config{})
		require.NoError(t, err, name)
		assert.NotNil(t, c)
	}

	_, err := New("trabant", Config{})
	assert.ErrorIs(t, err, ErrUnsupportedManufacturer)

	assert.Equal(t, []string{"ford", "gm", "tesla"}, Names())
}

func TestAuthenticateRequiresCredentials(t *testing.T) {
	c, _ := mocked(t, "ford", Config{})
	err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = c.GetVehicleData(context.Background(), testVIN)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestClientCredentialsAndRefresh(t *testing.T) {
	c, mock := mocked(t, "tesla", Config{ClientID: "id", ClientSecret: "secret", Timeout: time.Second})

	issued := 0
	mock.RegisterResponder(http.MethodPost, authURL+"/oauth2/v3/token",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			assert.Equal(t, "client_credentials", req.PostForm.Get("grant_type"))
			assert.Equal(t, "id", req.PostForm.Get("client_id"))
			assert.Equal(t, "secret", req.PostForm.Get("client_secret"))
			assert.Contains(t, req.PostForm.Get("scope"), "vehicle_cmds")
			issued++
			if issued == 1 {
				return httpmock.NewStringResponse(http.StatusOK, `{"access_token":"stale","expires_in":3600}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"access_token":"fresh","expires_in":3600}`), nil
		})
	mock.RegisterResponder(http.MethodGet, apiURL+"/api/1/vehicles/"+testVIN+"/vehicle_data",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "Bearer fresh" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, `{}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"response":{"state":"online"}}`), nil
		})

	data, err := c.GetVehicleData(context.Background(), testVIN)
	require.NoError(t, err)
	assert.True(t, data.Online)
	assert.Equal(t, 2, issued)
}

func TestTokenCachedUntilExpiry(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn int
		wantIssue int
	}{
		{name: "long lived token is reused", expiresIn: 3600, wantIssue: 1},
		{name: "token inside the expiry margin is refreshed", expiresIn: 5, wantIssue: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := mocked(t, "ford", Config{ClientID: "id", ClientSecret: "secret"})

			issued := 0
			mock.RegisterResponder(http.MethodPost, authURL+"/token",
				func(*http.Request) (*http.Response, error) {
					issued++
					return httpmock.NewStringResponse(http.StatusOK,
						fmt.Sprintf(`{"access_token":"t%d","token_type":"Bearer","expires_in":%d}`, issued, tt.expiresIn)), nil
				})
			mock.RegisterResponder(http.MethodGet, apiURL+"/v3/vehicles/"+testVIN,
				httpmock.NewStringResponder(http.StatusOK, `{"vehicle":{}}`))

			require.NoError(t, c.Authenticate(context.Background()))
			for range 2 {
				_, err := c.GetVehicleData(context.Background(), testVIN)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantIssue, issued)
		})
	}
}

func TestStaticTokenIsNotRefreshed(t *testing.T) {
	c, mock := mocked(t, "gm", Config{Token: "pre-issued"})
	mock.RegisterResponder(http.MethodGet, apiURL+"/v1/account/vehicles/"+testVIN+"/diagnostics",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{}`))

	require.NoError(t, c.Authenticate(context.Background()))
	_, err := c.GetVehicleData(context.Background(), testVIN)
	require.Error(t, err)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestUnsupportedAction(t *testing.T) {
	c, mock := mocked(t, "ford", Config{Token: "t"})
	_, err := c.SendCommand(context.Background(), testVIN, model.ActionHonkHorn, nil)
	assert.ErrorIs(t, err, ErrUnsupportedAction)
	assert.Zero(t, mock.GetTotalCallCount())
}

func TestVehicleDataApply(t *testing.T) {
	s := &model.StatusSnapshot{DoorsLocked: true, FuelLevel: ptr(10.0)}
	d := &VehicleData{
		EngineRunning: ptr(true),
		Odometer:      ptr(1200.0),
		Location:      &model.Location{Lat: 1, Lng: 2},
	}
	d.Apply(s)

	assert.True(t, s.DoorsLocked)
	assert.True(t, s.EngineRunning)
	assert.Equal(t, 10.0, *s.FuelLevel)
	assert.Equal(t, 1200.0, *s.Odometer)
	require.NotNil(t, s.Location)
	assert.Equal(t, 2.0, s.Location.Lng)
}
