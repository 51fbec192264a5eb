package manufacturer

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

const teslaVehicleDataJSON = `{"response":{
	"state":"online",
	"charge_state":{"battery_level":81},
	"climate_state":{"is_climate_on":false,"inside_temp":21.5},
	"drive_state":{"latitude":37.4,"longitude":-122.1,"heading":90,"speed":10,"gps_as_of":1700000000},
	"vehicle_state":{"locked":true,"odometer":100,"remote_start":false}
}}`

func TestTeslaVehicleData(t *testing.T) {
	c, mock := mocked(t, "tesla", Config{Token: "t"})
	mock.RegisterResponder(http.MethodGet, apiURL+"/api/1/vehicles/"+testVIN+"/vehicle_data",
		httpmock.NewStringResponder(http.StatusOK, teslaVehicleDataJSON))

	data, err := c.GetVehicleData(context.Background(), testVIN)
	require.NoError(t, err)

	assert.True(t, data.Online)
	require.NotNil(t, data.Locked)
	assert.True(t, *data.Locked)
	assert.Equal(t, 81.0, *data.FuelLevel)
	assert.InDelta(t, 160.9344, *data.Odometer, 1e-9)
	require.NotNil(t, data.Location)
	assert.Equal(t, 37.4, data.Location.Lat)
	assert.InDelta(t, 16.09344, *data.Location.Speed, 1e-9)
	assert.Equal(t, int64(1700000000), data.Location.Timestamp.Unix())
}

func TestTeslaSendCommand(t *testing.T) {
	c, mock := mocked(t, "tesla", Config{Token: "t"})

	var body map[string]any
	mock.RegisterResponder(http.MethodPost, apiURL+"/api/1/vehicles/"+testVIN+"/command/set_temps",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			return httpmock.NewStringResponse(http.StatusOK, `{"response":{"result":true,"reason":""}}`), nil
		})
	mock.RegisterResponder(http.MethodPost, apiURL+"/api/1/vehicles/"+testVIN+"/command/door_lock",
		httpmock.NewStringResponder(http.StatusOK, `{"response":{"result":false,"reason":"vehicle asleep"}}`))

	res, err := c.SendCommand(context.Background(), testVIN, model.ActionSetTemperature, map[string]string{"temperature": "22.5"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 22.5, body["driver_temp"])

	res, err = c.SendCommand(context.Background(), testVIN, model.ActionLockDoors, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "vehicle asleep", res.Reason)

	_, err = c.SendCommand(context.Background(), testVIN, model.ActionSetTemperature, map[string]string{"temperature": "warm"})
	assert.Error(t, err)
}

func TestTeslaLocate(t *testing.T) {
	c, mock := mocked(t, "tesla", Config{Token: "t"})
	mock.RegisterResponder(http.MethodGet, apiURL+"/api/1/vehicles/"+testVIN+"/vehicle_data",
		httpmock.NewStringResponder(http.StatusOK, teslaVehicleDataJSON))

	res, err := c.SendCommand(context.Background(), testVIN, model.ActionLocate, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, -122.1, res.Response["lng"])
}
