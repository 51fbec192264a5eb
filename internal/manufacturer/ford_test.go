package manufacturer

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

func TestFordVehicleData(t *testing.T) {
	c, mock := mocked(t, "ford", Config{Token: "t"})
	mock.RegisterResponder(http.MethodGet, apiURL+"/v3/vehicles/"+testVIN,
		httpmock.NewStringResponder(http.StatusOK, `{"status":"SUCCESS","vehicle":{
			"vehicleDetails":{"fuelLevel":{"value":null},"batteryChargeLevel":{"value":64},"odometer":5123.4},
			"vehicleStatus":{"lockStatus":{"value":"UNLOCKED"},"remoteStartStatus":{"status":"ENGINE_RUNNING"}},
			"vehicleLocation":{"latitude":42.3,"longitude":-83.2,"speed":0}
		}}`))

	data, err := c.GetVehicleData(context.Background(), testVIN)
	require.NoError(t, err)
	assert.True(t, data.Online)
	assert.Equal(t, 64.0, *data.FuelLevel)
	assert.Equal(t, 5123.4, *data.Odometer)
	assert.False(t, *data.Locked)
	assert.True(t, *data.EngineRunning)
	assert.Nil(t, data.ClimateOn)
	assert.Equal(t, 42.3, data.Location.Lat)
}

func TestFordSendCommand(t *testing.T) {
	c, mock := mocked(t, "ford", Config{Token: "t"})
	mock.RegisterResponder(http.MethodPost, apiURL+"/v1/vehicles/"+testVIN+"/startEngine",
		httpmock.NewStringResponder(http.StatusAccepted, `{"status":"SUCCESS","commandStatus":"COMPLETED","commandId":"c-1"}`))
	mock.RegisterResponder(http.MethodPost, apiURL+"/v1/vehicles/"+testVIN+"/unlock",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"FAILED","error":{"message":"vehicle not reachable"}}`))

	res, err := c.SendCommand(context.Background(), testVIN, model.ActionStartEngine, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "c-1", res.Response["commandId"])

	res, err = c.SendCommand(context.Background(), testVIN, model.ActionUnlockDoors, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "vehicle not reachable", res.Reason)
}
