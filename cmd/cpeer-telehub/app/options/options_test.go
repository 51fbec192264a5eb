package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsNeedSecret(t *testing.T) {
	o := NewTelehubOptions()
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--auth.secret")

	o.AuthOptions.Secret = "0123456789abcdef"
	require.NoError(t, o.Validate())

	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.CommandOptions, cfg.CommandOptions)
	assert.Equal(t, "telehub", cfg.MqttOptions.SharedGroup)
}

func TestFlagsHaveSections(t *testing.T) {
	fss := NewTelehubOptions().Flags()
	for _, name := range []string{"http", "mqtt", "auth", "store", "command", "realtime", "log"} {
		assert.Contains(t, fss.Order, name)
	}
	assert.NotNil(t, fss.FlagSet("realtime").Lookup("realtime.geofence-cooldown"))
}
