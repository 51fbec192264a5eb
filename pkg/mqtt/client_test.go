package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"iov/v1/command/veh-1", "iov/v1/command/veh-1", true},
		{"iov/v1/vehicle/status/+", "iov/v1/vehicle/status/veh-1", true},
		{"iov/v1/vehicle/status/+", "iov/v1/vehicle/status/veh-1/extra", false},
		{"iov/v1/vehicle/status/+", "iov/v1/vehicle/location/veh-1", false},
		{"iov/v1/#", "iov/v1/command/result/veh-1", true},
		{"$share/hub/iov/v1/command/result/+", "iov/v1/command/result/veh-2", true},
		{"iov/v1/command/+", "iov/v1/command/result/veh-2", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{})
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "tcp://broker:1883", WillQoS: 3})
	require.Error(t, err)

	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://broker:1883"})
	require.NoError(t, err)
	assert.False(t, c.IsConnected())

	cfg := c.(*pahoClient).cfg
	assert.EqualValues(t, 60, cfg.KeepAlive)
}

func TestWillMessage(t *testing.T) {
	c := &pahoClient{cfg: &ClientConfig{}}
	assert.Nil(t, c.willMessage())

	c.cfg.WillTopic = "iov/v1/vehicle/online/veh-1"
	c.cfg.WillPayload = []byte(`{"online":false}`)
	c.cfg.WillRetain = true
	w := c.willMessage()
	require.NotNil(t, w)
	assert.Equal(t, c.cfg.WillTopic, w.Topic)
	assert.True(t, w.Retain)
}

func TestDispatchOrdered(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://broker:1883", OrderedHandlers: true})
	require.NoError(t, err)
	pc := c.(*pahoClient)
	pc.ctx = context.Background()
	assert.Equal(t, 3*time.Second, pc.cfg.ReconnectDelay)

	var got []string
	record := func(name string) MessageHandler {
		return func(_ context.Context, topic string, _ []byte) {
			got = append(got, name+":"+topic)
		}
	}
	pc.subs["$share/telehub/iov/v1/vehicle/status/+"] = subscription{filter: "$share/telehub/iov/v1/vehicle/status/+", handler: record("status")}
	pc.subs["iov/v1/#"] = subscription{filter: "iov/v1/#", handler: record("all")}

	ok, err := pc.dispatch(paho.PublishReceived{Packet: &paho.Publish{Topic: "iov/v1/vehicle/status/veh-1"}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"status:iov/v1/vehicle/status/veh-1", "all:iov/v1/vehicle/status/veh-1"}, got)

	got = nil
	_, _ = pc.dispatch(paho.PublishReceived{Packet: &paho.Publish{Topic: "other/topic"}})
	assert.Empty(t, got)
}
