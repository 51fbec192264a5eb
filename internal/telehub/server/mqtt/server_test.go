package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/mqtt/mqtttest"
	"github.com/autopeer-io/telehub/pkg/mqtt/topic"
)

type call struct {
	kind      string
	vehicleID string
	value     any
}

type recordingIngestor struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *recordingIngestor) record(kind, vehicleID string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{kind: kind, vehicleID: vehicleID, value: v})
	return r.err
}

func (r *recordingIngestor) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recordingIngestor) IngestStatus(_ context.Context, vid string, s *model.StatusSnapshot) error {
	return r.record("status", vid, s)
}

func (r *recordingIngestor) IngestLocation(_ context.Context, vid string, l *model.Location) error {
	return r.record("location", vid, l)
}

func (r *recordingIngestor) IngestCommandResult(_ context.Context, vid string, res *wire.CommandResult) error {
	return r.record("result", vid, res)
}

func (r *recordingIngestor) SetOnline(_ context.Context, vid string, online bool, transport string) error {
	return r.record("online", vid, online)
}

func startServer(t *testing.T, ing *recordingIngestor) (*mqtttest.Fake, *topic.TopicBuilder) {
	t.Helper()

	fake := mqtttest.NewFake()
	topics := topic.NewTopicBuilder("iov/v1")
	srv := NewServer(fake, topics, "telehub", ing)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		assert.False(t, fake.IsConnected())
	})

	require.Eventually(t, func() bool { return len(fake.Subscriptions()) == 4 }, time.Second, 5*time.Millisecond)
	return fake, topics
}

func publishJSON(t *testing.T, fake *mqtttest.Fake, topic string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, fake.Publish(context.Background(), topic, 1, false, b))
}

func TestServerSubscribesShared(t *testing.T) {
	fake, _ := startServer(t, &recordingIngestor{})

	assert.ElementsMatch(t, []string{
		"$share/telehub/iov/v1/vehicle/status/+",
		"$share/telehub/iov/v1/vehicle/location/+",
		"$share/telehub/iov/v1/command/result/+",
		"$share/telehub/iov/v1/vehicle/online/+",
	}, fake.Subscriptions())
}

func TestServerRoutesByTopic(t *testing.T) {
	ing := &recordingIngestor{}
	fake, topics := startServer(t, ing)

	publishJSON(t, fake, topics.VehicleStatus("veh-1"), model.StatusSnapshot{EngineRunning: true})
	publishJSON(t, fake, topics.VehicleLocation("veh-1"), model.Location{Lat: 1, Lng: 2})
	publishJSON(t, fake, topics.CommandResult("veh-1"), wire.CommandResult{CommandID: "cmd-1", Success: true})
	publishJSON(t, fake, topics.VehicleOnline("veh-1"), wire.Online{Online: false})

	require.Eventually(t, func() bool { return len(ing.Calls()) == 4 }, time.Second, 5*time.Millisecond)

	calls := ing.Calls()
	assert.Equal(t, "status", calls[0].kind)
	assert.True(t, calls[0].value.(*model.StatusSnapshot).EngineRunning)
	assert.Equal(t, "location", calls[1].kind)
	assert.Equal(t, 2.0, calls[1].value.(*model.Location).Lng)
	assert.Equal(t, "result", calls[2].kind)
	assert.Equal(t, "cmd-1", calls[2].value.(*wire.CommandResult).CommandID)
	assert.Equal(t, "online", calls[3].kind)
	assert.Equal(t, false, calls[3].value)
	for _, c := range calls {
		assert.Equal(t, "veh-1", c.vehicleID)
	}
}

func TestServerKeepsPerVehicleOrder(t *testing.T) {
	ing := &recordingIngestor{}
	fake, topics := startServer(t, ing)

	const n = 50
	for i := 0; i < n; i++ {
		for _, vid := range []string{"veh-a", "veh-b"} {
			publishJSON(t, fake, topics.VehicleLocation(vid), model.Location{Lat: float64(i)})
		}
	}

	require.Eventually(t, func() bool { return len(ing.Calls()) == 2*n }, time.Second, 5*time.Millisecond)

	next := map[string]float64{}
	for _, c := range ing.Calls() {
		lat := c.value.(*model.Location).Lat
		assert.Equal(t, next[c.vehicleID], lat, fmt.Sprintf("out of order for %s", c.vehicleID))
		next[c.vehicleID] = lat + 1
	}
}

func TestServerSurvivesBadPayloads(t *testing.T) {
	ing := &recordingIngestor{err: errors.New("boom")}
	fake, topics := startServer(t, ing)

	require.NoError(t, fake.Publish(context.Background(), topics.VehicleStatus("veh-1"), 1, false, []byte("{not json")))
	require.NoError(t, fake.Publish(context.Background(), "other/topic", 1, false, []byte("{}")))
	publishJSON(t, fake, topics.VehicleStatus("veh-1"), model.StatusSnapshot{})
	publishJSON(t, fake, topics.VehicleStatus("veh-1"), model.StatusSnapshot{})

	require.Eventually(t, func() bool { return len(ing.Calls()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestJSONHandler(t *testing.T) {
	var got *wire.Online
	h := JSONHandler(func(_ context.Context, vid string, msg *wire.Online) error {
		got = msg
		return nil
	})

	require.NoError(t, h(context.Background(), "veh-1", []byte(`{"online":true,"transport":"wifi"}`)))
	assert.Equal(t, &wire.Online{Online: true, Transport: "wifi"}, got)
	assert.Error(t, h(context.Background(), "veh-1", []byte("nope")))
}
