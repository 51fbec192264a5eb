// Package mqtt is the vehicle bus ingress of the hub. It subscribes to the
// upstream vehicle topics with a shared subscription and feeds them to the
// realtime hub, keeping the per-vehicle arrival order.
package mqtt

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/log"
	pkgmqtt "github.com/autopeer-io/telehub/pkg/mqtt"
	"github.com/autopeer-io/telehub/pkg/mqtt/topic"
)

const (
	defaultWorkers = 8
	shardQueue     = 256
	handleTimeout  = 10 * time.Second
)

// Ingestor is the part of the realtime hub the bridge feeds.
type Ingestor interface {
	IngestStatus(ctx context.Context, vehicleID string, status *model.StatusSnapshot) error
	IngestLocation(ctx context.Context, vehicleID string, loc *model.Location) error
	IngestCommandResult(ctx context.Context, vehicleID string, res *wire.CommandResult) error
	SetOnline(ctx context.Context, vehicleID string, online bool, transport string) error
}

type message struct {
	suffix    string
	vehicleID string
	payload   []byte
}

// Server implements the MQTT ingress layer.
type Server struct {
	client pkgmqtt.Client
	topics *topic.TopicBuilder
	group  string
	ingest Ingestor

	handlers map[string]HandlerFunc
	shards   []chan message
}

// NewServer creates the bridge. Messages of one vehicle always land on the
// same worker. The client should be built with OrderedHandlers so that order
// holds up to the worker.
func NewServer(client pkgmqtt.Client, topics *topic.TopicBuilder, group string, ingest Ingestor) *Server {
	s := &Server{
		client: client,
		topics: topics,
		group:  group,
		ingest: ingest,
		shards: make([]chan message, defaultWorkers),
	}
	for i := range s.shards {
		s.shards[i] = make(chan message, shardQueue)
	}
	s.handlers = map[string]HandlerFunc{
		topic.SuffixVehicleStatus:   JSONHandler(s.handleStatus),
		topic.SuffixVehicleLocation: JSONHandler(s.handleLocation),
		topic.SuffixCommandResult:   JSONHandler(s.handleCommandResult),
		topic.SuffixVehicleOnline:   JSONHandler(s.handleOnline),
	}
	return s
}

// Start connects to the broker, subscribes and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		log.Info("Disconnecting MQTT client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
		log.Info("MQTT client disconnected")
	}()

	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		return err
	}
	log.Info("MQTT Connected")

	var wg sync.WaitGroup
	for i := range s.shards {
		wg.Add(1)
		go func(ch <-chan message) {
			defer wg.Done()
			s.work(ctx, ch)
		}(s.shards[i])
	}

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (s *Server) subscribe(ctx context.Context) error {
	const qos = 1

	for suffix := range s.handlers {
		filter := topic.Shared(s.group, s.topics.Wildcard(suffix))
		if err := s.client.Subscribe(ctx, filter, qos, s.route); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
		}
		log.Debug("Subscribed", "filter", filter)
	}
	return nil
}

// route runs on the client's reader and only hands the message to its shard.
func (s *Server) route(ctx context.Context, t string, payload []byte) {
	suffix, vehicleID, ok := s.topics.Parse(t)
	if !ok {
		log.Debug("Ignoring message on unexpected topic", "topic", t)
		return
	}
	if _, known := s.handlers[suffix]; !known {
		return
	}

	select {
	case s.shards[shardOf(vehicleID, len(s.shards))] <- message{suffix: suffix, vehicleID: vehicleID, payload: payload}:
	case <-ctx.Done():
	}
}

func shardOf(vehicleID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(vehicleID))
	return int(h.Sum32() % uint32(n))
}

func (s *Server) work(ctx context.Context, ch <-chan message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ch:
			s.handle(ctx, m)
		}
	}
}

func (s *Server) handle(ctx context.Context, m message) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	logger := log.WithValues("vehicleID", m.vehicleID, "topic", m.suffix)
	ctx = log.NewContext(ctx, logger)

	if err := s.handlers[m.suffix](ctx, m.vehicleID, m.payload); err != nil {
		logger.Error(err, "Handler execution failed")
	}
}

func (s *Server) handleStatus(ctx context.Context, vehicleID string, status *model.StatusSnapshot) error {
	return s.ingest.IngestStatus(ctx, vehicleID, status)
}

func (s *Server) handleLocation(ctx context.Context, vehicleID string, loc *model.Location) error {
	return s.ingest.IngestLocation(ctx, vehicleID, loc)
}

func (s *Server) handleCommandResult(ctx context.Context, vehicleID string, res *wire.CommandResult) error {
	return s.ingest.IngestCommandResult(ctx, vehicleID, res)
}

func (s *Server) handleOnline(ctx context.Context, vehicleID string, msg *wire.Online) error {
	return s.ingest.SetOnline(ctx, vehicleID, msg.Online, msg.Transport)
}
