package telehub

import (
	"context"
	"fmt"
	"os"

	"github.com/autopeer-io/telehub/internal/pkg/middleware"
	"github.com/autopeer-io/telehub/internal/telehub/command"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/notifier"
	"github.com/autopeer-io/telehub/internal/telehub/realtime"
	"github.com/autopeer-io/telehub/internal/telehub/server"
	httpserver "github.com/autopeer-io/telehub/internal/telehub/server/http"
	mqttserver "github.com/autopeer-io/telehub/internal/telehub/server/mqtt"
	"github.com/autopeer-io/telehub/internal/telehub/store/memory"
	"github.com/autopeer-io/telehub/internal/telehub/store/postgres"
	"github.com/autopeer-io/telehub/internal/telehub/vehicle"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/mqtt"
	"github.com/autopeer-io/telehub/pkg/mqtt/topic"
	"github.com/autopeer-io/telehub/pkg/options"
)

type Config struct {
	HttpOptions     *options.HttpOptions
	MqttOptions     *options.MqttOptions
	AuthOptions     *options.AuthOptions
	StoreOptions    *options.StoreOptions
	CommandOptions  *options.CommandOptions
	RealtimeOptions *options.RealtimeOptions
}

// NewHubServer wires the hub. ctx bounds the store connection attempt and
// the lifetime of websocket sessions.
func (cfg *Config) NewHubServer(ctx context.Context) (*HubServer, error) {
	// 1. Infrastructure: Repository (Secondary Adapter)
	repo, servers, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Infrastructure: MQTT ingress and notifier connections
	ingress, err := cfg.newMQTTClient("", true)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt ingress client: %w", err)
	}
	egress, err := cfg.newMQTTClient("-notifier", false)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt notifier client: %w", err)
	}
	topics := topic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)

	validator, err := middleware.NewValidator(cfg.AuthOptions)
	if err != nil {
		return nil, err
	}

	// 3. Core Domain Services
	commands := command.New(repo, cfg.CommandOptions)
	hub := realtime.NewHub(repo, commands, notifier.NewMQTTNotifier(egress, topics), cfg.RealtimeOptions)
	commands.SetBroadcaster(hub)

	// 4. Ingress Servers (Primary Adapters)
	servers = append(servers,
		mqttserver.NewEgress(egress),
		mqttserver.NewServer(ingress, topics, cfg.MqttOptions.SharedGroup, hub),
		httpserver.NewServer(cfg.HttpOptions, httpserver.Deps{
			Commands:  commands,
			Vehicles:  vehicle.New(repo),
			Validator: validator,
			Realtime:  realtime.NewWebsocketHandler(ctx, hub, cfg.RealtimeOptions),
			Ready:     repo.Ping,
		}),
	)

	return &HubServer{
		serverManager: server.NewManager(servers...),
		repo:          repo,
		commands:      commands,
		hub:           hub,
	}, nil
}

// newRepository returns the store and, for postgres, its location pipeline
// as a server to run.
func (cfg *Config) newRepository(ctx context.Context) (core.Repository, []server.Server, error) {
	switch cfg.StoreOptions.Driver {
	case options.StorePostgres:
		store, err := postgres.Open(ctx, cfg.StoreOptions)
		if err != nil {
			return nil, nil, err
		}
		return store, []server.Server{store}, nil
	default:
		log.Warn("Using the in-memory store; data is lost on restart")
		return memory.New(), nil, nil
	}
}

func (cfg *Config) newMQTTClient(suffix string, ordered bool) (mqtt.Client, error) {
	c := cfg.MqttOptions.ToClientConfig()

	if c.ClientID == "" {
		hostname, _ := os.Hostname()
		c.ClientID = fmt.Sprintf("cpeer-telehub-%s", hostname)
	}
	c.ClientID += suffix
	c.OrderedHandlers = ordered

	client, err := mqtt.NewClient(c)
	if err != nil {
		log.Error(err, "failed to new mqtt client")
		return nil, err
	}
	return client, nil
}
