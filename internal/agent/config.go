package agent

import (
	"encoding/json"
	"fmt"

	"github.com/autopeer-io/telehub/internal/agent/command"
	"github.com/autopeer-io/telehub/internal/agent/hub"
	"github.com/autopeer-io/telehub/internal/agent/telemetry"
	"github.com/autopeer-io/telehub/internal/connection"
	"github.com/autopeer-io/telehub/internal/manufacturer"
	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/mqtt"
	"github.com/autopeer-io/telehub/pkg/mqtt/topic"
	"github.com/autopeer-io/telehub/pkg/options"
)

type Config struct {
	MqttOptions         *options.MqttOptions
	ConnectionOptions   *options.ConnectionOptions
	ManufacturerOptions *options.ManufacturerOptions
	AgentOptions        *options.AgentOptions
}

func (cfg *Config) NewAgent() (*Agent, error) {
	vid := cfg.AgentOptions.VehicleID
	if vid == "" {
		vid = DiscoverVehicleID()
	}
	if vid == "" {
		return nil, fmt.Errorf("unable to determine the vehicle id; set --agent.vehicle-id")
	}

	mqttClient, topics, err := cfg.initMqttClientAndTopicBuilder(vid)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}

	mf, err := cfg.newManufacturerClient()
	if err != nil {
		return nil, err
	}

	return NewAgent(
		vid,
		hub.New(vid, mqttClient, topics),
		connection.NewManager(cfg.ConnectionOptions),
		connection.Kind(cfg.ConnectionOptions.Preferred),
		cfg.AgentOptions.ReconnectInterval,
		telemetry.New(telemetry.Config{
			VehicleID:    vid,
			PIDs:         cfg.AgentOptions.PIDs,
			PollInterval: cfg.AgentOptions.PollInterval,
			DTCInterval:  cfg.AgentOptions.DTCInterval,
			MaxFailures:  cfg.AgentOptions.MaxLinkFailures,
			Manufacturer: mf,
			VIN:          cfg.ManufacturerOptions.VIN,
		}),
		command.New(vid, cfg.ManufacturerOptions.VIN, mf),
	), nil
}

// newManufacturerClient returns nil when no integration is configured.
func (cfg *Config) newManufacturerClient() (manufacturer.Client, error) {
	o := cfg.ManufacturerOptions
	if o == nil || o.Name == "" {
		return nil, nil
	}
	mf, err := manufacturer.New(o.Name, manufacturer.Config{
		BaseURL:      o.BaseURL,
		AuthURL:      o.AuthURL,
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		Token:        o.Token,
		Timeout:      o.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("--manufacturer.name: %w (known: %v)", err, manufacturer.Names())
	}
	log.Info("Manufacturer integration enabled", "manufacturer", o.Name, "vin", o.VIN)
	return mf, nil
}

func (cfg *Config) initMqttClientAndTopicBuilder(vid string) (mqtt.Client, *topic.TopicBuilder, error) {
	topics := topic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("cpeer-obd-agent-%s", vid)
	}

	// The hub stamps presence changes on arrival, so the will carries no time.
	offlinePayload, _ := json.Marshal(wire.Online{Online: false})

	mqttConfig.WillTopic = topics.VehicleOnline(vid)
	mqttConfig.WillPayload = offlinePayload
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topics, nil
}
