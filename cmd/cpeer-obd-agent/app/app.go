package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/telehub/cmd/cpeer-obd-agent/app/options"
	"github.com/autopeer-io/telehub/pkg/app"
)

const (
	commandName = "cpeer-obd-agent"
	commandDesc = `The OBD agent runs in the vehicle. It connects to the diagnostic gateway
over bluetooth, wifi, usb or cellular, reports decoded telemetry to the
telehub and executes the remote commands it receives.`
)

func NewApp() *app.App {
	opts := options.NewObdAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch a vehicle OBD agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithEnvPrefix("OBDAGENT"),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.ObdAgentOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
