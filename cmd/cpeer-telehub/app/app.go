package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/telehub/cmd/cpeer-telehub/app/options"
	"github.com/autopeer-io/telehub/pkg/app"
)

const (
	commandName = "cpeer-telehub"
	commandDesc = `The telehub serves the remote command API and the realtime channel for
connected vehicles. Vehicles reach it over MQTT; operators over HTTP and
websocket.`
)

func NewApp() *app.App {
	opts := options.NewTelehubOptions()
	application := app.NewApp(
		commandName,
		"Launch a telehub server",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithEnvPrefix("TELEHUB"),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.TelehubOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewHubServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create hub server: %w", err)
		}

		return server.Run(ctx)
	}
}
