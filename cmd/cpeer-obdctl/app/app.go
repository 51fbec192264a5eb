package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/telehub/cmd/cpeer-obdctl/app/options"
	"github.com/autopeer-io/telehub/internal/connection"
	"github.com/autopeer-io/telehub/pkg/app"
	genericoptions "github.com/autopeer-io/telehub/pkg/options"
)

const (
	commandName = "cpeer-obdctl"
	commandDesc = `obdctl is a workshop tool for OBD-II gateways. It discovers gateways on
every transport, reads live parameters, decodes raw responses and explains
diagnostic trouble codes.`
)

// managerFunc builds the connection manager used by scan and read.
type managerFunc func(*genericoptions.ConnectionOptions) *connection.Manager

func NewApp() *app.App {
	return newApp(func(o *genericoptions.ConnectionOptions) *connection.Manager {
		return connection.NewManager(o)
	})
}

func newApp(newManager managerFunc) *app.App {
	opts := options.NewObdctlOptions()
	return app.NewApp(
		commandName,
		"Inspect OBD-II gateways and trouble codes",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithNoConfig(),
		app.WithEnvPrefix("OBDCTL"),
		app.WithCommands(
			newScanCommand(opts, newManager),
			newReadCommand(opts, newManager),
			newDecodeCommand(),
			newDTCCommand(),
			newLookupCommand(),
			newParamsCommand(),
		),
	)
}

func newTable(header ...any) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow(header...)
	return table
}

func printTable(w io.Writer, table *uitable.Table) {
	fmt.Fprintln(w, table.String())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
