package app

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/telehub/cmd/cpeer-obdctl/app/options"
	"github.com/autopeer-io/telehub/internal/agent"
	"github.com/autopeer-io/telehub/internal/connection"
	"github.com/autopeer-io/telehub/pkg/obd"
)

func parseKind(s string) (connection.Kind, error) {
	kind := connection.Kind(strings.ToLower(s))
	if !slices.Contains(connection.Kinds, kind) {
		return "", fmt.Errorf("unknown transport %q, expected one of %v", s, connection.Kinds)
	}
	return kind, nil
}

func newScanCommand(opts *options.ObdctlOptions, newManager managerFunc) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover gateways",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := newManager(opts.ConnectionOptions)

			var res connection.ScanResult
			if transport == "" {
				res = m.ScanAll(cmd.Context())
			} else {
				kind, err := parseKind(transport)
				if err != nil {
					return err
				}
				start := time.Now()
				res.Devices = m.Scan(cmd.Context(), kind)
				res.PrimaryTransport = kind
				res.Elapsed = time.Since(start)
			}

			out := cmd.OutOrStdout()
			printDevices(out, res.Devices)
			pterm.Info.WithWriter(out).Printfln("%d device(s) in %s, primary transport %s",
				len(res.Devices), res.Elapsed.Round(time.Millisecond), res.PrimaryTransport)
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "Scan a single transport instead of all of them.")
	return cmd
}

func printDevices(w io.Writer, devices []*connection.Device) {
	table := newTable("ID", "NAME", "TRANSPORT", "SIGNAL", "ADDRESS", "DEMO")
	for _, d := range devices {
		table.AddRow(d.ID, d.Name, d.Transport, d.SignalStrength, d.Address, d.Demo)
	}
	printTable(w, table)
}

func newReadCommand(opts *options.ObdctlOptions, newManager managerFunc) *cobra.Command {
	var (
		transport string
		pids      []string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Connect to a gateway and read live parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			preferred := connection.Kind(opts.ConnectionOptions.Preferred)
			if transport != "" {
				kind, err := parseKind(transport)
				if err != nil {
					return err
				}
				preferred = kind
			}

			m := newManager(opts.ConnectionOptions)
			dev := agent.Pick(m.ScanAll(ctx), preferred)
			if dev == nil || !m.Connect(ctx, dev) {
				return fmt.Errorf("no gateway could be connected")
			}
			defer m.Disconnect()

			out := cmd.OutOrStdout()
			if dev.Demo {
				pterm.Warning.WithWriter(out).Printfln("No gateway found, reading from the %s demo device", dev.Transport)
			}

			link := m.Link()
			table := newTable("PID", "NAME", "VALUE", "UNIT")
			for _, pid := range pids {
				p, ok := obd.Lookup(pid)
				if !ok {
					table.AddRow(pid, "unknown", "-", "")
					continue
				}
				data, err := link.Query(ctx, p.PID)
				if err != nil {
					table.AddRow(p.PID, p.Name, err.Error(), "")
					continue
				}
				v, ok := obd.Decode(p.PID, data)
				if !ok {
					table.AddRow(p.PID, p.Name, "short response", "")
					continue
				}
				table.AddRow(p.PID, p.Name, formatFloat(v), p.Unit)
			}
			printTable(out, table)

			codes, err := link.TroubleCodes(ctx)
			if err != nil {
				return fmt.Errorf("read trouble codes: %w", err)
			}
			printCodes(out, codes)
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "Transport to prefer (default --connection.preferred).")
	cmd.Flags().StringSliceVar(&pids, "pid", []string{"0C", "0D", "05", "2F", "42"}, "PIDs to read.")
	return cmd
}
