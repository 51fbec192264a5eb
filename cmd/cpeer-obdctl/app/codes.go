package app

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/telehub/pkg/obd"
)

// parseHex accepts "41 0C 1A F8" as well as "410C1AF8".
func parseHex(parts ...string) ([]byte, error) {
	s := strings.ReplaceAll(strings.Join(parts, ""), " ", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

func newDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode PID HEX...",
		Short: "Decode the data bytes of a mode 01 response",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := obd.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown PID %q", args[0])
			}
			data, err := parseHex(args[1:]...)
			if err != nil {
				return err
			}
			v, ok := obd.Decode(p.PID, data)
			if !ok {
				return fmt.Errorf("PID %s needs %d data bytes, got %d", p.PID, p.Bytes, len(data))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s %s\n", p.Name, p.PID, formatFloat(v), p.Unit)
			if !obd.InRange(p.PID, v) {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: outside %s..%s\n", formatFloat(p.Min), formatFloat(p.Max))
			}
			return nil
		},
	}
}

func newDTCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dtc HEX...",
		Short: "Decode a mode 03 payload into trouble codes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseHex(args...)
			if err != nil {
				return err
			}
			printCodes(cmd.OutOrStdout(), obd.DecodeDTCs(payload))
			return nil
		},
	}
}

func printCodes(w io.Writer, codes []string) {
	if len(codes) == 0 {
		fmt.Fprintln(w, "No trouble codes.")
		return
	}
	table := newTable("CODE", "SEVERITY", "DESCRIPTION")
	for _, code := range codes {
		if info, ok := obd.LookupDiagnostic(code); ok {
			table.AddRow(code, info.Severity, info.Description)
		} else {
			table.AddRow(code, "unknown", "")
		}
	}
	printTable(w, table)
}

func newLookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup CODE",
		Short: "Explain a trouble code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.ToUpper(strings.TrimSpace(args[0]))
			if !obd.ValidDTC(code) {
				return fmt.Errorf("%q is not a trouble code", args[0])
			}
			info, ok := obd.LookupDiagnostic(code)
			if !ok {
				return fmt.Errorf("no description for %s", code)
			}

			table := uitable.New()
			table.MaxColWidth = 80
			table.Wrap = true
			table.AddRow("Code:", info.Code)
			table.AddRow("Description:", info.Description)
			table.AddRow("Severity:", info.Severity)
			table.AddRow("Category:", info.Category)
			table.AddRow("Causes:", strings.Join(info.Causes, "; "))
			table.AddRow("Remedies:", strings.Join(info.Remedies, "; "))
			printTable(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newParamsCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "params",
		Short: "List the supported parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := obd.Parameters()
			if category != "" {
				params = obd.ByCategory(obd.Category(strings.ToLower(category)))
				if len(params) == 0 {
					return fmt.Errorf("unknown category %q, expected one of %v", category, obd.Categories())
				}
			}

			table := newTable("PID", "NAME", "UNIT", "MIN", "MAX", "CATEGORY")
			for _, p := range params {
				table.AddRow(p.PID, p.Name, p.Unit, formatFloat(p.Min), formatFloat(p.Max), p.Category)
			}
			printTable(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list parameters of this category.")
	return cmd
}
