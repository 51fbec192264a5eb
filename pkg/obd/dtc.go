package obd

import (
	"fmt"
	"regexp"
	"strings"
)

// systemPrefix maps the top two bits of a raw DTC to its system letter.
var systemPrefix = [4]byte{'P', 'C', 'B', 'U'}

var dtcPattern = regexp.MustCompile(`^[PCBU][0-3][0-9A-F]{3}$`)

// DecodeDTC renders a raw 16-bit trouble code, e.g. 0x0101 -> "P0101".
//
//	bits 15-14  system (P, C, B, U)
//	bits 13-0   four hex digits, the first of which is 0-3
func DecodeDTC(raw uint16) string {
	return fmt.Sprintf("%c%04X", systemPrefix[raw>>14], raw&0x3FFF)
}

// DecodeDTCs decodes a mode 03 payload: consecutive byte pairs, one code each.
// Zero pairs are padding and are skipped, as is a trailing odd byte.
func DecodeDTCs(payload []byte) []string {
	var codes []string
	for i := 0; i+1 < len(payload); i += 2 {
		raw := uint16(payload[i])<<8 | uint16(payload[i+1])
		if raw == 0 {
			continue
		}
		codes = append(codes, DecodeDTC(raw))
	}
	return codes
}

// ValidDTC reports whether code is a well formed trouble code such as "P0420".
func ValidDTC(code string) bool {
	return dtcPattern.MatchString(strings.ToUpper(code))
}
