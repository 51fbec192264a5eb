package obd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is returned for ELM327 replies that carry no response bytes, such
// as "NO DATA" for an unsupported PID.
var ErrNoData = errors.New("no data")

// Response is one parsed ELM327 reply.
type Response struct {
	// Mode is the service byte of the request, e.g. 0x01 for "41 ...".
	Mode byte
	// PID is empty for services without a PID byte (mode 03).
	PID  string
	Data []byte
}

// ParseResponse parses one ELM327 text reply such as "41 0C 1A F8" or
// "410D5A>". Spaces, the prompt and echo-free line endings are tolerated.
func ParseResponse(line string) (Response, error) {
	line = strings.ToUpper(strings.TrimSpace(line))
	line = strings.TrimSuffix(line, ">")
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		return Response{}, ErrNoData
	case strings.Contains(line, "NO DATA"), strings.Contains(line, "UNABLE TO CONNECT"):
		return Response{}, ErrNoData
	case strings.HasPrefix(line, "?"), strings.Contains(line, "ERROR"):
		return Response{}, fmt.Errorf("adapter error: %q", line)
	}

	raw, err := hex.DecodeString(strings.ReplaceAll(line, " ", ""))
	if err != nil {
		return Response{}, fmt.Errorf("malformed response %q: %w", line, err)
	}
	if len(raw) == 0 || raw[0] < 0x40 {
		return Response{}, fmt.Errorf("not a positive response: %q", line)
	}

	resp := Response{Mode: raw[0] - 0x40}
	switch resp.Mode {
	case 0x01, 0x02:
		if len(raw) < 2 {
			return Response{}, fmt.Errorf("missing pid in %q", line)
		}
		resp.PID = fmt.Sprintf("%02X", raw[1])
		resp.Data = raw[2:]
	case 0x03:
		// 43 <count> <pairs...> on CAN, 43 <pairs...> on legacy buses.
		data := raw[1:]
		if len(data)%2 == 1 {
			data = data[1:]
		}
		resp.Data = data
	default:
		resp.Data = raw[1:]
	}
	return resp, nil
}

// Request renders the ELM327 command for a mode 01 PID, e.g. "010C".
func Request(pid string) string {
	return "01" + normalizePID(pid)
}
