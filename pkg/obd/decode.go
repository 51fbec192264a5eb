package obd

import (
	"fmt"

	"github.com/autopeer-io/telehub/pkg/log"
)

// Decode converts the data bytes of a mode 01 response into a physical value.
// ok is false when pid is unknown or data does not fit the formula; Decode
// never panics.
func Decode(pid string, data []byte) (value float64, ok bool) {
	p, found := Lookup(pid)
	if !found {
		log.Warn("Unknown OBD parameter", "pid", pid)
		return 0, false
	}
	if len(data) < p.Bytes {
		log.Debug("Short OBD payload", "pid", p.PID, "want", p.Bytes, "got", len(data))
		return 0, false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn("OBD formula failed", "pid", p.PID, "panic", fmt.Sprint(r))
			value, ok = 0, false
		}
	}()

	return p.Formula(data[:p.Bytes]), true
}

// DecodeAll decodes every frame keyed by PID. Frames that fail to decode are
// left out of the result without affecting the others.
func DecodeAll(frames map[string][]byte) map[string]float64 {
	out := make(map[string]float64, len(frames))
	for pid, data := range frames {
		if v, ok := Decode(pid, data); ok {
			out[normalizePID(pid)] = v
		}
	}
	return out
}
