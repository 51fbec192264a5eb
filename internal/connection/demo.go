package connection

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/autopeer-io/telehub/pkg/obd"
)

// demoLink answers every known PID with bytes that decode to a plausible,
// slowly changing value. The sequence depends only on the device id.
type demoLink struct {
	mu   sync.Mutex
	seed uint32
	tick uint32
}

func NewDemoLink(deviceID string) Link {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return &demoLink{seed: h.Sum32()}
}

func (d *demoLink) Query(_ context.Context, pid string) ([]byte, error) {
	p, ok := obd.Lookup(pid)
	if !ok {
		return nil, obd.ErrNoData
	}

	d.mu.Lock()
	d.tick++
	n := d.seed + d.tick
	d.mu.Unlock()

	// Mid-range bytes keep every formula inside its parameter range.
	data := make([]byte, p.Bytes)
	for i := range data {
		data[i] = byte(0x20 + (n+uint32(i)*7)%0x40)
	}
	return data, nil
}

func (d *demoLink) TroubleCodes(context.Context) ([]string, error) {
	return []string{obd.DecodeDTC(0x0171)}, nil
}

func (d *demoLink) Close() error { return nil }
