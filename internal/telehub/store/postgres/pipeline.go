package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/log"
)

const (
	defaultPipelineBuffer = 5000
	defaultFlushInterval  = time.Second
	// maxPendingVehicles forces an early flush.
	maxPendingVehicles = 1000
)

type locationUpdate struct {
	vehicleID string
	loc       *model.Location
}

type writeFunc func(ctx context.Context, vehicleID string, loc *model.Location) error

// LocationPipeline is a write-merging buffer for location fixes. Vehicles
// stream positions far faster than they are read back, so only the latest
// fix per vehicle is written once per flush interval.
type LocationPipeline struct {
	write writeFunc

	inputCh chan locationUpdate

	// buffer is owned by the Start goroutine.
	buffer map[string]*model.Location

	// pending mirrors buffer for readers until the fix is flushed.
	pending sync.Map

	running       atomic.Bool
	flushInterval time.Duration
}

func NewLocationPipeline(write writeFunc) *LocationPipeline {
	return &LocationPipeline{
		write:         write,
		inputCh:       make(chan locationUpdate, defaultPipelineBuffer),
		buffer:        make(map[string]*model.Location),
		flushInterval: defaultFlushInterval,
	}
}

// Start runs the merge loop until ctx is done, then flushes what is left.
func (p *LocationPipeline) Start(ctx context.Context) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	p.running.Store(true)
	defer p.running.Store(false)

	log.Info("Location pipeline started", "interval", p.flushInterval)

	for {
		select {
		case u := <-p.inputCh:
			p.buffer[u.vehicleID] = u.loc
			if len(p.buffer) >= maxPendingVehicles {
				p.flush(ctx)
			}

		case <-ticker.C:
			if len(p.buffer) > 0 {
				p.flush(ctx)
			}

		case <-ctx.Done():
			p.drain()
			p.flush(context.Background())
			return
		}
	}
}

// Push queues a fix without blocking. It reports false when the pipeline is
// not running so the caller can write through. A full queue sheds the fix.
func (p *LocationPipeline) Push(vehicleID string, loc *model.Location) bool {
	if !p.running.Load() {
		return false
	}

	// pending is set before the send so a flush racing this push cannot
	// leave it behind. A shed fix restores what was visible before.
	l := *loc
	prev, had := p.pending.Swap(vehicleID, &l)
	select {
	case p.inputCh <- locationUpdate{vehicleID: vehicleID, loc: &l}:
	default:
		if had {
			p.pending.CompareAndSwap(vehicleID, &l, prev)
		} else {
			p.pending.CompareAndDelete(vehicleID, &l)
		}
		log.Warn("Location pipeline full, dropping fix", "vehicleID", vehicleID)
	}
	return true
}

// Pending returns a fix accepted by Push that is not yet flushed.
func (p *LocationPipeline) Pending(vehicleID string) (*model.Location, bool) {
	v, ok := p.pending.Load(vehicleID)
	if !ok {
		return nil, false
	}
	l := *v.(*model.Location)
	return &l, true
}

func (p *LocationPipeline) drain() {
	for {
		select {
		case u := <-p.inputCh:
			p.buffer[u.vehicleID] = u.loc
		default:
			return
		}
	}
}

func (p *LocationPipeline) flush(ctx context.Context) {
	count := 0
	for vehicleID, loc := range p.buffer {
		if err := p.write(ctx, vehicleID, loc); err != nil {
			log.Error(err, "Failed to write vehicle location", "vehicleID", vehicleID)
		}
		// A newer fix may have been pushed meanwhile; keep that one visible.
		p.pending.CompareAndDelete(vehicleID, loc)
		count++
	}

	p.buffer = make(map[string]*model.Location)
	log.Debug("Location pipeline flushed", "count", count)
}
