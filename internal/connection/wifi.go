package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/telehub/pkg/log"
)

const mdnsDomain = "local."

// statusReply is the optional JSON body of a gateway's status endpoint.
type statusReply struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Signal   int    `json:"signal"`
}

type wifi struct {
	candidates []string
	statusPath string
	service    string

	client *http.Client
	browse func(ctx context.Context, service string, entries, removed chan *zeroconf.ServiceEntry) error
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
	lanUp  func() bool
}

// NewWiFi queries candidate host:port pairs over HTTP and browses mDNS for
// service. Found gateways are connected to over raw TCP.
func NewWiFi(candidates []string, statusPath, service string) Transport {
	var d net.Dialer
	return &wifi{
		candidates: candidates,
		statusPath: "/" + strings.TrimPrefix(statusPath, "/"),
		service:    service,
		client:     &http.Client{},
		browse: func(ctx context.Context, service string, entries, removed chan *zeroconf.ServiceEntry) error {
			return zeroconf.Browse(ctx, service, mdnsDomain, entries, removed)
		},
		dial:  d.DialContext,
		lanUp: hasLAN,
	}
}

func (w *wifi) Kind() Kind { return KindWiFi }

func (w *wifi) Scan(ctx context.Context) ([]*Device, error) {
	if !w.lanUp() {
		return nil, fmt.Errorf("%w: no network interface is up", ErrUnavailable)
	}

	checked := make([]*Device, len(w.candidates))
	var browsed []*Device

	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range w.candidates {
		g.Go(func() error {
			d, err := w.check(gctx, addr)
			if err != nil {
				log.Debug("WiFi status check failed", "addr", addr, "error", err.Error())
				return nil
			}
			checked[i] = d
			return nil
		})
	}
	if w.service != "" && w.browse != nil {
		g.Go(func() error {
			browsed = w.browseMDNS(gctx)
			return nil
		})
	}
	_ = g.Wait()

	seen := map[string]bool{}
	var out []*Device
	for _, d := range append(checked, browsed...) {
		if d == nil || seen[d.Address] {
			continue
		}
		seen[d.Address] = true
		out = append(out, d)
	}
	return out, nil
}

func (w *wifi) check(ctx context.Context, addr string) (*Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+w.statusPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status check returned %d", resp.StatusCode)
	}

	d := &Device{
		ID:             "wifi-" + addr,
		Name:           "OBDII WiFi " + addr,
		Transport:      KindWiFi,
		Protocol:       protocolAuto,
		Status:         StatusDisconnected,
		SignalStrength: 75,
		Address:        addr,
	}
	var reply statusReply
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, &reply) == nil {
		if reply.Name != "" {
			d.Name = reply.Name
		}
		if reply.Protocol != "" {
			d.Protocol = reply.Protocol
		}
		if reply.Signal > 0 {
			d.SignalStrength = reply.Signal
		}
	}
	return d, nil
}

// browseMDNS collects service entries until ctx is done.
func (w *wifi) browseMDNS(ctx context.Context) []*Device {
	entries := make(chan *zeroconf.ServiceEntry, 8)
	removed := make(chan *zeroconf.ServiceEntry, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.browse(ctx, w.service, entries, removed); err != nil {
			log.Debug("mDNS browse failed", "service", w.service, "error", err.Error())
		}
	}()
	defer wg.Wait()

	var out []*Device
	for {
		select {
		case <-ctx.Done():
			return out
		case <-removed:
		case e, ok := <-entries:
			if !ok {
				return out
			}
			if d := entryDevice(e); d != nil {
				out = append(out, d)
			}
		}
	}
}

func entryDevice(e *zeroconf.ServiceEntry) *Device {
	if e == nil || e.Port == 0 {
		return nil
	}
	var host string
	switch {
	case len(e.AddrIPv4) > 0:
		host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		host = e.AddrIPv6[0].String()
	default:
		return nil
	}
	addr := net.JoinHostPort(host, strconv.Itoa(e.Port))
	return &Device{
		ID:             "wifi-" + addr,
		Name:           e.Instance,
		Transport:      KindWiFi,
		Protocol:       protocolAuto,
		Status:         StatusDisconnected,
		SignalStrength: 75,
		Address:        addr,
	}
}

func (w *wifi) Connect(ctx context.Context, d *Device) (Link, error) {
	conn, err := w.dial(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Address, err)
	}
	return newELMLink(ctx, conn)
}

func hasLAN() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}
