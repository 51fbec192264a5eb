package connection

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/autopeer-io/telehub/internal/pkg/rest"
	"github.com/autopeer-io/telehub/pkg/obd"
)

type registryDevice struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Protocol string    `json:"protocol"`
	Online   bool      `json:"online"`
	Signal   int       `json:"signal"`
	LastSeen time.Time `json:"lastSeen"`
}

type cellular struct {
	client *rest.Client
}

// NewCellular reaches telematics units through the device registry at
// baseURL. An empty baseURL makes the transport unavailable.
func NewCellular(baseURL, token string, timeout time.Duration) Transport {
	if baseURL == "" {
		return &cellular{}
	}
	c := rest.New(baseURL, timeout)
	c.SetToken(token)
	return &cellular{client: c}
}

func (c *cellular) Kind() Kind { return KindCellular }

func (c *cellular) Scan(ctx context.Context) ([]*Device, error) {
	if c.client == nil {
		return nil, fmt.Errorf("%w: no device registry configured", ErrUnavailable)
	}

	var resp struct {
		Devices []registryDevice `json:"devices"`
	}
	if err := c.client.Get(ctx, "devices", &resp); err != nil {
		return nil, err
	}

	out := make([]*Device, 0, len(resp.Devices))
	for _, rd := range resp.Devices {
		if !rd.Online {
			continue
		}
		out = append(out, registryToDevice(rd))
	}
	return out, nil
}

func registryToDevice(rd registryDevice) *Device {
	d := &Device{
		ID:             "cell-" + rd.ID,
		Name:           rd.Name,
		Transport:      KindCellular,
		Protocol:       rd.Protocol,
		Status:         StatusDisconnected,
		SignalStrength: rd.Signal,
		LastSeen:       rd.LastSeen,
		Address:        rd.ID,
	}
	if d.Name == "" {
		d.Name = "Telematics unit " + rd.ID
	}
	if d.Protocol == "" {
		d.Protocol = protocolAuto
	}
	return d
}

func (c *cellular) Connect(ctx context.Context, d *Device) (Link, error) {
	if c.client == nil {
		return nil, ErrUnavailable
	}
	var rd registryDevice
	if err := c.client.Get(ctx, "devices/"+url.PathEscape(d.Address), &rd); err != nil {
		return nil, err
	}
	if !rd.Online {
		return nil, fmt.Errorf("telematics unit %s is offline", d.Address)
	}
	return &cellularLink{client: c.client, id: d.Address}, nil
}

// cellularLink relays queries through the registry, which forwards them to
// the unit over its cellular session.
type cellularLink struct {
	client *rest.Client
	id     string
}

func (l *cellularLink) Query(ctx context.Context, pid string) ([]byte, error) {
	var resp struct {
		Data string `json:"data"`
	}
	req := map[string]string{"pid": pid}
	if err := l.client.Post(ctx, "devices/"+url.PathEscape(l.id)+"/query", req, &resp); err != nil {
		var se *rest.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, obd.ErrNoData
		}
		return nil, err
	}
	if resp.Data == "" {
		return nil, obd.ErrNoData
	}
	return hex.DecodeString(resp.Data)
}

func (l *cellularLink) TroubleCodes(ctx context.Context) ([]string, error) {
	var resp struct {
		Codes []string `json:"codes"`
	}
	if err := l.client.Get(ctx, "devices/"+url.PathEscape(l.id)+"/dtcs", &resp); err != nil {
		return nil, err
	}
	return resp.Codes, nil
}

func (l *cellularLink) Close() error { return nil }
