package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/telehub/pkg/log"
)

var errNotStarted = errors.New("mqtt client not started")

type pahoClient struct {
	cfg *ClientConfig
	cm  *autopaho.ConnectionManager

	// ctx is the Start context; handlers run under it.
	ctx       context.Context
	connected atomic.Bool

	mu   sync.RWMutex
	subs map[string]subscription
}

type subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// NewClient returns a Client backed by an autopaho connection manager. The
// connection is only opened by Start.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config is required")
	}

	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:  cfg,
		subs: map[string]subscription{},
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // validated by NewClient

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg:                        &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify}, //nolint:gosec
		WillMessage:                   c.willMessage(),
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived:  []func(paho.PublishReceived) (bool, error){c.dispatch},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	log.Info("Connecting to MQTT broker", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)

	c.ctx = ctx
	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		log.Debug("MQTT disconnect incomplete", "error", err.Error())
	}
	c.connected.Store(false)
	log.Info("MQTT client disconnected", "clientID", c.cfg.ClientID)
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return errNotStarted
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

// Subscribe registers handler for filter. The registration outlives the
// current connection: onConnectionUp renews it after every reconnect, so a
// failed SUBSCRIBE while offline is reported but not fatal.
func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return errNotStarted
	}

	sub := subscription{filter: filter, qos: byte(qos), handler: handler}
	c.mu.Lock()
	c.subs[filter] = sub
	c.mu.Unlock()

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: sub.qos}},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	log.Info("Subscribed", "filter", filter, "qos", qos)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return errNotStarted
	}

	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

// snapshot returns the registered subscriptions ordered by filter.
func (c *pahoClient) snapshot() []subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]subscription, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b subscription) int { return strings.Compare(a.filter, b.filter) })
	return out
}

// onConnectionUp renews every registration in a single SUBSCRIBE.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)

	subs := c.snapshot()
	log.Info("MQTT connection up", "clientID", c.cfg.ClientID, "subscriptions", len(subs))
	if len(subs) == 0 {
		return
	}

	opts := make([]paho.SubscribeOptions, 0, len(subs))
	for _, s := range subs {
		opts = append(opts, paho.SubscribeOptions{Topic: s.filter, QoS: s.qos})
	}
	if _, err := cm.Subscribe(c.ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		log.Error(err, "Failed to renew subscriptions", "count", len(opts))
	}
}

func (c *pahoClient) onConnectError(err error) {
	c.connected.Store(false)
	log.Error(err, "MQTT connect failed, retrying", "retryIn", c.cfg.ReconnectDelay)
}

func (c *pahoClient) onClientError(err error) {
	c.connected.Store(false)
	log.Error(err, "MQTT client error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	log.Warn("MQTT broker closed the session", "code", d.ReasonCode, "reason", reason)
}

// dispatch hands an inbound publish to every matching handler. With
// OrderedHandlers the handlers run inline on the paho reader goroutine;
// otherwise each runs on its own goroutine.
func (c *pahoClient) dispatch(p paho.PublishReceived) (bool, error) {
	topic, payload := p.Packet.Topic, p.Packet.Payload

	matched := false
	for _, s := range c.snapshot() {
		if !Match(s.filter, topic) {
			continue
		}
		matched = true
		if c.cfg.OrderedHandlers {
			s.handler(c.ctx, topic, payload)
		} else {
			go s.handler(c.ctx, topic, payload)
		}
	}
	if !matched {
		log.Debug("No handler for topic", "topic", topic)
	}
	return true, nil
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}

// Match reports whether topic matches the subscription filter. Wildcards + and #
// are honoured and a $share/<group>/ prefix is ignored.
func Match(filter, topic string) bool {
	filter = stripShare(filter)
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		switch {
		case part == "#":
			return true
		case i >= len(tp):
			return false
		case part != "+" && part != tp[i]:
			return false
		}
	}
	return len(fp) == len(tp)
}

func stripShare(filter string) string {
	if !strings.HasPrefix(filter, "$share/") {
		return filter
	}
	if parts := strings.SplitN(filter, "/", 3); len(parts) == 3 {
		return parts[2]
	}
	return filter
}
