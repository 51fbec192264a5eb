// Package manufacturer talks to vehicle manufacturers' cloud APIs. Each
// integration implements Client; New selects one by name.
package manufacturer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/autopeer-io/telehub/internal/pkg/rest"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/log"
)

var (
	ErrUnsupportedManufacturer = errors.New("unsupported manufacturer")
	ErrUnsupportedAction       = errors.New("action not supported by manufacturer")
	ErrNoCredentials           = errors.New("no token or client credentials configured")
)

// Client is one manufacturer integration.
type Client interface {
	// Authenticate obtains an access token. Other calls authenticate lazily,
	// so calling it up front only surfaces credential problems early.
	Authenticate(ctx context.Context) error
	GetVehicleData(ctx context.Context, vin string) (*VehicleData, error)
	SendCommand(ctx context.Context, vin string, action model.Action, params map[string]string) (*CommandResult, error)
}

// VehicleData is the manufacturer's view of a vehicle, normalized to metric
// units. Pointer fields are nil when the API did not report them.
type VehicleData struct {
	VIN           string
	Online        bool
	Locked        *bool
	EngineRunning *bool
	ClimateOn     *bool
	// FuelLevel is percent of tank or battery.
	FuelLevel *float64
	// Odometer is in km.
	Odometer   *float64
	InsideTemp *float64
	Location   *model.Location
	FetchedAt  time.Time
}

// Apply copies every reported field into s.
func (d *VehicleData) Apply(s *model.StatusSnapshot) {
	if d.Locked != nil {
		s.DoorsLocked = *d.Locked
	}
	if d.EngineRunning != nil {
		s.EngineRunning = *d.EngineRunning
	}
	if d.ClimateOn != nil {
		s.Climate.On = *d.ClimateOn
	}
	if d.FuelLevel != nil {
		s.FuelLevel = ptr(*d.FuelLevel)
	}
	if d.Odometer != nil {
		s.Odometer = ptr(*d.Odometer)
	}
	if d.Location != nil {
		l := *d.Location
		s.Location = &l
	}
}

// CommandResult is the manufacturer's answer to a command. Success false
// with a nil error means the API accepted the call but refused the action.
type CommandResult struct {
	Success  bool
	Reason   string
	Response map[string]any
}

// Config holds the endpoints and credentials of one integration. Empty URLs
// select the manufacturer's production endpoints.
type Config struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	// Token is a pre-issued access token; when set no OAuth exchange happens.
	Token   string
	Timeout time.Duration
}

type factory func(cfg Config) Client

var factories = map[string]factory{
	"tesla": newTesla,
	"ford":  newFord,
	"gm":    newGM,
}

// New returns the integration registered under name, case-insensitively.
func New(name string, cfg Config) (Client, error) {
	f, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedManufacturer, name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return f(cfg), nil
}

// Names lists the registered integrations.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// endpoints are a manufacturer's defaults.
type endpoints struct {
	name      string
	baseURL   string
	authURL   string
	tokenPath string
	scope     string
}

// session owns the API client of one integration. Its bearer token comes
// from an OAuth2 client_credentials source that caches the token until
// shortly before expiry; a 401 drops the cached token once.
type session struct {
	endpoints
	cfg  Config
	api  *rest.Client
	auth *http.Client

	credentials *clientcredentials.Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

func newSession(ep endpoints, cfg Config) *session {
	if cfg.BaseURL != "" {
		ep.baseURL = cfg.BaseURL
	}
	if cfg.AuthURL != "" {
		ep.authURL = cfg.AuthURL
	}
	s := &session{
		endpoints: ep,
		cfg:       cfg,
		api:       rest.New(ep.baseURL, cfg.Timeout),
		auth:      &http.Client{Timeout: cfg.Timeout},
	}
	s.api.HTTPClient.Transport = &oauth2.Transport{Source: s}
	if cfg.ClientID != "" {
		s.credentials = &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     strings.TrimSuffix(ep.authURL, "/") + "/" + strings.TrimPrefix(ep.tokenPath, "/"),
			Scopes:       strings.Fields(ep.scope),
			AuthStyle:    oauth2.AuthStyleInParams,
		}
	}
	return s
}

// Token implements oauth2.TokenSource for the API transport.
func (s *session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Token != "" {
		return &oauth2.Token{AccessToken: s.cfg.Token, TokenType: "Bearer"}, nil
	}
	if s.credentials == nil {
		return nil, fmt.Errorf("%s: %w", s.name, ErrNoCredentials)
	}
	if s.source == nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.auth)
		s.source = s.credentials.TokenSource(ctx)
	}
	tok, err := s.source.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: authenticate: %w", s.name, err)
	}
	if !tok.Expiry.IsZero() {
		log.Debug("Manufacturer token ready", "manufacturer", s.name, "expiry", tok.Expiry)
	}
	return tok, nil
}

// invalidate forgets the cached token so the next call fetches a new one.
func (s *session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = nil
}

func (s *session) Authenticate(context.Context) error {
	_, err := s.Token()
	return err
}

// call runs fn and, when a client_credentials token was rejected, runs it
// once more with a fresh token.
func (s *session) call(fn func() error) error {
	err := fn()
	var se *rest.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized || s.credentials == nil || s.cfg.Token != "" {
		return err
	}
	s.invalidate()
	return fn()
}

func (s *session) get(ctx context.Context, endpoint string, out any) error {
	return s.call(func() error { return s.api.Get(ctx, endpoint, out) })
}

func (s *session) post(ctx context.Context, endpoint string, in, out any) error {
	return s.call(func() error { return s.api.Post(ctx, endpoint, in, out) })
}

func vinPath(format, vin string) string {
	return fmt.Sprintf(format, url.PathEscape(vin))
}

// locate answers a LOCATE action from vehicle data.
func locate(ctx context.Context, c Client, vin string) (*CommandResult, error) {
	data, err := c.GetVehicleData(ctx, vin)
	if err != nil {
		return nil, err
	}
	if data.Location == nil {
		return &CommandResult{Success: false, Reason: "location unavailable"}, nil
	}
	return &CommandResult{Success: true, Response: map[string]any{
		"lat": data.Location.Lat,
		"lng": data.Location.Lng,
	}}, nil
}

func unsupported(name string, action model.Action) error {
	return fmt.Errorf("%s %s: %w", name, action, ErrUnsupportedAction)
}

func ptr[T any](v T) *T { return &v }
