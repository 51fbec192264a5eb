package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/telehub/internal/pkg/metrics"
	"github.com/autopeer-io/telehub/internal/pkg/middleware"
	"github.com/autopeer-io/telehub/internal/telehub/command"
	"github.com/autopeer-io/telehub/internal/telehub/vehicle"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

// Deps are the collaborators the HTTP API serves.
type Deps struct {
	Commands  *command.Service
	Vehicles  *vehicle.Service
	Validator *middleware.Validator

	// Realtime serves the websocket channel. Nil disables the route.
	Realtime http.Handler

	// Ready reports whether the backing store is reachable.
	Ready func(ctx context.Context) error
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

func NewServer(opts *options.HttpOptions, deps Deps) *Server {
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(opts, deps),
			ReadHeaderTimeout: opts.Timeout,
		},
		options: opts,
	}
}

// NewRouter builds the full route table.
func NewRouter(opts *options.HttpOptions, deps Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Observe)

	// Liveness check
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(r.Context()); err != nil {
				middleware.Logger(r.Context()).Warn("Readiness check failed", "error", err.Error())
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	h := &handler{commands: deps.Commands, vehicles: deps.Vehicles}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Timeout(opts.Timeout), middleware.Authenticate(deps.Validator))

	api.HandleFunc("/vehicles", h.registerVehicle).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{vehicleID}", h.getVehicle).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{vehicleID}/status", h.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{vehicleID}/geofence", h.getGeoFence).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{vehicleID}/geofence", h.putGeoFence).Methods(http.MethodPut)
	api.HandleFunc("/vehicles/{vehicleID}/connectivity", h.listConnectivity).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{vehicleID}/commands", h.submitCommand).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{vehicleID}/commands", h.listCommands).Methods(http.MethodGet)
	api.HandleFunc("/commands/{commandID}", h.getCommand).Methods(http.MethodGet)

	api.HandleFunc("/diagnostics/{code}", h.lookupDiagnostic).Methods(http.MethodGet)
	api.HandleFunc("/parameters", h.listParameters).Methods(http.MethodGet)
	api.HandleFunc("/decode", h.decode).Methods(http.MethodPost)

	if deps.Realtime != nil {
		api.Handle("/realtime", deps.Realtime).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, map[string]string{"code": "NotFound", "message": "Route not found."})
	})

	return r
}

func (s *Server) Start(ctx context.Context) error {
	network := s.options.Network
	if network == "" {
		network = "tcp"
	}
	ln, err := net.Listen(network, s.server.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeout := s.options.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		log.Info("Shutting down HTTP Server")
		return s.server.Shutdown(shutdownCtx)
	}
}
