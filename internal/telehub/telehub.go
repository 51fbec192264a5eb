// Package telehub assembles the hub: repositories, the command orchestrator,
// the realtime hub and the HTTP and MQTT servers in front of them.
package telehub

import (
	"context"

	"github.com/autopeer-io/telehub/internal/telehub/command"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/realtime"
	"github.com/autopeer-io/telehub/internal/telehub/server"
	"github.com/autopeer-io/telehub/pkg/log"
)

type HubServer struct {
	serverManager *server.Manager
	repo          core.Repository
	commands      *command.Service
	hub           *realtime.Hub
}

// Run starts every server and blocks until ctx is done or one fails.
func (s *HubServer) Run(ctx context.Context) error {
	log.Info("Starting Telehub Application...")

	err := s.serverManager.Start(ctx)

	// Commands still waiting on a simulation are failed before the
	// repository closes.
	s.commands.Stop()
	s.hub.Shutdown()
	if cerr := s.repo.Close(); cerr != nil {
		log.Error(cerr, "Failed to close repository")
	}

	log.Info("Telehub stopped")
	return err
}
