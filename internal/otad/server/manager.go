// Package server runs the daemon's long-lived servers side by side.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/otad/pkg/log"
)

// Server is anything that runs until its context is done.
type Server interface {
	Name() string
	Start(ctx context.Context) error
}

// Func adapts a named function to a Server.
type Func struct {
	name string
	fn   func(ctx context.Context) error
}

func NewFunc(name string, fn func(ctx context.Context) error) Func {
	return Func{name: name, fn: fn}
}

func (f Func) Name() string                    { return f.name }
func (f Func) Start(ctx context.Context) error { return f.fn(ctx) }

// Manager manages the lifecycle of all servers.
type Manager struct {
	servers []Server
}

func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Add registers another server. It must be called before Start.
func (m *Manager) Add(s Server) {
	m.servers = append(m.servers, s)
}

// Start launches all servers in parallel and waits for termination. The
// first failure stops the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			if err := srv.Start(ctx); err != nil {
				log.Error(err, "Server stopped with error", "server", srv.Name())
				return err
			}
			log.Info("Server stopped", "server", srv.Name())
			return nil
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
