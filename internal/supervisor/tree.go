// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Layer names a child supervisor of the tree.
type Layer string

const (
	// LayerData holds services that own donation state, e.g. the reconciler.
	LayerData Layer = "data"

	// LayerMessaging holds the change bus forwarder and broadcast gateway.
	LayerMessaging Layer = "messaging"

	// LayerAPI holds the HTTP server.
	LayerAPI Layer = "api"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long each service may take to stop.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// SupervisorTree runs every long-lived Tallyboard service:
//
//	tallyboard
//	├── data-layer       reconciler
//	├── messaging-layer  change forwarder, broadcast gateway
//	└── api-layer        http server
//
// A crashing gateway restarts inside the messaging layer without taking
// donation intake down with it.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	logger *slog.Logger
	config TreeConfig
}

// NewSupervisorTree creates the tree. Supervisor events are logged through
// logger via sutureslog.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if logger == nil {
		return nil, fmt.Errorf("supervisor: logger is required")
	}
	config = config.withDefaults()

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	// Children inherit the root's EventHook when added.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("tallyboard", rootSpec)
	layers := make(map[Layer]*suture.Supervisor, 3)
	for _, l := range []Layer{LayerData, LayerMessaging, LayerAPI} {
		sup := suture.New(string(l)+"-layer", childSpec)
		root.Add(sup)
		layers[l] = sup
	}

	return &SupervisorTree{
		root:   root,
		layers: layers,
		logger: logger,
		config: config,
	}, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// Add adds svc to the named layer.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) (suture.ServiceToken, error) {
	sup, ok := t.layers[layer]
	if !ok {
		return suture.ServiceToken{}, fmt.Errorf("supervisor: unknown layer %q", layer)
	}
	return sup.Add(svc), nil
}

// AddDataService adds svc to the data layer.
func (t *SupervisorTree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerData].Add(svc)
}

// AddMessagingService adds svc to the messaging layer.
func (t *SupervisorTree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerMessaging].Add(svc)
}

// AddAPIService adds svc to the api layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerAPI].Add(svc)
}

// Remove stops and removes a service previously added to layer.
func (t *SupervisorTree) Remove(layer Layer, token suture.ServiceToken) error {
	sup, ok := t.layers[layer]
	if !ok {
		return fmt.Errorf("supervisor: unknown layer %q", layer)
	}
	return sup.Remove(token)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result when the tree stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that did not stop within the
// shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// LogUnstopped logs the unstopped service report after shutdown.
func (t *SupervisorTree) LogUnstopped() {
	report, err := t.UnstoppedServiceReport()
	if err != nil {
		t.logger.Warn("could not build unstopped service report", "error", err)
		return
	}
	for _, s := range report {
		t.logger.Warn("service did not stop in time", "service", s.Name, "timeout", t.config.ShutdownTimeout)
	}
}
