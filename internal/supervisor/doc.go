// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package supervisor runs Tallyboard's long-lived services under a suture v4
tree.

	tallyboard
	├── data-layer
	│   └── settlement-reconciler
	├── messaging-layer
	│   ├── eventbus-forwarder
	│   └── broadcast-gateway
	└── api-layer
	    └── http-server

Each layer is its own supervisor, so a service that keeps crashing backs off
inside its layer while the others keep running. Supervisor events go to the
application logger through sutureslog and the zerolog slog adapter.

Usage in main:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}
	tree.AddDataService(services.NewRunnerService(reconciler))
	tree.AddMessagingService(services.NewRunnerService(gateway))
	tree.AddAPIService(services.NewHTTPServerService(server, addr, timeout))
	return tree.Serve(ctx)
*/
package supervisor
