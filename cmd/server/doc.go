// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package main is the Tallyboard server.

It accepts donations over HTTP, settles them with the card (Stripe) and
wallet processors or records them directly for cash, check and other manual
methods, and pushes every ledger change to dashboards over WebSocket.

# Application Architecture

	RootSupervisor ("tallyboard")
	├── data-layer
	│   └── settlement-reconciler (polls intakes whose callback never came)
	├── messaging-layer
	│   ├── eventbus-forwarder    (watermill change bus -> gateway)
	│   └── broadcast-gateway     (per event fan-out)
	└── api-layer
	    └── http-server           (chi router)

Startup order:

 1. Configuration: koanf layers (defaults, config.yaml, environment)
 2. Logging: zerolog, level and format from LOG_LEVEL / LOG_FORMAT
 3. Store: Badger at BADGER_PATH, or memory for demos; events seeded
 4. Providers: card and wallet when enabled, manual always
 5. Ledger, change bus and settlement coordinator
 6. Recovery: PENDING donations from a previous run are tracked again
 7. Gateway, staff auth (only when staff accounts exist), router
 8. Supervisor tree until SIGINT or SIGTERM

# Configuration

See internal/config. The common variables:

	HTTP_PORT=8080
	STORAGE_BACKEND=badger BADGER_PATH=/data/tallyboard
	STRIPE_ENABLED=true STRIPE_SECRET_KEY=... STRIPE_WEBHOOK_SECRET=...
	WALLET_ENABLED=true WALLET_BASE_URL=... WALLET_API_KEY=... WALLET_CALLBACK_SECRET=...
	JWT_SECRET=... STAFF_ACCOUNTS=sam:$2a$10$...:staff
	CORS_ORIGINS=https://dashboard.example.org

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server drains in-flight
requests for HTTP_SHUTDOWN_TIMEOUT, then the store is closed.
*/
package main
