// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package config loads and validates configuration for the Tallyboard server and
the field queue CLI.

# Configuration Sources

Sources are layered with Koanf v2, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/tallyboard/config.yaml)
 3. Environment variables with plain names (HTTP_PORT, STRIPE_SECRET_KEY, ...)

Events and structured staff accounts are usually given in the YAML file:

	events:
	  - id: spring-gala
	    name: Spring Gala
	    currency: EUR
	    goal_amount: 5000000
	security:
	  jwt_secret: <32+ random characters>
	  staff:
	    - username: ana
	      password_hash: $2a$12$...
	      role: admin

STAFF_ACCOUNTS=user:hash:role,... adds accounts from the environment.

# Validation

Validate is split per section. Rails are only checked when enabled, and a
JWT secret is only required once staff accounts exist.

# Field Queue

LoadDevice reads DeviceConfig for cmd/fieldqueue from defaults, an optional
file and FIELDQUEUE_* variables; cobra flags override the result.
*/
package config
