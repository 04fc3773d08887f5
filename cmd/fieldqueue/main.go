// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Command fieldqueue records donations on a staff device and syncs them to
// the Tallyboard server when it is reachable.
//
//	fieldqueue enqueue --event gala --amount 2000 --currency EUR --method cash
//	fieldqueue list
//	fieldqueue drain
//	fieldqueue retry <entry-id>
//	fieldqueue run          # sync in the background until interrupted
//
// Settings come from --config (YAML), FIELDQUEUE_* environment variables and
// flags, in increasing priority.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
