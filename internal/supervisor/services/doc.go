// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package services adapts Tallyboard components to suture.Service.

HTTPServerService turns http.Server's ListenAndServe/Shutdown pair into a
context-aware Serve with a bounded drain. RunnerService wraps anything with
RunWithContext, which is how the gateway, forwarder, reconciler and the field
queue loops are supervised.
*/
package services
