// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package services

import (
	"context"
	"fmt"
)

// Runner is a component with its own context-aware loop. The broadcast
// gateway, change forwarder, settlement reconciler and the field queue
// syncer and monitor all satisfy it.
type Runner interface {
	RunWithContext(ctx context.Context) error
	fmt.Stringer
}

// RunnerService adapts a Runner to suture.Service.
type RunnerService struct {
	runner Runner
}

// NewRunnerService wraps r.
func NewRunnerService(r Runner) *RunnerService {
	return &RunnerService{runner: r}
}

// Serve implements suture.Service. A nil return after ctx ends is reported
// as ctx.Err() so suture does not treat a clean stop as completion.
func (s *RunnerService) Serve(ctx context.Context) error {
	err := s.runner.RunWithContext(ctx)
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *RunnerService) String() string {
	return s.runner.String()
}
