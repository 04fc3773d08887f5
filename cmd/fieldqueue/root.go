// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/tallyboard/internal/config"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/syncqueue"
)

// cli carries the resolved configuration to every subcommand.
type cli struct {
	configPath string
	serverURL  string
	staffToken string
	queuePath  string
	logLevel   string

	cfg *config.DeviceConfig
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "fieldqueue",
		Short:         "Offline donation queue for Tallyboard staff devices",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.configPath, "config", "", "YAML config file")
	f.StringVar(&c.serverURL, "server", "", "Tallyboard base URL (overrides server_url)")
	f.StringVar(&c.staffToken, "token", "", "staff bearer token from /api/v1/auth/login")
	f.StringVar(&c.queuePath, "queue", "", "local queue directory (overrides queue_path)")
	f.StringVar(&c.logLevel, "log-level", "", "trace, debug, info, warn or error")

	root.AddCommand(
		c.enqueueCmd(),
		c.listCmd(),
		c.drainCmd(),
		c.retryCmd(),
		c.runCmd(),
	)
	return root
}

// load resolves file, environment and flags, then validates.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.LoadDevice(c.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = c.serverURL
	}
	if flags.Changed("token") {
		cfg.StaffToken = c.staffToken
	}
	if flags.Changed("queue") {
		cfg.QueuePath = c.queuePath
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = c.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: cmd.ErrOrStderr(),
	})
	c.cfg = cfg
	return nil
}

// openQueue opens the device queue with an HTTP submitter for the server.
func (c *cli) openQueue() (*syncqueue.Queue, error) {
	submitter := syncqueue.NewHTTPSubmitter(c.cfg.ServerURL, c.cfg.StaffToken, c.cfg.SubmitTimeout)
	q, err := syncqueue.Open(syncqueue.Config{Path: c.cfg.QueuePath}, submitter)
	if err != nil {
		return nil, err
	}
	return q, nil
}
