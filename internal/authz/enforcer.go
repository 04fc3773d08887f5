// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package authz decides which staff roles may use which API routes, using a
// Casbin RBAC model with path patterns.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Actions.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Enforcer wraps a synced Casbin enforcer loaded from the embedded model and
// policy.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the enforcer from the embedded policy.
func NewEnforcer() (*Enforcer, error) {
	return NewEnforcerFromPolicy(embeddedPolicy)
}

// NewEnforcerFromPolicy builds an enforcer from policy CSV text.
func NewEnforcerFromPolicy(policy string) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if err := loadPolicy(enforcer, policy); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: enforcer}, nil
}

// loadPolicy parses p and g lines of policy CSV.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		ptype, rule := parts[0], parts[1:]
		switch {
		case ptype == "p" && len(rule) == 3:
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", rule, err)
			}
		case ptype == "g" && len(rule) == 2:
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Enforce reports whether role may perform action on object.
func (e *Enforcer) Enforce(role, object, action string) (bool, error) {
	allowed, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return allowed, nil
}

// Roles lists the roles named in the policy, including inherited ones.
func (e *Enforcer) Roles() []string {
	seen := make(map[string]bool)
	var roles []string
	add := func(r string) {
		if !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	policies, _ := e.enforcer.GetPolicy()
	for _, p := range policies {
		add(p[0])
	}
	groups, _ := e.enforcer.GetGroupingPolicy()
	for _, g := range groups {
		add(g[0])
		add(g[1])
	}
	return roles
}
