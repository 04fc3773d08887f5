// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package provider

import (
	"fmt"
	"sort"

	"github.com/tomtom215/tallyboard/internal/models"
)

// Registry selects the adapter for a payment method. It is the only place
// that maps a method to a concrete rail.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry indexes adapters by Rail(). A later adapter replaces an
// earlier one with the same rail.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Rail()] = a
	}
	return r
}

// ForRail returns the adapter registered for rail.
func (r *Registry) ForRail(rail string) (Adapter, error) {
	a, ok := r.adapters[rail]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRail, rail)
	}
	return a, nil
}

// ForMethod returns the adapter that settles method.
func (r *Registry) ForMethod(method models.PaymentMethod) (Adapter, error) {
	return r.ForRail(method.Rail())
}

// Rails lists the registered rails in sorted order.
func (r *Registry) Rails() []string {
	rails := make([]string, 0, len(r.adapters))
	for rail := range r.adapters {
		rails = append(rails, rail)
	}
	sort.Strings(rails)
	return rails
}
