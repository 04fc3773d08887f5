// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/tallyboard/internal/models"
)

// Memory is an in-process Store. Values are cloned on the way in and out so
// callers never share a record with the store.
type Memory struct {
	mu        sync.RWMutex
	donations map[string]*models.Donation
	refs      map[string]string
	tokens    map[string]string
	events    map[string]models.EventConfig
	closed    bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		donations: make(map[string]*models.Donation),
		refs:      make(map[string]string),
		tokens:    make(map[string]string),
		events:    make(map[string]models.EventConfig),
	}
}

func refKey(rail, ref string) string {
	return rail + ":" + ref
}

func (m *Memory) LoadDonation(_ context.Context, id string) (*models.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	d, ok := m.donations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *Memory) SaveDonation(_ context.Context, d *models.Donation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if d.ExternalRef != "" {
		key := refKey(d.Method.Rail(), d.ExternalRef)
		if owner, ok := m.refs[key]; ok && owner != d.ID {
			return ErrDuplicateReference
		}
		m.refs[key] = d.ID
	}
	m.donations[d.ID] = d.Clone()
	return nil
}

func (m *Memory) FindByReference(_ context.Context, rail, ref string) (*models.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	id, ok := m.refs[refKey(rail, ref)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.donations[id].Clone(), nil
}

func (m *Memory) ListByStatus(_ context.Context, status models.DonationStatus) ([]*models.Donation, error) {
	return m.list(func(d *models.Donation) bool { return d.Status == status })
}

func (m *Memory) ListByEvent(_ context.Context, eventID string) ([]*models.Donation, error) {
	return m.list(func(d *models.Donation) bool { return d.EventID == eventID })
}

// list returns matches ordered by creation time, then id.
func (m *Memory) list(match func(*models.Donation) bool) ([]*models.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]*models.Donation, 0)
	for _, d := range m.donations {
		if match(d) {
			out = append(out, d.Clone())
		}
	}
	sortDonations(out)
	return out, nil
}

func sortDonations(ds []*models.Donation) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].CreatedAt.Before(ds[j].CreatedAt)
		}
		return ds[i].ID < ds[j].ID
	})
}

func (m *Memory) LoadEventConfig(_ context.Context, eventID string) (*models.EventConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	cfg, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (m *Memory) SaveEventConfig(_ context.Context, cfg *models.EventConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.events[cfg.ID] = *cfg
	return nil
}

func (m *Memory) ReserveToken(_ context.Context, token, donationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	if existing, ok := m.tokens[token]; ok {
		return existing, nil
	}
	m.tokens[token] = donationID
	return "", nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
