// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
)

// Key prefixes. Donations are stored as JSON; the other keys hold a donation id.
const (
	prefixDonation = "donation:"
	prefixRef      = "ref:"
	prefixToken    = "token:"
	prefixEvent    = "event:"
)

// maxConflictRetries bounds retries of optimistic transactions that lost a
// write conflict against a concurrent writer.
const maxConflictRetries = 5

// BadgerConfig configures the durable store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM (tests, demos).
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool

	// tokenMu serializes reservations so racing submissions of one token
	// never depend on conflict retries.
	tokenMu sync.Mutex
}

// OpenBadger opens (or creates) the database described by cfg.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store: badger path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("donation store opened")
	return &Badger{db: db}, nil
}

func (b *Badger) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (b *Badger) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func getString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (b *Badger) LoadDonation(_ context.Context, id string) (*models.Donation, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var d models.Donation
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixDonation+id, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (b *Badger) SaveDonation(_ context.Context, d *models.Donation) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal donation: %w", err)
	}

	return b.update(func(txn *badger.Txn) error {
		if d.ExternalRef != "" {
			key := prefixRef + refKey(d.Method.Rail(), d.ExternalRef)
			owner, err := getString(txn, key)
			switch {
			case err == nil && owner != d.ID:
				return ErrDuplicateReference
			case err != nil && !errors.Is(err, ErrNotFound):
				return err
			}
			if err := txn.Set([]byte(key), []byte(d.ID)); err != nil {
				return err
			}
		}
		return txn.Set([]byte(prefixDonation+d.ID), data)
	})
}

func (b *Badger) FindByReference(_ context.Context, rail, ref string) (*models.Donation, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var d models.Donation
	err := b.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, prefixRef+refKey(rail, ref))
		if err != nil {
			return err
		}
		return getJSON(txn, prefixDonation+id, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (b *Badger) ListByStatus(_ context.Context, status models.DonationStatus) ([]*models.Donation, error) {
	return b.scan(func(d *models.Donation) bool { return d.Status == status })
}

func (b *Badger) ListByEvent(_ context.Context, eventID string) ([]*models.Donation, error) {
	return b.scan(func(d *models.Donation) bool { return d.EventID == eventID })
}

func (b *Badger) scan(match func(*models.Donation) bool) ([]*models.Donation, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]*models.Donation, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixDonation)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var d models.Donation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if match(&d) {
				out = append(out, &d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortDonations(out)
	return out, nil
}

func (b *Badger) LoadEventConfig(_ context.Context, eventID string) (*models.EventConfig, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var cfg models.EventConfig
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixEvent+eventID, &cfg)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (b *Badger) SaveEventConfig(_ context.Context, cfg *models.EventConfig) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal event config: %w", err)
	}
	return b.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixEvent+cfg.ID), data)
	})
}

func (b *Badger) ReserveToken(_ context.Context, token, donationID string) (string, error) {
	if err := b.checkOpen(); err != nil {
		return "", err
	}
	b.tokenMu.Lock()
	defer b.tokenMu.Unlock()

	var existing string
	err := b.update(func(txn *badger.Txn) error {
		existing = ""
		owner, err := getString(txn, prefixToken+token)
		if err == nil {
			existing = owner
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		return txn.Set([]byte(prefixToken+token), []byte(donationID))
	})
	if err != nil {
		return "", err
	}
	return existing, nil
}

// Close flushes and closes the database. Safe to call twice.
func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("donation store closed")
	return nil
}
