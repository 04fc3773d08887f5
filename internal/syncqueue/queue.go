// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/metrics"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/validation"
)

const (
	prefixEntry = "entry:"
	prefixID    = "id:"
	keySequence = "seq"

	sequenceBandwidth = 16
)

var (
	// ErrNotFound is returned for an unknown local entry id.
	ErrNotFound = errors.New("syncqueue: entry not found")

	// ErrAlreadySynced is returned by Retry for an entry the server already has.
	ErrAlreadySynced = errors.New("syncqueue: entry already synced")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("syncqueue: closed")
)

// Config configures the on-device store.
type Config struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// Queue is the durable offline donation queue of one staff device.
//
// Entries are kept in insertion order under entry:<20 digit seq> with an
// id:<local id> index. Drain and Retry share a single slot so at most one
// submission pass is in flight.
type Queue struct {
	db        *badger.DB
	seq       *badger.Sequence
	submitter Submitter

	// slot serializes Drain and Retry; waiting honors the caller's context.
	slot chan struct{}

	mu     sync.RWMutex
	closed bool

	now func() time.Time
}

// Open opens (or creates) the queue at cfg.Path.
func Open(cfg Config, submitter Submitter) (*Queue, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("syncqueue: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Every enqueue must survive a crash or a dead battery.
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open queue sequence: %w", err)
	}

	return &Queue{
		db:        db,
		seq:       seq,
		submitter: submitter,
		slot:      make(chan struct{}, 1),
		now:       time.Now,
	}, nil
}

// Close releases the sequence and closes the database. Safe to call twice.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	var errs []error
	if err := q.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := q.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close queue: %w", err))
	}
	return errors.Join(errs...)
}

func (q *Queue) checkOpen() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

func entryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEntry, seq))
}

// Enqueue validates draft and stores it as a pending entry with a fresh
// idempotency token.
func (q *Queue) Enqueue(_ context.Context, draft models.DonationDraft, recordedBy string) (*PendingDonation, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}

	draft.Currency = strings.ToUpper(draft.Currency)
	if verr := validation.ValidateStruct(&draft); verr != nil {
		return nil, verr
	}

	seq, err := q.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}

	entry := &PendingDonation{
		ID:               uuid.NewString(),
		Seq:              seq,
		IdempotencyToken: uuid.NewString(),
		EventID:          draft.EventID,
		Amount:           draft.Amount,
		Currency:         draft.Currency,
		Method:           draft.Method,
		DonorName:        draft.DonorName,
		DonorEmail:       draft.DonorEmail,
		Message:          draft.Message,
		Anonymous:        draft.Anonymous,
		RecordedBy:       recordedBy,
		CreatedAt:        q.now().UTC(),
		Status:           StatusPending,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(seq), data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixID+entry.ID), entryKey(seq))
	})
	if err != nil {
		return nil, fmt.Errorf("store entry: %w", err)
	}

	logging.Info().
		Str("entry_id", entry.ID).
		Uint64("seq", seq).
		Str("event_id", entry.EventID).
		Int64("amount", entry.Amount).
		Msg("donation queued")
	q.refreshGauges()
	return entry, nil
}

// Get returns one entry by local id.
func (q *Queue) Get(_ context.Context, id string) (*PendingDonation, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	var entry PendingDonation
	err := q.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixID + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getEntry(txn, key, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func getEntry(txn *badger.Txn, key []byte, entry *PendingDonation) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, entry)
	})
}

// List returns every entry in insertion order.
func (q *Queue) List(_ context.Context) ([]*PendingDonation, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]*PendingDonation, 0)
	err := q.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixEntry)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry PendingDonation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stats counts entries by status.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, e := range entries {
		switch e.Status {
		case StatusPending:
			s.Pending++
		case StatusSynced:
			s.Synced++
		case StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

func (q *Queue) save(entry *PendingDonation) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.Seq), data)
	})
}

func (q *Queue) acquire(ctx context.Context) error {
	select {
	case q.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) release() {
	<-q.slot
}

// Drain submits every pending or failed entry in insertion order, one at a
// time. A failed submission is recorded on the entry and the pass continues
// with the next one. A concurrent caller waits for the running pass and then
// runs its own.
func (q *Queue) Drain(ctx context.Context) (*DrainReport, error) {
	if err := q.acquire(ctx); err != nil {
		return nil, err
	}
	defer q.release()

	if err := q.checkOpen(); err != nil {
		return nil, err
	}

	entries, err := q.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &DrainReport{}
	for _, entry := range entries {
		if !entry.Submittable() {
			continue
		}
		if ctx.Err() != nil {
			report.Aborted = true
			break
		}

		report.Attempted++
		if err := q.submit(ctx, entry); err != nil {
			return report, err
		}
		if entry.Status == StatusSynced {
			report.Synced++
		} else {
			report.Failed++
		}
	}

	metrics.SyncQueueDrains.WithLabelValues(report.result()).Inc()
	q.refreshGauges()

	if report.Attempted > 0 {
		logging.Info().
			Int("attempted", report.Attempted).
			Int("synced", report.Synced).
			Int("failed", report.Failed).
			Bool("aborted", report.Aborted).
			Msg("queue drained")
	}
	return report, nil
}

// Retry resubmits a single entry on staff request, in the same slot as Drain.
func (q *Queue) Retry(ctx context.Context, id string) (*PendingDonation, error) {
	if err := q.acquire(ctx); err != nil {
		return nil, err
	}
	defer q.release()

	entry, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusSynced {
		return entry, ErrAlreadySynced
	}

	if err := q.submit(ctx, entry); err != nil {
		return nil, err
	}
	q.refreshGauges()
	return entry, nil
}

// submit sends entry once and persists the outcome. The returned error is a
// storage error; submission failures are recorded on the entry.
func (q *Queue) submit(ctx context.Context, entry *PendingDonation) error {
	res, err := q.submitter.Submit(ctx, entry)

	now := q.now().UTC()
	entry.Attempts++
	entry.LastAttemptAt = &now
	applyOutcome(entry, res, err, now)

	if saveErr := q.save(entry); saveErr != nil {
		return fmt.Errorf("persist entry %s: %w", entry.ID, saveErr)
	}

	ev := logging.Info()
	if entry.Status == StatusFailed {
		ev = logging.Warn()
	}
	ev.Str("entry_id", entry.ID).
		Str("status", string(entry.Status)).
		Str("server_id", entry.ServerID).
		Int("attempts", entry.Attempts).
		Str("error", entry.LastError).
		Msg("queue entry submitted")
	return nil
}

// applyOutcome records one submission result on entry.
func applyOutcome(entry *PendingDonation, res *SubmitResult, err error, now time.Time) {
	if err != nil {
		entry.Status = StatusFailed
		entry.LastError = err.Error()
		var serr *SubmitError
		if errors.As(err, &serr) && serr.ServerID != "" {
			entry.ServerID = serr.ServerID
			entry.ServerStatus = models.StatusFailed
		}
		metrics.SyncQueueSubmissions.WithLabelValues("failed").Inc()
		return
	}

	entry.ServerID = res.ServerID
	entry.ServerStatus = res.Status

	// A duplicate of a donation the provider declined is not money received.
	if res.Status == models.StatusFailed {
		entry.Status = StatusFailed
		entry.LastError = fmt.Sprintf("server donation %s failed", res.ServerID)
		metrics.SyncQueueSubmissions.WithLabelValues("failed").Inc()
		return
	}

	entry.Status = StatusSynced
	entry.LastError = ""
	entry.SyncedAt = &now
	if res.Duplicate {
		metrics.SyncQueueSubmissions.WithLabelValues("duplicate").Inc()
	} else {
		metrics.SyncQueueSubmissions.WithLabelValues("synced").Inc()
	}
}

func (q *Queue) refreshGauges() {
	s, err := q.Stats(context.Background())
	if err != nil {
		return
	}
	metrics.SetSyncQueueCounts(s.Pending, s.Synced, s.Failed)
}
