package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTerminal is returned when marking an entry that is already
	// exported or excluded.
	ErrTerminal = errors.New("manifest: entry already resolved")
	// ErrUnknownEntry is returned for an id that is not in the manifest.
	ErrUnknownEntry = errors.New("manifest: unknown entry")
	// ErrNotExported is returned by MarkUploaded for an entry that has no
	// exported artifact.
	ErrNotExported = errors.New("manifest: entry not exported")
)

// Ledger is the mutable work list of a run. It is safe for concurrent use;
// writes to different entries do not block each other.
type Ledger struct {
	store Store
	order []string
	slots map[string]*slot
}

type slot struct {
	mu sync.Mutex
	e  Entry
}

// Create persists m as a new manifest and returns its ledger.
func Create(ctx context.Context, store Store, m *Manifest) (*Ledger, error) {
	if err := m.Check(); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, m); err != nil {
		return nil, err
	}
	return newLedger(store, m), nil
}

// Open loads the persisted manifest from store.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	m, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	return newLedger(store, m), nil
}

func newLedger(store Store, m *Manifest) *Ledger {
	l := &Ledger{
		store: store,
		order: make([]string, 0, len(m.Entries)),
		slots: make(map[string]*slot, len(m.Entries)),
	}
	for _, e := range m.Entries {
		l.order = append(l.order, e.ID)
		l.slots[e.ID] = &slot{e: e}
	}
	return l
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.order)
}

// Get returns the entry with id.
func (l *Ledger) Get(id string) (Entry, bool) {
	s, ok := l.slots[id]
	if !ok {
		return Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.e, true
}

// Entries returns a snapshot of all entries in manifest order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		e, _ := l.Get(id)
		out = append(out, e)
	}
	return out
}

// Pending returns the entries that are neither exported nor excluded, in
// manifest order.
func (l *Ledger) Pending() []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if !e.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

// Manifest returns a snapshot of the ledger as a manifest.
func (l *Ledger) Manifest() *Manifest {
	return &Manifest{Entries: l.Entries()}
}

// Counts returns the number of entries in each state.
func (l *Ledger) Counts() Counts {
	return l.Manifest().Counts()
}

// MarkExported moves a pending entry to EXPORTED.
func (l *Ledger) MarkExported(ctx context.Context, id string) error {
	return l.update(ctx, id, func(e *Entry) error {
		if e.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrTerminal, id, e.Status())
		}
		e.Exported = true
		return nil
	})
}

// MarkExcluded moves a pending entry to EXCLUDED.
func (l *Ledger) MarkExcluded(ctx context.Context, id string) error {
	return l.update(ctx, id, func(e *Entry) error {
		if e.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrTerminal, id, e.Status())
		}
		e.Exclude = true
		return nil
	})
}

// MarkUploaded records that the artifact of an exported entry was copied to
// remote storage.
func (l *Ledger) MarkUploaded(ctx context.Context, id string) error {
	return l.update(ctx, id, func(e *Entry) error {
		if !e.Exported {
			return fmt.Errorf("%w: %s", ErrNotExported, id)
		}
		e.Uploaded = true
		return nil
	})
}

// Requeue resets an entry to PENDING so the next run fetches it again.
func (l *Ledger) Requeue(ctx context.Context, id string) error {
	return l.update(ctx, id, func(e *Entry) error {
		e.Exclude = false
		e.Exported = false
		e.Uploaded = false
		return nil
	})
}

// update applies fn to a copy of the entry, persists it and only then makes
// it visible. A failed write leaves the entry unchanged.
func (l *Ledger) update(ctx context.Context, id string, fn func(*Entry) error) error {
	s, ok := l.slots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.e
	if err := fn(&next); err != nil {
		return err
	}
	if sameFlags(next, s.e) {
		return nil
	}
	if err := l.store.Update(ctx, next); err != nil {
		return fmt.Errorf("manifest: persist %s: %w", id, err)
	}
	s.e = next
	return nil
}

func sameFlags(a, b Entry) bool {
	return a.Exclude == b.Exclude && a.Exported == b.Exported && a.Uploaded == b.Uploaded
}
