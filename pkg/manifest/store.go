package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned by Store.Load when no manifest has been saved.
var ErrNotFound = errors.New("manifest: not found")

// Store persists a manifest between runs.
type Store interface {
	// Load returns the persisted manifest, or ErrNotFound.
	Load(ctx context.Context) (*Manifest, error)
	// Save replaces the persisted manifest.
	Save(ctx context.Context, m *Manifest) error
	// Update persists the flags of a single entry. The entry must exist.
	Update(ctx context.Context, e Entry) error
}

// DefaultKey is the object name BlobStore uses unless WithKey is given.
const DefaultKey = "manifest.csv"

// BlobStore keeps the manifest as a CSV object in a blob bucket. Blob
// objects are written whole, so every Update rewrites the table.
type BlobStore struct {
	bucket *blob.Bucket
	key    string

	mu      sync.Mutex
	current *Manifest
	index   map[string]int
}

// BlobOption configures a BlobStore.
type BlobOption func(*BlobStore)

// WithKey sets the object name of the manifest table.
func WithKey(key string) BlobOption {
	return func(s *BlobStore) {
		s.key = key
	}
}

// NewBlobStore returns a store backed by bucket.
func NewBlobStore(bucket *blob.Bucket, options ...BlobOption) *BlobStore {
	s := &BlobStore{bucket: bucket, key: DefaultKey}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Key returns the object name of the manifest table.
func (s *BlobStore) Key() string {
	return s.key
}

func (s *BlobStore) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return clone(s.current), nil
}

// load must be called with s.mu held.
func (s *BlobStore) load(ctx context.Context) error {
	data, err := s.bucket.ReadAll(ctx, s.key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("manifest: read %s: %w", s.key, err)
	}
	m, err := ReadCSV(bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.set(m)
	return nil
}

func (s *BlobStore) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, m); err != nil {
		return err
	}
	s.set(clone(m))
	return nil
}

func (s *BlobStore) Update(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		if err := s.load(ctx); err != nil {
			return err
		}
	}
	i, ok := s.index[e.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, e.ID)
	}

	prev := s.current.Entries[i]
	s.current.Entries[i].Exclude = e.Exclude
	s.current.Entries[i].Exported = e.Exported
	s.current.Entries[i].Uploaded = e.Uploaded
	if err := s.write(ctx, s.current); err != nil {
		s.current.Entries[i] = prev
		return err
	}
	return nil
}

// write must be called with s.mu held.
func (s *BlobStore) write(ctx context.Context, m *Manifest) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, m); err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	opts := &blob.WriterOptions{ContentType: "text/csv"}
	if err := s.bucket.WriteAll(ctx, s.key, buf.Bytes(), opts); err != nil {
		return fmt.Errorf("manifest: write %s: %w", s.key, err)
	}
	return nil
}

func (s *BlobStore) set(m *Manifest) {
	s.current = m
	s.index = make(map[string]int, len(m.Entries))
	for i, e := range m.Entries {
		s.index[e.ID] = i
	}
}

func clone(m *Manifest) *Manifest {
	out := &Manifest{Entries: make([]Entry, len(m.Entries))}
	copy(out.Entries, m.Entries)
	return out
}
