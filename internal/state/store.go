package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jacobschulman/stonewatch/internal/internaltypes"
)

// BlobStore persists the raw state blob. Get returns
// internaltypes.ErrNotFound when nothing has been stored yet.
type BlobStore interface {
	Name() string
	Get(ctx context.Context) ([]byte, error)
	Put(ctx context.Context, data []byte) error
}

// Repository loads and saves snapshots through a BlobStore. It is not safe
// for concurrent runs: Save compares against the digest of the last Load.
type Repository struct {
	blobs           BlobStore
	sealer          *Sealer
	ttl             time.Duration
	loc             *time.Location
	defaultMerchant string
	log             *log.Logger

	loaded   [32]byte
	writable bool
}

type Options struct {
	Sealer          *Sealer
	TTL             time.Duration
	Location        *time.Location
	DefaultMerchant string
	Logger          *log.Logger
}

func NewRepository(blobs BlobStore, opts Options) *Repository {
	lg := opts.Logger
	if lg == nil {
		lg = log.Default()
	}
	return &Repository{
		blobs:           blobs,
		sealer:          opts.Sealer,
		ttl:             opts.TTL,
		loc:             opts.Location,
		defaultMerchant: opts.DefaultMerchant,
		log:             lg,
	}
}

func (r *Repository) Backend() string { return r.blobs.Name() }

// Load reads and decodes the stored snapshot. It always returns a usable
// snapshot. When the store cannot be reached the snapshot is empty, the
// error wraps internaltypes.ErrStoreUnavailable, and the following Save is
// skipped so remote state is not clobbered. A corrupt blob is logged and
// replaced on Save.
func (r *Repository) Load(ctx context.Context, now time.Time) (Snapshot, error) {
	r.writable = false
	r.loaded = [32]byte{}

	data, err := r.blobs.Get(ctx)
	switch {
	case errors.Is(err, internaltypes.ErrNotFound):
		data = nil
	case err != nil:
		return Snapshot{}, fmt.Errorf("%w: %s: %v", internaltypes.ErrStoreUnavailable, r.blobs.Name(), err)
	}
	r.writable = true

	data = bytes.TrimSpace(data)
	reseal := r.sealer != nil && len(data) > 0 && data[0] == '{'
	data, err = r.open(data)
	if err != nil {
		r.log.Warn("state blob unreadable, starting empty", "backend", r.blobs.Name(), "err", err)
		return Snapshot{}, nil
	}
	snap, stats, err := Decode(data, DecodeOptions{
		Now:             now,
		TTL:             r.ttl,
		Location:        r.loc,
		DefaultMerchant: r.defaultMerchant,
	})
	if err != nil {
		r.log.Warn("state blob corrupt, starting empty", "backend", r.blobs.Name(), "err", err)
		return Snapshot{}, nil
	}
	r.log.Debug("state loaded", "backend", r.blobs.Name(), "entries", stats.Loaded,
		"migrated", stats.Migrated, "pruned", stats.Pruned, "dropped", stats.Dropped)
	if !reseal && stats.Migrated == 0 && stats.Pruned == 0 && stats.Dropped == 0 {
		if d, err := Digest(snap); err == nil {
			r.loaded = d
		}
	}
	return snap, nil
}

// Save writes snap back unless the preceding Load failed or nothing changed.
// It reports whether a write happened.
func (r *Repository) Save(ctx context.Context, snap Snapshot) (bool, error) {
	if !r.writable {
		r.log.Warn("state not saved: load failed this run", "backend", r.blobs.Name())
		return false, nil
	}
	data, err := Encode(snap)
	if err != nil {
		return false, err
	}
	if d, err := Digest(snap); err == nil && d == r.loaded {
		r.log.Debug("state unchanged, skipping write", "backend", r.blobs.Name())
		return false, nil
	}
	if r.sealer != nil {
		if data, err = r.sealer.Seal(data); err != nil {
			return false, err
		}
	}
	if err := r.blobs.Put(ctx, data); err != nil {
		return false, fmt.Errorf("save state to %s: %w", r.blobs.Name(), err)
	}
	r.loaded, _ = Digest(snap)
	r.log.Debug("state saved", "backend", r.blobs.Name(), "entries", len(snap))
	return true, nil
}

func (r *Repository) open(data []byte) ([]byte, error) {
	if r.sealer == nil || len(data) == 0 {
		return data, nil
	}
	if data[0] == '{' {
		r.log.Info("state blob is not sealed yet; it will be sealed on save", "backend", r.blobs.Name())
		return data, nil
	}
	return r.sealer.Open(data)
}

// MemoryStore keeps the blob in process memory. Used when no durable backend
// is configured: dedup then only lasts as long as the process.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, internaltypes.ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryStore) Put(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

// Unavailable stands in for a backend that could not be reached when the
// run started. Load degrades to an empty snapshot and Save is skipped.
func Unavailable(name string, err error) BlobStore {
	return unavailableStore{name: name, err: err}
}

type unavailableStore struct {
	name string
	err  error
}

func (u unavailableStore) Name() string { return u.name }

func (u unavailableStore) Get(context.Context) ([]byte, error) { return nil, u.err }

func (u unavailableStore) Put(context.Context, []byte) error { return u.err }

// Reset overwrites the stored blob with an empty snapshot.
func (r *Repository) Reset(ctx context.Context) error {
	data := []byte("{}")
	if r.sealer != nil {
		var err error
		if data, err = r.sealer.Seal(data); err != nil {
			return err
		}
	}
	if err := r.blobs.Put(ctx, data); err != nil {
		return fmt.Errorf("reset state in %s: %w", r.blobs.Name(), err)
	}
	return nil
}
