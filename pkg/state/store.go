// Package state implements the committed key-value state and its Merkle
// commitment: each Commit writes an immutable snapshot blob (state.bin)
// plus a manifest `{root, height}` via write-temp-then-fsync-then-rename,
// and startup adopts the manifest/blob pair rather than trusting whatever
// the embedded KV engine happens to hold on disk, so a crash between a
// Put and the next Commit never surfaces a partial update.
package state

import (
	"path/filepath"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/amunchain/amunchain/pkg/cryptography"
)

// ErrStateCorrupt is fatal at startup: the manifest's declared root does
// not match the root recomputed from state.bin, or state.bin is missing
// or undecodable while a manifest names it.
var ErrStateCorrupt = errors.New("state: manifest root does not match recomputed state")

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("state: key not found")

const (
	dbDirName    = "state.db"
	manifestName = "state.manifest"
	blobName     = "state.bin"
)

// Store is the committed key-value state backing Tide's block payloads.
// Reads see staged-but-uncommitted writes (read-your-own-writes); Root,
// Height and Prove always reflect the state as of the last Commit.
type Store struct {
	db      *pebble.DB
	dataDir string
	root    cryptography.Hash32
	height  uint64
	log     *logrus.Entry

	batch *pebble.Batch // indexed: staged Put/Delete since the last Commit
}

// Open opens (or creates) the pebble-backed index under dataDir and
// adopts the state named by the last manifest/state.bin pair, per spec
// §4.4. The embedded KV engine is treated purely as a rebuildable read
// index: it is resynced from state.bin on every Open, so a prior crash
// mid-Commit (after the blob/manifest landed but before the index caught
// up, or vice versa) never leaves a mismatched index in place.
func Open(dataDir string, log *logrus.Logger) (*Store, error) {
	cache := pebble.NewCache(32 << 20)
	defer cache.Unref()

	db, err := pebble.Open(filepath.Join(dataDir, dbDirName), &pebble.Options{Cache: cache})
	if err != nil {
		return nil, errors.Wrap(err, "opening state db")
	}

	s := &Store{db: db, dataDir: dataDir, log: log.WithField("component", "state")}

	mf, ok, err := readManifest(dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "reading state manifest")
	}
	if !ok {
		// Fresh node: no manifest yet, empty state is trivially consistent.
		s.root = cryptography.Hash32{}
		s.batch = db.NewIndexedBatch()
		return s, nil
	}

	pairs, ok, err := readStateBlob(dataDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(ErrStateCorrupt, "manifest present with no matching state blob")
	}
	if merkleRoot(pairs) != mf.Root {
		return nil, ErrStateCorrupt
	}
	if err := s.rebuildIndex(pairs); err != nil {
		return nil, errors.Wrap(err, "rebuilding state index from blob")
	}

	s.root = mf.Root
	s.height = mf.Height
	s.batch = db.NewIndexedBatch()
	return s, nil
}

// Close releases the underlying pebble handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads key, including any value staged by a Put/Delete since the
// last Commit that has not yet been rolled back by a crash.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, closer, err := s.batch.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get")
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

// Put stages key=value in memory for the next Commit. It is not durable
// on its own — a crash before Commit discards it, never a partial write.
func (s *Store) Put(key, value []byte) error {
	return s.batch.Set(key, value, nil)
}

// Delete stages key's removal in memory for the next Commit.
func (s *Store) Delete(key []byte) error {
	return s.batch.Delete(key, nil)
}

// Root returns the state root as of the last Commit.
func (s *Store) Root() cryptography.Hash32 { return s.root }

// Height returns the block height of the last Commit.
func (s *Store) Height() uint64 { return s.height }

// Commit snapshots the staged writes merged with the last-committed
// keyspace, writes that snapshot to state.bin, then the manifest
// referencing its root — both via write-temp-then-fsync-then-rename, blob
// before manifest, so a manifest on disk never names a half-written
// blob. Only once both have landed does it sync the staged writes into
// the pebble index, so the index lagging behind a crash is self-healing
// on the next Open rather than a source of corruption.
func (s *Store) Commit(height uint64) (cryptography.Hash32, error) {
	pairs, err := s.stagedPairs()
	if err != nil {
		return cryptography.Hash32{}, err
	}
	root := merkleRoot(pairs)

	if err := writeStateBlob(s.dataDir, pairs); err != nil {
		return cryptography.Hash32{}, errors.Wrap(err, "writing state blob")
	}
	if err := writeManifest(s.dataDir, manifest{Root: root, Height: height}); err != nil {
		return cryptography.Hash32{}, errors.Wrap(err, "writing state manifest")
	}

	applied := s.batch
	if err := s.db.Apply(applied, pebble.Sync); err != nil {
		return cryptography.Hash32{}, errors.Wrap(err, "syncing committed writes to index")
	}
	s.batch = s.db.NewIndexedBatch()
	if err := applied.Close(); err != nil {
		s.log.WithError(err).Warn("closing applied batch")
	}

	s.root = root
	s.height = height
	return root, nil
}

// Prove returns the inclusion proof for key as of the last Commit —
// staged-but-uncommitted writes are not reflected, matching Root/Height.
func (s *Store) Prove(key []byte) (*Proof, []byte, error) {
	pairs, err := s.committedPairs()
	if err != nil {
		return nil, nil, err
	}
	idx := sort.Search(len(pairs), func(i int) bool { return string(pairs[i].key) >= string(key) })
	if idx >= len(pairs) || string(pairs[idx].key) != string(key) {
		return nil, nil, ErrNotFound
	}
	proof, ok := merkleProof(pairs, idx)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return proof, pairs[idx].value, nil
}

// stagedPairs returns the full keyspace as it would look immediately
// after applying the current batch: committed pairs overlaid with
// whatever has been staged since, in ascending key order.
func (s *Store) stagedPairs() ([]pair, error) {
	iter, err := s.batch.NewIter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "iterating staged state")
	}
	return drainIter(iter)
}

// committedPairs returns the keyspace as of the last Commit, read from
// the pebble index (kept in sync with state.bin by rebuildIndex/Commit).
func (s *Store) committedPairs() ([]pair, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "iterating state db")
	}
	return drainIter(iter)
}

type pebbleIterator interface {
	First() bool
	Valid() bool
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

func drainIter(iter pebbleIterator) ([]pair, error) {
	defer iter.Close()

	var pairs []pair
	for iter.First(); iter.Valid(); iter.Next() {
		pairs = append(pairs, pair{
			key:   append([]byte(nil), iter.Key()...),
			value: append([]byte(nil), iter.Value()...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterator error")
	}
	return pairs, nil
}

// rebuildIndex overwrites the pebble index wholesale with pairs, so the
// index matches the authoritative state.bin snapshot even if a prior
// Commit crashed between landing the blob/manifest and syncing the index.
func (s *Store) rebuildIndex(pairs []pair) error {
	b := s.db.NewBatch()
	defer b.Close()

	iter, err := s.db.NewIter(nil)
	if err != nil {
		return errors.Wrap(err, "iterating state db")
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			iter.Close()
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return errors.Wrap(err, "closing iterator")
	}

	for _, p := range pairs {
		if err := b.Set(p.key, p.value, nil); err != nil {
			return err
		}
	}
	return s.db.Apply(b, pebble.Sync)
}
